// Package engine defines the contract between go-cvstream and the vision
// engine that owns pixel buffers, image decoding, cascade detection and
// video capture.
//
// The production implementation lives in pkg/engine/gocvengine and is backed
// by OpenCV through gocv. Mock in this package implements the same contract
// in pure Go for tests.
package engine

import (
	"context"
	"image"
)

// MatType is an engine type code. Its value encodes element depth and
// channel count the way OpenCV does (CV_8UC3 etc.).
type MatType int

// Constant is a named engine type code, e.g. {"CV_8UC3", 16}.
type Constant struct {
	Name  string
	Value MatType
}

// Matrix is a 2D pixel buffer owned by the engine.
// Callers that receive a Matrix own it and must Close it.
type Matrix interface {
	// Size returns [rows, cols].
	Size() []int

	// Type returns the matrix type code.
	Type() MatType

	// Channels returns the number of channels per element.
	Channels() int

	// ToBytes returns a copy of the raw, continuous pixel data.
	ToBytes() []byte

	// Put replaces the pixel data with buf. len(buf) must match the
	// matrix's total byte size.
	Put(buf []byte) error

	// Close releases the matrix.
	Close() error
}

// DetectOptions are passed through to the classifier unmodified.
// Zero values mean "engine default".
type DetectOptions struct {
	Scale     float64 // Scale factor between pyramid levels
	Neighbors int     // Minimum neighbours per candidate
	MinWidth  int     // Minimum object width in pixels
	MinHeight int     // Minimum object height in pixels
}

// Classifier detects objects with a loaded cascade.
type Classifier interface {
	DetectMultiScale(ctx context.Context, m Matrix, opts DetectOptions) ([]image.Rectangle, error)
	Close() error
}

// Capture is a frame source such as a camera or video file.
type Capture interface {
	// Read blocks until the next frame is available.
	Read(ctx context.Context) (Matrix, error)
	Close() error
}

// Engine is the vision engine.
type Engine interface {
	// Constants returns the named type codes in declaration order.
	Constants() []Constant

	// NewMatrix allocates a rows x cols matrix of the given type.
	NewMatrix(rows, cols int, t MatType) (Matrix, error)

	// ReadImage decodes an encoded image (JPEG, PNG, ...).
	ReadImage(ctx context.Context, data []byte) (Matrix, error)

	// EncodeImage encodes m using the format implied by ext (".png", ".jpg").
	EncodeImage(ext string, m Matrix) ([]byte, error)

	// NewClassifier loads the cascade file at path.
	NewClassifier(path string) (Classifier, error)

	// OpenCapture opens a capture source: a device index ("0") or a
	// file/stream URL.
	OpenCapture(source string) (Capture, error)
}
