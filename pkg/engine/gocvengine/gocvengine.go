// Package gocvengine implements engine.Engine on top of OpenCV via gocv.
package gocvengine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"strconv"
	"sync"

	"github.com/teslashibe/go-cvstream/pkg/engine"
	"gocv.io/x/gocv"
)

// Defaults applied when DetectOptions fields are zero.
const (
	DefaultScale     = 1.1
	DefaultNeighbors = 2
	DefaultMinWidth  = 30
	DefaultMinHeight = 30
)

var (
	// ErrEmptyImage is returned when OpenCV decodes nothing.
	ErrEmptyImage = errors.New("gocvengine: empty image")

	// ErrNoFrame is returned when a capture source yields no frame.
	ErrNoFrame = errors.New("gocvengine: no frame")
)

// constants lists gocv's type codes under OpenCV's names.
// Explicit channel counts come first so they win on duplicate codes.
var constants = []engine.Constant{
	{Name: "CV_8UC1", Value: engine.MatType(gocv.MatTypeCV8UC1)},
	{Name: "CV_8UC2", Value: engine.MatType(gocv.MatTypeCV8UC2)},
	{Name: "CV_8UC3", Value: engine.MatType(gocv.MatTypeCV8UC3)},
	{Name: "CV_8UC4", Value: engine.MatType(gocv.MatTypeCV8UC4)},
	{Name: "CV_8SC1", Value: engine.MatType(gocv.MatTypeCV8SC1)},
	{Name: "CV_8SC2", Value: engine.MatType(gocv.MatTypeCV8SC2)},
	{Name: "CV_8SC3", Value: engine.MatType(gocv.MatTypeCV8SC3)},
	{Name: "CV_8SC4", Value: engine.MatType(gocv.MatTypeCV8SC4)},
	{Name: "CV_16UC1", Value: engine.MatType(gocv.MatTypeCV16UC1)},
	{Name: "CV_16UC2", Value: engine.MatType(gocv.MatTypeCV16UC2)},
	{Name: "CV_16UC3", Value: engine.MatType(gocv.MatTypeCV16UC3)},
	{Name: "CV_16UC4", Value: engine.MatType(gocv.MatTypeCV16UC4)},
	{Name: "CV_16SC1", Value: engine.MatType(gocv.MatTypeCV16SC1)},
	{Name: "CV_16SC2", Value: engine.MatType(gocv.MatTypeCV16SC2)},
	{Name: "CV_16SC3", Value: engine.MatType(gocv.MatTypeCV16SC3)},
	{Name: "CV_16SC4", Value: engine.MatType(gocv.MatTypeCV16SC4)},
	{Name: "CV_32SC1", Value: engine.MatType(gocv.MatTypeCV32SC1)},
	{Name: "CV_32SC2", Value: engine.MatType(gocv.MatTypeCV32SC2)},
	{Name: "CV_32SC3", Value: engine.MatType(gocv.MatTypeCV32SC3)},
	{Name: "CV_32SC4", Value: engine.MatType(gocv.MatTypeCV32SC4)},
	{Name: "CV_32FC1", Value: engine.MatType(gocv.MatTypeCV32FC1)},
	{Name: "CV_32FC2", Value: engine.MatType(gocv.MatTypeCV32FC2)},
	{Name: "CV_32FC3", Value: engine.MatType(gocv.MatTypeCV32FC3)},
	{Name: "CV_32FC4", Value: engine.MatType(gocv.MatTypeCV32FC4)},
	{Name: "CV_64FC1", Value: engine.MatType(gocv.MatTypeCV64FC1)},
	{Name: "CV_64FC2", Value: engine.MatType(gocv.MatTypeCV64FC2)},
	{Name: "CV_64FC3", Value: engine.MatType(gocv.MatTypeCV64FC3)},
	{Name: "CV_64FC4", Value: engine.MatType(gocv.MatTypeCV64FC4)},
	{Name: "CV_8U", Value: engine.MatType(gocv.MatTypeCV8U)},
	{Name: "CV_8S", Value: engine.MatType(gocv.MatTypeCV8S)},
	{Name: "CV_16U", Value: engine.MatType(gocv.MatTypeCV16U)},
	{Name: "CV_16S", Value: engine.MatType(gocv.MatTypeCV16S)},
	{Name: "CV_32S", Value: engine.MatType(gocv.MatTypeCV32S)},
	{Name: "CV_32F", Value: engine.MatType(gocv.MatTypeCV32F)},
	{Name: "CV_64F", Value: engine.MatType(gocv.MatTypeCV64F)},
}

// Engine is the OpenCV-backed engine.Engine.
type Engine struct{}

// New returns an OpenCV engine.
func New() *Engine {
	return &Engine{}
}

// Constants implements engine.Engine.
func (e *Engine) Constants() []engine.Constant {
	return constants
}

// NewMatrix implements engine.Engine.
func (e *Engine) NewMatrix(rows, cols int, t engine.MatType) (engine.Matrix, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("gocvengine: invalid matrix size %dx%d", rows, cols)
	}
	return Wrap(gocv.NewMatWithSize(rows, cols, gocv.MatType(t))), nil
}

// ReadImage implements engine.Engine.
func (e *Engine) ReadImage(ctx context.Context, data []byte) (engine.Matrix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if img.Empty() {
		img.Close()
		return nil, ErrEmptyImage
	}
	return Wrap(img), nil
}

// EncodeImage implements engine.Engine.
func (e *Engine) EncodeImage(ext string, m engine.Matrix) ([]byte, error) {
	src, ok := Unwrap(m)
	if !ok {
		return nil, fmt.Errorf("gocvengine: foreign matrix %T", m)
	}

	buf, err := gocv.IMEncode(gocv.FileExt(ext), src)
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	defer buf.Close()

	native := buf.GetBytes()
	out := make([]byte, len(native))
	copy(out, native)
	return out, nil
}

// NewClassifier implements engine.Engine.
func (e *Engine) NewClassifier(path string) (engine.Classifier, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("cascade file not found: %s", path)
	}

	cc := gocv.NewCascadeClassifier()
	if !cc.Load(path) {
		cc.Close()
		return nil, fmt.Errorf("failed to load cascade from %s", path)
	}
	return &classifier{cc: cc}, nil
}

// OpenCapture implements engine.Engine.
func (e *Engine) OpenCapture(source string) (engine.Capture, error) {
	var device interface{} = source
	if id, err := strconv.Atoi(source); err == nil {
		device = id
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open capture %q: %w", source, err)
	}
	return &capture{vc: vc}, nil
}

// classifier wraps a gocv.CascadeClassifier, which is not safe for
// concurrent use.
type classifier struct {
	cc gocv.CascadeClassifier
	mu sync.Mutex
}

func (c *classifier) DetectMultiScale(ctx context.Context, m engine.Matrix, opts engine.DetectOptions) ([]image.Rectangle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, ok := Unwrap(m)
	if !ok {
		return nil, fmt.Errorf("gocvengine: foreign matrix %T", m)
	}

	scale := opts.Scale
	if scale == 0 {
		scale = DefaultScale
	}
	neighbors := opts.Neighbors
	if neighbors == 0 {
		neighbors = DefaultNeighbors
	}
	minW, minH := opts.MinWidth, opts.MinHeight
	if minW == 0 {
		minW = DefaultMinWidth
	}
	if minH == 0 {
		minH = DefaultMinHeight
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cc.DetectMultiScaleWithParams(img, scale, neighbors, 0, image.Pt(minW, minH), image.Pt(0, 0)), nil
}

func (c *classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cc.Close()
}

type capture struct {
	vc *gocv.VideoCapture
	mu sync.Mutex
}

func (c *capture) Read(ctx context.Context) (engine.Matrix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	frame := gocv.NewMat()
	if ok := c.vc.Read(&frame); !ok || frame.Empty() {
		frame.Close()
		return nil, ErrNoFrame
	}
	return Wrap(frame), nil
}

func (c *capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vc.Close()
}
