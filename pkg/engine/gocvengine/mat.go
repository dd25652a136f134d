package gocvengine

import (
	"fmt"

	"github.com/teslashibe/go-cvstream/pkg/engine"
	"gocv.io/x/gocv"
)

// Mat adapts gocv.Mat to engine.Matrix.
type Mat struct {
	mat gocv.Mat
}

// Wrap takes ownership of m.
func Wrap(m gocv.Mat) *Mat {
	return &Mat{mat: m}
}

// Unwrap returns the gocv.Mat behind m, if m came from this package.
func Unwrap(m engine.Matrix) (gocv.Mat, bool) {
	w, ok := m.(*Mat)
	if !ok {
		return gocv.Mat{}, false
	}
	return w.mat, true
}

// Size implements engine.Matrix.
func (m *Mat) Size() []int { return m.mat.Size() }

// Type implements engine.Matrix.
func (m *Mat) Type() engine.MatType { return engine.MatType(m.mat.Type()) }

// Channels implements engine.Matrix.
func (m *Mat) Channels() int { return m.mat.Channels() }

// ToBytes implements engine.Matrix.
func (m *Mat) ToBytes() []byte { return m.mat.ToBytes() }

// Put copies buf into the matrix's pixel memory.
func (m *Mat) Put(buf []byte) error {
	dst, err := m.mat.DataPtrUint8()
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}
	if len(dst) != len(buf) {
		return fmt.Errorf("put: %d bytes into %d byte matrix", len(buf), len(dst))
	}
	copy(dst, buf)
	return nil
}

// Close implements engine.Matrix.
func (m *Mat) Close() error { return m.mat.Close() }
