package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"time"

	// Register the JPEG decoder for MockEngine.ReadImage.
	_ "image/jpeg"
)

// ErrMockDecode is returned by MockEngine.ReadImage for undecodable input.
var ErrMockDecode = errors.New("engine: mock decode failed")

// MockMatrix is an in-memory Matrix.
type MockMatrix struct {
	Rows, Cols int
	MatType    MatType
	Data       []byte

	closed atomic.Bool
}

// NewMockMatrix allocates a zeroed rows x cols matrix of type t.
func NewMockMatrix(rows, cols int, t MatType) *MockMatrix {
	n := rows * cols * ChannelsOf(t) * ElemSize1(t)
	return &MockMatrix{Rows: rows, Cols: cols, MatType: t, Data: make([]byte, n)}
}

// Size implements Matrix.
func (m *MockMatrix) Size() []int { return []int{m.Rows, m.Cols} }

// Type implements Matrix.
func (m *MockMatrix) Type() MatType { return m.MatType }

// Channels implements Matrix.
func (m *MockMatrix) Channels() int { return ChannelsOf(m.MatType) }

// ToBytes implements Matrix.
func (m *MockMatrix) ToBytes() []byte {
	out := make([]byte, len(m.Data))
	copy(out, m.Data)
	return out
}

// Put implements Matrix.
func (m *MockMatrix) Put(buf []byte) error {
	if len(buf) != len(m.Data) {
		return fmt.Errorf("engine: put %d bytes into %d byte matrix", len(buf), len(m.Data))
	}
	copy(m.Data, buf)
	return nil
}

// Close implements Matrix.
func (m *MockMatrix) Close() error {
	m.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (m *MockMatrix) Closed() bool { return m.closed.Load() }

// MockClassifier implements Classifier.
type MockClassifier struct {
	Path string

	// DetectFunc is called by DetectMultiScale.
	// If nil, returns a single rectangle covering the whole matrix.
	DetectFunc func(ctx context.Context, m Matrix, opts DetectOptions) ([]image.Rectangle, error)

	mu    sync.Mutex
	calls []DetectOptions
}

// DetectMultiScale implements Classifier.
func (c *MockClassifier) DetectMultiScale(ctx context.Context, m Matrix, opts DetectOptions) ([]image.Rectangle, error) {
	c.mu.Lock()
	c.calls = append(c.calls, opts)
	fn := c.DetectFunc
	c.mu.Unlock()

	if fn != nil {
		return fn(ctx, m, opts)
	}
	size := m.Size()
	return []image.Rectangle{image.Rect(0, 0, size[1], size[0])}, nil
}

// Calls returns the options of every DetectMultiScale call.
func (c *MockClassifier) Calls() []DetectOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]DetectOptions, len(c.calls))
	copy(out, c.calls)
	return out
}

// Close implements Classifier.
func (c *MockClassifier) Close() error { return nil }

// MockCapture implements Capture.
type MockCapture struct {
	// ReadFunc is called by Read.
	// If nil, returns a 2x2 CV_8UC1 frame filled with the read count.
	ReadFunc func(ctx context.Context) (Matrix, error)

	reads  atomic.Int64
	closed atomic.Bool
}

// Read implements Capture.
func (c *MockCapture) Read(ctx context.Context) (Matrix, error) {
	n := c.reads.Add(1)
	if c.ReadFunc != nil {
		return c.ReadFunc(ctx)
	}
	m := NewMockMatrix(2, 2, MakeType(DepthCV8U, 1))
	for i := range m.Data {
		m.Data[i] = byte(n)
	}
	return m, nil
}

// Reads returns the number of Read calls.
func (c *MockCapture) Reads() int64 { return c.reads.Load() }

// Close implements Capture.
func (c *MockCapture) Close() error {
	c.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (c *MockCapture) Closed() bool { return c.closed.Load() }

// MockEngine implements Engine for testing.
// All behaviour can be customised via function fields.
type MockEngine struct {
	// ConstantTable is returned by Constants. Defaults to OpenCVConstants.
	ConstantTable []Constant

	// ReadImageFunc is called by ReadImage.
	// If nil, decodes PNG/JPEG into a BGR CV_8UC3 matrix.
	ReadImageFunc func(ctx context.Context, data []byte) (Matrix, error)

	// ClassifierFunc is called by NewClassifier.
	// If nil, returns a fresh *MockClassifier.
	ClassifierFunc func(path string) (Classifier, error)

	// CaptureFunc is called by OpenCapture.
	// If nil, returns a fresh *MockCapture.
	CaptureFunc func(source string) (Capture, error)

	// Tracking
	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation for verification.
type MockCall struct {
	Method string
	Arg    string
	Size   int
	Time   time.Time
}

// NewMockEngine creates a mock engine with OpenCV's type table.
func NewMockEngine() *MockEngine {
	return &MockEngine{ConstantTable: OpenCVConstants}
}

func (e *MockEngine) record(method, arg string, size int) {
	e.mu.Lock()
	e.calls = append(e.calls, MockCall{Method: method, Arg: arg, Size: size, Time: time.Now()})
	e.mu.Unlock()
}

// Calls returns all recorded calls.
func (e *MockEngine) Calls() []MockCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]MockCall, len(e.calls))
	copy(out, e.calls)
	return out
}

// CallCount returns how many times method was called.
func (e *MockEngine) CallCount(method string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Constants implements Engine.
func (e *MockEngine) Constants() []Constant {
	if e.ConstantTable == nil {
		return OpenCVConstants
	}
	return e.ConstantTable
}

// NewMatrix implements Engine.
func (e *MockEngine) NewMatrix(rows, cols int, t MatType) (Matrix, error) {
	e.record("NewMatrix", fmt.Sprintf("%dx%d", rows, cols), int(t))
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("engine: invalid matrix size %dx%d", rows, cols)
	}
	return NewMockMatrix(rows, cols, t), nil
}

// ReadImage implements Engine.
func (e *MockEngine) ReadImage(ctx context.Context, data []byte) (Matrix, error) {
	e.record("ReadImage", "", len(data))
	if e.ReadImageFunc != nil {
		return e.ReadImageFunc(ctx, data)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMockDecode, err)
	}
	b := img.Bounds()
	m := NewMockMatrix(b.Dy(), b.Dx(), MakeType(DepthCV8U, 3))
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			m.Data[i], m.Data[i+1], m.Data[i+2] = c.B, c.G, c.R
			i += 3
		}
	}
	return m, nil
}

// EncodeImage implements Engine. Only 8-bit 1, 3 and 4 channel matrices
// are supported and the output is always PNG.
func (e *MockEngine) EncodeImage(ext string, m Matrix) ([]byte, error) {
	e.record("EncodeImage", ext, 0)

	size := m.Size()
	rows, cols := size[0], size[1]
	if Depth(m.Type()) != DepthCV8U {
		return nil, fmt.Errorf("engine: mock cannot encode type %d", m.Type())
	}
	ch := m.Channels()
	data := m.ToBytes()

	img := image.NewNRGBA(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			p := data[(y*cols+x)*ch:]
			var c color.NRGBA
			switch ch {
			case 1:
				c = color.NRGBA{R: p[0], G: p[0], B: p[0], A: 255}
			case 3:
				c = color.NRGBA{R: p[2], G: p[1], B: p[0], A: 255}
			case 4:
				c = color.NRGBA{R: p[2], G: p[1], B: p[0], A: p[3]}
			default:
				return nil, fmt.Errorf("engine: mock cannot encode %d channels", ch)
			}
			img.SetNRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NewClassifier implements Engine.
func (e *MockEngine) NewClassifier(path string) (Classifier, error) {
	e.record("NewClassifier", path, 0)
	if e.ClassifierFunc != nil {
		return e.ClassifierFunc(path)
	}
	return &MockClassifier{Path: path}, nil
}

// OpenCapture implements Engine.
func (e *MockEngine) OpenCapture(source string) (Capture, error) {
	e.record("OpenCapture", source, 0)
	if e.CaptureFunc != nil {
		return e.CaptureFunc(source)
	}
	return &MockCapture{}, nil
}
