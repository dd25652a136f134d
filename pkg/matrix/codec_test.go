package matrix

import (
	"errors"
	"image"
	"image/color"
	"reflect"
	"testing"

	"github.com/teslashibe/go-cvstream/pkg/engine"
)

func newTestCodec() (*Codec, *engine.MockEngine) {
	eng := engine.NewMockEngine()
	return NewCodec(eng), eng
}

func typeCode(t *testing.T, c *Codec, label string) engine.MatType {
	t.Helper()
	tag, ok := c.Types().Lookup(label)
	if !ok {
		t.Fatalf("type %s not in table", label)
	}
	return tag.Code
}

func TestFromArray_RowMajorBytes(t *testing.T) {
	c, _ := newTestCodec()

	arr := Array{
		{{10}, {20}},
		{{30}, {40}},
	}
	m, err := c.FromArray(arr, typeCode(t, c, "CV_8UC1"))
	if err != nil {
		t.Fatalf("FromArray: %v", err)
	}
	defer m.Close()

	if got := m.ToBytes(); !reflect.DeepEqual(got, []byte{10, 20, 30, 40}) {
		t.Errorf("bytes = %v, want [10 20 30 40]", got)
	}
	if got := m.Size(); got[0] != 2 || got[1] != 2 {
		t.Errorf("size = %v, want [2 2]", got)
	}

	back, err := c.ToArray(m)
	if err != nil {
		t.Fatalf("ToArray: %v", err)
	}
	if !reflect.DeepEqual(back, arr) {
		t.Errorf("round trip = %v, want %v", back, arr)
	}
}

func TestFromArray_ChannelFastest(t *testing.T) {
	c, _ := newTestCodec()

	// 1 row, 3 cols, 2 channels: channel varies fastest, then column.
	arr := Array{{{1, 2}, {3, 4}, {5, 6}}}
	m, err := c.FromArray(arr, typeCode(t, c, "CV_8UC2"))
	if err != nil {
		t.Fatalf("FromArray: %v", err)
	}
	if got := m.ToBytes(); !reflect.DeepEqual(got, []byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("bytes = %v", got)
	}

	// 3 rows, 1 col: rows follow each other.
	arr = Array{{{1, 2}}, {{3, 4}}, {{5, 6}}}
	m, err = c.FromArray(arr, typeCode(t, c, "CV_8UC2"))
	if err != nil {
		t.Fatalf("FromArray: %v", err)
	}
	if got := m.Size(); got[0] != 3 || got[1] != 1 {
		t.Errorf("size = %v, want [3 1]", got)
	}
	if got := m.ToBytes(); !reflect.DeepEqual(got, []byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("bytes = %v", got)
	}
}

func TestRoundTrip_SupportedTypes(t *testing.T) {
	c, _ := newTestCodec()

	tests := []struct {
		label string
		arr   Array
	}{
		{"CV_8UC1", Array{{{0}, {255}}, {{128}, {7}}}},
		{"CV_8UC3", Array{{{1, 2, 3}, {4, 5, 6}}, {{7, 8, 9}, {250, 251, 252}}}},
		{"CV_8SC1", Array{{{-128}, {127}}, {{0}, {-1}}}},
		{"CV_8SC4", Array{{{-1, 2, -3, 4}}}},
		{"CV_16UC1", Array{{{0}, {65535}}, {{1024}, {300}}}},
		{"CV_16UC2", Array{{{1, 65000}, {2, 3}}}},
		{"CV_16SC1", Array{{{-32768}, {32767}}}},
		{"CV_16SC3", Array{{{-1, 0, 1}}, {{-300, 300, 12}}}},
		{"CV_32SC1", Array{{{-2147483648}, {2147483647}}}},
		{"CV_32SC2", Array{{{-5, 5}, {100000, -100000}}}},
		{"CV_32FC1", Array{{{0.5}, {-1.25}}, {{3.75}, {1024}}}},
		{"CV_32FC4", Array{{{0.25, -0.5, 8, 1e6}}}},
	}

	for _, tc := range tests {
		t.Run(tc.label, func(t *testing.T) {
			m, err := c.FromArray(tc.arr, typeCode(t, c, tc.label))
			if err != nil {
				t.Fatalf("FromArray: %v", err)
			}
			defer m.Close()

			got, err := c.ToArray(m)
			if err != nil {
				t.Fatalf("ToArray: %v", err)
			}
			if !reflect.DeepEqual(got, tc.arr) {
				t.Errorf("round trip = %v, want %v", got, tc.arr)
			}
		})
	}
}

func TestFromArray_Unsupported64Bit(t *testing.T) {
	c, eng := newTestCodec()

	for _, label := range []string{"CV_64FC1", "CV_64FC3"} {
		t.Run(label, func(t *testing.T) {
			tag, _ := c.Types().Lookup(label)
			arr := make(Array, 1)
			arr[0] = [][]float64{make([]float64, tag.Channels)}

			_, err := c.FromArray(arr, tag.Code)
			if !errors.Is(err, ErrUnsupportedType) {
				t.Fatalf("err = %v, want ErrUnsupportedType", err)
			}
			var te *TypeError
			if !errors.As(err, &te) || te.Label != label {
				t.Errorf("error should name %s, got %v", label, err)
			}
		})
	}

	if n := eng.CallCount("NewMatrix"); n != 0 {
		t.Errorf("engine allocated %d matrices for unsupported types", n)
	}
}

func TestToArray_Unsupported64Bit(t *testing.T) {
	c, _ := newTestCodec()

	m := engine.NewMockMatrix(2, 2, engine.MakeType(engine.DepthCV64F, 1))
	if _, err := c.ToArray(m); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("err = %v, want ErrUnsupportedType", err)
	}
}

func TestFromArray_ShapeMismatch(t *testing.T) {
	c, eng := newTestCodec()
	code := typeCode(t, c, "CV_8UC3")

	tests := []struct {
		name string
		arr  Array
	}{
		{"nil array", nil},
		{"no columns", Array{{}}},
		{"wrong channel count at origin", Array{{{1, 2}, {3, 4}}}},
		{"ragged rows", Array{{{1, 2, 3}, {4, 5, 6}}, {{7, 8, 9}}}},
		{"ragged cell", Array{{{1, 2, 3}, {4, 5}}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.FromArray(tc.arr, code)
			if !errors.Is(err, ErrShapeMismatch) {
				t.Fatalf("err = %v, want ErrShapeMismatch", err)
			}
			var se *ShapeError
			if !errors.As(err, &se) {
				t.Fatalf("want *ShapeError, got %T", err)
			}
			if se.Label != "CV_8UC3" || se.Channels != 3 {
				t.Errorf("ShapeError = %+v", se)
			}
		})
	}

	if n := eng.CallCount("NewMatrix"); n != 0 {
		t.Errorf("engine touched %d times for malformed input", n)
	}
}

func TestFromArray_ValueRange(t *testing.T) {
	c, eng := newTestCodec()

	tests := []struct {
		label string
		value float64
	}{
		{"CV_8UC1", 256},
		{"CV_8UC1", -1},
		{"CV_8SC1", 128},
		{"CV_16UC1", 70000},
		{"CV_16SC1", -40000},
		{"CV_32SC1", 3e9},
	}

	for _, tc := range tests {
		t.Run(tc.label, func(t *testing.T) {
			_, err := c.FromArray(Array{{{tc.value}}}, typeCode(t, c, tc.label))
			if !errors.Is(err, ErrValueRange) {
				t.Fatalf("err = %v, want ErrValueRange", err)
			}
		})
	}

	if n := eng.CallCount("NewMatrix"); n != 0 {
		t.Errorf("engine allocated %d matrices for out of range input", n)
	}
}

func TestFromArray_TruncatesFractions(t *testing.T) {
	c, _ := newTestCodec()

	m, err := c.FromArray(Array{{{1.9}, {-0.5}}}, typeCode(t, c, "CV_16SC1"))
	if err != nil {
		t.Fatalf("FromArray: %v", err)
	}
	got, _ := c.ToArray(m)
	if got[0][0][0] != 1 || got[0][1][0] != 0 {
		t.Errorf("got %v, want [[[1] [0]]]", got)
	}
}

func TestFromArray_UnresolvedType(t *testing.T) {
	c, _ := newTestCodec()

	_, err := c.FromArray(Array{{{1}}}, engine.MatType(4242))
	if !errors.Is(err, ErrUnresolvedType) {
		t.Fatalf("err = %v, want ErrUnresolvedType", err)
	}
}

// Encoding defaults a missing channel count to 1 while decoding falls back
// to the matrix's own channel count. Both behaviours are kept on purpose.
func TestToArray_ChannelFallbackAsymmetry(t *testing.T) {
	eng := engine.NewMockEngine()
	eng.ConstantTable = []engine.Constant{
		{Name: "CV_8U", Value: engine.MakeType(engine.DepthCV8U, 2)},
	}
	c := NewCodec(eng)
	code := engine.MakeType(engine.DepthCV8U, 2)

	// Encode treats the type as single channel.
	_, err := c.FromArray(Array{{{1, 2}}}, code)
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("2-channel input: err = %v, want ErrShapeMismatch", err)
	}

	// Decode uses the matrix's 2 channels.
	m := engine.NewMockMatrix(1, 2, code)
	copy(m.Data, []byte{1, 2, 3, 4})
	got, err := c.ToArray(m)
	if err != nil {
		t.Fatalf("ToArray: %v", err)
	}
	want := Array{{{1, 2}, {3, 4}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ToArray = %v, want %v", got, want)
	}
}

func TestToArray_ShortBuffer(t *testing.T) {
	c, _ := newTestCodec()

	m := engine.NewMockMatrix(2, 2, engine.MakeType(engine.DepthCV16U, 1))
	m.Data = m.Data[:3]
	if _, err := c.ToArray(m); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("err = %v, want ErrShortBuffer", err)
	}
}

func TestInspect(t *testing.T) {
	m := engine.NewMockMatrix(480, 640, engine.MakeType(engine.DepthCV8U, 3))
	if got := Inspect(m); got != "[ Matrix 480x640 ]" {
		t.Errorf("Inspect = %q", got)
	}
}

func TestFromImage(t *testing.T) {
	c, _ := newTestCodec()

	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 40, G: 50, B: 60, A: 128})

	m, err := c.FromImage(img, 4)
	if err != nil {
		t.Fatalf("FromImage: %v", err)
	}
	want := []byte{30, 20, 10, 255, 60, 50, 40, 128}
	if got := m.ToBytes(); !reflect.DeepEqual(got, want) {
		t.Errorf("bytes = %v, want %v", got, want)
	}

	m, err = c.FromImage(img, 3)
	if err != nil {
		t.Fatalf("FromImage: %v", err)
	}
	if got := m.ToBytes(); !reflect.DeepEqual(got, []byte{30, 20, 10, 60, 50, 40}) {
		t.Errorf("BGR bytes = %v", got)
	}

	if _, err := c.FromImage(img, 2); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("2 channels: err = %v, want ErrShapeMismatch", err)
	}
}

func TestArrayFromImage_Gray(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 1, 2))
	img.SetGray(0, 0, color.Gray{Y: 0})
	img.SetGray(0, 1, color.Gray{Y: 200})

	arr, err := ArrayFromImage(img, 1)
	if err != nil {
		t.Fatalf("ArrayFromImage: %v", err)
	}
	rows, cols, ch := arr.Shape()
	if rows != 2 || cols != 1 || ch != 1 {
		t.Fatalf("shape = %dx%dx%d", rows, cols, ch)
	}
	if arr[1][0][0] != 200 {
		t.Errorf("gray value = %v, want 200", arr[1][0][0])
	}
}
