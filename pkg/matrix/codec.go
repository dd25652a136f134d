// Package matrix converts between nested numeric arrays and engine pixel
// buffers.
//
// An Array is indexed [row][col][channel]. In the flat buffer the channel
// index varies fastest, then the column, then the row. Values are stored
// in host byte order, which is what the engine expects for its raw data.
package matrix

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/teslashibe/go-cvstream/pkg/engine"
	"github.com/teslashibe/go-cvstream/pkg/mattype"
)

// Array is a rows x cols x channels nested array.
type Array [][][]float64

// Shape returns rows, cols and the channel count of the first cell.
// Zero values are returned for empty levels.
func (a Array) Shape() (rows, cols, channels int) {
	rows = len(a)
	if rows == 0 {
		return
	}
	cols = len(a[0])
	if cols == 0 {
		return
	}
	return rows, cols, len(a[0][0])
}

// Codec converts arrays to engine matrices and back.
// It is safe for concurrent use.
type Codec struct {
	eng   engine.Engine
	types *mattype.Resolver
}

// NewCodec builds a codec for eng. The engine's type table is resolved once.
func NewCodec(eng engine.Engine) *Codec {
	return &Codec{
		eng:   eng,
		types: mattype.NewResolver(eng.Constants()),
	}
}

// Types returns the codec's type resolver.
func (c *Codec) Types() *mattype.Resolver {
	return c.types
}

// Resolve returns the tag for code or ErrUnresolvedType.
func (c *Codec) Resolve(code engine.MatType) (mattype.Tag, error) {
	tag, ok := c.types.Resolve(code)
	if !ok {
		return mattype.Tag{}, fmt.Errorf("%w: %d", ErrUnresolvedType, code)
	}
	return tag, nil
}

// FromArray builds a matrix of type code from arr.
//
// The channel count comes from the type label and defaults to 1 when the
// label has none. The array is validated before anything is allocated.
func (c *Codec) FromArray(arr Array, code engine.MatType) (engine.Matrix, error) {
	tag, err := c.Resolve(code)
	if err != nil {
		return nil, err
	}
	channels := tag.Channels
	if !tag.HasChannels() {
		channels = 1
	}

	if err := validateShape(arr, tag.Label, channels); err != nil {
		return nil, err
	}

	ec, err := codecFor(tag)
	if err != nil {
		return nil, err
	}

	rows, cols := len(arr), len(arr[0])
	n := rows * cols * channels
	buf := make([]byte, n*ec.size)

	for i := 0; i < n; i++ {
		ch := i % channels
		r := i / channels
		col := r % cols
		row := r / cols

		v := arr[row][col][ch]
		if !ec.fits(v) {
			return nil, &RangeError{Label: tag.Label, Row: row, Col: col, Chan: ch, Value: v}
		}
		ec.put(buf[i*ec.size:], v)
	}

	m, err := c.eng.NewMatrix(rows, cols, code)
	if err != nil {
		return nil, fmt.Errorf("allocate matrix: %w", err)
	}
	if err := m.Put(buf); err != nil {
		m.Close()
		return nil, fmt.Errorf("load matrix: %w", err)
	}
	return m, nil
}

// ToArray reads m into a nested array.
//
// The channel count comes from the type label; when the label has none the
// matrix's own channel count is used. This differs from FromArray, which
// assumes 1.
func (c *Codec) ToArray(m engine.Matrix) (Array, error) {
	size := m.Size()
	if len(size) < 2 {
		return nil, fmt.Errorf("%w: matrix has %d dimensions", ErrShapeMismatch, len(size))
	}
	rows, cols := size[0], size[1]

	tag, err := c.Resolve(m.Type())
	if err != nil {
		return nil, err
	}
	channels := tag.Channels
	if !tag.HasChannels() {
		channels = m.Channels()
	}

	ec, err := codecFor(tag)
	if err != nil {
		return nil, err
	}

	buf := m.ToBytes()
	if need := rows * cols * channels * ec.size; len(buf) < need {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrShortBuffer, len(buf), need)
	}

	res := make(Array, rows)
	for row := 0; row < rows; row++ {
		cells := make([][]float64, cols)
		for col := 0; col < cols; col++ {
			values := make([]float64, channels)
			for k := 0; k < channels; k++ {
				index := (row*cols+col)*channels + k
				values[k] = ec.get(buf[index*ec.size:])
			}
			cells[col] = values
		}
		res[row] = cells
	}
	return res, nil
}

// Inspect formats m as "[ Matrix RxC ]".
func Inspect(m engine.Matrix) string {
	size := m.Size()
	dims := make([]string, len(size))
	for i, d := range size {
		dims[i] = strconv.Itoa(d)
	}
	return "[ Matrix " + strings.Join(dims, "x") + " ]"
}

func validateShape(arr Array, label string, channels int) error {
	shapeErr := func(format string, args ...any) error {
		return &ShapeError{Label: label, Channels: channels, Reason: fmt.Sprintf(format, args...)}
	}

	if len(arr) == 0 {
		return shapeErr("no rows")
	}
	if len(arr[0]) == 0 {
		return shapeErr("row 0 has no columns")
	}
	if len(arr[0][0]) != channels {
		return shapeErr("cell [0][0] has %d values", len(arr[0][0]))
	}

	cols := len(arr[0])
	for r, row := range arr {
		if len(row) != cols {
			return shapeErr("row %d has %d columns, want %d", r, len(row), cols)
		}
		for c, cell := range row {
			if len(cell) != channels {
				return shapeErr("cell [%d][%d] has %d values", r, c, len(cell))
			}
		}
	}
	return nil
}

// elemCodec reads and writes one channel value.
type elemCodec struct {
	size     int
	integer  bool
	min, max float64
	put      func(b []byte, v float64)
	get      func(b []byte) float64
}

// fits reports whether v can be stored. Integer values are truncated
// toward zero after the check.
func (ec elemCodec) fits(v float64) bool {
	if !ec.integer {
		return true
	}
	return !math.IsNaN(v) && v >= ec.min && v <= ec.max
}

func codecFor(tag mattype.Tag) (elemCodec, error) {
	order := binary.NativeEndian

	switch {
	case tag.Bits == 32 && tag.Kind == mattype.Float:
		return elemCodec{
			size: 4,
			put:  func(b []byte, v float64) { order.PutUint32(b, math.Float32bits(float32(v))) },
			get:  func(b []byte) float64 { return float64(math.Float32frombits(order.Uint32(b))) },
		}, nil

	case tag.Bits == 32 && tag.Kind == mattype.Signed:
		return elemCodec{
			size: 4, integer: true, min: math.MinInt32, max: math.MaxInt32,
			put: func(b []byte, v float64) { order.PutUint32(b, uint32(int32(v))) },
			get: func(b []byte) float64 { return float64(int32(order.Uint32(b))) },
		}, nil

	case tag.Bits == 8 && tag.Kind == mattype.Unsigned:
		return elemCodec{
			size: 1, integer: true, min: 0, max: math.MaxUint8,
			put: func(b []byte, v float64) { b[0] = uint8(v) },
			get: func(b []byte) float64 { return float64(b[0]) },
		}, nil

	case tag.Bits == 8:
		return elemCodec{
			size: 1, integer: true, min: math.MinInt8, max: math.MaxInt8,
			put: func(b []byte, v float64) { b[0] = uint8(int8(v)) },
			get: func(b []byte) float64 { return float64(int8(b[0])) },
		}, nil

	case tag.Bits == 16 && tag.Kind == mattype.Unsigned:
		return elemCodec{
			size: 2, integer: true, min: 0, max: math.MaxUint16,
			put: func(b []byte, v float64) { order.PutUint16(b, uint16(v)) },
			get: func(b []byte) float64 { return float64(order.Uint16(b)) },
		}, nil

	case tag.Bits == 16:
		return elemCodec{
			size: 2, integer: true, min: math.MinInt16, max: math.MaxInt16,
			put: func(b []byte, v float64) { order.PutUint16(b, uint16(int16(v))) },
			get: func(b []byte) float64 { return float64(int16(order.Uint16(b))) },
		}, nil
	}

	return elemCodec{}, &TypeError{
		Label: tag.Label,
		Bits:  tag.Bits,
		Kind:  tag.Kind.String(),
		Err:   ErrUnsupportedType,
	}
}
