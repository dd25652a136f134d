package matrix

import (
	"errors"
	"fmt"
)

// Sentinel errors for codec failures.
var (
	// ErrShapeMismatch is returned when an array is not rows x cols x channels.
	ErrShapeMismatch = errors.New("matrix: shape mismatch")

	// ErrUnsupportedType is returned for element types without a byte codec.
	ErrUnsupportedType = errors.New("matrix: unsupported matrix type for array conversion")

	// ErrUnresolvedType is returned when a type code matches no engine constant.
	ErrUnresolvedType = errors.New("matrix: unresolved type code")

	// ErrValueRange is returned when a value does not fit the element type.
	ErrValueRange = errors.New("matrix: value out of range")

	// ErrShortBuffer is returned when a matrix holds fewer bytes than its
	// size and type require.
	ErrShortBuffer = errors.New("matrix: short pixel buffer")
)

// ShapeError describes an array that does not fit the target type.
type ShapeError struct {
	Label    string // Target type label
	Channels int    // Expected channels per cell
	Reason   string
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("matrix: input array must be a 3-level array with size rows x cols x %d corresponding to %s: %s",
		e.Channels, e.Label, e.Reason)
}

// Unwrap returns ErrShapeMismatch.
func (e *ShapeError) Unwrap() error {
	return ErrShapeMismatch
}

// TypeError names the type a codec operation could not handle.
type TypeError struct {
	Label string
	Bits  int
	Kind  string
	Err   error
}

// Error implements the error interface.
func (e *TypeError) Error() string {
	if e.Label == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %s (%d%s)", e.Err, e.Label, e.Bits, e.Kind)
}

// Unwrap returns the underlying sentinel.
func (e *TypeError) Unwrap() error {
	return e.Err
}

// RangeError reports a value that cannot be stored in the element type.
type RangeError struct {
	Label string
	Row   int
	Col   int
	Chan  int
	Value float64
}

// Error implements the error interface.
func (e *RangeError) Error() string {
	return fmt.Sprintf("matrix: value %v at [%d][%d][%d] out of range for %s",
		e.Value, e.Row, e.Col, e.Chan, e.Label)
}

// Unwrap returns ErrValueRange.
func (e *RangeError) Unwrap() error {
	return ErrValueRange
}
