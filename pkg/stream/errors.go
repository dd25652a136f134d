package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrEnded is returned by ImageDataStream.End when called twice.
	ErrEnded = errors.New("stream: already ended")

	// ErrClosed is returned when operating on a closed stream.
	ErrClosed = errors.New("stream: closed")
)

// EngineError wraps a failure reported by the vision engine.
// errors.Is and errors.As reach the engine's error through Unwrap.
type EngineError struct {
	Op     string // Engine operation, e.g. "read image"
	Stream string // Stream kind
	ID     string // Stream id
	Err    error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("stream [%s %s]: %s: %v", e.Stream, shortID(e.ID), e.Op, e.Err)
}

// Unwrap returns the engine error.
func (e *EngineError) Unwrap() error {
	return e.Err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
