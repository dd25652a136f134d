package stream

import (
	"image"

	"github.com/teslashibe/go-cvstream/pkg/engine"
)

// EventKind identifies what a stream emitted.
type EventKind int

const (
	// EventData carries a decoded frame, a captured frame or a detection.
	EventData EventKind = iota
	// EventLoad carries the single result of an ImageDataStream.
	EventLoad
	// EventError carries an engine failure.
	EventError
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventData:
		return "data"
	case EventLoad:
		return "load"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is one emission of a stream. Exactly one of Value and Err is
// meaningful, depending on Kind.
type Event[T any] struct {
	Kind  EventKind
	Value T
	Err   error
}

// Detection is the output of an ObjectDetectionStream: the objects found
// and the frame they were found in. The receiver owns Frame.
type Detection struct {
	Objects []image.Rectangle
	Frame   engine.Matrix
}
