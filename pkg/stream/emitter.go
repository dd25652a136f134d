// Package stream turns single-shot engine calls into continuous flows.
//
// Four adapters are provided:
//
//   - ImageStream decodes every written buffer into a frame.
//   - ImageDataStream accumulates chunks and decodes them once on End.
//   - ObjectDetectionStream runs a cascade classifier on every written frame.
//   - VideoStream reads frames from a capture source until paused.
//
// Results and engine failures are delivered on the channel returned by
// Events. Engine errors never surface from Write; they arrive as
// EventError. Matrices received from Events belong to the receiver.
//
// Basic usage:
//
//	s := stream.NewImageStream(eng)
//	defer s.Close()
//
//	s.Write(jpegBytes)
//	ev := <-s.Events()
//	if ev.Kind == stream.EventError {
//	    return ev.Err
//	}
//	defer ev.Value.Close()
package stream

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// emitter is the lifecycle shared by all adapters: an id, a context
// cancelled on close, the events channel and the set of goroutines that
// may still send on it.
type emitter[T any] struct {
	id     string
	kind   string
	events chan Event[T]
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger

	// release frees a value that will never reach a receiver.
	release func(T)

	mu        sync.Mutex
	closed    bool
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newEmitter[T any](kind string, o options, release func(T)) *emitter[T] {
	id := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())
	return &emitter[T]{
		id:      id,
		kind:    kind,
		events:  make(chan Event[T], o.buffer),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		log:     o.logger.With("stream", kind, "id", shortID(id)),
		release: release,
	}
}

// ID returns the stream's unique id.
func (e *emitter[T]) ID() string {
	return e.id
}

// Events returns the channel results are delivered on. It is closed when
// the stream shuts down.
func (e *emitter[T]) Events() <-chan Event[T] {
	return e.events
}

// Done is closed when the stream starts shutting down.
func (e *emitter[T]) Done() <-chan struct{} {
	return e.done
}

// isClosed reports whether shutdown has begun.
func (e *emitter[T]) isClosed() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// track registers a goroutine that may emit. It fails once shutdown began.
func (e *emitter[T]) track() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false
	}
	e.wg.Add(1)
	return true
}

func (e *emitter[T]) untrack() {
	e.wg.Done()
}

// emit delivers ev, blocking while the events channel is full.
// It returns false if the stream shut down first.
func (e *emitter[T]) emit(ev Event[T]) bool {
	select {
	case <-e.done:
		return false
	default:
	}

	select {
	case e.events <- ev:
		return true
	case <-e.done:
		return false
	}
}

// emitValue delivers v or releases it when nobody will receive it.
func (e *emitter[T]) emitValue(kind EventKind, v T) {
	if !e.emit(Event[T]{Kind: kind, Value: v}) && e.release != nil {
		e.release(v)
	}
}

func (e *emitter[T]) emitError(op string, err error) {
	e.log.Warn("engine call failed", "op", op, "error", err)
	e.emit(Event[T]{
		Kind: EventError,
		Err:  &EngineError{Op: op, Stream: e.kind, ID: e.id, Err: err},
	})
}

// shutdown cancels in-flight engine calls, waits for every tracked
// goroutine and closes the events channel. Undelivered events stay in the
// channel.
func (e *emitter[T]) shutdown() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		e.cancel()
		close(e.done)
		e.wg.Wait()
		close(e.events)
		e.log.Debug("stream closed")
	})
}

// drain releases events nobody received.
func (e *emitter[T]) drain() {
	for ev := range e.events {
		if ev.Kind != EventError && e.release != nil {
			e.release(ev.Value)
		}
	}
}
