package stream

import (
	"fmt"
	"sync/atomic"

	"github.com/teslashibe/go-cvstream/pkg/engine"
)

// VideoStream reads frames from a capture source and emits each one as
// EventData.
//
// Read starts a read loop. After every frame the loop posts its next
// iteration to the Loop rather than reading again immediately. Pause makes
// the next iteration a no-op, which ends the loop; a read already in
// flight still completes and emits its frame. A failed read emits
// EventError and ends the loop.
//
// Resume clears the pause flag and calls Read, which starts a new loop. If
// the previous loop's read was still in flight at that moment, both loops
// keep running and frames are read twice as often. ActiveLoops exposes the
// number of running loops.
type VideoStream struct {
	*emitter[engine.Matrix]

	capture    engine.Capture
	ownCapture bool
	loop       *Loop
	ownLoop    bool

	paused atomic.Bool
	loops  atomic.Int32
	frames atomic.Uint64
}

// NewVideoStream wraps an open capture. The caller keeps ownership of
// capture.
//
// The events channel is unbuffered whatever WithBuffer says: a frame
// counts as emitted only once it is received, so the loop never reads
// ahead of the consumer.
func NewVideoStream(capture engine.Capture, opts ...Option) *VideoStream {
	o := applyOptions(opts)
	o.buffer = 0
	s := &VideoStream{
		emitter: newEmitter("video", o, releaseMatrix),
		capture: capture,
		loop:    o.loop,
	}
	if s.loop == nil {
		s.loop = NewLoop()
		s.ownLoop = true
	}
	s.log.Debug("stream opened")
	return s
}

// OpenVideoStream opens source on eng and wraps it. The stream owns the
// capture and closes it on Close.
func OpenVideoStream(eng engine.Engine, source string, opts ...Option) (*VideoStream, error) {
	capture, err := eng.OpenCapture(source)
	if err != nil {
		return nil, fmt.Errorf("video stream: %w", err)
	}
	s := NewVideoStream(capture, opts...)
	s.ownCapture = true
	return s, nil
}

// Read starts a read loop.
func (s *VideoStream) Read() {
	if !s.track() {
		return
	}
	s.loops.Add(1)
	go s.frame()
}

// Pause stops the loop after the read in flight, if any.
func (s *VideoStream) Pause() {
	s.paused.Store(true)
}

// Resume clears the pause flag and starts a new read loop.
func (s *VideoStream) Resume() {
	s.paused.Store(false)
	s.Read()
}

// Paused reports whether the stream is paused.
func (s *VideoStream) Paused() bool {
	return s.paused.Load()
}

// Readable reports whether the stream may still emit.
func (s *VideoStream) Readable() bool {
	return !s.isClosed()
}

// ActiveLoops returns the number of running read loops.
func (s *VideoStream) ActiveLoops() int {
	return int(s.loops.Load())
}

// Frames returns the number of frames emitted so far.
func (s *VideoStream) Frames() uint64 {
	return s.frames.Load()
}

// Close stops all loops, releases undelivered frames and closes the
// capture if the stream opened it. It waits for reads in flight.
func (s *VideoStream) Close() error {
	s.shutdown()
	s.drain()
	if s.ownLoop {
		s.loop.Close()
	}
	if s.ownCapture {
		return s.capture.Close()
	}
	return nil
}

// frame performs one read. It runs off the loop goroutine.
func (s *VideoStream) frame() {
	m, err := s.capture.Read(s.ctx)
	if err != nil {
		s.emitError("read frame", err)
		s.endLoop()
		return
	}

	if !s.emit(Event[engine.Matrix]{Kind: EventData, Value: m}) {
		m.Close()
		s.endLoop()
		return
	}
	s.frames.Add(1)

	if s.paused.Load() {
		s.endLoop()
		return
	}
	if !s.loop.Post(s.tick) {
		s.endLoop()
	}
}

// tick is the loop-side continuation of frame.
func (s *VideoStream) tick() {
	if s.paused.Load() || s.isClosed() {
		s.endLoop()
		return
	}
	go s.frame()
}

func (s *VideoStream) endLoop() {
	s.loops.Add(-1)
	s.untrack()
}
