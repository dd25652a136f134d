package stream

import (
	"bytes"
	"context"
	"sync"

	"github.com/teslashibe/go-cvstream/pkg/engine"
)

func releaseMatrix(m engine.Matrix) {
	if m != nil {
		m.Close()
	}
}

// ImageStream decodes every written buffer independently and emits the
// decoded frame as EventData.
type ImageStream struct {
	*pipe[[]byte, engine.Matrix]
}

// NewImageStream creates an ImageStream over eng.
func NewImageStream(eng engine.Engine, opts ...Option) *ImageStream {
	o := applyOptions(opts)
	decode := func(ctx context.Context, data []byte) (engine.Matrix, error) {
		return eng.ReadImage(ctx, data)
	}
	return &ImageStream{
		pipe: newPipe("image", "read image", o, decode, releaseMatrix, nil),
	}
}

// ImageDataStream collects written chunks and decodes their concatenation
// once, when End is called. The result is emitted as EventLoad (or
// EventError), after which Events is closed.
type ImageDataStream struct {
	*emitter[engine.Matrix]
	eng engine.Engine

	mu     sync.Mutex
	chunks [][]byte
	ended  bool
}

// NewImageDataStream creates an ImageDataStream over eng.
func NewImageDataStream(eng engine.Engine, opts ...Option) *ImageDataStream {
	o := applyOptions(opts)
	if o.buffer < 1 {
		o.buffer = 1
	}
	s := &ImageDataStream{
		emitter: newEmitter("image-data", o, releaseMatrix),
		eng:     eng,
	}
	s.log.Debug("stream opened")
	return s
}

// Write appends a copy of chunk. It never blocks and always reports
// success; chunks written after End or Close are discarded. Use Writable
// to tell whether a chunk will still be decoded.
func (s *ImageDataStream) Write(chunk []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended || s.isClosed() {
		s.log.Debug("chunk discarded", "bytes", len(chunk))
		return true
	}
	s.chunks = append(s.chunks, bytes.Clone(chunk))
	return true
}

// Writable reports whether Write still accepts chunks.
func (s *ImageDataStream) Writable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.ended && !s.isClosed()
}

// Len returns the number of bytes accumulated so far.
func (s *ImageDataStream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.chunks {
		n += len(c)
	}
	return n
}

// End appends final, if non-nil, and starts the single decode of
// everything written. Calling End again returns ErrEnded.
func (s *ImageDataStream) End(final []byte) error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return ErrEnded
	}
	s.ended = true
	if final != nil {
		s.chunks = append(s.chunks, bytes.Clone(final))
	}
	data := bytes.Join(s.chunks, nil)
	s.chunks = nil
	s.mu.Unlock()

	if !s.track() {
		return ErrClosed
	}
	go s.load(data)
	return nil
}

func (s *ImageDataStream) load(data []byte) {
	m, err := s.eng.ReadImage(s.ctx, data)
	if err != nil {
		s.emitError("read image", err)
	} else {
		s.emitValue(EventLoad, m)
	}

	s.untrack()
	s.shutdown()
}

// Close cancels a pending decode and releases an unreceived result.
func (s *ImageDataStream) Close() error {
	s.shutdown()
	s.drain()
	return nil
}
