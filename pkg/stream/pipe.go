package stream

import (
	"context"
	"sync"
)

// pipe runs one engine call per written input on a single worker
// goroutine, so at most one call is outstanding per stream and results are
// emitted in write order.
type pipe[In, Out any] struct {
	*emitter[Out]

	op     string
	inbox  chan In
	handle func(ctx context.Context, in In) (Out, error)

	// drop frees an input that was queued but never handled.
	drop func(In)

	// writeMu is held shared by Write and exclusively by Close before it
	// empties the inbox.
	writeMu sync.RWMutex
}

func newPipe[In, Out any](kind, op string, o options, handle func(context.Context, In) (Out, error), release func(Out), drop func(In)) *pipe[In, Out] {
	p := &pipe[In, Out]{
		emitter: newEmitter[Out](kind, o, release),
		op:      op,
		inbox:   make(chan In, o.buffer),
		handle:  handle,
		drop:    drop,
	}
	p.track()
	go p.run()
	p.log.Debug("stream opened")
	return p
}

// Write queues in for the engine. It blocks while the inbox is full and
// returns false once the stream is closed.
func (p *pipe[In, Out]) Write(in In) bool {
	p.writeMu.RLock()
	defer p.writeMu.RUnlock()

	if p.isClosed() {
		return false
	}

	select {
	case p.inbox <- in:
		return true
	case <-p.done:
		return false
	}
}

// Writable reports whether Write still accepts input.
func (p *pipe[In, Out]) Writable() bool {
	return !p.isClosed()
}

// Readable reports whether the stream may still emit.
func (p *pipe[In, Out]) Readable() bool {
	return !p.isClosed()
}

// Close stops the worker, cancels the in-flight engine call and releases
// queued inputs and undelivered results.
func (p *pipe[In, Out]) Close() error {
	p.shutdown()
	p.drain()

	// Writers blocked on a full inbox return once done is closed. Any
	// Write after this point sees the stream closed.
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	for {
		select {
		case in := <-p.inbox:
			if p.drop != nil {
				p.drop(in)
			}
		default:
			return nil
		}
	}
}

func (p *pipe[In, Out]) run() {
	defer p.untrack()

	for {
		select {
		case <-p.done:
			return
		case in := <-p.inbox:
			out, err := p.handle(p.ctx, in)
			if err != nil {
				if p.drop != nil {
					p.drop(in)
				}
				p.emitError(p.op, err)
				continue
			}
			p.emitValue(EventData, out)
		}
	}
}
