package stream

import "log/slog"

// DefaultBuffer is the default capacity of a stream's inbox and events
// channel.
const DefaultBuffer = 16

type options struct {
	buffer int
	logger *slog.Logger
	loop   *Loop
}

// Option configures a stream.
type Option func(*options)

// WithBuffer sets the inbox and events channel capacity.
// Writes block once the inbox is full. VideoStream ignores it.
func WithBuffer(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.buffer = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLoop makes a VideoStream schedule its next read on l instead of a
// loop of its own. The caller keeps ownership of l.
func WithLoop(l *Loop) Option {
	return func(o *options) { o.loop = l }
}

func applyOptions(opts []Option) options {
	o := options{
		buffer: DefaultBuffer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}
