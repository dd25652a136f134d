package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/teslashibe/go-cvstream/internal/log"
)

func TestPipe_CloseReleasesEveryAcceptedWrite(t *testing.T) {
	for round := 0; round < 50; round++ {
		var accepted, dropped atomic.Int64

		// The worker holds one input until Close cancels it; the rest
		// pile up in the inbox or block in Write.
		handle := func(ctx context.Context, in int) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		o := applyOptions([]Option{WithBuffer(1), WithLogger(log.Discard())})
		p := newPipe("test", "handle", o, handle, nil, func(int) { dropped.Add(1) })

		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; ; i++ {
					if !p.Write(i) {
						return
					}
					accepted.Add(1)
				}
			}()
		}

		waitFor(t, "inbox to fill", func() bool { return accepted.Load() >= 2 })
		if err := p.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		wg.Wait()

		if a, d := accepted.Load(), dropped.Load(); a != d {
			t.Fatalf("round %d: %d writes accepted, %d released", round, a, d)
		}
		if p.Write(0) {
			t.Fatal("Write after Close returned true")
		}
	}
}
