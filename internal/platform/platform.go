// Package platform is the thin slice of the operating system the lock
// primitives depend on: a monotonic clock, a yield, a microsecond sleep and
// a way to start and join a group of workers.
package platform

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// Yield gives up the processor so another runnable goroutine can proceed.
func Yield() {
	runtime.Gosched()
}

// Sleep blocks the caller for usecs microseconds.
func Sleep(usecs int64) {
	if usecs <= 0 {
		Yield()
		return
	}
	time.Sleep(time.Duration(usecs) * time.Microsecond)
}

// Spawn starts n workers, each handed its index, and waits for all of them.
// The first non-nil error is returned and cancels the context seen by the
// remaining workers.
func Spawn(ctx context.Context, n int, fn func(ctx context.Context, id int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range n {
		g.Go(func() error {
			return fn(ctx, i)
		})
	}
	return g.Wait()
}
