package approval

import (
	"context"
	"sync"
	"time"
)

// SweepFunc handles one sweep tick.
type SweepFunc func(ctx context.Context, now time.Time)

// StartSweeper starts a goroutine that calls fn on every interval tick. It
// returns stop(); call it (or cancel ctx) to exit.
func StartSweeper(ctx context.Context, interval time.Duration, fn SweepFunc, nowFn func() time.Time) (stop func()) {
	if interval <= 0 {
		interval = time.Second
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				fn(ctx, nowFn())
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-stopped
	}
}
