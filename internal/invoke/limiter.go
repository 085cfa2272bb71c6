package invoke

import (
	"context"
	"sync"
	"time"
)

// rateLimiter is a sliding-window throttle on call starts. At most max
// sends may start within any window; Wait blocks until a slot opens.
type rateLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	starts []time.Time
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		max:    max,
		window: window,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Wait blocks until a send may start, then records the start.
func (rl *rateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		now := rl.now()
		cutoff := now.Add(-rl.window)

		// Drop starts that fell out of the window.
		kept := rl.starts[:0]
		for _, s := range rl.starts {
			if s.After(cutoff) {
				kept = append(kept, s)
			}
		}
		rl.starts = kept

		if len(rl.starts) < rl.max {
			rl.starts = append(rl.starts, now)
			rl.mu.Unlock()
			return nil
		}

		oldest := rl.starts[0]
		rl.mu.Unlock()

		wait := oldest.Add(rl.window).Sub(now)
		if wait <= 0 {
			wait = time.Millisecond
		}
		if err := rl.sleep(ctx, wait); err != nil {
			return err
		}
	}
}
