package rpc

import (
	"context"
	"sync"
	"time"
)

// rpsLimiter caps the number of requests sent within a one-second window.
// Callers over the limit wait for the next window or their context.
type rpsLimiter struct {
	mu          sync.Mutex
	maxPerSec   int
	made        int
	windowStart time.Time
}

func newRPSLimiter(maxPerSec int) *rpsLimiter {
	return &rpsLimiter{maxPerSec: maxPerSec, windowStart: time.Now()}
}

func (rl *rpsLimiter) wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		now := time.Now()
		if now.Sub(rl.windowStart) >= time.Second {
			rl.windowStart = now
			rl.made = 0
		}
		if rl.made < rl.maxPerSec {
			rl.made++
			rl.mu.Unlock()
			return nil
		}
		wakeAt := rl.windowStart.Add(time.Second)
		rl.mu.Unlock()

		timer := time.NewTimer(time.Until(wakeAt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
