package ws

import (
	"sync"
	"time"
)

// slidingLimiter caps inbound events per connection over a rolling window.
// The policy values come from config; limit <= 0 disables the limiter.
type slidingLimiter struct {
	mu       sync.Mutex
	limit    int
	interval time.Duration
	history  []time.Time
}

func newSlidingLimiter(limit int, interval time.Duration) *slidingLimiter {
	return &slidingLimiter{
		limit:    limit,
		interval: interval,
	}
}

func (rl *slidingLimiter) Allow() bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	fresh := rl.history[:0]
	for _, t := range rl.history {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	rl.history = fresh

	if len(rl.history) >= rl.limit {
		return false
	}
	rl.history = append(rl.history, now)
	return true
}
