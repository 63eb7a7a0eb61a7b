package server

import (
	"sync"
	"time"
)

// rateLimiter is a token bucket shared by every request to the protocol
// endpoint.
type rateLimiter struct {
	mu       sync.Mutex
	tokens   float64
	max      float64
	rate     float64 // tokens per second
	lastTime time.Time
	now      func() time.Time
}

func newRateLimiter(maxBurst int, perMinute float64) *rateLimiter {
	if maxBurst <= 0 {
		maxBurst = 1
	}
	return &rateLimiter{
		tokens:   float64(maxBurst),
		max:      float64(maxBurst),
		rate:     perMinute / 60.0,
		lastTime: time.Now(),
		now:      time.Now,
	}
}

// Allow takes a token if one is available. It never blocks.
func (rl *rateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.tokens += now.Sub(rl.lastTime).Seconds() * rl.rate
	if rl.tokens > rl.max {
		rl.tokens = rl.max
	}
	rl.lastTime = now

	if rl.tokens >= 1.0 {
		rl.tokens -= 1.0
		return true
	}
	return false
}
