// Package server throttles inbound chat messages per connection so a single
// client cannot flood the validation and fan-out path.
package server

import (
	"sync"
	"time"
)

// messageLimiter is a token bucket sized by RateLimitConfig: Burst tokens,
// refilled continuously at Burst per RefillInterval. Each accepted inbound
// message spends one token; messages arriving with an empty bucket are
// discarded by the read pump.
type messageLimiter struct {
	mu         sync.Mutex
	tokens     float64
	burst      float64
	perSecond  float64
	lastRefill time.Time
}

func newMessageLimiter(cfg RateLimitConfig) *messageLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	return &messageLimiter{
		tokens:     float64(burst),
		burst:      float64(burst),
		perSecond:  float64(burst) / interval.Seconds(),
		lastRefill: time.Now(),
	}
}

// allow spends one token if available, refilling the bucket from the time
// elapsed since the last call first.
func (l *messageLimiter) allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	l.lastRefill = now

	if elapsed > 0 {
		l.tokens += elapsed * l.perSecond
		if l.tokens > l.burst {
			l.tokens = l.burst
		}
	}

	if l.tokens < 1 {
		return false
	}

	l.tokens--
	return true
}
