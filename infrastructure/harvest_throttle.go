package infrastructure

import (
	"fmt"
	"sync"
	"time"

	"grainflow/models"

	"golang.org/x/time/rate"
)

// RateLimitThrottle is a token bucket per user and reason. It bounds how fast a client
// can replay harvest calls; the daily caps bound how much they can earn.
type RateLimitThrottle struct {
	limiters map[string]*throttleEntry
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimitThrottle allows burst harvests at once, refilled one every refill interval
func NewRateLimitThrottle(burst int, refill time.Duration) *RateLimitThrottle {
	return &RateLimitThrottle{
		limiters: make(map[string]*throttleEntry),
		rate:     rate.Every(refill),
		burst:    burst,
		idleTTL:  time.Duration(burst+1) * refill,
		now:      time.Now,
	}
}

// Allow consumes one token for the user and reason
func (t *RateLimitThrottle) Allow(userID int64, reason models.Reason) bool {
	key := fmt.Sprintf("%d:%s", userID, reason)
	now := t.now()

	t.mu.Lock()
	entry, ok := t.limiters[key]
	if !ok {
		entry = &throttleEntry{limiter: rate.NewLimiter(t.rate, t.burst)}
		t.limiters[key] = entry
	}
	entry.lastSeen = now
	t.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// Cleanup drops buckets that have refilled completely and sat idle
func (t *RateLimitThrottle) Cleanup() int {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, entry := range t.limiters {
		if now.Sub(entry.lastSeen) > t.idleTTL {
			delete(t.limiters, key)
			removed++
		}
	}
	return removed
}

// Size returns the number of tracked buckets
func (t *RateLimitThrottle) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.limiters)
}
