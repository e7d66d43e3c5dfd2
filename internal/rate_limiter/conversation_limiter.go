package ratelimiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type CleanupOpts struct {
	TTL      time.Duration
	Interval time.Duration
}

// ConversationLimiter caps how fast the user can send into any single
// conversation. Buckets for idle conversations are dropped after TTL.
type ConversationLimiter struct {
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
	mu       sync.Mutex
	Cancel   context.CancelFunc
	rate     rate.Limit
	burst    int
	CleanupOpts
}

func NewConversationLimiter(requests int, window time.Duration, cleanupOpts CleanupOpts) *ConversationLimiter {
	ctx, cancel := context.WithCancel(context.Background())
	rl := &ConversationLimiter{
		limiters:    make(map[string]*rate.Limiter),
		lastSeen:    make(map[string]time.Time),
		Cancel:      cancel,
		rate:        rate.Every(window / time.Duration(requests)),
		burst:       requests,
		CleanupOpts: cleanupOpts,
	}

	if rl.Interval > 0 {
		go rl.cleanup(ctx)
	}

	return rl
}

func (rl *ConversationLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.prune(time.Now())
		}
	}
}

func (rl *ConversationLimiter) prune(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, ls := range rl.lastSeen {
		if now.Sub(ls) > rl.TTL {
			delete(rl.limiters, key)
			delete(rl.lastSeen, key)
		}
	}
}

// Allow spends one token from key's bucket. A nil limiter allows all.
func (rl *ConversationLimiter) Allow(key string) bool {
	if rl == nil {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	bucket, ok := rl.limiters[key]
	if !ok {
		bucket = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = bucket
	}

	rl.lastSeen[key] = time.Now()
	return bucket.Allow()
}

func (rl *ConversationLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
