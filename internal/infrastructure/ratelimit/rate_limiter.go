package ratelimit

import (
	"context"
	"sync"
	"time"

	"lostpaws/pkg/logger"
)

// Actions with dedicated bucket sizes. Anything else gets the default.
const (
	ActionSendMessage = "send_message"
	ActionCreateChat  = "create_chat"
)

type limit struct {
	burst       int
	refillEvery time.Duration
}

type bucket struct {
	mu         sync.Mutex
	tokens     int
	limit      limit
	lastRefill time.Time
}

// take consumes a token when one is available; otherwise it reports how long
// until the next refill.
func (b *bucket) take(now time.Time) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	refills := int(now.Sub(b.lastRefill) / b.limit.refillEvery)
	if refills > 0 {
		b.tokens += refills
		if b.tokens > b.limit.burst {
			b.tokens = b.limit.burst
		}
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true, 0
	}
	return false, b.lastRefill.Add(b.limit.refillEvery).Sub(now)
}

// Limiter holds per-(caller, action) token buckets. Buckets are created
// lazily and pruned after an hour of inactivity.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	limits  map[string]limit
}

func NewLimiter() *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		limits: map[string]limit{
			// A burst of 20 messages, then one every 3 seconds.
			ActionSendMessage: {burst: 20, refillEvery: 3 * time.Second},
			// New conversations are far rarer: 10, then one per minute.
			ActionCreateChat: {burst: 10, refillEvery: time.Minute},
		},
	}
}

var defaultLimit = limit{burst: 30, refillEvery: 2 * time.Second}

// Allow reports whether callerID may perform action now. When denied, the
// second return says how long to wait for the next token.
func (l *Limiter) Allow(callerID, action string) (bool, time.Duration) {
	key := callerID + ":" + action

	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()

	if !ok {
		l.mu.Lock()
		if b, ok = l.buckets[key]; !ok {
			cfg, ok := l.limits[action]
			if !ok {
				cfg = defaultLimit
			}
			b = &bucket{tokens: cfg.burst, limit: cfg, lastRefill: time.Now()}
			l.buckets[key] = b
		}
		l.mu.Unlock()
	}

	return b.take(time.Now())
}

// prune drops buckets idle long enough to be full again anyway.
func (l *Limiter) prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	pruned := 0
	for key, b := range l.buckets {
		b.mu.Lock()
		idle := now.Sub(b.lastRefill)
		b.mu.Unlock()
		if idle > time.Hour {
			delete(l.buckets, key)
			pruned++
		}
	}
	return pruned
}

// Run prunes idle buckets until ctx is cancelled. Call in a goroutine.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			logger.Debug("ratelimit: pruned %d idle buckets", l.prune(now))
		case <-ctx.Done():
			return
		}
	}
}
