package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const memoryPruneThreshold = 4096

type memoryEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter is a per-process token bucket per key. It is used when no
// Redis address is configured (single instance deployments and tests).
type MemoryLimiter struct {
	mu      sync.Mutex
	every   rate.Limit
	burst   int
	window  time.Duration
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryLimiter allows limit requests per window for each key.
func NewMemoryLimiter(limit int, window time.Duration) (*MemoryLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	return &MemoryLimiter{
		every:   rate.Every(window / time.Duration(limit)),
		burst:   limit,
		window:  window,
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}, nil
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) bool {
	if l == nil {
		return false
	}
	key = normalizeKey(key)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) >= memoryPruneThreshold {
		l.prune(now)
	}
	entry, ok := l.entries[key]
	if !ok {
		entry = &memoryEntry{limiter: rate.NewLimiter(l.every, l.burst)}
		l.entries[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// prune drops keys idle for a full window; their buckets are full again anyway.
func (l *MemoryLimiter) prune(now time.Time) {
	for key, entry := range l.entries {
		if now.Sub(entry.lastSeen) > l.window {
			delete(l.entries, key)
		}
	}
}
