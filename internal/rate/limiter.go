// Package rate throttles the write paths: post creation and vote
// casting each get a per-minute budget per acting host.
package rate

import (
	"sync"
	"time"
)

// Limiter gates an action for an actor under a per-minute budget. The
// returned duration is how long until the actor's window resets.
type Limiter interface {
	Allow(action, actor string, perMinute int) (bool, time.Duration)
}

// MemoryLimiter counts actions in fixed one-minute windows, one bucket
// per (action, actor) pair. Single-instance only; budgets reset on
// restart.
type MemoryLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	buckets map[string]*bucket
}

type bucket struct {
	count   int
	resetAt time.Time
}

func NewMemory() *MemoryLimiter {
	return &MemoryLimiter{
		window:  time.Minute,
		buckets: make(map[string]*bucket),
	}
}

func (m *MemoryLimiter) Allow(action, actor string, perMinute int) (bool, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := action + ":" + actor
	now := time.Now()
	b, ok := m.buckets[key]
	if !ok || now.After(b.resetAt) {
		b = &bucket{resetAt: now.Add(m.window)}
		m.buckets[key] = b
	}

	if b.count >= perMinute {
		return false, time.Until(b.resetAt)
	}

	b.count++
	return true, time.Until(b.resetAt)
}
