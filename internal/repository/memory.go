package repository

import (
	"context"
	"sync"
	"time"
)

// sweepInterval bounds how often CheckRateLimit scans for expired keys.
const sweepInterval = time.Minute

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

// MemoryThrottleRepository is the process-local counterpart of the Redis
// throttle, used when Redis is not configured or unavailable.
type MemoryThrottleRepository struct {
	mu        sync.Mutex
	entries   map[string]*rateLimitEntry
	lastSweep time.Time
	now       func() time.Time
}

func NewMemoryThrottleRepository() *MemoryThrottleRepository {
	return &MemoryThrottleRepository{
		entries: make(map[string]*rateLimitEntry),
		now:     time.Now,
	}
}

func (r *MemoryThrottleRepository) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastSweep) >= sweepInterval {
		r.sweep(now)
	}

	entry, ok := r.entries[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.entries[key] = entry
	}
	entry.count++

	return entry.count <= limit, nil
}

// sweep drops expired windows. Callers hold r.mu.
func (r *MemoryThrottleRepository) sweep(now time.Time) {
	for key, entry := range r.entries {
		if now.After(entry.expiresAt) {
			delete(r.entries, key)
		}
	}
	r.lastSweep = now
}

func (r *MemoryThrottleRepository) ResetRateLimit(_ context.Context, key string) error {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
	return nil
}
