package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"bikeservice/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverThrottleRepository uses primary until it errors, then serves from
// fallback and retries primary once per recovery interval.
type FailoverThrottleRepository struct {
	primary  domain.ThrottleRepository
	fallback domain.ThrottleRepository
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverThrottleRepository(primary, fallback domain.ThrottleRepository, logger *zerolog.Logger) *FailoverThrottleRepository {
	return &FailoverThrottleRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverThrottleRepository) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary throttle repository failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverThrottleRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Since(r.lastCheck) > recoveryInterval
}

func (r *FailoverThrottleRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			if r.isDown.Swap(false) {
				r.logger.Info().Msg("Primary throttle repository recovered")
			}
			return allowed, nil
		}
		r.markDown(err)
	}

	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}

func (r *FailoverThrottleRepository) ResetRateLimit(ctx context.Context, key string) error {
	// Both sides are cleared so a counter never survives a failover switch.
	_ = r.fallback.ResetRateLimit(ctx, key)

	if r.usePrimary() {
		if err := r.primary.ResetRateLimit(ctx, key); err != nil {
			r.markDown(err)
		}
	}
	return nil
}
