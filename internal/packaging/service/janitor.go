package service

import (
	"context"
	"time"

	"github.com/drims/drims-backend/pkg/logger"
)

// LockJanitor sweeps expired fulfillment locks periodically and releases
// the reservations those abandoned preparations were holding.
type LockJanitor struct {
	service  *PackagingService
	interval time.Duration
	logger   *logger.Logger
	cancel   context.CancelFunc
}

// NewLockJanitor creates a new lock janitor
func NewLockJanitor(service *PackagingService, interval time.Duration, log *logger.Logger) *LockJanitor {
	return &LockJanitor{
		service:  service,
		interval: interval,
		logger:   log,
	}
}

// Start starts the janitor in a background goroutine.
func (j *LockJanitor) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)

	go func() {
		j.logger.Info().Dur("interval", j.interval).Msg("lock janitor started")

		// Sweep once at startup before settling into the ticker.
		j.sweep(ctx)

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				j.logger.Info().Msg("lock janitor stopped")
				return
			case <-ticker.C:
				j.sweep(ctx)
			}
		}
	}()
}

// Stop stops the janitor goroutine
func (j *LockJanitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
}

func (j *LockJanitor) sweep(ctx context.Context) {
	released, err := j.service.CleanupExpiredLocks(ctx)
	if err != nil {
		j.logger.Error().Err(err).Msg("expired lock sweep failed")
		return
	}
	if released > 0 {
		j.logger.Info().Int("released", released).Msg("expired locks cleaned up")
	}
}

// CleanupExpiredLocks removes lapsed locks and releases the reservations
// held under them. Returns the number of locks removed.
func (s *PackagingService) CleanupExpiredLocks(ctx context.Context) (int, error) {
	ids, err := s.locks.DeleteExpired(ctx)
	if err != nil {
		return 0, err
	}

	for _, reliefRequestID := range ids {
		reservations, err := s.reservations.ListByRequest(ctx, reliefRequestID)
		if err != nil {
			return 0, err
		}
		for _, res := range reservations {
			s.publisher.PublishReservationReleased(ctx, res)
		}
		if err := s.reservations.ReleaseAll(ctx, reliefRequestID); err != nil {
			return 0, err
		}
		s.logger.Warn().
			Str("relief_request_id", reliefRequestID).
			Msg("expired fulfillment lock removed, reservations released")
	}
	return len(ids), nil
}
