// Package sweeper reclaims expired reservations. Pending bookings never
// decrement inventory, so reclamation is a plain delete of the expired rows
// and their tickets, with no counter restoration.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"ms-booking/internal/logger"
)

// Store deletes expired pending bookings together with their tickets.
type Store interface {
	DeleteExpiredPending(ctx context.Context, now time.Time) (int, error)
}

// Locker is the single-flight guard shared with the notification dispatcher.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type Sweeper struct {
	Store    Store
	Locker   Locker
	Logger   *logger.Logger
	Interval time.Duration
}

func New(store Store, locker Locker, log *logger.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{Store: store, Locker: locker, Logger: log, Interval: interval}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Logger.Info("SWEEPER", fmt.Sprintf("sweeper started, interval %s", s.Interval))
	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("SWEEPER", "sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one reclamation round.
func (s *Sweeper) Sweep(ctx context.Context) {
	if s.Locker != nil {
		ok, err := s.Locker.Acquire(ctx, "reservation-sweep", s.Interval)
		if err != nil {
			s.Logger.Warn("SWEEPER", fmt.Sprintf("sweep lock unavailable: %v", err))
			return
		}
		if !ok {
			return
		}
		defer func() {
			if err := s.Locker.Release(ctx, "reservation-sweep"); err != nil {
				s.Logger.Warn("SWEEPER", fmt.Sprintf("failed to release sweep lock: %v", err))
			}
		}()
	}

	reclaimed, err := s.Store.DeleteExpiredPending(ctx, time.Now())
	if err != nil {
		s.Logger.Error("SWEEPER", fmt.Sprintf("sweep failed: %v", err))
		return
	}
	if reclaimed > 0 {
		s.Logger.Info("SWEEPER", fmt.Sprintf("reclaimed %d expired reservations", reclaimed))
	}
}
