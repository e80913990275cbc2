package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ms-booking/internal/logger"
)

type mockStore struct {
	reclaimed    int
	calls        int
	shouldFail   bool
	lastDeadline time.Time
}

func (m *mockStore) DeleteExpiredPending(ctx context.Context, now time.Time) (int, error) {
	m.calls++
	m.lastDeadline = now
	if m.shouldFail {
		return 0, errors.New("database unavailable")
	}
	return m.reclaimed, nil
}

type mockLocker struct {
	held     bool
	acquires int
	releases int
}

func (m *mockLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.acquires++
	return !m.held, nil
}

func (m *mockLocker) Release(ctx context.Context, key string) error {
	m.releases++
	return nil
}

func TestSweepReclaimsExpiredReservations(t *testing.T) {
	store := &mockStore{reclaimed: 4}
	locker := &mockLocker{}
	s := New(store, locker, logger.NewLogger("sweeper-test"), time.Minute)

	s.Sweep(context.Background())

	assert.Equal(t, 1, store.calls)
	assert.WithinDuration(t, time.Now(), store.lastDeadline, 5*time.Second)
	assert.Equal(t, 1, locker.acquires)
	assert.Equal(t, 1, locker.releases)
}

func TestSweepSkipsWhenLockHeldElsewhere(t *testing.T) {
	store := &mockStore{}
	locker := &mockLocker{held: true}
	s := New(store, locker, logger.NewLogger("sweeper-test"), time.Minute)

	s.Sweep(context.Background())

	assert.Equal(t, 0, store.calls)
	assert.Equal(t, 0, locker.releases)
}

func TestSweepToleratesStoreFailure(t *testing.T) {
	store := &mockStore{shouldFail: true}
	s := New(store, nil, logger.NewLogger("sweeper-test"), time.Minute)

	s.Sweep(context.Background())

	assert.Equal(t, 1, store.calls)
}

func TestNewAppliesDefaultInterval(t *testing.T) {
	s := New(&mockStore{}, nil, logger.NewLogger("sweeper-test"), 0)
	assert.Equal(t, time.Minute, s.Interval)
}
