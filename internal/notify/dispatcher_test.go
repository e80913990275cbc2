package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

// In-memory queue for dispatcher tests.

type memQueue struct {
	mu   sync.Mutex
	jobs map[string]*models.NotificationJob
	log  []models.NotificationDeliveryLog
}

func newMemQueue() *memQueue {
	return &memQueue{jobs: make(map[string]*models.NotificationJob)}
}

func (m *memQueue) add(job *models.NotificationJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.JobID] = job
}

func (m *memQueue) DueJobs(ctx context.Context, now time.Time, limit int) ([]models.NotificationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []models.NotificationJob
	for _, j := range m.jobs {
		if j.Status == models.NotificationPending && !j.ScheduledAt.After(now) && len(due) < limit {
			due = append(due, *j)
		}
	}
	return due, nil
}

func (m *memQueue) RecordAttempt(ctx context.Context, jobID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok || j.Status != models.NotificationPending {
		return 0, nil
	}
	j.Attempts++
	j.LastAttemptAt = time.Now()
	return j.Attempts, nil
}

func (m *memQueue) MarkSent(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[jobID]; ok && j.Status == models.NotificationPending {
		j.Status = models.NotificationSent
	}
	return nil
}

func (m *memQueue) RecordFailure(ctx context.Context, jobID, deliveryError string, exhausted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok || j.Status != models.NotificationPending {
		return nil
	}
	j.LastError = deliveryError
	if exhausted {
		j.Status = models.NotificationFailed
	}
	return nil
}

func (m *memQueue) AppendLog(ctx context.Context, entry *models.NotificationDeliveryLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = append(m.log, *entry)
	return nil
}

type scriptedSender struct {
	mu    sync.Mutex
	fails map[string]error
	sent  []string
}

func (s *scriptedSender) Send(ctx context.Context, job *models.NotificationJob) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.fails[job.JobID]; ok {
		if err == nil {
			panic("scripted panic")
		}
		return "", err
	}
	s.sent = append(s.sent, job.JobID)
	return "msg-" + job.JobID, nil
}

func pendingJob(id string, maxAttempts int) *models.NotificationJob {
	return &models.NotificationJob{
		JobID:            id,
		BookingReference: "BKG-" + id,
		Channel:          models.ChannelEmail,
		Recipient:        "alice@example.com",
		ScheduledAt:      time.Now().Add(-time.Second),
		TemplateKey:      TemplateBookingConfirmed,
		Status:           models.NotificationPending,
		MaxAttempts:      maxAttempts,
	}
}

func newTestDispatcher(q *memQueue, sender Sender) *Dispatcher {
	log := logger.NewLogger("notify-test")
	return NewDispatcher(q, map[models.NotificationChannel]Sender{
		models.ChannelEmail: sender,
	}, nil, log, time.Second, 10)
}

func TestPollDeliversDueJobs(t *testing.T) {
	q := newMemQueue()
	q.add(pendingJob("job-1", 3))
	q.add(pendingJob("job-2", 3))
	future := pendingJob("job-later", 3)
	future.ScheduledAt = time.Now().Add(time.Hour)
	q.add(future)

	sender := &scriptedSender{}
	d := newTestDispatcher(q, sender)
	d.Poll(context.Background())

	assert.Equal(t, models.NotificationSent, q.jobs["job-1"].Status)
	assert.Equal(t, models.NotificationSent, q.jobs["job-2"].Status)
	assert.Equal(t, models.NotificationPending, q.jobs["job-later"].Status)
	assert.Equal(t, 0, q.jobs["job-later"].Attempts)
	assert.Len(t, q.log, 2)
}

func TestRetryBudgetIsBounded(t *testing.T) {
	q := newMemQueue()
	q.add(pendingJob("job-1", 2))
	sender := &scriptedSender{fails: map[string]error{"job-1": errors.New("smtp down")}}
	d := newTestDispatcher(q, sender)

	d.Poll(context.Background())
	require.Equal(t, models.NotificationPending, q.jobs["job-1"].Status)
	require.Equal(t, 1, q.jobs["job-1"].Attempts)

	d.Poll(context.Background())
	assert.Equal(t, models.NotificationFailed, q.jobs["job-1"].Status)
	assert.Equal(t, 2, q.jobs["job-1"].Attempts)
	assert.Equal(t, "smtp down", q.jobs["job-1"].LastError)

	// Terminal jobs are never picked up again.
	d.Poll(context.Background())
	assert.Equal(t, 2, q.jobs["job-1"].Attempts)
}

func TestPanickingSenderUsesFullRetryBudget(t *testing.T) {
	q := newMemQueue()
	q.add(pendingJob("job-1", 3))
	sender := &scriptedSender{fails: map[string]error{"job-1": nil}} // scripted panic
	d := newTestDispatcher(q, sender)

	d.Poll(context.Background())
	require.Equal(t, models.NotificationPending, q.jobs["job-1"].Status)
	require.Equal(t, 1, q.jobs["job-1"].Attempts)

	d.Poll(context.Background())
	require.Equal(t, models.NotificationPending, q.jobs["job-1"].Status)
	require.Equal(t, 2, q.jobs["job-1"].Attempts)

	// Terminal only on the third attempt, exactly max_attempts.
	d.Poll(context.Background())
	assert.Equal(t, models.NotificationFailed, q.jobs["job-1"].Status)
	assert.Equal(t, 3, q.jobs["job-1"].Attempts)
}

func TestJobFailuresAreIsolated(t *testing.T) {
	q := newMemQueue()
	q.add(pendingJob("job-ok", 3))
	q.add(pendingJob("job-bad", 3))
	q.add(pendingJob("job-panic", 1))

	sender := &scriptedSender{fails: map[string]error{
		"job-bad":   errors.New("gateway 500"),
		"job-panic": nil, // scripted panic
	}}
	d := newTestDispatcher(q, sender)
	d.Poll(context.Background())

	assert.Equal(t, models.NotificationSent, q.jobs["job-ok"].Status)
	assert.Equal(t, models.NotificationPending, q.jobs["job-bad"].Status)
	assert.Equal(t, models.NotificationFailed, q.jobs["job-panic"].Status)
}

func TestNoSenderForChannelFailsJob(t *testing.T) {
	q := newMemQueue()
	job := pendingJob("job-1", 3)
	job.Channel = models.ChannelPush
	q.add(job)

	d := newTestDispatcher(q, &scriptedSender{})
	d.Poll(context.Background())

	assert.Equal(t, models.NotificationFailed, q.jobs["job-1"].Status)
}
