package notify

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-booking/internal/models"
)

func setupQueue(t *testing.T) *Queue {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=private")
	require.NoError(t, err)
	t.Cleanup(func() { sqldb.Close() })
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.NotificationJob)(nil),
		(*models.NotificationDeliveryLog)(nil),
	} {
		require.NoError(t, bunDB.ResetModel(ctx, model))
	}

	return NewQueue(bunDB)
}

func TestEnqueueDefaults(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	job := &models.NotificationJob{
		BookingReference: "BKG-AAAA1111",
		Channel:          models.ChannelEmail,
		Recipient:        "alice@example.com",
		TemplateKey:      TemplateBookingConfirmed,
	}
	require.NoError(t, q.Enqueue(ctx, job))

	assert.NotEmpty(t, job.JobID)
	got, err := q.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationPending, got.Status)
	assert.Equal(t, 3, got.MaxAttempts)
	assert.False(t, got.ScheduledAt.IsZero())
}

func TestDueJobsRespectsScheduleAndStatus(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	due := &models.NotificationJob{
		Channel:     models.ChannelEmail,
		Recipient:   "alice@example.com",
		TemplateKey: TemplateBookingConfirmed,
		ScheduledAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, q.Enqueue(ctx, due))

	later := &models.NotificationJob{
		Channel:     models.ChannelEmail,
		Recipient:   "alice@example.com",
		TemplateKey: TemplateEventReminder,
		ScheduledAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, q.Enqueue(ctx, later))

	sent := &models.NotificationJob{
		Channel:     models.ChannelEmail,
		Recipient:   "alice@example.com",
		TemplateKey: TemplateBookingConfirmed,
		ScheduledAt: time.Now().Add(-time.Minute),
		Status:      models.NotificationSent,
	}
	require.NoError(t, q.Enqueue(ctx, sent))

	jobs, err := q.DueJobs(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, due.JobID, jobs[0].JobID)
}

func TestRecordAttemptAndLifecycle(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	job := &models.NotificationJob{
		Channel:     models.ChannelEmail,
		Recipient:   "alice@example.com",
		TemplateKey: TemplateBookingConfirmed,
		MaxAttempts: 2,
	}
	require.NoError(t, q.Enqueue(ctx, job))

	attempts, err := q.RecordAttempt(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)

	require.NoError(t, q.RecordFailure(ctx, job.JobID, "smtp down", false))
	got, err := q.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationPending, got.Status)
	assert.Equal(t, "smtp down", got.LastError)

	attempts, err = q.RecordAttempt(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	require.NoError(t, q.MarkSent(ctx, job.JobID))
	got, err = q.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationSent, got.Status)

	// Attempts on a terminal job report zero rows touched.
	attempts, err = q.RecordAttempt(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, 0, attempts)
}

func TestCancelForBookingIsBulkAndPendingOnly(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		job := &models.NotificationJob{
			BookingReference: "BKG-AAAA1111",
			Channel:          models.ChannelEmail,
			Recipient:        "alice@example.com",
			TemplateKey:      TemplateEventReminder,
		}
		require.NoError(t, q.Enqueue(ctx, job))
	}
	delivered := &models.NotificationJob{
		BookingReference: "BKG-AAAA1111",
		Channel:          models.ChannelEmail,
		Recipient:        "alice@example.com",
		TemplateKey:      TemplateBookingConfirmed,
		Status:           models.NotificationSent,
	}
	require.NoError(t, q.Enqueue(ctx, delivered))

	n, err := q.CancelForBooking(ctx, "BKG-AAAA1111")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := q.GetJob(ctx, delivered.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationSent, got.Status)
}

func TestAppendLogKeepsHistory(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	job := &models.NotificationJob{
		Channel:     models.ChannelEmail,
		Recipient:   "alice@example.com",
		TemplateKey: TemplateBookingConfirmed,
	}
	require.NoError(t, q.Enqueue(ctx, job))

	require.NoError(t, q.AppendLog(ctx, &models.NotificationDeliveryLog{
		JobID:   job.JobID,
		Channel: string(models.ChannelEmail),
		Success: false,
		Error:   "smtp down",
	}))
	require.NoError(t, q.AppendLog(ctx, &models.NotificationDeliveryLog{
		JobID:     job.JobID,
		Channel:   string(models.ChannelEmail),
		Success:   true,
		MessageID: "msg-1",
	}))

	var entries []models.NotificationDeliveryLog
	require.NoError(t, q.Bun.NewSelect().Model(&entries).Where("job_id = ?", job.JobID).Order("id ASC").Scan(ctx))
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Success)
	assert.True(t, entries[1].Success)
}
