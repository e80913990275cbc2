// Package notify is the durable notification pipeline: jobs land in the
// notification_jobs table and a polling dispatcher delivers them with bounded
// retries. Losing a notification never fails the booking flow that enqueued
// it.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-booking/internal/models"
)

// Queue is the persistence layer for notification jobs.
type Queue struct {
	Bun *bun.DB
}

func NewQueue(db *bun.DB) *Queue {
	return &Queue{Bun: db}
}

// Enqueue persists a new pending job. ScheduledAt in the future delays
// delivery until the dispatcher's poll passes it.
func (q *Queue) Enqueue(ctx context.Context, job *models.NotificationJob) error {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.NotificationPending
	}
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = time.Now()
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = 3
	}
	job.CreatedAt = time.Now()

	if _, err := q.Bun.NewInsert().Model(job).Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue notification job: %w", err)
	}
	return nil
}

// DueJobs returns pending jobs whose scheduled time has passed, oldest first.
func (q *Queue) DueJobs(ctx context.Context, now time.Time, limit int) ([]models.NotificationJob, error) {
	var jobs []models.NotificationJob
	err := q.Bun.NewSelect().
		Model(&jobs).
		Where("status = ?", models.NotificationPending).
		Where("scheduled_at <= ?", now).
		Order("scheduled_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load due jobs: %w", err)
	}
	return jobs, nil
}

// RecordAttempt bumps the attempt counter before delivery so a crash mid-send
// still counts against the retry budget.
func (q *Queue) RecordAttempt(ctx context.Context, jobID string) (int, error) {
	now := time.Now()
	res, err := q.Bun.NewUpdate().
		Model((*models.NotificationJob)(nil)).
		Set("attempts = attempts + 1").
		Set("last_attempt_at = ?", now).
		Set("updated_at = ?", now).
		Where("job_id = ?", jobID).
		Where("status = ?", models.NotificationPending).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to record attempt for job %s: %w", jobID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if rows == 0 {
		return 0, nil
	}

	job := new(models.NotificationJob)
	if err := q.Bun.NewSelect().Model(job).Where("job_id = ?", jobID).Scan(ctx); err != nil {
		return 0, err
	}
	return job.Attempts, nil
}

// MarkSent finalizes a delivered job.
func (q *Queue) MarkSent(ctx context.Context, jobID string) error {
	_, err := q.Bun.NewUpdate().
		Model((*models.NotificationJob)(nil)).
		Set("status = ?", models.NotificationSent).
		Set("updated_at = ?", time.Now()).
		Where("job_id = ?", jobID).
		Where("status = ?", models.NotificationPending).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark job %s sent: %w", jobID, err)
	}
	return nil
}

// RecordFailure stores the delivery error. The job stays pending until its
// attempts are exhausted, then flips to failed for good.
func (q *Queue) RecordFailure(ctx context.Context, jobID, deliveryError string, exhausted bool) error {
	upd := q.Bun.NewUpdate().
		Model((*models.NotificationJob)(nil)).
		Set("last_error = ?", deliveryError).
		Set("updated_at = ?", time.Now()).
		Where("job_id = ?", jobID).
		Where("status = ?", models.NotificationPending)
	if exhausted {
		upd = upd.Set("status = ?", models.NotificationFailed)
	}
	if _, err := upd.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record failure for job %s: %w", jobID, err)
	}
	return nil
}

// CancelForBooking voids every still-pending job for a booking in one bulk
// update. Already-sent jobs are untouched.
func (q *Queue) CancelForBooking(ctx context.Context, bookingReference string) (int, error) {
	res, err := q.Bun.NewUpdate().
		Model((*models.NotificationJob)(nil)).
		Set("status = ?", models.NotificationCancelled).
		Set("updated_at = ?", time.Now()).
		Where("booking_reference = ?", bookingReference).
		Where("status = ?", models.NotificationPending).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel jobs for %s: %w", bookingReference, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

// AppendLog records one delivery attempt outcome for auditing.
func (q *Queue) AppendLog(ctx context.Context, entry *models.NotificationDeliveryLog) error {
	if entry.AttemptedAt.IsZero() {
		entry.AttemptedAt = time.Now()
	}
	if _, err := q.Bun.NewInsert().Model(entry).Exec(ctx); err != nil {
		return fmt.Errorf("failed to append delivery log: %w", err)
	}
	return nil
}

// GetJob loads one job by id.
func (q *Queue) GetJob(ctx context.Context, jobID string) (*models.NotificationJob, error) {
	job := new(models.NotificationJob)
	if err := q.Bun.NewSelect().Model(job).Where("job_id = ?", jobID).Scan(ctx); err != nil {
		return nil, err
	}
	return job, nil
}
