package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

// Sender delivers one job over a single channel.
type Sender interface {
	Send(ctx context.Context, job *models.NotificationJob) (messageID string, err error)
}

// QueueStore is the queue surface the dispatcher needs.
type QueueStore interface {
	DueJobs(ctx context.Context, now time.Time, limit int) ([]models.NotificationJob, error)
	RecordAttempt(ctx context.Context, jobID string) (int, error)
	MarkSent(ctx context.Context, jobID string) error
	RecordFailure(ctx context.Context, jobID, deliveryError string, exhausted bool) error
	AppendLog(ctx context.Context, entry *models.NotificationDeliveryLog) error
}

// Locker is the single-flight guard: only one dispatcher instance polls at a
// time when several replicas share the database.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type Dispatcher struct {
	Queue        QueueStore
	Senders      map[models.NotificationChannel]Sender
	Locker       Locker
	Logger       *logger.Logger
	PollInterval time.Duration
	BatchSize    int
}

func NewDispatcher(queue QueueStore, senders map[models.NotificationChannel]Sender, locker Locker, log *logger.Logger, pollInterval time.Duration, batchSize int) *Dispatcher {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 25
	}
	return &Dispatcher{
		Queue:        queue,
		Senders:      senders,
		Locker:       locker,
		Logger:       log,
		PollInterval: pollInterval,
		BatchSize:    batchSize,
	}
}

// Run polls until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.PollInterval)
	defer ticker.Stop()

	d.Logger.Info("NOTIFY", fmt.Sprintf("dispatcher started, polling every %s", d.PollInterval))
	for {
		select {
		case <-ctx.Done():
			d.Logger.Info("NOTIFY", "dispatcher stopped")
			return
		case <-ticker.C:
			d.Poll(ctx)
		}
	}
}

// Poll processes one batch of due jobs. Each job is delivered in its own
// goroutine and failures are isolated per job.
func (d *Dispatcher) Poll(ctx context.Context) {
	if d.Locker != nil {
		ok, err := d.Locker.Acquire(ctx, "notify-dispatch", d.PollInterval)
		if err != nil {
			d.Logger.Warn("NOTIFY", fmt.Sprintf("dispatch lock unavailable: %v", err))
			return
		}
		if !ok {
			return
		}
		defer func() {
			if err := d.Locker.Release(ctx, "notify-dispatch"); err != nil {
				d.Logger.Warn("NOTIFY", fmt.Sprintf("failed to release dispatch lock: %v", err))
			}
		}()
	}

	jobs, err := d.Queue.DueJobs(ctx, time.Now(), d.BatchSize)
	if err != nil {
		d.Logger.Error("NOTIFY", fmt.Sprintf("failed to load due jobs: %v", err))
		return
	}
	if len(jobs) == 0 {
		return
	}
	d.Logger.Info("NOTIFY", fmt.Sprintf("dispatching %d jobs", len(jobs)))

	var wg sync.WaitGroup
	for i := range jobs {
		job := jobs[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.deliver(ctx, &job)
		}()
	}
	wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, job *models.NotificationJob) {
	defer func() {
		if r := recover(); r != nil {
			d.Logger.Error("NOTIFY", fmt.Sprintf("panic delivering job %s: %v", job.JobID, r))
			_ = d.Queue.RecordFailure(ctx, job.JobID, fmt.Sprintf("panic: %v", r), job.Attempts >= job.MaxAttempts)
		}
	}()

	// Counting the attempt first keeps the retry budget honest even if the
	// process dies mid-send.
	attempts, err := d.Queue.RecordAttempt(ctx, job.JobID)
	if err != nil {
		d.Logger.Error("NOTIFY", fmt.Sprintf("failed to record attempt for job %s: %v", job.JobID, err))
		return
	}
	if attempts == 0 {
		// Job was cancelled or taken by another dispatcher between the poll
		// and now.
		return
	}
	job.Attempts = attempts

	sender, ok := d.Senders[job.Channel]
	if !ok {
		d.Logger.Error("NOTIFY", fmt.Sprintf("no sender for channel %s, failing job %s", job.Channel, job.JobID))
		_ = d.Queue.RecordFailure(ctx, job.JobID, "no sender for channel "+string(job.Channel), true)
		return
	}

	messageID, err := sender.Send(ctx, job)
	logEntry := &models.NotificationDeliveryLog{
		JobID:       job.JobID,
		Channel:     string(job.Channel),
		Success:     err == nil,
		MessageID:   messageID,
		AttemptedAt: time.Now(),
	}
	if err != nil {
		logEntry.Error = err.Error()
	}
	if logErr := d.Queue.AppendLog(ctx, logEntry); logErr != nil {
		d.Logger.Warn("NOTIFY", fmt.Sprintf("failed to append delivery log for job %s: %v", job.JobID, logErr))
	}

	if err != nil {
		exhausted := attempts >= job.MaxAttempts
		if recErr := d.Queue.RecordFailure(ctx, job.JobID, err.Error(), exhausted); recErr != nil {
			d.Logger.Error("NOTIFY", fmt.Sprintf("failed to record failure for job %s: %v", job.JobID, recErr))
			return
		}
		if exhausted {
			d.Logger.Error("NOTIFY", fmt.Sprintf("job %s failed permanently after %d attempts: %v", job.JobID, attempts, err))
		} else {
			d.Logger.Warn("NOTIFY", fmt.Sprintf("job %s attempt %d/%d failed: %v", job.JobID, attempts, job.MaxAttempts, err))
		}
		return
	}

	if err := d.Queue.MarkSent(ctx, job.JobID); err != nil {
		d.Logger.Error("NOTIFY", fmt.Sprintf("failed to mark job %s sent: %v", job.JobID, err))
		return
	}
	d.Logger.LogNotify("SEND", job.JobID, fmt.Sprintf("delivered via %s", job.Channel))
}
