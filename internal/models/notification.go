package models

import (
	"time"

	"github.com/uptrace/bun"
)

type NotificationChannel string

const (
	ChannelEmail NotificationChannel = "email"
	ChannelPush  NotificationChannel = "push"
)

type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationSent      NotificationStatus = "sent"
	NotificationFailed    NotificationStatus = "failed"
	NotificationCancelled NotificationStatus = "cancelled"
)

// NotificationJob is one durable delivery: it stays pending through retries
// and becomes terminal once sent, cancelled, or out of attempts.
type NotificationJob struct {
	bun.BaseModel `bun:"table:notification_jobs"`

	JobID            string                 `bun:"job_id,pk" json:"job_id"`
	UserID           string                 `bun:"user_id,nullzero" json:"user_id,omitempty"`
	BookingReference string                 `bun:"booking_reference,nullzero" json:"booking_reference,omitempty"`
	Channel          NotificationChannel    `bun:"channel,notnull" json:"channel"`
	Recipient        string                 `bun:"recipient,notnull" json:"recipient"`
	ScheduledAt      time.Time              `bun:"scheduled_at,notnull" json:"scheduled_at"`
	TemplateKey      string                 `bun:"template_key,notnull" json:"template_key"`
	TemplateData     map[string]interface{} `bun:"template_data,type:jsonb" json:"template_data,omitempty"`
	Status           NotificationStatus     `bun:"status,notnull" json:"status"`
	Attempts         int                    `bun:"attempts" json:"attempts"`
	MaxAttempts      int                    `bun:"max_attempts,notnull" json:"max_attempts"`
	LastError        string                 `bun:"last_error,nullzero" json:"last_error,omitempty"`
	LastAttemptAt    time.Time              `bun:"last_attempt_at,nullzero" json:"last_attempt_at,omitempty"`
	CreatedAt        time.Time              `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt        time.Time              `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// NotificationDeliveryLog records one delivery attempt outcome.
type NotificationDeliveryLog struct {
	bun.BaseModel `bun:"table:notification_delivery_log"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	JobID       string    `bun:"job_id,notnull" json:"job_id"`
	Channel     string    `bun:"channel,notnull" json:"channel"`
	Success     bool      `bun:"success" json:"success"`
	MessageID   string    `bun:"message_id,nullzero" json:"message_id,omitempty"`
	Error       string    `bun:"error,nullzero" json:"error,omitempty"`
	AttemptedAt time.Time `bun:"attempted_at,notnull" json:"attempted_at"`
}
