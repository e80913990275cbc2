package models

import (
	"time"

	"github.com/uptrace/bun"
)

type EventStatus string

const (
	EventActive    EventStatus = "active"
	EventDraft     EventStatus = "draft"
	EventClosed    EventStatus = "closed"
	EventCancelled EventStatus = "cancelled"
)

// Event carries either the legacy flat counters (TotalTickets/AvailableTickets
// with a single Price) or a structured pricing document. The document, when
// present, is the source of truth and is always rewritten whole.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID               string           `bun:"id,pk" json:"id"`
	Title            string           `bun:"title,notnull" json:"title"`
	Description      string           `bun:"description" json:"description,omitempty"`
	Status           EventStatus      `bun:"status,notnull" json:"status"`
	EventDate        time.Time        `bun:"event_date,notnull" json:"event_date"`
	BookingDeadline  time.Time        `bun:"booking_deadline,nullzero" json:"booking_deadline,omitempty"`
	Price            float64          `bun:"price" json:"price"`
	TotalTickets     int              `bun:"total_tickets" json:"total_tickets"`
	AvailableTickets int              `bun:"available_tickets" json:"available_tickets"`
	Pricing          *PricingDocument `bun:"pricing,type:jsonb,nullzero" json:"pricing,omitempty"`
	CreatedAt        time.Time        `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt        time.Time        `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}
