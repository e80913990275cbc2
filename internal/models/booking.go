package models

import (
	"time"

	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingRefunded  BookingStatus = "refunded"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Booking is a soft hold: while pending it reserves inventory conceptually,
// the counters are only decremented when the Settlement Handler confirms it.
type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	BookingID            string        `bun:"booking_id,pk" json:"booking_id"`
	BookingReference     string        `bun:"booking_reference,notnull,unique" json:"booking_reference"`
	EventID              string        `bun:"event_id,notnull" json:"event_id"`
	CategoryID           string        `bun:"category_id,nullzero" json:"category_id,omitempty"`
	TierID               string        `bun:"tier_id,nullzero" json:"tier_id,omitempty"`
	Quantity             int           `bun:"quantity,notnull" json:"quantity"`
	UnitPrice            float64       `bun:"unit_price,notnull" json:"unit_price"`
	TotalPrice           float64       `bun:"total_price,notnull" json:"total_price"`
	Discount             float64       `bun:"discount" json:"discount"`
	CustomerName         string        `bun:"customer_name,notnull" json:"customer_name"`
	CustomerEmail        string        `bun:"customer_email,notnull" json:"customer_email"`
	CustomerPhone        string        `bun:"customer_phone,nullzero" json:"customer_phone,omitempty"`
	BookingStatus        BookingStatus `bun:"booking_status,notnull" json:"booking_status"`
	PaymentStatus        PaymentStatus `bun:"payment_status,notnull" json:"payment_status"`
	ReservationExpiresAt time.Time     `bun:"reservation_expires_at,nullzero" json:"reservation_expires_at,omitempty"`
	PaymentIntentID      string        `bun:"payment_intent_id,nullzero" json:"payment_intent_id,omitempty"`
	CreatedAt            time.Time     `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt            time.Time     `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// BookingRequest is the inbound reservation payload.
type BookingRequest struct {
	EventID       string `json:"event_id"`
	Quantity      int    `json:"quantity"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone,omitempty"`
	CategoryID    string `json:"pricing_category_id,omitempty"`
	TierID        string `json:"pricing_tier_id,omitempty"`
}

// BookingWarning is advisory only; it never blocks a reservation.
type BookingWarning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type EventSummary struct {
	Title     string    `json:"title"`
	EventDate time.Time `json:"event_date"`
}

type BookingResult struct {
	Booking  *Booking         `json:"booking"`
	Tickets  []Ticket         `json:"tickets"`
	Event    EventSummary     `json:"event"`
	Warnings []BookingWarning `json:"warnings,omitempty"`
}
