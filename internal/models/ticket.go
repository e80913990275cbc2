package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketPending   TicketStatus = "pending"
	TicketActive    TicketStatus = "active"
	TicketCancelled TicketStatus = "cancelled"
	TicketRefunded  TicketStatus = "refunded"
)

// Ticket rows are created together with their booking so printable artifacts
// exist before payment; their logical validity follows the booking status.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	TicketID         string       `bun:"ticket_id,pk" json:"ticket_id"`
	BookingID        string       `bun:"booking_id,notnull" json:"booking_id"`
	BookingReference string       `bun:"booking_reference,notnull" json:"booking_reference"`
	TicketNumber     string       `bun:"ticket_number,notnull,unique" json:"ticket_number"`
	HolderName       string       `bun:"holder_name" json:"holder_name"`
	CategoryID       string       `bun:"category_id,nullzero" json:"category_id,omitempty"`
	TierID           string       `bun:"tier_id,nullzero" json:"tier_id,omitempty"`
	TierName         string       `bun:"tier_name,nullzero" json:"tier_name,omitempty"`
	Price            float64      `bun:"price,notnull" json:"price"`
	VerificationHash string       `bun:"verification_hash,notnull" json:"verification_hash"`
	QRCode           []byte       `bun:"qr_code" json:"-"`
	Status           TicketStatus `bun:"status,notnull" json:"status"`
	IssuedAt         time.Time    `bun:"issued_at,notnull" json:"issued_at"`
}
