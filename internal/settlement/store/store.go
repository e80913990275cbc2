// Package store owns the settlement writes. Every transition runs a
// conditional update keyed on the current booking status, so replayed
// webhooks and concurrent confirmations collapse into no-ops instead of
// double-applying inventory changes.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"ms-booking/internal/models"
	"ms-booking/internal/pricing"
)

type Store struct {
	Bun *bun.DB
}

func New(db *bun.DB) *Store {
	return &Store{Bun: db}
}

// Outcome reports what a settlement transition actually did.
type Outcome struct {
	Applied bool
	Booking *models.Booking
}

func (s *Store) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	booking := new(models.Booking)
	err := s.Bun.NewSelect().Model(booking).Where("booking_id = ?", id).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *Store) GetBookingByPaymentIntent(ctx context.Context, intentID string) (*models.Booking, error) {
	booking := new(models.Booking)
	err := s.Bun.NewSelect().Model(booking).Where("payment_intent_id = ?", intentID).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// Confirm settles a pending booking: flip it to confirmed/paid, decrement the
// event's inventory for the booked tier, and activate the tickets, all in one
// transaction. The status predicate on the first update makes the whole thing
// exactly-once: a second delivery matches zero rows and the transaction
// becomes a read-only pass.
func (s *Store) Confirm(ctx context.Context, bookingID string) (*Outcome, error) {
	out := &Outcome{}
	err := s.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Booking)(nil)).
			Set("booking_status = ?", models.BookingConfirmed).
			Set("payment_status = ?", models.PaymentPaid).
			Set("updated_at = ?", time.Now()).
			Where("booking_id = ?", bookingID).
			Where("booking_status = ?", models.BookingPending).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to confirm booking %s: %w", bookingID, err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			// Already settled (or cancelled underneath us). Nothing to apply.
			return nil
		}

		booking := new(models.Booking)
		if err := tx.NewSelect().Model(booking).Where("booking_id = ?", bookingID).Scan(ctx); err != nil {
			return fmt.Errorf("failed to reload booking %s: %w", bookingID, err)
		}

		if err := s.adjustInventory(ctx, tx, booking, pricing.ApplyDecrement); err != nil {
			return err
		}

		if _, err := tx.NewUpdate().
			Model((*models.Ticket)(nil)).
			Set("status = ?", models.TicketActive).
			Where("booking_id = ?", bookingID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to activate tickets for %s: %w", bookingID, err)
		}

		out.Applied = true
		out.Booking = booking
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Fail records a failed payment attempt. The booking stays pending so the
// customer can retry until the reservation expires.
func (s *Store) Fail(ctx context.Context, bookingID string) error {
	_, err := s.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("payment_status = ?", models.PaymentFailed).
		Set("updated_at = ?", time.Now()).
		Where("booking_id = ?", bookingID).
		Where("booking_status = ?", models.BookingPending).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to record payment failure for %s: %w", bookingID, err)
	}
	return nil
}

// Refund reverses a confirmed booking: restore the inventory it consumed and
// mark booking and tickets refunded. Conditional on confirmed status, so a
// replayed refund restores nothing twice.
func (s *Store) Refund(ctx context.Context, bookingID string) (*Outcome, error) {
	out := &Outcome{}
	err := s.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Booking)(nil)).
			Set("booking_status = ?", models.BookingRefunded).
			Set("payment_status = ?", models.PaymentRefunded).
			Set("updated_at = ?", time.Now()).
			Where("booking_id = ?", bookingID).
			Where("booking_status = ?", models.BookingConfirmed).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to refund booking %s: %w", bookingID, err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}

		booking := new(models.Booking)
		if err := tx.NewSelect().Model(booking).Where("booking_id = ?", bookingID).Scan(ctx); err != nil {
			return fmt.Errorf("failed to reload booking %s: %w", bookingID, err)
		}

		if err := s.adjustInventory(ctx, tx, booking, pricing.ApplyRestock); err != nil {
			return err
		}

		if _, err := tx.NewUpdate().
			Model((*models.Ticket)(nil)).
			Set("status = ?", models.TicketRefunded).
			Where("booking_id = ?", bookingID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to refund tickets for %s: %w", bookingID, err)
		}

		out.Applied = true
		out.Booking = booking
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// adjustInventory rereads the event inside the transaction, applies the delta
// through the pricing package and writes the whole document back.
func (s *Store) adjustInventory(ctx context.Context, tx bun.Tx, booking *models.Booking, apply func(*models.Event, []pricing.LineItem)) error {
	ev := new(models.Event)
	q := tx.NewSelect().Model(ev).Where("id = ?", booking.EventID)
	if s.Bun.Dialect().Name() == dialect.PG {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		return fmt.Errorf("failed to load event %s: %w", booking.EventID, err)
	}

	apply(ev, []pricing.LineItem{{
		CategoryID: booking.CategoryID,
		TierID:     booking.TierID,
		Quantity:   booking.Quantity,
	}})
	ev.UpdatedAt = time.Now()

	if _, err := tx.NewUpdate().
		Model(ev).
		Column("pricing", "available_tickets", "updated_at").
		WherePK().
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to persist inventory for event %s: %w", ev.ID, err)
	}
	return nil
}
