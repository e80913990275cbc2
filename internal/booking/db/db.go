package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"ms-booking/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- EVENTS ----------------

func (d *DB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var ev models.Event
	err := d.Bun.NewSelect().
		Model(&ev).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// ---------------- BOOKINGS ----------------

// CreateBookingWithTickets inserts the booking row and all of its ticket rows
// in one transaction. Any failure rolls the whole reservation back so no
// partial rows persist.
func (d *DB) CreateBookingWithTickets(ctx context.Context, booking *models.Booking, tickets []models.Ticket) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(booking).Exec(ctx); err != nil {
			return err
		}
		if len(tickets) > 0 {
			if _, err := tx.NewInsert().Model(&tickets).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *DB) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("booking_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (d *DB) GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("booking_reference = ?", reference).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// ListNonCancelledByCustomer backs the duplicate-booking advisory: existing
// live bookings for the same event and email.
func (d *DB) ListNonCancelledByCustomer(ctx context.Context, eventID, email string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("event_id = ?", eventID).
		Where("customer_email = ?", email).
		Where("booking_status NOT IN (?)", bun.In([]models.BookingStatus{models.BookingCancelled, models.BookingRefunded})).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

func (d *DB) ListBookingsByCustomer(ctx context.Context, email string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("customer_email = ?", email).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// SetPaymentIntent records the external payment reference on a pending hold.
func (d *DB) SetPaymentIntent(ctx context.Context, bookingID, intentID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("payment_intent_id = ?", intentID).
		Set("updated_at = ?", time.Now()).
		Where("booking_id = ?", bookingID).
		Where("booking_status = ?", models.BookingPending).
		Exec(ctx)
	return err
}

// CancelPendingBooking voids a still-pending hold: tickets first, then the
// booking, conditioned on the pending status so a concurrent confirmation
// wins. Returns false when the booking was no longer pending.
func (d *DB) CancelPendingBooking(ctx context.Context, bookingID string) (bool, error) {
	var cancelled bool
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Booking)(nil)).
			Set("booking_status = ?", models.BookingCancelled).
			Set("updated_at = ?", time.Now()).
			Where("booking_id = ?", bookingID).
			Where("booking_status = ?", models.BookingPending).
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}
		cancelled = true

		_, err = tx.NewUpdate().
			Model((*models.Ticket)(nil)).
			Set("status = ?", models.TicketCancelled).
			Where("booking_id = ?", bookingID).
			Exec(ctx)
		return err
	})
	return cancelled, err
}

// ---------------- TICKETS ----------------

func (d *DB) GetTicketsByBooking(ctx context.Context, bookingID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("booking_id = ?", bookingID).
		Order("ticket_number").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// ---------------- RECLAMATION ----------------

// DeleteExpiredPending removes every pending booking whose hold has lapsed,
// tickets first, both deletes in one transaction. Pending holds never touched
// the counters, so deletion alone reclaims the inventory. The expired rows are
// locked before either delete so a confirmation committing mid-sweep cannot
// lose its tickets; a booking confirmed before the select simply no longer
// matches the pending predicate and is skipped.
func (d *DB) DeleteExpiredPending(ctx context.Context, now time.Time) (int, error) {
	var reclaimed int
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewSelect().
			Model((*models.Booking)(nil)).
			Column("booking_id").
			Where("booking_status = ?", models.BookingPending).
			Where("reservation_expires_at IS NOT NULL").
			Where("reservation_expires_at <= ?", now)
		if d.Bun.Dialect().Name() == dialect.PG {
			q = q.For("UPDATE")
		}
		var expired []models.Booking
		if err := q.Scan(ctx, &expired); err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}

		ids := make([]string, len(expired))
		for i, b := range expired {
			ids[i] = b.BookingID
		}

		// The pending predicate is repeated on the ticket delete so only
		// tickets of bookings still reclaimable in this transaction go.
		if _, err := tx.NewDelete().
			Model((*models.Ticket)(nil)).
			Where("booking_id IN (?)", bun.In(ids)).
			Where("booking_id IN (SELECT booking_id FROM bookings WHERE booking_status = ?)", models.BookingPending).
			Exec(ctx); err != nil {
			return err
		}

		res, err := tx.NewDelete().
			Model((*models.Booking)(nil)).
			Where("booking_id IN (?)", bun.In(ids)).
			Where("booking_status = ?", models.BookingPending).
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		reclaimed = int(rows)
		return nil
	})
	return reclaimed, err
}
