package db

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

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=private")
	require.NoError(t, err)
	t.Cleanup(func() { sqldb.Close() })
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.Event)(nil),
		(*models.Booking)(nil),
		(*models.Ticket)(nil),
	} {
		require.NoError(t, bunDB.ResetModel(ctx, model))
	}

	return &DB{Bun: bunDB}
}

func seedEvent(t *testing.T, d *DB) *models.Event {
	t.Helper()
	ev := &models.Event{
		ID:               "evt-1",
		Title:            "City Jazz Night",
		Status:           models.EventActive,
		EventDate:        time.Now().Add(30 * 24 * time.Hour),
		Price:            45,
		TotalTickets:     100,
		AvailableTickets: 100,
		CreatedAt:        time.Now(),
	}
	_, err := d.Bun.NewInsert().Model(ev).Exec(context.Background())
	require.NoError(t, err)
	return ev
}

func pendingBooking(id, reference string, expiresAt time.Time) *models.Booking {
	return &models.Booking{
		BookingID:            id,
		BookingReference:     reference,
		EventID:              "evt-1",
		Quantity:             2,
		UnitPrice:            45,
		TotalPrice:           90,
		CustomerName:         "Alice Wonderland",
		CustomerEmail:        "alice@example.com",
		BookingStatus:        models.BookingPending,
		PaymentStatus:        models.PaymentPending,
		ReservationExpiresAt: expiresAt,
		CreatedAt:            time.Now(),
	}
}

func ticketsFor(b *models.Booking) []models.Ticket {
	tickets := make([]models.Ticket, b.Quantity)
	for i := range tickets {
		tickets[i] = models.Ticket{
			TicketID:         b.BookingID + "-t" + string(rune('1'+i)),
			BookingID:        b.BookingID,
			BookingReference: b.BookingReference,
			TicketNumber:     b.BookingReference + "-GENGA-00" + string(rune('1'+i)),
			Price:            b.UnitPrice,
			VerificationHash: "hash",
			Status:           models.TicketPending,
			IssuedAt:         time.Now(),
		}
	}
	return tickets
}

func TestCreateBookingWithTicketsAtomic(t *testing.T) {
	d := setupTestDB(t)
	seedEvent(t, d)
	ctx := context.Background()

	b := pendingBooking("bk-1", "BKG-AAAA1111", time.Now().Add(15*time.Minute))
	require.NoError(t, d.CreateBookingWithTickets(ctx, b, ticketsFor(b)))

	got, err := d.GetBookingByID(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, got.BookingStatus)

	tickets, err := d.GetTicketsByBooking(ctx, "bk-1")
	require.NoError(t, err)
	assert.Len(t, tickets, 2)

	byRef, err := d.GetBookingByReference(ctx, "BKG-AAAA1111")
	require.NoError(t, err)
	assert.Equal(t, "bk-1", byRef.BookingID)
}

func TestCreateBookingDuplicateTicketNumberRollsBack(t *testing.T) {
	d := setupTestDB(t)
	seedEvent(t, d)
	ctx := context.Background()

	b1 := pendingBooking("bk-1", "BKG-AAAA1111", time.Now().Add(15*time.Minute))
	require.NoError(t, d.CreateBookingWithTickets(ctx, b1, ticketsFor(b1)))

	// Same ticket numbers violate the unique constraint; the whole second
	// booking must roll back.
	b2 := pendingBooking("bk-2", "BKG-BBBB2222", time.Now().Add(15*time.Minute))
	dupes := ticketsFor(b1)
	for i := range dupes {
		dupes[i].TicketID = "bk-2-t" + string(rune('1'+i))
		dupes[i].BookingID = "bk-2"
	}
	err := d.CreateBookingWithTickets(ctx, b2, dupes)
	require.Error(t, err)

	_, err = d.GetBookingByID(ctx, "bk-2")
	assert.Error(t, err)
}

func TestSetPaymentIntentOnlyPending(t *testing.T) {
	d := setupTestDB(t)
	seedEvent(t, d)
	ctx := context.Background()

	b := pendingBooking("bk-1", "BKG-AAAA1111", time.Now().Add(15*time.Minute))
	require.NoError(t, d.CreateBookingWithTickets(ctx, b, nil))

	require.NoError(t, d.SetPaymentIntent(ctx, "bk-1", "pi_123"))
	got, err := d.GetBookingByID(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, "pi_123", got.PaymentIntentID)
}

func TestCancelPendingBookingIsConditional(t *testing.T) {
	d := setupTestDB(t)
	seedEvent(t, d)
	ctx := context.Background()

	b := pendingBooking("bk-1", "BKG-AAAA1111", time.Now().Add(15*time.Minute))
	require.NoError(t, d.CreateBookingWithTickets(ctx, b, ticketsFor(b)))

	cancelled, err := d.CancelPendingBooking(ctx, "bk-1")
	require.NoError(t, err)
	assert.True(t, cancelled)

	tickets, err := d.GetTicketsByBooking(ctx, "bk-1")
	require.NoError(t, err)
	for _, tk := range tickets {
		assert.Equal(t, models.TicketCancelled, tk.Status)
	}

	// Second cancel finds nothing pending.
	cancelled, err = d.CancelPendingBooking(ctx, "bk-1")
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestDeleteExpiredPendingLeavesCountersAlone(t *testing.T) {
	d := setupTestDB(t)
	ev := seedEvent(t, d)
	ctx := context.Background()

	expired := pendingBooking("bk-old", "BKG-OLD11111", time.Now().Add(-time.Minute))
	require.NoError(t, d.CreateBookingWithTickets(ctx, expired, ticketsFor(expired)))

	live := pendingBooking("bk-new", "BKG-NEW22222", time.Now().Add(14*time.Minute))
	require.NoError(t, d.CreateBookingWithTickets(ctx, live, nil))

	reclaimed, err := d.DeleteExpiredPending(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)

	_, err = d.GetBookingByID(ctx, "bk-old")
	assert.Error(t, err)

	tickets, err := d.GetTicketsByBooking(ctx, "bk-old")
	require.NoError(t, err)
	assert.Empty(t, tickets)

	_, err = d.GetBookingByID(ctx, "bk-new")
	assert.NoError(t, err)

	// Reclamation never restores counters; holds never consumed any.
	got := new(models.Event)
	require.NoError(t, d.Bun.NewSelect().Model(got).Where("id = ?", ev.ID).Scan(ctx))
	assert.Equal(t, 100, got.AvailableTickets)
}

func TestDeleteExpiredPendingKeepsConfirmedTickets(t *testing.T) {
	d := setupTestDB(t)
	seedEvent(t, d)
	ctx := context.Background()

	// Hold lapsed, but payment landed before the sweep got to it.
	late := pendingBooking("bk-late", "BKG-LATE1111", time.Now().Add(-time.Minute))
	require.NoError(t, d.CreateBookingWithTickets(ctx, late, ticketsFor(late)))
	_, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("booking_status = ?", models.BookingConfirmed).
		Set("payment_status = ?", models.PaymentPaid).
		Where("booking_id = ?", "bk-late").
		Exec(ctx)
	require.NoError(t, err)
	_, err = d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketActive).
		Where("booking_id = ?", "bk-late").
		Exec(ctx)
	require.NoError(t, err)

	expired := pendingBooking("bk-old", "BKG-OLD11111", time.Now().Add(-time.Minute))
	require.NoError(t, d.CreateBookingWithTickets(ctx, expired, ticketsFor(expired)))

	reclaimed, err := d.DeleteExpiredPending(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)

	// A settled booking must never lose its tickets to reclamation.
	got, err := d.GetBookingByID(ctx, "bk-late")
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, got.BookingStatus)
	tickets, err := d.GetTicketsByBooking(ctx, "bk-late")
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	for _, tk := range tickets {
		assert.Equal(t, models.TicketActive, tk.Status)
	}

	_, err = d.GetBookingByID(ctx, "bk-old")
	assert.Error(t, err)
}

func TestListNonCancelledByCustomer(t *testing.T) {
	d := setupTestDB(t)
	seedEvent(t, d)
	ctx := context.Background()

	b1 := pendingBooking("bk-1", "BKG-AAAA1111", time.Now().Add(15*time.Minute))
	require.NoError(t, d.CreateBookingWithTickets(ctx, b1, nil))

	b2 := pendingBooking("bk-2", "BKG-BBBB2222", time.Now().Add(15*time.Minute))
	b2.BookingStatus = models.BookingCancelled
	require.NoError(t, d.CreateBookingWithTickets(ctx, b2, nil))

	live, err := d.ListNonCancelledByCustomer(ctx, "evt-1", "alice@example.com")
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "bk-1", live[0].BookingID)
}
