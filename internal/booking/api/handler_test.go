package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-booking/internal/booking"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

type stubDB struct {
	events   map[string]*models.Event
	bookings map[string]*models.Booking
	tickets  map[string][]models.Ticket
	byEmail  map[string][]models.Booking
}

func newStubDB() *stubDB {
	return &stubDB{
		events:   make(map[string]*models.Event),
		bookings: make(map[string]*models.Booking),
		tickets:  make(map[string][]models.Ticket),
		byEmail:  make(map[string][]models.Booking),
	}
}

func (s *stubDB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	ev, ok := s.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return ev, nil
}

func (s *stubDB) CreateBookingWithTickets(ctx context.Context, b *models.Booking, tickets []models.Ticket) error {
	s.bookings[b.BookingID] = b
	s.tickets[b.BookingID] = tickets
	return nil
}

func (s *stubDB) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	b, ok := s.bookings[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return b, nil
}

func (s *stubDB) GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error) {
	for _, b := range s.bookings {
		if b.BookingReference == reference {
			return b, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubDB) GetTicketsByBooking(ctx context.Context, bookingID string) ([]models.Ticket, error) {
	return s.tickets[bookingID], nil
}

func (s *stubDB) ListNonCancelledByCustomer(ctx context.Context, eventID, email string) ([]models.Booking, error) {
	return nil, nil
}

func (s *stubDB) ListBookingsByCustomer(ctx context.Context, email string) ([]models.Booking, error) {
	return s.byEmail[email], nil
}

func (s *stubDB) SetPaymentIntent(ctx context.Context, bookingID, intentID string) error {
	return nil
}

func (s *stubDB) CancelPendingBooking(ctx context.Context, bookingID string) (bool, error) {
	b, ok := s.bookings[bookingID]
	if !ok || b.BookingStatus != models.BookingPending {
		return false, nil
	}
	b.BookingStatus = models.BookingCancelled
	return true, nil
}

func newTestRouter(db *stubDB) *chi.Mux {
	log := logger.NewLogger("api-test")
	svc := booking.NewService(db, nil, nil, nil, nil, log, 15*time.Minute)
	h := NewHandler(svc, log)
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func activeEvent() *models.Event {
	return &models.Event{
		ID:               "evt-1",
		Title:            "City Jazz Night",
		Status:           models.EventActive,
		EventDate:        time.Now().Add(30 * 24 * time.Hour),
		Price:            45,
		TotalTickets:     100,
		AvailableTickets: 100,
	}
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) utils.APIResponse {
	t.Helper()
	var resp utils.APIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestCreateBookingEndpoint(t *testing.T) {
	db := newStubDB()
	db.events["evt-1"] = activeEvent()
	router := newTestRouter(db)

	body, _ := json.Marshal(models.BookingRequest{
		EventID:       "evt-1",
		Quantity:      2,
		CustomerName:  "Alice Wonderland",
		CustomerEmail: "alice@example.com",
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bookings", bytes.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
	assert.Len(t, db.bookings, 1)
}

func TestCreateBookingEndpointUnknownEvent(t *testing.T) {
	router := newTestRouter(newStubDB())

	body, _ := json.Marshal(models.BookingRequest{
		EventID:       "evt-missing",
		Quantity:      1,
		CustomerEmail: "alice@example.com",
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bookings", bytes.NewReader(body)))

	require.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, booking.CodeEventNotFound, resp.Code)
}

func TestGetBookingEndpoint(t *testing.T) {
	db := newStubDB()
	db.bookings["bk-1"] = &models.Booking{
		BookingID:        "bk-1",
		BookingReference: "BKG-AAAA1111",
		BookingStatus:    models.BookingPending,
	}
	router := newTestRouter(db)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bookings/bk-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bookings/bk-missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetBookingByReferenceEndpoint(t *testing.T) {
	db := newStubDB()
	db.bookings["bk-1"] = &models.Booking{
		BookingID:        "bk-1",
		BookingReference: "BKG-AAAA1111",
		BookingStatus:    models.BookingPending,
	}
	router := newTestRouter(db)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bookings/reference/BKG-AAAA1111", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bookings/reference/BKG-MISSING1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelBookingEndpoint(t *testing.T) {
	db := newStubDB()
	db.bookings["bk-1"] = &models.Booking{
		BookingID:        "bk-1",
		BookingReference: "BKG-AAAA1111",
		BookingStatus:    models.BookingPending,
	}
	router := newTestRouter(db)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/bookings/bk-1", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, models.BookingCancelled, db.bookings["bk-1"].BookingStatus)

	// Cancelling again conflicts.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/bookings/bk-1", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListBookingsByCustomerEndpoint(t *testing.T) {
	db := newStubDB()
	db.byEmail["alice@example.com"] = []models.Booking{
		{BookingID: "bk-1", BookingReference: "BKG-AAAA1111", CustomerEmail: "alice@example.com"},
		{BookingID: "bk-2", BookingReference: "BKG-BBBB2222", CustomerEmail: "alice@example.com"},
	}
	router := newTestRouter(db)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/customers/alice@example.com/bookings", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
	listed, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, listed, 2)
}
