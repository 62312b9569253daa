package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-activity/internal/auth"
	"ms-activity/internal/booking/db"
	"ms-activity/internal/models"
)

func (h *Handler) CreateAttendee(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string    `json:"name"`
		BirthDate time.Time `json:"birth_date"`
	}
	if !decode(w, r, &req) {
		return
	}
	a := &models.Attendee{
		Username:  auth.Username(r.Context()),
		Name:      req.Name,
		BirthDate: req.BirthDate,
	}
	if err := h.Booking.CreateAttendee(r.Context(), a); err != nil {
		h.fail(w, r, "failed to create attendee", err)
		return
	}
	ok(w, r, http.StatusCreated, "attendee created", a)
}

// ListAttendees lists the caller's attendees. Admins may pass ?username=
// and see everyone without it.
func (h *Handler) ListAttendees(w http.ResponseWriter, r *http.Request) {
	username := auth.Username(r.Context())
	if h.isAdmin(r) {
		username = r.URL.Query().Get("username")
	}
	attendees, err := h.Booking.ListAttendees(r.Context(), username)
	if err != nil {
		h.fail(w, r, "failed to list attendees", err)
		return
	}
	ok(w, r, http.StatusOK, "attendees", attendees)
}

type bookingRequest struct {
	OccasionID  string   `json:"occasion_id"`
	AttendeeID  string   `json:"attendee_id"`
	AttendeeIDs []string `json:"attendee_ids"`
	// Username books on behalf of another user; admins only.
	Username string `json:"username"`
}

// CreateBooking books one attendee, or a group when attendee_ids holds
// several.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if !decode(w, r, &req) {
		return
	}
	username := auth.Username(r.Context())
	if req.Username != "" && h.isAdmin(r) {
		username = req.Username
	}

	if len(req.AttendeeIDs) > 1 {
		bookings, err := h.Booking.BookGroup(r.Context(), username, req.AttendeeIDs, req.OccasionID)
		if err != nil {
			h.fail(w, r, "failed to book group", err)
			return
		}
		ok(w, r, http.StatusCreated, "bookings created", bookings)
		return
	}

	attendeeID := req.AttendeeID
	if attendeeID == "" && len(req.AttendeeIDs) == 1 {
		attendeeID = req.AttendeeIDs[0]
	}
	b, err := h.Booking.Book(r.Context(), username, attendeeID, req.OccasionID)
	if err != nil {
		h.fail(w, r, "failed to book", err)
		return
	}
	ok(w, r, http.StatusCreated, "booking created", b)
}

// ListBookings filters with ?period=, ?occasion=, ?attendee= and repeated
// ?state=. Non-admins only ever see their own bookings.
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := db.BookingFilter{
		PeriodID:   q.Get("period"),
		OccasionID: q.Get("occasion"),
		AttendeeID: q.Get("attendee"),
		Username:   q.Get("username"),
	}
	if !h.isAdmin(r) {
		f.Username = auth.Username(r.Context())
	}
	for _, s := range q["state"] {
		f.States = append(f.States, models.BookingState(s))
	}

	bookings, err := h.Booking.ListBookings(r.Context(), f)
	if err != nil {
		h.fail(w, r, "failed to list bookings", err)
		return
	}
	ok(w, r, http.StatusOK, "bookings", bookings)
}

// ownBooking loads the booking named in the path and answers 404 when it
// belongs to someone else.
func (h *Handler) ownBooking(w http.ResponseWriter, r *http.Request) (*models.Booking, bool) {
	b, err := h.Booking.GetBooking(r.Context(), chi.URLParam(r, "id"))
	if err == nil && !h.owns(r, b.Username) {
		err = models.ErrNotFound
	}
	if err != nil {
		h.fail(w, r, "failed to get booking", err)
		return nil, false
	}
	return b, true
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, found := h.ownBooking(w, r)
	if !found {
		return
	}
	ok(w, r, http.StatusOK, "booking", b)
}

func (h *Handler) StarBooking(w http.ResponseWriter, r *http.Request) {
	b, found := h.ownBooking(w, r)
	if !found {
		return
	}
	starred, err := h.Booking.Star(r.Context(), b.ID)
	if err != nil {
		h.fail(w, r, "failed to star booking", err)
		return
	}
	if !starred {
		h.fail(w, r, "failed to star booking", models.ErrStarLimitExceeded)
		return
	}
	ok(w, r, http.StatusOK, "booking starred", map[string]interface{}{"id": b.ID, "starred": true})
}

func (h *Handler) bookingAction(w http.ResponseWriter, r *http.Request, action, done string, fn func(ctx context.Context, id string) (*models.Booking, error)) {
	b, found := h.ownBooking(w, r)
	if !found {
		return
	}
	b, err := fn(r.Context(), b.ID)
	if err != nil {
		h.fail(w, r, "failed to "+action+" booking", err)
		return
	}
	ok(w, r, http.StatusOK, "booking "+done, b)
}

func (h *Handler) UnstarBooking(w http.ResponseWriter, r *http.Request) {
	h.bookingAction(w, r, "unstar", "unstarred", h.Booking.Unstar)
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	h.bookingAction(w, r, "cancel", "cancelled", h.Booking.Cancel)
}

func (h *Handler) AcceptBooking(w http.ResponseWriter, r *http.Request) {
	h.bookingAction(w, r, "accept", "accepted", h.Booking.Accept)
}
