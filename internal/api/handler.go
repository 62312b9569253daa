// Package api exposes the booking, matching and billing services over
// JSON/HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"ms-activity/internal/analytics"
	"ms-activity/internal/auth"
	"ms-activity/internal/billing"
	"ms-activity/internal/booking"
	"ms-activity/internal/lock"
	"ms-activity/internal/logger"
	"ms-activity/internal/matching"
	"ms-activity/internal/utils"
)

type Handler struct {
	Booking   *booking.Service
	Matching  *matching.Service
	Billing   *billing.Service
	Analytics *analytics.Service
	// Locker serialises matching, invoicing and deletion per period.
	Locker    lock.Locker
	Logger    *logger.Logger
	AdminRole string
}

func NewHandler(
	bookingService *booking.Service,
	matchingService *matching.Service,
	billingService *billing.Service,
	analyticsService *analytics.Service,
	locker lock.Locker,
	log *logger.Logger,
	adminRole string,
) *Handler {
	return &Handler{
		Booking:   bookingService,
		Matching:  matchingService,
		Billing:   billingService,
		Analytics: analyticsService,
		Locker:    locker,
		Logger:    log,
		AdminRole: adminRole,
	}
}

// Routes builds the router. Every /api route needs a bearer token; the
// management routes additionally need the admin role.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, utils.SuccessResponse("ok", nil))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware())
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/periods", h.ListPeriods)
		r.Get("/periods/{id}", h.GetPeriod)
		r.Get("/periods/{id}/occasions", h.ListOccasions)
		r.Get("/periods/{id}/invoices", h.ListInvoices)

		r.Post("/activities", h.CreateActivity)

		r.Post("/occasions", h.CreateOccasion)
		r.Get("/occasions/{id}", h.GetOccasion)
		r.Post("/occasions/{id}/dates", h.AddDate)
		r.Put("/occasions/{id}/dates/{dateId}", h.UpdateDate)
		r.Delete("/occasions/{id}/dates/{dateId}", h.RemoveDate)
		r.Post("/occasions/{id}/needs", h.AddNeed)

		r.Post("/attendees", h.CreateAttendee)
		r.Get("/attendees", h.ListAttendees)

		r.Post("/bookings", h.CreateBooking)
		r.Get("/bookings", h.ListBookings)
		r.Get("/bookings/{id}", h.GetBooking)
		r.Post("/bookings/{id}/star", h.StarBooking)
		r.Post("/bookings/{id}/unstar", h.UnstarBooking)
		r.Post("/bookings/{id}/cancel", h.CancelBooking)

		r.Get("/invoices/{id}", h.GetInvoice)
		r.Get("/invoices/{id}/qr", h.InvoiceQR)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(h.AdminRole))

			r.Post("/periods", h.CreatePeriod)
			r.Put("/periods/{id}", h.UpdatePeriod)
			r.Delete("/periods/{id}", h.DeletePeriod)
			r.Post("/periods/{id}/activate", h.ActivatePeriod)
			r.Post("/periods/{id}/confirm", h.ConfirmPeriod)
			r.Post("/periods/{id}/unconfirm", h.UnconfirmPeriod)
			r.Post("/periods/{id}/archive", h.ArchivePeriod)

			r.Post("/periods/{id}/matching", h.RunMatching)
			r.Post("/periods/{id}/matching/reset", h.ResetMatching)
			r.Get("/periods/{id}/matching", h.MatchingReport)

			r.Post("/periods/{id}/invoices", h.CreateInvoices)
			r.Post("/periods/{id}/invoices/manual-items", h.AddManualItem)
			r.Post("/invoices/{id}/paid", h.SetInvoicePaid)
			r.Post("/invoice-items/{id}/paid", h.SetItemPaid)

			r.Post("/occasions/{id}/cancel", h.CancelOccasion)
			r.Post("/occasions/{id}/move", h.MoveOccasion)
			r.Post("/bookings/{id}/accept", h.AcceptBooking)
		})
	})
	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		h.Logger.LogAPI(r.Method, r.URL.Path, fmt.Sprint(ww.Status()), time.Since(started).String())
	})
}

func (h *Handler) isAdmin(r *http.Request) bool {
	id, _ := auth.FromContext(r.Context())
	return id.HasRole(h.AdminRole)
}

// owns reports whether the caller may see a resource of username.
func (h *Handler) owns(r *http.Request, username string) bool {
	return h.isAdmin(r) || auth.Username(r.Context()) == username
}

func (h *Handler) withPeriodLock(ctx context.Context, periodID string, fn func(ctx context.Context) error) error {
	if h.Locker == nil {
		return fn(ctx)
	}
	return lock.WithLock(ctx, h.Locker, lock.NamespacePeriod, periodID, fn)
}

func ok(w http.ResponseWriter, r *http.Request, status int, message string, data interface{}) {
	render.Status(r, status)
	render.JSON(w, r, utils.SuccessResponse(message, data))
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, utils.ErrorResponse(codeBadRequest, "failed to decode request", err.Error()))
		return false
	}
	return true
}
