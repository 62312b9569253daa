package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-activity/internal/matching"
	"ms-activity/internal/models"
)

func (h *Handler) CreatePeriod(w http.ResponseWriter, r *http.Request) {
	var p models.Period
	if !decode(w, r, &p) {
		return
	}
	if err := h.Booking.CreatePeriod(r.Context(), &p); err != nil {
		h.fail(w, r, "failed to create period", err)
		return
	}
	ok(w, r, http.StatusCreated, "period created", p)
}

func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.Booking.ListPeriods(r.Context())
	if err != nil {
		h.fail(w, r, "failed to list periods", err)
		return
	}
	ok(w, r, http.StatusOK, "periods", periods)
}

func (h *Handler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	p, err := h.Booking.GetPeriod(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "failed to get period", err)
		return
	}
	ok(w, r, http.StatusOK, "period", p)
}

func (h *Handler) UpdatePeriod(w http.ResponseWriter, r *http.Request) {
	var in models.Period
	if !decode(w, r, &in) {
		return
	}
	p, err := h.Booking.UpdatePeriod(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, r, "failed to update period", err)
		return
	}
	ok(w, r, http.StatusOK, "period updated", p)
}

func (h *Handler) DeletePeriod(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.withPeriodLock(r.Context(), id, func(ctx context.Context) error {
		return h.Booking.DeletePeriod(ctx, id)
	})
	if err != nil {
		h.fail(w, r, "failed to delete period", err)
		return
	}
	ok(w, r, http.StatusOK, "period deleted", nil)
}

// periodAction adapts the period state changes that take only an id.
func (h *Handler) periodAction(action, done string, fn func(ctx context.Context, id string) (*models.Period, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := fn(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			h.fail(w, r, "failed to "+action+" period", err)
			return
		}
		ok(w, r, http.StatusOK, "period "+done, p)
	}
}

func (h *Handler) ActivatePeriod(w http.ResponseWriter, r *http.Request) {
	h.periodAction("activate", "activated", h.Booking.ActivatePeriod)(w, r)
}

func (h *Handler) ConfirmPeriod(w http.ResponseWriter, r *http.Request) {
	h.periodAction("confirm", "confirmed", h.Booking.ConfirmPeriod)(w, r)
}

func (h *Handler) UnconfirmPeriod(w http.ResponseWriter, r *http.Request) {
	h.periodAction("unconfirm", "unconfirmed", h.Booking.UnconfirmPeriod)(w, r)
}

func (h *Handler) ArchivePeriod(w http.ResponseWriter, r *http.Request) {
	h.periodAction("archive", "archived", h.Booking.ArchivePeriod)(w, r)
}

func (h *Handler) RunMatching(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var summary *matching.Summary
	err := h.withPeriodLock(r.Context(), id, func(ctx context.Context) error {
		var err error
		summary, err = h.Matching.Run(ctx, id)
		return err
	})
	if err != nil {
		h.fail(w, r, "failed to run matching", err)
		return
	}
	ok(w, r, http.StatusOK, "matching completed", summary)
}

func (h *Handler) ResetMatching(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var reopened int64
	err := h.withPeriodLock(r.Context(), id, func(ctx context.Context) error {
		var err error
		reopened, err = h.Matching.Reset(ctx, id)
		return err
	})
	if err != nil {
		h.fail(w, r, "failed to reset matching", err)
		return
	}
	ok(w, r, http.StatusOK, "matching reset", map[string]int64{"reopened": reopened})
}

// MatchingReport lists happiness, operability and the occasion states,
// optionally narrowed with repeated ?state= parameters.
func (h *Handler) MatchingReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Booking.GetPeriod(r.Context(), id); err != nil {
		h.fail(w, r, "failed to load period", err)
		return
	}

	var states []models.OccasionState
	for _, s := range r.URL.Query()["state"] {
		states = append(states, models.OccasionState(s))
	}
	report, err := h.Analytics.Report(r.Context(), id, states...)
	if err != nil {
		h.fail(w, r, "failed to build matching report", err)
		return
	}
	ok(w, r, http.StatusOK, "matching report", report)
}
