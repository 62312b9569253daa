package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-activity/internal/auth"
	"ms-activity/internal/models"
)

// closedRange is the client side form of a range: both ends included.
type closedRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (c closedRange) toRange(field string) (models.IntRange, error) {
	r, err := models.NewClosedRange(c.Min, c.Max)
	if err != nil {
		return r, fmt.Errorf("%s: %w", field, err)
	}
	return r, nil
}

type dateRequest struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Timezone string    `json:"timezone"`
}

func (d dateRequest) toDate() *models.OccasionDate {
	tz := d.Timezone
	if tz == "" {
		tz = "UTC"
	}
	return &models.OccasionDate{Start: d.Start, End: d.End, Timezone: tz}
}

type occasionRequest struct {
	ActivityID string        `json:"activity_id"`
	PeriodID   string        `json:"period_id"`
	Spots      closedRange   `json:"spots"`
	Age        closedRange   `json:"age"`
	Cost       float64       `json:"cost"`
	Dates      []dateRequest `json:"dates"`
}

func (h *Handler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if !decode(w, r, &req) {
		return
	}
	a := &models.Activity{Title: req.Title, Username: auth.Username(r.Context())}
	if err := h.Booking.CreateActivity(r.Context(), a); err != nil {
		h.fail(w, r, "failed to create activity", err)
		return
	}
	ok(w, r, http.StatusCreated, "activity created", a)
}

func (h *Handler) CreateOccasion(w http.ResponseWriter, r *http.Request) {
	var req occasionRequest
	if !decode(w, r, &req) {
		return
	}
	spots, err := req.Spots.toRange("spots")
	if err != nil {
		h.fail(w, r, "failed to create occasion", err)
		return
	}
	age, err := req.Age.toRange("age")
	if err != nil {
		h.fail(w, r, "failed to create occasion", err)
		return
	}

	o := &models.Occasion{
		ActivityID: req.ActivityID,
		PeriodID:   req.PeriodID,
		Spots:      spots,
		Age:        age,
		Cost:       req.Cost,
	}
	for _, d := range req.Dates {
		o.Dates = append(o.Dates, d.toDate())
	}
	if err := h.Booking.CreateOccasion(r.Context(), o); err != nil {
		h.fail(w, r, "failed to create occasion", err)
		return
	}
	ok(w, r, http.StatusCreated, "occasion created", o)
}

func (h *Handler) GetOccasion(w http.ResponseWriter, r *http.Request) {
	o, err := h.Booking.GetOccasion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "failed to get occasion", err)
		return
	}
	ok(w, r, http.StatusOK, "occasion", o)
}

func (h *Handler) ListOccasions(w http.ResponseWriter, r *http.Request) {
	occasions, err := h.Booking.ListOccasions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "failed to list occasions", err)
		return
	}
	ok(w, r, http.StatusOK, "occasions", occasions)
}

func (h *Handler) CancelOccasion(w http.ResponseWriter, r *http.Request) {
	o, err := h.Booking.CancelOccasion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "failed to cancel occasion", err)
		return
	}
	ok(w, r, http.StatusOK, "occasion cancelled", o)
}

func (h *Handler) MoveOccasion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PeriodID string `json:"period_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	o, err := h.Booking.MoveOccasion(r.Context(), chi.URLParam(r, "id"), req.PeriodID)
	if err != nil {
		h.fail(w, r, "failed to move occasion", err)
		return
	}
	ok(w, r, http.StatusOK, "occasion moved", o)
}

func (h *Handler) AddDate(w http.ResponseWriter, r *http.Request) {
	var req dateRequest
	if !decode(w, r, &req) {
		return
	}
	o, err := h.Booking.AddDate(r.Context(), chi.URLParam(r, "id"), req.toDate())
	if err != nil {
		h.fail(w, r, "failed to add date", err)
		return
	}
	ok(w, r, http.StatusCreated, "date added", o)
}

func (h *Handler) UpdateDate(w http.ResponseWriter, r *http.Request) {
	var req dateRequest
	if !decode(w, r, &req) {
		return
	}
	o, err := h.Booking.UpdateDate(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "dateId"), *req.toDate())
	if err != nil {
		h.fail(w, r, "failed to update date", err)
		return
	}
	ok(w, r, http.StatusOK, "date updated", o)
}

func (h *Handler) RemoveDate(w http.ResponseWriter, r *http.Request) {
	o, err := h.Booking.RemoveDate(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "dateId"))
	if err != nil {
		h.fail(w, r, "failed to remove date", err)
		return
	}
	ok(w, r, http.StatusOK, "date removed", o)
}

func (h *Handler) AddNeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string      `json:"name"`
		Number closedRange `json:"number"`
	}
	if !decode(w, r, &req) {
		return
	}
	number, err := req.Number.toRange("number")
	if err != nil {
		h.fail(w, r, "failed to add need", err)
		return
	}
	need := &models.OccasionNeed{Name: req.Name, Number: number}
	if err := h.Booking.AddNeed(r.Context(), chi.URLParam(r, "id"), need); err != nil {
		h.fail(w, r, "failed to add need", err)
		return
	}
	ok(w, r, http.StatusCreated, "need added", need)
}
