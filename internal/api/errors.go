package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"

	"ms-activity/internal/lock"
	"ms-activity/internal/models"
	"ms-activity/internal/utils"
)

const (
	codeBadRequest = "BAD_REQUEST"
	codeInternal   = "INTERNAL"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorMappings is checked in order with errors.Is.
var errorMappings = []errorMapping{
	{models.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{models.ErrInvalidInput, http.StatusBadRequest, codeBadRequest},
	{models.ErrInvalidRange, http.StatusBadRequest, "INVALID_RANGE"},
	{models.ErrConfirmationRequired, http.StatusBadRequest, "CONFIRMATION_REQUIRED"},
	{lock.ErrAlreadyLocked, http.StatusLocked, "LOCKED"},

	{models.ErrCapacityExceeded, http.StatusUnprocessableEntity, "CAPACITY_EXCEEDED"},
	{models.ErrOverlap, http.StatusUnprocessableEntity, "OVERLAP"},
	{models.ErrAgeIneligible, http.StatusUnprocessableEntity, "AGE_INELIGIBLE"},
	{models.ErrDuplicateBooking, http.StatusUnprocessableEntity, "DUPLICATE_BOOKING"},
	{models.ErrOccasionCancelled, http.StatusUnprocessableEntity, "OCCASION_CANCELLED"},
	{models.ErrBookingLimitReached, http.StatusUnprocessableEntity, "BOOKING_LIMIT_REACHED"},
	{models.ErrStarLimitExceeded, http.StatusUnprocessableEntity, "STAR_LIMIT_EXCEEDED"},
	{models.ErrPeriodNotBookable, http.StatusUnprocessableEntity, "PERIOD_NOT_BOOKABLE"},

	{models.ErrAlreadyFinalized, http.StatusConflict, "ALREADY_FINALIZED"},
	{models.ErrPeriodConfirmed, http.StatusConflict, "PERIOD_CONFIRMED"},
	{models.ErrPeriodNotConfirmed, http.StatusConflict, "PERIOD_NOT_CONFIRMED"},
	{models.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
	{models.ErrNotArchivable, http.StatusConflict, "NOT_ARCHIVABLE"},
}

func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, codeInternal
}

// fail writes err as an error response. Unknown errors are logged and
// their text is not leaked.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status, code := statusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s %s: %s: %v", r.Method, r.URL.Path, message, err))
		detail = "internal error"
	}
	render.Status(r, status)
	render.JSON(w, r, utils.ErrorResponse(code, message, detail))
}
