package models

import "errors"

// Domain errors shared by the booking, matching and billing services.
// Callers wrap them with fmt.Errorf("...: %w", err) and match with errors.Is.
var (
	ErrNotFound             = errors.New("resource not found")
	ErrInvalidRange         = errors.New("invalid range")
	ErrInvalidTransition    = errors.New("invalid booking state transition")
	ErrDuplicateBooking     = errors.New("attendee already booked this occasion")
	ErrCapacityExceeded     = errors.New("occasion has no spots left")
	ErrOverlap              = errors.New("attendee already has an overlapping booking")
	ErrAgeIneligible        = errors.New("attendee age is outside the occasion age range")
	ErrOccasionCancelled    = errors.New("occasion is cancelled")
	ErrAlreadyFinalized     = errors.New("period is already finalized")
	ErrPeriodConfirmed      = errors.New("period is already confirmed")
	ErrPeriodNotConfirmed   = errors.New("period is not confirmed")
	ErrPeriodNotBookable    = errors.New("period does not accept bookings right now")
	ErrConfirmationRequired = errors.New("finalizing requires an explicit acknowledgement")
	ErrStarLimitExceeded    = errors.New("attendee reached the star limit for this period")
	ErrBookingLimitReached  = errors.New("attendee reached the booking limit for this period")
	ErrNotArchivable        = errors.New("period is not finalized or its execution has not ended")
	ErrInvalidInput         = errors.New("invalid input")
)
