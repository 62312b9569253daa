package models

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type BookingState string

const (
	BookingOpen      BookingState = "open"
	BookingBlocked   BookingState = "blocked"
	BookingAccepted  BookingState = "accepted"
	BookingDenied    BookingState = "denied"
	BookingCancelled BookingState = "cancelled"
)

// bookingTransitions lists the forward moves of the booking lifecycle.
// Moves back to open are only taken by a matching reset or an unconfirm,
// see ResetToOpen.
var bookingTransitions = map[BookingState][]BookingState{
	BookingOpen:     {BookingBlocked, BookingCancelled},
	BookingBlocked:  {BookingAccepted, BookingDenied},
	BookingAccepted: {BookingCancelled},
	BookingDenied:   {},
}

func CanTransition(from, to BookingState) bool {
	for _, s := range bookingTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID         string       `bun:"id,pk" json:"id"`
	Username   string       `bun:"username,notnull" json:"username"`
	AttendeeID string       `bun:"attendee_id,notnull,unique:attendee_occasion" json:"attendee_id"`
	OccasionID string       `bun:"occasion_id,notnull,unique:attendee_occasion" json:"occasion_id"`
	PeriodID   string       `bun:"period_id,notnull" json:"period_id"`
	Priority   int          `bun:"priority,notnull,default:0" json:"priority"`
	GroupCode  string       `bun:"group_code,nullzero" json:"group_code,omitempty"`
	State      BookingState `bun:"state,notnull" json:"state"`
	CreatedAt  time.Time    `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt  time.Time    `bun:"updated_at,nullzero" json:"updated_at,omitempty"`

	Occasion *Occasion `bun:"rel:belongs-to,join:occasion_id=id" json:"occasion,omitempty"`
	Attendee *Attendee `bun:"rel:belongs-to,join:attendee_id=id" json:"attendee,omitempty"`
}

// TransitionTo moves the booking along the lifecycle or fails with
// ErrInvalidTransition.
func (b *Booking) TransitionTo(state BookingState) error {
	if !CanTransition(b.State, state) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.State, state)
	}
	b.State = state
	return nil
}

// ResetToOpen returns a matched booking to the wishlist. Cancelled
// bookings stay cancelled.
func (b *Booking) ResetToOpen() error {
	if b.State == BookingCancelled {
		return fmt.Errorf("%w: cancelled bookings cannot be reopened", ErrInvalidTransition)
	}
	b.State = BookingOpen
	return nil
}

func (b *Booking) Starred() bool { return b.Priority > 0 }

// Score is the matching preference of the booking. It depends on stored
// fields only so repeated runs rank bookings identically.
func (b *Booking) Score() int { return b.Priority }

// Before orders bookings by creation, breaking ties by id.
func (b *Booking) Before(other *Booking) bool {
	if !b.CreatedAt.Equal(other.CreatedAt) {
		return b.CreatedAt.Before(other.CreatedAt)
	}
	return b.ID < other.ID
}
