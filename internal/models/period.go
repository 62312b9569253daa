package models

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// DefaultMaxStars is the number of starred bookings an attendee may hold
// per period unless the period overrides it.
const DefaultMaxStars = 3

type PeriodPhase string

const (
	PhaseInactive  PeriodPhase = "inactive"
	PhaseWishlist  PeriodPhase = "wishlist"
	PhaseMatching  PeriodPhase = "matching"
	PhaseBooking   PeriodPhase = "booking"
	PhaseExecution PeriodPhase = "execution"
	PhasePast      PeriodPhase = "past"
)

type Period struct {
	bun.BaseModel `bun:"table:periods"`

	ID              string    `bun:"id,pk" json:"id"`
	Title           string    `bun:"title,notnull" json:"title"`
	PrebookingStart time.Time `bun:"prebooking_start,notnull" json:"prebooking_start"`
	PrebookingEnd   time.Time `bun:"prebooking_end,notnull" json:"prebooking_end"`
	BookingStart    time.Time `bun:"booking_start,notnull" json:"booking_start"`
	BookingEnd      time.Time `bun:"booking_end,notnull" json:"booking_end"`
	ExecutionStart  time.Time `bun:"execution_start,notnull" json:"execution_start"`
	ExecutionEnd    time.Time `bun:"execution_end,notnull" json:"execution_end"`

	Active    bool `bun:"active,notnull,default:false" json:"active"`
	Confirmed bool `bun:"confirmed,notnull,default:false" json:"confirmed"`
	Finalized bool `bun:"finalized,notnull,default:false" json:"finalized"`
	Archived  bool `bun:"archived,notnull,default:false" json:"archived"`

	MaxBookingsPerAttendee int     `bun:"max_bookings_per_attendee,notnull,default:0" json:"max_bookings_per_attendee"`
	MinutesBetween         int     `bun:"minutes_between,notnull,default:0" json:"minutes_between"`
	MaxStars               int     `bun:"max_stars,notnull,default:0" json:"max_stars"`
	AllInclusive           bool    `bun:"all_inclusive,notnull,default:false" json:"all_inclusive"`
	BookingCost            float64 `bun:"booking_cost,notnull,default:0" json:"booking_cost"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// Validate checks that every window is well formed and that the windows
// follow each other: prebooking, booking, execution.
func (p *Period) Validate() error {
	windows := []struct {
		name       string
		start, end time.Time
	}{
		{"prebooking", p.PrebookingStart, p.PrebookingEnd},
		{"booking", p.BookingStart, p.BookingEnd},
		{"execution", p.ExecutionStart, p.ExecutionEnd},
	}
	for _, w := range windows {
		if w.start.IsZero() || w.end.IsZero() || w.end.Before(w.start) {
			return fmt.Errorf("%w: %s window", ErrInvalidRange, w.name)
		}
	}
	if p.BookingStart.Before(p.PrebookingEnd) {
		return fmt.Errorf("%w: booking window starts before prebooking ends", ErrInvalidRange)
	}
	if p.ExecutionStart.Before(p.BookingStart) {
		return fmt.Errorf("%w: execution starts before booking", ErrInvalidRange)
	}
	if p.MaxBookingsPerAttendee < 0 || p.MinutesBetween < 0 || p.MaxStars < 0 || p.BookingCost < 0 {
		return fmt.Errorf("%w: negative period limits", ErrInvalidRange)
	}
	return nil
}

func (p *Period) StarLimit() int {
	if p.MaxStars > 0 {
		return p.MaxStars
	}
	return DefaultMaxStars
}

// Phase reports where the period stands at the given instant. Between the
// end of the prebooking window and confirmation the period is matching.
func (p *Period) Phase(now time.Time) PeriodPhase {
	switch {
	case !p.Active:
		return PhaseInactive
	case now.After(p.ExecutionEnd):
		return PhasePast
	case !now.Before(p.ExecutionStart):
		return PhaseExecution
	case now.Before(p.PrebookingStart):
		return PhaseInactive
	case !p.Confirmed && !now.After(p.PrebookingEnd):
		return PhaseWishlist
	case !p.Confirmed:
		return PhaseMatching
	case !now.Before(p.BookingStart) && !now.After(p.BookingEnd):
		return PhaseBooking
	default:
		return PhaseInactive
	}
}

// Archivable is true once billing is final and the execution window is over.
func (p *Period) Archivable(now time.Time) bool {
	return p.Finalized && !p.Archived && now.After(p.ExecutionEnd)
}
