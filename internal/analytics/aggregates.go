// Package analytics computes the read-only views of a period: occasion
// states, happiness and operability, plus booking and billing totals.
package analytics

import (
	"context"

	bookingdb "ms-activity/internal/booking/db"
	"ms-activity/internal/matching"
	"ms-activity/internal/models"
)

// Aggregates computes the matching views of a period. SQL runs them in the
// database; Memory loads the period and uses the matching package. Both
// must agree.
type Aggregates interface {
	OccasionStates(ctx context.Context, periodID string) ([]OccasionState, error)
	Happiness(ctx context.Context, periodID string) (float64, error)
	Operability(ctx context.Context, periodID string) (float64, error)
}

// OccasionState is one row of the occasion overview.
type OccasionState struct {
	OccasionID string               `bun:"occasion_id" json:"occasion_id"`
	ActivityID string               `bun:"activity_id" json:"activity_id"`
	Accepted   int                  `bun:"accepted" json:"accepted"`
	State      models.OccasionState `bun:"state" json:"state"`
}

type Memory struct {
	DB *bookingdb.DB
}

func (m *Memory) load(ctx context.Context, periodID string) ([]*models.Occasion, []*models.Booking, error) {
	occasions, err := m.DB.ListOccasions(ctx, periodID)
	if err != nil {
		return nil, nil, err
	}
	bookings, err := m.DB.ListBookings(ctx, bookingdb.BookingFilter{PeriodID: periodID})
	if err != nil {
		return nil, nil, err
	}
	return occasions, bookings, nil
}

func (m *Memory) OccasionStates(ctx context.Context, periodID string) ([]OccasionState, error) {
	occasions, bookings, err := m.load(ctx, periodID)
	if err != nil {
		return nil, err
	}
	counts := matching.AcceptedCounts(bookings)
	states := matching.OccasionStates(occasions, bookings)

	rows := make([]OccasionState, 0, len(occasions))
	for _, o := range occasions {
		rows = append(rows, OccasionState{
			OccasionID: o.ID,
			ActivityID: o.ActivityID,
			Accepted:   counts[o.ID],
			State:      states[o.ID],
		})
	}
	return rows, nil
}

func (m *Memory) Happiness(ctx context.Context, periodID string) (float64, error) {
	_, bookings, err := m.load(ctx, periodID)
	if err != nil {
		return 0, err
	}
	return matching.Happiness(bookings), nil
}

func (m *Memory) Operability(ctx context.Context, periodID string) (float64, error) {
	occasions, bookings, err := m.load(ctx, periodID)
	if err != nil {
		return 0, err
	}
	return matching.Operability(occasions, bookings), nil
}
