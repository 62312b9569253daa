package analytics

import (
	"context"
	"fmt"

	"ms-activity/internal/models"
)

type Service struct {
	Aggregates Aggregates
	SQL        *SQL
}

func NewService(aggregates Aggregates, sql *SQL) *Service {
	return &Service{Aggregates: aggregates, SQL: sql}
}

type Report struct {
	PeriodID    string          `json:"period_id"`
	Happiness   float64         `json:"happiness"`
	Operability float64         `json:"operability"`
	Occasions   []OccasionState `json:"occasions"`
	Bookings    []BookingCount  `json:"bookings"`
	Billing     *BillingTotals  `json:"billing"`
}

// Report builds the period overview. With states given, only occasions in
// one of them are listed; the aggregates always cover the whole period.
func (s *Service) Report(ctx context.Context, periodID string, states ...models.OccasionState) (*Report, error) {
	const op = "analytics.Report"

	happiness, err := s.Aggregates.Happiness(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("%s: happiness: %w", op, err)
	}
	operability, err := s.Aggregates.Operability(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("%s: operability: %w", op, err)
	}
	rows, err := s.Aggregates.OccasionStates(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("%s: occasion states: %w", op, err)
	}

	wanted := make(map[models.OccasionState]bool, len(states))
	for _, st := range states {
		wanted[st] = true
	}
	report := &Report{
		PeriodID:    periodID,
		Happiness:   happiness,
		Operability: operability,
		Occasions:   []OccasionState{},
	}
	for _, row := range rows {
		if len(wanted) == 0 || wanted[row.State] {
			report.Occasions = append(report.Occasions, row)
		}
	}

	if s.SQL != nil {
		if report.Bookings, err = s.SQL.BookingCounts(ctx, periodID); err != nil {
			return nil, fmt.Errorf("%s: booking counts: %w", op, err)
		}
		if report.Billing, err = s.SQL.BillingTotals(ctx, periodID); err != nil {
			return nil, fmt.Errorf("%s: billing totals: %w", op, err)
		}
	}
	return report, nil
}
