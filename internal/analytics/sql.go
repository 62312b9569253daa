package analytics

import (
	"context"

	"github.com/uptrace/bun"
)

// SQL computes the aggregates with one query each. Float results are cast
// explicitly since SQLite returns an integer for a literal COALESCE fallback.
type SQL struct {
	DB bun.IDB
}

func NewSQL(db bun.IDB) *SQL {
	return &SQL{DB: db}
}

// occasionStatesQuery classifies occasions in the same order as
// models.ClassifyOccasion. Spots are stored half-open, so the maximum is
// spots_upper - 1.
const occasionStatesQuery = `
	SELECT
		o.id AS occasion_id,
		o.activity_id AS activity_id,
		COUNT(b.id) AS accepted,
		CASE
			WHEN o.cancelled THEN 'cancelled'
			WHEN COUNT(b.id) > o.spots_upper - 1 THEN 'overfull'
			WHEN COUNT(b.id) = 0 THEN 'empty'
			WHEN COUNT(b.id) < o.spots_lower THEN 'unoperable'
			WHEN COUNT(b.id) = o.spots_upper - 1 THEN 'full'
			ELSE 'operable'
		END AS state
	FROM
		occasions o
	LEFT JOIN
		bookings b ON b.occasion_id = o.id AND b.state = 'accepted'
	WHERE
		o.period_id = ?
	GROUP BY
		o.id, o.activity_id, o.cancelled, o.spots_lower, o.spots_upper, o.created_at
	ORDER BY
		o.created_at, o.id
`

func (s *SQL) OccasionStates(ctx context.Context, periodID string) ([]OccasionState, error) {
	rows := []OccasionState{}
	err := s.DB.NewRaw(occasionStatesQuery, periodID).Scan(ctx, &rows)
	return rows, err
}

// Happiness averages, per attendee with non-cancelled bookings, the share of
// wishes accepted with each booking weighing 1 + priority.
func (s *SQL) Happiness(ctx context.Context, periodID string) (float64, error) {
	var happiness float64
	err := s.DB.NewRaw(`
		SELECT
			CAST(COALESCE(AVG(per_attendee.happiness), 0) AS FLOAT)
		FROM (
			SELECT
				CAST(SUM(CASE WHEN state = 'accepted' THEN 1 + priority ELSE 0 END) AS FLOAT)
					/ SUM(1 + priority) AS happiness
			FROM
				bookings
			WHERE
				period_id = ? AND state <> 'cancelled'
			GROUP BY
				attendee_id
		) per_attendee
	`, periodID).Scan(ctx, &happiness)
	return happiness, err
}

// Operability is the share of non-cancelled occasions that are operable or
// full. Empty occasions count against it.
func (s *SQL) Operability(ctx context.Context, periodID string) (float64, error) {
	var operability float64
	err := s.DB.NewRaw(`
		SELECT
			CAST(COALESCE(AVG(CASE WHEN states.state IN ('operable', 'full') THEN 1.0 ELSE 0.0 END), 0) AS FLOAT)
		FROM (`+occasionStatesQuery+`) states
		WHERE
			states.state <> 'cancelled'
	`, periodID).Scan(ctx, &operability)
	return operability, err
}

// BookingCount is the number of bookings of a period in one state.
type BookingCount struct {
	State string `bun:"state" json:"state"`
	Count int    `bun:"count" json:"count"`
}

func (s *SQL) BookingCounts(ctx context.Context, periodID string) ([]BookingCount, error) {
	counts := []BookingCount{}
	err := s.DB.NewSelect().
		ColumnExpr("state").
		ColumnExpr("COUNT(*) AS count").
		TableExpr("bookings").
		Where("period_id = ?", periodID).
		GroupExpr("state").
		OrderExpr("state").
		Scan(ctx, &counts)
	return counts, err
}

// BillingTotals sums the invoice items of a period.
type BillingTotals struct {
	Invoices int     `bun:"invoices" json:"invoices"`
	Total    float64 `bun:"total" json:"total"`
	Paid     float64 `bun:"paid" json:"paid"`
}

func (s *SQL) BillingTotals(ctx context.Context, periodID string) (*BillingTotals, error) {
	var totals BillingTotals
	err := s.DB.NewRaw(`
		SELECT
			COUNT(DISTINCT i.id) AS invoices,
			CAST(COALESCE(SUM(it.amount), 0) AS FLOAT) AS total,
			CAST(COALESCE(SUM(CASE WHEN it.paid THEN it.amount ELSE 0 END), 0) AS FLOAT) AS paid
		FROM
			invoices i
		LEFT JOIN
			invoice_items it ON it.invoice_id = i.id
		WHERE
			i.period_id = ?
	`, periodID).Scan(ctx, &totals)
	return &totals, err
}
