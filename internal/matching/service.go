package matching

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	bookingdb "ms-activity/internal/booking/db"
	"ms-activity/internal/logger"
	"ms-activity/internal/models"
)

type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type Service struct {
	DB             *bookingdb.DB
	Publisher      EventPublisher
	Logger         *logger.Logger
	Scoring        []Criterion
	EnforceMinimum bool
}

func NewService(db *bookingdb.DB, publisher EventPublisher, log *logger.Logger) *Service {
	return &Service{
		DB:             db,
		Publisher:      publisher,
		Logger:         log,
		Scoring:        DefaultScoring,
		EnforceMinimum: true,
	}
}

// Summary describes the outcome of a run.
type Summary struct {
	PeriodID    string   `json:"period_id"`
	Accepted    int      `json:"accepted"`
	Denied      int      `json:"denied"`
	Closed      []string `json:"closed_occasions"`
	Rounds      int      `json:"rounds"`
	Happiness   float64  `json:"happiness"`
	Operability float64  `json:"operability"`
}

var nonCancelled = []models.BookingState{
	models.BookingOpen, models.BookingBlocked, models.BookingAccepted, models.BookingDenied,
}

// Run matches every non-cancelled booking of an unconfirmed period. All
// bookings are blocked while the engine runs and end up accepted or denied
// in the same transaction.
func (s *Service) Run(ctx context.Context, periodID string) (*Summary, error) {
	const op = "matching.Run"
	started := time.Now()

	var summary *Summary
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *bookingdb.DB) error {
		period, err := tx.GetPeriod(ctx, periodID)
		if err != nil {
			return err
		}
		if period.Confirmed {
			return models.ErrPeriodConfirmed
		}

		occasions, err := tx.ListOccasions(ctx, periodID)
		if err != nil {
			return fmt.Errorf("load occasions: %w", err)
		}
		bookings, err := tx.ListBookings(ctx, bookingdb.BookingFilter{PeriodID: periodID, States: nonCancelled})
		if err != nil {
			return fmt.Errorf("load bookings: %w", err)
		}
		attendees, err := tx.ListAttendeesByID(ctx, attendeeIDs(bookings))
		if err != nil {
			return fmt.Errorf("load attendees: %w", err)
		}

		if _, err := tx.MoveBookings(ctx, periodID, []models.BookingState{models.BookingBlocked, models.BookingAccepted, models.BookingDenied}, models.BookingOpen); err != nil {
			return fmt.Errorf("reopen bookings: %w", err)
		}
		if _, err := tx.MoveBookings(ctx, periodID, []models.BookingState{models.BookingOpen}, models.BookingBlocked); err != nil {
			return fmt.Errorf("block bookings: %w", err)
		}

		opts := OptionsFor(period)
		opts.Scoring = s.Scoring
		opts.EnforceMinimum = s.EnforceMinimum
		result := Match(Input{Occasions: occasions, Attendees: attendees, Bookings: bookings}, opts)

		accepted, denied := result.Accepted(), result.Denied()
		if err := tx.SetBookingStates(ctx, accepted, models.BookingAccepted); err != nil {
			return fmt.Errorf("accept bookings: %w", err)
		}
		if err := tx.SetBookingStates(ctx, denied, models.BookingDenied); err != nil {
			return fmt.Errorf("deny bookings: %w", err)
		}

		for _, b := range bookings {
			b.State = result.States[b.ID]
		}
		summary = &Summary{
			PeriodID:    periodID,
			Accepted:    len(accepted),
			Denied:      len(denied),
			Closed:      result.Closed,
			Rounds:      result.Rounds,
			Happiness:   Happiness(bookings),
			Operability: Operability(occasions, bookings),
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.Logger.LogMatching(periodID, fmt.Sprintf("accepted %d, denied %d, closed %d occasions in %d rounds (%s), happiness %.2f",
		summary.Accepted, summary.Denied, len(summary.Closed), summary.Rounds, time.Since(started).Round(time.Millisecond), summary.Happiness))

	event := models.MatchingCompletedEvent{
		EventID:     uuid.NewString(),
		PeriodID:    periodID,
		Accepted:    summary.Accepted,
		Denied:      summary.Denied,
		Happiness:   summary.Happiness,
		Operability: summary.Operability,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.Publisher.Publish(ctx, models.TopicMatchingCompleted, periodID, event); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish matching result for %s: %v", periodID, err))
	}
	return summary, nil
}

// Reset puts every non-cancelled booking of an unconfirmed period back to
// open.
func (s *Service) Reset(ctx context.Context, periodID string) (int64, error) {
	const op = "matching.Reset"

	var n int64
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *bookingdb.DB) error {
		period, err := tx.GetPeriod(ctx, periodID)
		if err != nil {
			return err
		}
		if period.Confirmed {
			return models.ErrPeriodConfirmed
		}
		n, err = tx.MoveBookings(ctx, periodID, []models.BookingState{models.BookingBlocked, models.BookingAccepted, models.BookingDenied}, models.BookingOpen)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.Logger.LogMatching(periodID, fmt.Sprintf("reset %d bookings to open", n))
	return n, nil
}

func attendeeIDs(bookings []*models.Booking) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, b := range bookings {
		if !seen[b.AttendeeID] {
			seen[b.AttendeeID] = true
			ids = append(ids, b.AttendeeID)
		}
	}
	sort.Strings(ids)
	return ids
}
