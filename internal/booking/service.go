// Package booking manages periods, occasions, attendees and their
// bookings outside of a matching run.
package booking

import (
	"context"
	"fmt"

	"ms-activity/internal/booking/db"
	"ms-activity/internal/logger"
	"ms-activity/internal/models"
	"ms-activity/internal/utils"
)

type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type Service struct {
	DB        *db.DB
	Publisher EventPublisher
	Logger    *logger.Logger
	Now       utils.Clock
	// MaxStars applies to periods without their own star limit.
	MaxStars int
}

func NewService(database *db.DB, publisher EventPublisher, log *logger.Logger, maxStars int) *Service {
	return &Service{
		DB:        database,
		Publisher: publisher,
		Logger:    log,
		Now:       utils.SystemClock,
		MaxStars:  maxStars,
	}
}

func (s *Service) starLimit(p *models.Period) int {
	if p.MaxStars > 0 {
		return p.MaxStars
	}
	if s.MaxStars > 0 {
		return s.MaxStars
	}
	return models.DefaultMaxStars
}

// publish sends state change events after the transaction committed.
// Failures are logged only; the change itself already happened.
func (s *Service) publish(ctx context.Context, events []models.BookingStateChangedEvent) {
	for _, e := range events {
		if err := s.Publisher.Publish(ctx, models.TopicBookingStateChanged, e.BookingID, e); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish state change of booking %s: %v", e.BookingID, err))
		}
	}
}
