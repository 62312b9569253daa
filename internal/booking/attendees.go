package booking

import (
	"context"
	"fmt"
	"strings"

	"ms-activity/internal/models"
	"ms-activity/internal/utils"
)

func (s *Service) CreateAttendee(ctx context.Context, a *models.Attendee) error {
	if strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.Username) == "" {
		return fmt.Errorf("%w: attendee name and owner are required", models.ErrInvalidInput)
	}
	if a.BirthDate.IsZero() || a.BirthDate.After(s.Now()) {
		return fmt.Errorf("%w: birth date must be in the past", models.ErrInvalidInput)
	}
	a.ID = utils.GenerateID()
	a.CreatedAt = s.Now()
	if err := s.DB.CreateAttendee(ctx, a); err != nil {
		return fmt.Errorf("create attendee: %w", err)
	}
	return nil
}

func (s *Service) GetAttendee(ctx context.Context, id string) (*models.Attendee, error) {
	return s.DB.GetAttendee(ctx, id)
}

// ListAttendees lists the attendees of one user, or all when username is
// empty.
func (s *Service) ListAttendees(ctx context.Context, username string) ([]models.Attendee, error) {
	return s.DB.ListAttendees(ctx, username)
}
