package booking

import (
	"context"
	"fmt"
	"strings"

	"ms-activity/internal/booking/db"
	"ms-activity/internal/models"
	"ms-activity/internal/utils"
)

func (s *Service) CreateActivity(ctx context.Context, a *models.Activity) error {
	if strings.TrimSpace(a.Title) == "" {
		return fmt.Errorf("%w: activity title is required", models.ErrInvalidInput)
	}
	a.ID = utils.GenerateID()
	a.CreatedAt = s.Now()
	if err := s.DB.CreateActivity(ctx, a); err != nil {
		return fmt.Errorf("create activity: %w", err)
	}
	return nil
}

// editablePeriod loads the period and refuses finalized ones.
func editablePeriod(ctx context.Context, tx *db.DB, id string) (*models.Period, error) {
	p, err := tx.GetPeriod(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Finalized {
		return nil, models.ErrAlreadyFinalized
	}
	return p, nil
}

func (s *Service) CreateOccasion(ctx context.Context, o *models.Occasion) error {
	for _, d := range o.Dates {
		d.ID = utils.GenerateID()
	}
	if err := o.Validate(); err != nil {
		return err
	}
	o.ID = utils.GenerateID()
	o.CreatedAt = s.Now()
	o.RecomputeDurations()

	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *db.DB) error {
		if _, err := tx.GetActivity(ctx, o.ActivityID); err != nil {
			return err
		}
		if _, err := editablePeriod(ctx, tx, o.PeriodID); err != nil {
			return err
		}
		return tx.CreateOccasion(ctx, o)
	})
	if err != nil {
		return fmt.Errorf("create occasion: %w", err)
	}

	s.Logger.Info("OCCASION", fmt.Sprintf("Created occasion %s with %d dates, spots %s", o.ID, len(o.Dates), o.Spots))
	return nil
}

func (s *Service) GetOccasion(ctx context.Context, id string) (*models.Occasion, error) {
	return s.DB.GetOccasion(ctx, id)
}

func (s *Service) ListOccasions(ctx context.Context, periodID string) ([]*models.Occasion, error) {
	return s.DB.ListOccasions(ctx, periodID)
}

// MoveOccasion assigns the occasion to another period; its bookings follow.
func (s *Service) MoveOccasion(ctx context.Context, occasionID, periodID string) (*models.Occasion, error) {
	var occasion *models.Occasion
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *db.DB) error {
		o, err := tx.LockOccasion(ctx, occasionID)
		if err != nil {
			return err
		}
		if _, err := editablePeriod(ctx, tx, o.PeriodID); err != nil {
			return err
		}
		if _, err := editablePeriod(ctx, tx, periodID); err != nil {
			return err
		}
		o.PeriodID = periodID
		if err := tx.UpdateOccasion(ctx, o); err != nil {
			return err
		}
		occasion = o
		return tx.SyncBookingPeriod(ctx, o.ID, periodID)
	})
	if err != nil {
		return nil, fmt.Errorf("move occasion %s: %w", occasionID, err)
	}
	return occasion, nil
}

// CancelOccasion calls off an occasion. Its open and accepted bookings are
// cancelled with it.
func (s *Service) CancelOccasion(ctx context.Context, id string) (*models.Occasion, error) {
	var occasion *models.Occasion
	var events []models.BookingStateChangedEvent
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *db.DB) error {
		o, err := tx.LockOccasion(ctx, id)
		if err != nil {
			return err
		}
		if _, err := editablePeriod(ctx, tx, o.PeriodID); err != nil {
			return err
		}
		if o.Cancelled {
			occasion = o
			return nil
		}
		o.Cancelled = true
		if err := tx.UpdateOccasion(ctx, o); err != nil {
			return err
		}

		bookings, err := tx.ListBookings(ctx, db.BookingFilter{
			OccasionID: id,
			States:     []models.BookingState{models.BookingOpen, models.BookingAccepted},
		})
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(bookings))
		for _, b := range bookings {
			from := b.State
			if err := b.TransitionTo(models.BookingCancelled); err != nil {
				return err
			}
			ids = append(ids, b.ID)
			events = append(events, models.NewBookingStateChangedEvent(b, from))
		}
		occasion = o
		return tx.SetBookingStates(ctx, ids, models.BookingCancelled)
	})
	if err != nil {
		return nil, fmt.Errorf("cancel occasion %s: %w", id, err)
	}

	s.Logger.Info("OCCASION", fmt.Sprintf("Cancelled occasion %s and %d bookings", id, len(events)))
	s.publish(ctx, events)
	return occasion, nil
}

// changeDates applies fn to the occasion's dates and recomputes the cached
// duration classification in the same transaction.
func (s *Service) changeDates(ctx context.Context, occasionID string, fn func(ctx context.Context, tx *db.DB, o *models.Occasion) error) (*models.Occasion, error) {
	var occasion *models.Occasion
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *db.DB) error {
		o, err := tx.LockOccasion(ctx, occasionID)
		if err != nil {
			return err
		}
		if _, err := editablePeriod(ctx, tx, o.PeriodID); err != nil {
			return err
		}
		if err := fn(ctx, tx, o); err != nil {
			return err
		}

		fresh, err := tx.LockOccasion(ctx, occasionID)
		if err != nil {
			return err
		}
		fresh.RecomputeDurations()
		occasion = fresh
		return tx.UpdateOccasion(ctx, fresh)
	})
	if err != nil {
		return nil, fmt.Errorf("occasion %s dates: %w", occasionID, err)
	}
	return occasion, nil
}

func (s *Service) AddDate(ctx context.Context, occasionID string, date *models.OccasionDate) (*models.Occasion, error) {
	if err := date.Validate(); err != nil {
		return nil, err
	}
	return s.changeDates(ctx, occasionID, func(ctx context.Context, tx *db.DB, o *models.Occasion) error {
		date.ID = utils.GenerateID()
		date.OccasionID = o.ID
		return tx.CreateOccasionDate(ctx, date)
	})
}

func (s *Service) UpdateDate(ctx context.Context, occasionID, dateID string, in models.OccasionDate) (*models.Occasion, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return s.changeDates(ctx, occasionID, func(ctx context.Context, tx *db.DB, o *models.Occasion) error {
		date, err := tx.GetOccasionDate(ctx, dateID)
		if err != nil {
			return err
		}
		if date.OccasionID != o.ID {
			return fmt.Errorf("occasion date %s: %w", dateID, models.ErrNotFound)
		}
		date.Start, date.End, date.Timezone = in.Start, in.End, in.Timezone
		return tx.UpdateOccasionDate(ctx, date)
	})
}

func (s *Service) RemoveDate(ctx context.Context, occasionID, dateID string) (*models.Occasion, error) {
	return s.changeDates(ctx, occasionID, func(ctx context.Context, tx *db.DB, o *models.Occasion) error {
		date, err := tx.GetOccasionDate(ctx, dateID)
		if err != nil {
			return err
		}
		if date.OccasionID != o.ID {
			return fmt.Errorf("occasion date %s: %w", dateID, models.ErrNotFound)
		}
		return tx.DeleteOccasionDate(ctx, dateID)
	})
}

func (s *Service) AddNeed(ctx context.Context, occasionID string, need *models.OccasionNeed) error {
	if strings.TrimSpace(need.Name) == "" {
		return fmt.Errorf("%w: need name is required", models.ErrInvalidInput)
	}
	if err := need.Number.Validate(); err != nil {
		return err
	}
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *db.DB) error {
		o, err := tx.GetOccasion(ctx, occasionID)
		if err != nil {
			return err
		}
		if _, err := editablePeriod(ctx, tx, o.PeriodID); err != nil {
			return err
		}
		need.ID = utils.GenerateID()
		need.OccasionID = o.ID
		return tx.CreateOccasionNeed(ctx, need)
	})
	if err != nil {
		return fmt.Errorf("add need to occasion %s: %w", occasionID, err)
	}
	return nil
}
