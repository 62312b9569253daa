package booking

import (
	"context"
	"fmt"
	"strings"

	"ms-activity/internal/booking/db"
	"ms-activity/internal/models"
	"ms-activity/internal/utils"
)

func (s *Service) CreatePeriod(ctx context.Context, p *models.Period) error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: period title is required", models.ErrInvalidInput)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	p.ID = utils.GenerateID()
	p.Confirmed, p.Finalized, p.Archived = false, false, false
	p.CreatedAt = s.Now()

	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *db.DB) error {
		if p.Active {
			if err := tx.DeactivateOthers(ctx, p.ID); err != nil {
				return err
			}
		}
		return tx.CreatePeriod(ctx, p)
	})
	if err != nil {
		return fmt.Errorf("create period: %w", err)
	}

	s.Logger.Info("PERIOD", fmt.Sprintf("Created period %s (%s)", p.ID, p.Title))
	return nil
}

func (s *Service) GetPeriod(ctx context.Context, id string) (*models.Period, error) {
	return s.DB.GetPeriod(ctx, id)
}

func (s *Service) ListPeriods(ctx context.Context) ([]models.Period, error) {
	return s.DB.ListPeriods(ctx)
}

// UpdatePeriod replaces the editable settings of a period that is not yet
// finalized. Lifecycle flags are changed through their own operations.
func (s *Service) UpdatePeriod(ctx context.Context, id string, in models.Period) (*models.Period, error) {
	var period *models.Period
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *db.DB) error {
		p, err := tx.GetPeriod(ctx, id)
		if err != nil {
			return err
		}
		if p.Finalized {
			return models.ErrAlreadyFinalized
		}

		if strings.TrimSpace(in.Title) != "" {
			p.Title = in.Title
		}
		p.PrebookingStart, p.PrebookingEnd = in.PrebookingStart, in.PrebookingEnd
		p.BookingStart, p.BookingEnd = in.BookingStart, in.BookingEnd
		p.ExecutionStart, p.ExecutionEnd = in.ExecutionStart, in.ExecutionEnd
		p.MaxBookingsPerAttendee = in.MaxBookingsPerAttendee
		p.MinutesBetween = in.MinutesBetween
		p.MaxStars = in.MaxStars
		p.AllInclusive = in.AllInclusive
		p.BookingCost = in.BookingCost
		if err := p.Validate(); err != nil {
			return err
		}

		period = p
		return tx.UpdatePeriod(ctx, p)
	})
	if err != nil {
		return nil, fmt.Errorf("update period %s: %w", id, err)
	}
	return period, nil
}

// ActivatePeriod makes the period the only active one.
func (s *Service) ActivatePeriod(ctx context.Context, id string) (*models.Period, error) {
	var period *models.Period
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *db.DB) error {
		p, err := tx.GetPeriod(ctx, id)
		if err != nil {
			return err
		}
		if p.Archived {
			return fmt.Errorf("%w: archived periods cannot be activated", models.ErrInvalidInput)
		}
		if err := tx.DeactivateOthers(ctx, id); err != nil {
			return err
		}
		p.Active = true
		period = p
		return tx.UpdatePeriod(ctx, p)
	})
	if err != nil {
		return nil, fmt.Errorf("activate period %s: %w", id, err)
	}

	s.Logger.Info("PERIOD", fmt.Sprintf("Period %s is now active", id))
	return period, nil
}

// ConfirmPeriod publishes the matching: every booking still open or
// blocked is denied and the period moves on to the booking phase.
func (s *Service) ConfirmPeriod(ctx context.Context, id string) (*models.Period, error) {
	var period *models.Period
	var denied int64
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *db.DB) error {
		p, err := tx.GetPeriod(ctx, id)
		if err != nil {
			return err
		}
		if p.Finalized {
			return models.ErrAlreadyFinalized
		}
		if p.Confirmed {
			return models.ErrPeriodConfirmed
		}

		denied, err = tx.MoveBookings(ctx, id, []models.BookingState{models.BookingOpen, models.BookingBlocked}, models.BookingDenied)
		if err != nil {
			return err
		}
		p.Confirmed = true
		period = p
		return tx.UpdatePeriod(ctx, p)
	})
	if err != nil {
		return nil, fmt.Errorf("confirm period %s: %w", id, err)
	}

	s.Logger.Info("PERIOD", fmt.Sprintf("Confirmed period %s, %d unmatched bookings denied", id, denied))
	return period, nil
}

// UnconfirmPeriod reopens a confirmed period for matching. Accepted and
// denied bookings go back to open.
func (s *Service) UnconfirmPeriod(ctx context.Context, id string) (*models.Period, error) {
	var period *models.Period
	var reopened int64
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *db.DB) error {
		p, err := tx.GetPeriod(ctx, id)
		if err != nil {
			return err
		}
		if p.Finalized {
			return models.ErrAlreadyFinalized
		}
		if !p.Confirmed {
			return models.ErrPeriodNotConfirmed
		}

		reopened, err = tx.MoveBookings(ctx, id, []models.BookingState{models.BookingBlocked, models.BookingAccepted, models.BookingDenied}, models.BookingOpen)
		if err != nil {
			return err
		}
		p.Confirmed = false
		period = p
		return tx.UpdatePeriod(ctx, p)
	})
	if err != nil {
		return nil, fmt.Errorf("unconfirm period %s: %w", id, err)
	}

	s.Logger.Info("PERIOD", fmt.Sprintf("Unconfirmed period %s, %d bookings reopened", id, reopened))
	return period, nil
}

// ArchivePeriod retires a finalized period whose execution is over.
func (s *Service) ArchivePeriod(ctx context.Context, id string) (*models.Period, error) {
	var period *models.Period
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *db.DB) error {
		p, err := tx.GetPeriod(ctx, id)
		if err != nil {
			return err
		}
		if !p.Archivable(s.Now()) {
			return models.ErrNotArchivable
		}
		p.Archived = true
		p.Active = false
		period = p
		return tx.UpdatePeriod(ctx, p)
	})
	if err != nil {
		return nil, fmt.Errorf("archive period %s: %w", id, err)
	}

	s.Logger.Info("PERIOD", fmt.Sprintf("Archived period %s", id))
	return period, nil
}

// ArchiveDue archives every period that became archivable and returns
// their ids.
func (s *Service) ArchiveDue(ctx context.Context) ([]string, error) {
	due, err := s.DB.ListArchivablePeriods(ctx, s.Now())
	if err != nil {
		return nil, fmt.Errorf("list archivable periods: %w", err)
	}
	var archived []string
	for _, p := range due {
		if _, err := s.ArchivePeriod(ctx, p.ID); err != nil {
			return archived, err
		}
		archived = append(archived, p.ID)
	}
	return archived, nil
}

// DeletePeriod removes the period with its occasions, bookings and
// invoices.
func (s *Service) DeletePeriod(ctx context.Context, id string) error {
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *db.DB) error {
		if _, err := tx.GetPeriod(ctx, id); err != nil {
			return err
		}
		return tx.DeletePeriod(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete period %s: %w", id, err)
	}

	s.Logger.Warn("PERIOD", fmt.Sprintf("Deleted period %s and all its data", id))
	return nil
}
