package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"ms-activity/internal/booking/db"
	"ms-activity/internal/models"
	"ms-activity/internal/utils"
)

// Book places one booking for an attendee of username on an occasion.
func (s *Service) Book(ctx context.Context, username, attendeeID, occasionID string) (*models.Booking, error) {
	bookings, err := s.book(ctx, username, []string{attendeeID}, occasionID, "")
	if err != nil {
		return nil, err
	}
	return bookings[0], nil
}

// BookGroup books several attendees on one occasion under a shared group
// code. Matching keeps the group together where it can.
func (s *Service) BookGroup(ctx context.Context, username string, attendeeIDs []string, occasionID string) ([]*models.Booking, error) {
	if len(attendeeIDs) < 2 {
		return nil, fmt.Errorf("%w: a group needs at least two attendees", models.ErrInvalidInput)
	}
	return s.book(ctx, username, attendeeIDs, occasionID, utils.GenerateGroupCode())
}

// book stores wishes during the wishlist phase. During the booking phase of
// a confirmed period the bookings are accepted right away or refused.
func (s *Service) book(ctx context.Context, username string, attendeeIDs []string, occasionID, groupCode string) ([]*models.Booking, error) {
	now := s.Now()
	var created []*models.Booking
	var events []models.BookingStateChangedEvent

	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *db.DB) error {
		// Attendees in id order, then the occasion.
		locked := append([]string(nil), attendeeIDs...)
		sort.Strings(locked)
		attendees := make(map[string]*models.Attendee, len(locked))
		for _, id := range locked {
			a, err := tx.LockAttendee(ctx, id)
			if err != nil {
				return err
			}
			attendees[id] = a
		}

		o, err := tx.LockOccasion(ctx, occasionID)
		if err != nil {
			return err
		}
		if o.Cancelled {
			return models.ErrOccasionCancelled
		}
		p, err := tx.GetPeriod(ctx, o.PeriodID)
		if err != nil {
			return err
		}
		if p.Finalized {
			return models.ErrAlreadyFinalized
		}
		phase := p.Phase(now)
		if phase != models.PhaseWishlist && phase != models.PhaseBooking {
			return fmt.Errorf("%w: period %s is in phase %s", models.ErrPeriodNotBookable, p.ID, phase)
		}

		for i, attendeeID := range attendeeIDs {
			a := attendees[attendeeID]
			if a.Username != username {
				return fmt.Errorf("attendee %s: %w", attendeeID, models.ErrNotFound)
			}
			if !o.AcceptsAge(a.BirthDate) {
				return fmt.Errorf("attendee %s: %w", attendeeID, models.ErrAgeIneligible)
			}
			exists, err := tx.BookingExists(ctx, a.ID, o.ID)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("attendee %s: %w", attendeeID, models.ErrDuplicateBooking)
			}

			b := &models.Booking{
				ID:         utils.GenerateID(),
				Username:   username,
				AttendeeID: a.ID,
				OccasionID: o.ID,
				PeriodID:   o.PeriodID,
				GroupCode:  groupCode,
				State:      models.BookingOpen,
				CreatedAt:  now.Add(time.Duration(i) * time.Microsecond),
			}
			if err := tx.CreateBooking(ctx, b); err != nil {
				return err
			}

			if phase == models.PhaseBooking {
				if err := s.checkAccept(ctx, tx, b, o, a, p); err != nil {
					return fmt.Errorf("attendee %s: %w", attendeeID, err)
				}
				if err := acceptOpen(b); err != nil {
					return err
				}
				if err := tx.UpdateBooking(ctx, b); err != nil {
					return err
				}
				events = append(events, models.NewBookingStateChangedEvent(b, models.BookingOpen))
			}
			created = append(created, b)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("book occasion %s: %w", occasionID, err)
	}

	s.Logger.LogBooking("CREATE", created[0].ID, fmt.Sprintf("%d bookings on occasion %s for %s", len(created), occasionID, username))
	s.publish(ctx, events)
	return created, nil
}

// acceptOpen walks an open booking through blocked to accepted.
func acceptOpen(b *models.Booking) error {
	if err := b.TransitionTo(models.BookingBlocked); err != nil {
		return err
	}
	return b.TransitionTo(models.BookingAccepted)
}

func (s *Service) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.DB.GetBooking(ctx, id)
}

func (s *Service) ListBookings(ctx context.Context, f db.BookingFilter) ([]*models.Booking, error) {
	return s.DB.ListBookings(ctx, f)
}

// Star marks a booking as preferred. It reports false without changing
// anything when the attendee already used up the period's stars.
func (s *Service) Star(ctx context.Context, id string) (bool, error) {
	starred := false
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *db.DB) error {
		b, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if b.State == models.BookingCancelled {
			return fmt.Errorf("%w: booking %s is cancelled", models.ErrInvalidTransition, id)
		}
		if b.Starred() {
			starred = true
			return nil
		}
		p, err := editablePeriod(ctx, tx, b.PeriodID)
		if err != nil {
			return err
		}
		if _, err := tx.LockAttendee(ctx, b.AttendeeID); err != nil {
			return err
		}
		count, err := tx.CountStarred(ctx, b.AttendeeID, b.PeriodID, b.ID)
		if err != nil {
			return err
		}
		if limit := s.starLimit(p); count >= limit {
			s.Logger.Warn("BOOKING", fmt.Sprintf("Booking %s not starred: %v (%d of %d)", id, models.ErrStarLimitExceeded, count, limit))
			return nil
		}
		b.Priority = 1
		starred = true
		return tx.UpdateBooking(ctx, b)
	})
	if err != nil {
		return false, fmt.Errorf("star booking %s: %w", id, err)
	}
	return starred, nil
}

func (s *Service) Unstar(ctx context.Context, id string) (*models.Booking, error) {
	var booking *models.Booking
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *db.DB) error {
		b, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if _, err := editablePeriod(ctx, tx, b.PeriodID); err != nil {
			return err
		}
		booking = b
		if !b.Starred() {
			return nil
		}
		b.Priority = 0
		return tx.UpdateBooking(ctx, b)
	})
	if err != nil {
		return nil, fmt.Errorf("unstar booking %s: %w", id, err)
	}
	return booking, nil
}

// Cancel withdraws a booking. When an accepted booking of a confirmed
// period is cancelled, the best denied booking on the same occasion that
// still fits takes the free spot.
func (s *Service) Cancel(ctx context.Context, id string) (*models.Booking, error) {
	var booking *models.Booking
	var events []models.BookingStateChangedEvent

	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *db.DB) error {
		b, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		p, err := editablePeriod(ctx, tx, b.PeriodID)
		if err != nil {
			return err
		}
		from := b.State
		if err := b.TransitionTo(models.BookingCancelled); err != nil {
			return err
		}
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		booking = b
		events = append(events, models.NewBookingStateChangedEvent(b, from))

		if from != models.BookingAccepted || !p.Confirmed {
			return nil
		}
		promoted, err := s.promote(ctx, tx, b.OccasionID, p)
		if err != nil {
			return err
		}
		if promoted != nil {
			events = append(events, models.NewBookingStateChangedEvent(promoted, models.BookingDenied))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cancel booking %s: %w", id, err)
	}

	if len(events) > 1 {
		s.Logger.LogBooking("PROMOTE", events[1].BookingID, fmt.Sprintf("took the spot of cancelled booking %s", id))
	}
	s.publish(ctx, events)
	return booking, nil
}

// promote accepts the best ranked denied booking of the occasion that passes
// every acceptance check, if any.
func (s *Service) promote(ctx context.Context, tx *db.DB, occasionID string, p *models.Period) (*models.Booking, error) {
	o, err := tx.LockOccasion(ctx, occasionID)
	if err != nil {
		return nil, err
	}
	if o.Cancelled {
		return nil, nil
	}
	denied, err := tx.ListBookings(ctx, db.BookingFilter{
		OccasionID: occasionID,
		States:     []models.BookingState{models.BookingDenied},
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(denied, func(i, j int) bool {
		if denied[i].Score() != denied[j].Score() {
			return denied[i].Score() > denied[j].Score()
		}
		return denied[i].Before(denied[j])
	})

	for _, b := range denied {
		// An attendee locked by another transaction may be accepting
		// elsewhere right now; the next candidate gets the spot instead.
		a, err := tx.TryLockAttendee(ctx, b.AttendeeID)
		if err != nil {
			return nil, err
		}
		if a == nil {
			continue
		}
		err = s.checkAccept(ctx, tx, b, o, a, p)
		if isRefusal(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := b.ResetToOpen(); err != nil {
			return nil, err
		}
		if err := acceptOpen(b); err != nil {
			return nil, err
		}
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return nil, err
		}
		return b, nil
	}
	return nil, nil
}

// Accept admits a booking directly, outside of a matching run.
func (s *Service) Accept(ctx context.Context, id string) (*models.Booking, error) {
	var booking *models.Booking
	var events []models.BookingStateChangedEvent

	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *db.DB) error {
		b, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		booking = b
		if b.State == models.BookingAccepted {
			return nil
		}
		p, err := editablePeriod(ctx, tx, b.PeriodID)
		if err != nil {
			return err
		}
		a, err := tx.LockAttendee(ctx, b.AttendeeID)
		if err != nil {
			return err
		}
		o, err := tx.LockOccasion(ctx, b.OccasionID)
		if err != nil {
			return err
		}
		if err := s.checkAccept(ctx, tx, b, o, a, p); err != nil {
			return err
		}

		from := b.State
		switch from {
		case models.BookingOpen:
		case models.BookingDenied:
			if err := b.ResetToOpen(); err != nil {
				return err
			}
		case models.BookingBlocked:
			if err := b.TransitionTo(models.BookingAccepted); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, models.BookingAccepted)
		}
		if b.State == models.BookingOpen {
			if err := acceptOpen(b); err != nil {
				return err
			}
		}
		events = append(events, models.NewBookingStateChangedEvent(b, from))
		return tx.UpdateBooking(ctx, b)
	})
	if err != nil {
		return nil, fmt.Errorf("accept booking %s: %w", id, err)
	}

	s.publish(ctx, events)
	return booking, nil
}

// checkAccept verifies that b may hold a spot on o. The caller locks the
// attendee and the occasion, so neither the attendee's accepted bookings
// nor the accepted count can change underneath.
func (s *Service) checkAccept(ctx context.Context, tx *db.DB, b *models.Booking, o *models.Occasion, a *models.Attendee, p *models.Period) error {
	if o.Cancelled {
		return models.ErrOccasionCancelled
	}

	taken, err := tx.CountBookings(ctx, db.BookingFilter{
		OccasionID: o.ID,
		States:     []models.BookingState{models.BookingAccepted},
	})
	if err != nil {
		return err
	}
	if taken >= o.Spots.Max() {
		return fmt.Errorf("%w: %d of %d taken", models.ErrCapacityExceeded, taken, o.Spots.Max())
	}

	held, err := tx.ListBookings(ctx, db.BookingFilter{
		PeriodID:   p.ID,
		AttendeeID: b.AttendeeID,
		States:     []models.BookingState{models.BookingAccepted},
	})
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(held))
	for _, h := range held {
		if h.ID != b.ID {
			ids = append(ids, h.OccasionID)
		}
	}
	others, err := tx.ListOccasionsByID(ctx, ids)
	if err != nil {
		return err
	}
	gap := time.Duration(p.MinutesBetween) * time.Minute
	for _, id := range ids {
		if other, ok := others[id]; ok && o.Overlaps(other, gap) {
			return fmt.Errorf("%w: occasion %s", models.ErrOverlap, id)
		}
	}

	if !o.AcceptsAge(a.BirthDate) {
		return models.ErrAgeIneligible
	}

	if limit := p.MaxBookingsPerAttendee; limit > 0 && len(ids) >= limit {
		return fmt.Errorf("%w: %d of %d", models.ErrBookingLimitReached, len(ids), limit)
	}
	return nil
}

// isRefusal reports whether err is one of the checkAccept rejections rather
// than a storage failure.
func isRefusal(err error) bool {
	for _, target := range []error{
		models.ErrOccasionCancelled,
		models.ErrCapacityExceeded,
		models.ErrOverlap,
		models.ErrAgeIneligible,
		models.ErrBookingLimitReached,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
