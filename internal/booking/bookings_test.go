package booking_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-activity/internal/booking/db"
	"ms-activity/internal/database/dbtest"
	"ms-activity/internal/models"
)

func TestBook_WishlistPhaseCreatesOpenBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.fx.Period()
	o := env.fx.Occasion(p, 1, 2)
	a := env.fx.Attendee("anna", 10)

	b, err := env.svc.Book(ctx, "anna", a.ID, o.ID)
	require.NoError(t, err)

	assert.Equal(t, models.BookingOpen, b.State)
	assert.Equal(t, p.ID, b.PeriodID)
	assert.Empty(t, b.GroupCode)
	assert.Empty(t, env.pub.stateChanges())
}

func TestBook_Refusals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.fx.Period()
	o := env.fx.Occasion(p, 1, 2)
	teens := env.fx.Occasion(p, 1, 2, func(o *models.Occasion) { o.Age = models.MustClosedRange(13, 17) })
	cancelled := env.fx.Occasion(p, 1, 2, func(o *models.Occasion) { o.Cancelled = true })
	a := env.fx.Attendee("anna", 10)

	_, err := env.svc.Book(ctx, "anna", a.ID, o.ID)
	require.NoError(t, err)

	_, err = env.svc.Book(ctx, "anna", a.ID, o.ID)
	assert.ErrorIs(t, err, models.ErrDuplicateBooking)

	_, err = env.svc.Book(ctx, "anna", a.ID, teens.ID)
	assert.ErrorIs(t, err, models.ErrAgeIneligible)

	_, err = env.svc.Book(ctx, "anna", a.ID, cancelled.ID)
	assert.ErrorIs(t, err, models.ErrOccasionCancelled)

	_, err = env.svc.Book(ctx, "bert", a.ID, teens.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestBook_OutsideBookablePhases(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.fx.Period(func(p *models.Period) { p.Active = false })
	o := env.fx.Occasion(p, 1, 2)
	a := env.fx.Attendee("anna", 10)

	_, err := env.svc.Book(ctx, "anna", a.ID, o.ID)
	assert.ErrorIs(t, err, models.ErrPeriodNotBookable)

	final := env.fx.Period(dbtest.Finalized)
	fo := env.fx.Occasion(final, 1, 2)
	_, err = env.svc.Book(ctx, "anna", a.ID, fo.ID)
	assert.ErrorIs(t, err, models.ErrAlreadyFinalized)
}

func TestBook_BookingPhaseAcceptsUntilFull(t *testing.T) {
	env := newTestEnv(t)
	env.inBookingWindow()
	ctx := context.Background()
	p := env.fx.Period(dbtest.Confirmed)
	o := env.fx.Occasion(p, 1, 1)
	first := env.fx.Attendee("anna", 10)
	second := env.fx.Attendee("bert", 10)

	b, err := env.svc.Book(ctx, "anna", first.ID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingAccepted, b.State)
	require.Len(t, env.pub.stateChanges(), 1)
	assert.Equal(t, models.BookingOpen, env.pub.stateChanges()[0].From)

	_, err = env.svc.Book(ctx, "bert", second.ID, o.ID)
	assert.ErrorIs(t, err, models.ErrCapacityExceeded)

	exists, err := env.db.BookingExists(ctx, second.ID, o.ID)
	require.NoError(t, err)
	assert.False(t, exists, "refused booking must be rolled back")
}

func TestBookGroup_SharesGroupCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.fx.Period()
	o := env.fx.Occasion(p, 1, 4)
	a1 := env.fx.Attendee("anna", 9)
	a2 := env.fx.Attendee("anna", 11)

	bookings, err := env.svc.BookGroup(ctx, "anna", []string{a1.ID, a2.ID}, o.ID)
	require.NoError(t, err)
	require.Len(t, bookings, 2)

	assert.NotEmpty(t, bookings[0].GroupCode)
	assert.Equal(t, bookings[0].GroupCode, bookings[1].GroupCode)
	assert.True(t, bookings[0].Before(bookings[1]))

	_, err = env.svc.BookGroup(ctx, "anna", []string{a1.ID}, o.ID)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestStar_RespectsLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.fx.Period()
	a := env.fx.Attendee("anna", 10)

	var bookings []*models.Booking
	for i := 0; i < 4; i++ {
		o := env.fx.Occasion(p, 1, 2)
		bookings = append(bookings, env.fx.Booking(a, o))
	}

	for _, b := range bookings[:3] {
		ok, err := env.svc.Star(ctx, b.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := env.svc.Star(ctx, bookings[3].ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, env.reload(t, bookings[3]).Priority)

	// Starring an already starred booking is a no-op.
	ok, err = env.svc.Star(ctx, bookings[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = env.svc.Unstar(ctx, bookings[0].ID)
	require.NoError(t, err)
	ok, err = env.svc.Star(ctx, bookings[3].ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStar_PeriodOverride(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.fx.Period(func(p *models.Period) { p.MaxStars = 1 })
	a := env.fx.Attendee("anna", 10)
	b1 := env.fx.Booking(a, env.fx.Occasion(p, 1, 2))
	b2 := env.fx.Booking(a, env.fx.Occasion(p, 1, 2))

	ok, err := env.svc.Star(ctx, b1.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.svc.Star(ctx, b2.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.fx.Period()
	a := env.fx.Attendee("anna", 10)
	open := env.fx.Booking(a, env.fx.Occasion(p, 1, 2))
	denied := env.fx.Booking(a, env.fx.Occasion(p, 1, 2), dbtest.InState(models.BookingDenied))

	b, err := env.svc.Cancel(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, b.State)

	_, err = env.svc.Cancel(ctx, open.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = env.svc.Cancel(ctx, denied.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestCancel_FinalizedPeriod(t *testing.T) {
	env := newTestEnv(t)
	p := env.fx.Period(dbtest.Finalized)
	a := env.fx.Attendee("anna", 10)
	b := env.fx.Booking(a, env.fx.Occasion(p, 1, 2), dbtest.InState(models.BookingAccepted))

	_, err := env.svc.Cancel(context.Background(), b.ID)
	assert.ErrorIs(t, err, models.ErrAlreadyFinalized)
	assert.Equal(t, models.BookingAccepted, env.reload(t, b).State)
}

func TestCancel_PromotesBestFittingDenied(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.fx.Period(dbtest.Confirmed)
	o := env.fx.Occasion(p, 1, 1)
	clashing := env.fx.Occasion(p, 1, 5)

	holder := env.fx.Attendee("anna", 10)
	busy := env.fx.Attendee("bert", 10)
	waiting := env.fx.Attendee("carl", 10)

	accepted := env.fx.Booking(holder, o, dbtest.InState(models.BookingAccepted))
	// Starred but already accepted elsewhere at the same time.
	env.fx.Booking(busy, clashing, dbtest.InState(models.BookingAccepted))
	starred := env.fx.Booking(busy, o, dbtest.InState(models.BookingDenied), dbtest.Starred)
	next := env.fx.Booking(waiting, o, dbtest.InState(models.BookingDenied))

	_, err := env.svc.Cancel(ctx, accepted.ID)
	require.NoError(t, err)

	assert.Equal(t, models.BookingDenied, env.reload(t, starred).State)
	assert.Equal(t, models.BookingAccepted, env.reload(t, next).State)

	events := env.pub.stateChanges()
	require.Len(t, events, 2)
	assert.Equal(t, accepted.ID, events[0].BookingID)
	assert.Equal(t, next.ID, events[1].BookingID)
	assert.Equal(t, models.BookingDenied, events[1].From)
	assert.Equal(t, models.BookingAccepted, events[1].To)
}

func TestCancel_NoPromotionBeforeConfirmation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.fx.Period()
	o := env.fx.Occasion(p, 1, 1)
	accepted := env.fx.Booking(env.fx.Attendee("anna", 10), o, dbtest.InState(models.BookingAccepted))
	denied := env.fx.Booking(env.fx.Attendee("bert", 10), o, dbtest.InState(models.BookingDenied))

	_, err := env.svc.Cancel(ctx, accepted.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingDenied, env.reload(t, denied).State)
}

func TestAccept_Checks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.fx.Period(func(p *models.Period) { p.MinutesBetween = 30 })
	morning := env.fx.Occasion(p, 1, 1)
	sameTime := env.fx.Occasion(p, 1, 5)
	rightAfter := env.fx.Occasion(p, 1, 5, func(o *models.Occasion) {
		o.Dates = []*models.OccasionDate{dbtest.Date(p, 0, 12, 2)}
	})
	nextDay := env.fx.Occasion(p, 1, 5, func(o *models.Occasion) {
		o.Dates = []*models.OccasionDate{dbtest.Date(p, 1, 10, 2)}
	})

	anna := env.fx.Attendee("anna", 10)
	bert := env.fx.Attendee("bert", 10)

	first := env.fx.Booking(anna, morning)
	b, err := env.svc.Accept(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingAccepted, b.State)

	full := env.fx.Booking(bert, morning, dbtest.InState(models.BookingDenied))
	_, err = env.svc.Accept(ctx, full.ID)
	assert.ErrorIs(t, err, models.ErrCapacityExceeded)

	_, err = env.svc.Accept(ctx, env.fx.Booking(anna, sameTime).ID)
	assert.ErrorIs(t, err, models.ErrOverlap)

	// Touching dates only clash because of the configured gap.
	_, err = env.svc.Accept(ctx, env.fx.Booking(anna, rightAfter).ID)
	assert.ErrorIs(t, err, models.ErrOverlap)

	later := env.fx.Booking(anna, nextDay)
	b, err = env.svc.Accept(ctx, later.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingAccepted, b.State)

	// Accepting twice is a no-op.
	_, err = env.svc.Accept(ctx, later.ID)
	require.NoError(t, err)
}

func TestAccept_AgeAndLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.fx.Period(func(p *models.Period) { p.MaxBookingsPerAttendee = 1 })
	teens := env.fx.Occasion(p, 1, 5, func(o *models.Occasion) { o.Age = models.MustClosedRange(13, 17) })
	day1 := env.fx.Occasion(p, 1, 5)
	day2 := env.fx.Occasion(p, 1, 5, func(o *models.Occasion) {
		o.Dates = []*models.OccasionDate{dbtest.Date(p, 1, 10, 2)}
	})
	a := env.fx.Attendee("anna", 10)

	_, err := env.svc.Accept(ctx, env.fx.Booking(a, teens).ID)
	assert.ErrorIs(t, err, models.ErrAgeIneligible)

	_, err = env.svc.Accept(ctx, env.fx.Booking(a, day1).ID)
	require.NoError(t, err)

	_, err = env.svc.Accept(ctx, env.fx.Booking(a, day2).ID)
	assert.ErrorIs(t, err, models.ErrBookingLimitReached)
}

func TestListBookings_Filter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.fx.Period()
	o := env.fx.Occasion(p, 1, 5)
	env.fx.Booking(env.fx.Attendee("anna", 10), o)
	env.fx.Booking(env.fx.Attendee("bert", 10), o, dbtest.InState(models.BookingCancelled))

	all, err := env.svc.ListBookings(ctx, db.BookingFilter{PeriodID: p.ID})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := env.svc.ListBookings(ctx, db.BookingFilter{PeriodID: p.ID, Username: "anna"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "anna", mine[0].Username)

	open, err := env.svc.ListBookings(ctx, db.BookingFilter{OccasionID: o.ID, States: []models.BookingState{models.BookingOpen}})
	require.NoError(t, err)
	assert.Len(t, open, 1)
}
