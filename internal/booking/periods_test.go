package booking_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-activity/internal/booking/db"
	"ms-activity/internal/database/dbtest"
	"ms-activity/internal/models"
	"ms-activity/internal/utils"
)

func newPeriod() *models.Period {
	return &models.Period{
		Title:           "Autumn 2026",
		PrebookingStart: dbtest.Base,
		PrebookingEnd:   dbtest.Base.AddDate(0, 0, 7),
		BookingStart:    dbtest.Base.AddDate(0, 0, 8),
		BookingEnd:      dbtest.Base.AddDate(0, 0, 20),
		ExecutionStart:  dbtest.Base.AddDate(0, 0, 30),
		ExecutionEnd:    dbtest.Base.AddDate(0, 0, 40),
		Active:          true,
	}
}

func TestCreatePeriod_DeactivatesOthers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	old := env.fx.Period()

	p := newPeriod()
	p.Confirmed = true
	require.NoError(t, env.svc.CreatePeriod(ctx, p))
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.Confirmed)

	got, err := env.svc.GetPeriod(ctx, old.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	_, err = env.svc.ActivatePeriod(ctx, old.ID)
	require.NoError(t, err)
	got, err = env.svc.GetPeriod(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestCreatePeriod_Invalid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := newPeriod()
	p.Title = " "
	assert.ErrorIs(t, env.svc.CreatePeriod(ctx, p), models.ErrInvalidInput)

	p = newPeriod()
	p.BookingStart = p.PrebookingStart
	assert.ErrorIs(t, env.svc.CreatePeriod(ctx, p), models.ErrInvalidRange)
}

func TestUpdatePeriod(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.fx.Period()

	in := *p
	in.MinutesBetween = 45
	in.Title = ""
	got, err := env.svc.UpdatePeriod(ctx, p.ID, in)
	require.NoError(t, err)
	assert.Equal(t, 45, got.MinutesBetween)
	assert.Equal(t, p.Title, got.Title)

	final := env.fx.Period(dbtest.Finalized)
	_, err = env.svc.UpdatePeriod(ctx, final.ID, *final)
	assert.ErrorIs(t, err, models.ErrAlreadyFinalized)

	_, err = env.svc.UpdatePeriod(ctx, uuid.NewString(), in)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestConfirmAndUnconfirm(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.fx.Period()
	o := env.fx.Occasion(p, 1, 5)

	open := env.fx.Booking(env.fx.Attendee("anna", 10), o)
	blocked := env.fx.Booking(env.fx.Attendee("bert", 10), o, dbtest.InState(models.BookingBlocked))
	accepted := env.fx.Booking(env.fx.Attendee("carl", 10), o, dbtest.InState(models.BookingAccepted))
	cancelled := env.fx.Booking(env.fx.Attendee("dora", 10), o, dbtest.InState(models.BookingCancelled))

	_, err := env.svc.UnconfirmPeriod(ctx, p.ID)
	assert.ErrorIs(t, err, models.ErrPeriodNotConfirmed)

	got, err := env.svc.ConfirmPeriod(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Confirmed)
	assert.Equal(t, models.BookingDenied, env.reload(t, open).State)
	assert.Equal(t, models.BookingDenied, env.reload(t, blocked).State)
	assert.Equal(t, models.BookingAccepted, env.reload(t, accepted).State)

	_, err = env.svc.ConfirmPeriod(ctx, p.ID)
	assert.ErrorIs(t, err, models.ErrPeriodConfirmed)

	got, err = env.svc.UnconfirmPeriod(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, got.Confirmed)
	for _, b := range []*models.Booking{open, blocked, accepted} {
		assert.Equal(t, models.BookingOpen, env.reload(t, b).State)
	}
	assert.Equal(t, models.BookingCancelled, env.reload(t, cancelled).State)
}

func TestUnconfirm_FinalizedPeriod(t *testing.T) {
	env := newTestEnv(t)
	p := env.fx.Period(dbtest.Finalized)

	_, err := env.svc.UnconfirmPeriod(context.Background(), p.ID)
	assert.ErrorIs(t, err, models.ErrAlreadyFinalized)
}

func TestArchivePeriod(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	final := env.fx.Period(dbtest.Finalized)
	running := env.fx.Period(dbtest.Confirmed)

	_, err := env.svc.ArchivePeriod(ctx, final.ID)
	assert.ErrorIs(t, err, models.ErrNotArchivable, "execution has not ended yet")

	env.svc.Now = utils.FixedClock(final.ExecutionEnd.AddDate(0, 0, 1))

	_, err = env.svc.ArchivePeriod(ctx, running.ID)
	assert.ErrorIs(t, err, models.ErrNotArchivable)

	archived, err := env.svc.ArchiveDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{final.ID}, archived)

	got, err := env.svc.GetPeriod(ctx, final.ID)
	require.NoError(t, err)
	assert.True(t, got.Archived)
	assert.False(t, got.Active)

	_, err = env.svc.ActivatePeriod(ctx, final.ID)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	archived, err = env.svc.ArchiveDue(ctx)
	require.NoError(t, err)
	assert.Empty(t, archived)
}

func TestDeletePeriod_RemovesEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.fx.Period()
	keep := env.fx.Period()
	o := env.fx.Occasion(p, 1, 5)
	kept := env.fx.Occasion(keep, 1, 5)
	a := env.fx.Attendee("anna", 10)
	b := env.fx.Booking(a, o, dbtest.InState(models.BookingAccepted))
	keptBooking := env.fx.Booking(a, kept)

	require.NoError(t, env.svc.AddNeed(ctx, o.ID, &models.OccasionNeed{Name: "helpers", Number: models.MustClosedRange(1, 2)}))

	invoice := &models.Invoice{ID: uuid.NewString(), PeriodID: p.ID, Username: "anna", CreatedAt: dbtest.Base}
	_, err := env.db.Bun.NewInsert().Model(invoice).Exec(ctx)
	require.NoError(t, err)
	_, err = env.db.Bun.NewInsert().Model(&models.InvoiceItem{
		ID: uuid.NewString(), InvoiceID: invoice.ID, Kind: models.ItemBooking,
		Group: "Bookings", Text: "Forest walk", Amount: 20, BookingID: b.ID, CreatedAt: dbtest.Base,
	}).Exec(ctx)
	require.NoError(t, err)
	_, err = env.db.Bun.NewInsert().Model(&models.InvoiceReference{
		ID: uuid.NewString(), InvoiceID: invoice.ID, Scheme: models.SchemeGeneric, Reference: "A1B2C3",
	}).Exec(ctx)
	require.NoError(t, err)

	require.NoError(t, env.svc.DeletePeriod(ctx, p.ID))

	_, err = env.svc.GetPeriod(ctx, p.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = env.svc.GetOccasion(ctx, o.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = env.db.GetBooking(ctx, b.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	for _, model := range []interface{}{
		(*models.Invoice)(nil), (*models.InvoiceItem)(nil), (*models.InvoiceReference)(nil),
		(*models.OccasionNeed)(nil), (*models.OccasionDate)(nil),
	} {
		n, err := env.db.Bun.NewSelect().Model(model).Count(ctx)
		require.NoError(t, err)
		if _, isDate := model.(*models.OccasionDate); isDate {
			assert.Equal(t, 1, n, "dates of the other period survive")
			continue
		}
		assert.Zero(t, n)
	}

	remaining, err := env.svc.ListBookings(ctx, db.BookingFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, keptBooking.ID, remaining[0].ID)

	assert.ErrorIs(t, env.svc.DeletePeriod(ctx, p.ID), models.ErrNotFound)
}
