package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-activity/internal/models"
)

// Base is the reference instant of every fixture. The default period is in
// its prebooking window at Base.
var Base = time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

// Fixtures inserts rows with sensible defaults. Bookings get increasing
// creation times so their order is deterministic.
type Fixtures struct {
	t   *testing.T
	db  bun.IDB
	seq int
}

func NewFixtures(t *testing.T, db bun.IDB) *Fixtures {
	return &Fixtures{t: t, db: db}
}

func (f *Fixtures) insert(model interface{}) {
	f.t.Helper()
	_, err := f.db.NewInsert().Model(model).Exec(context.Background())
	require.NoError(f.t, err)
}

func (f *Fixtures) next() time.Time {
	f.seq++
	return Base.Add(time.Duration(f.seq) * time.Second)
}

func (f *Fixtures) Period(mods ...func(*models.Period)) *models.Period {
	f.t.Helper()
	p := &models.Period{
		ID:              uuid.NewString(),
		Title:           "Summer 2026",
		PrebookingStart: Base.AddDate(0, 0, -10),
		PrebookingEnd:   Base.AddDate(0, 0, 10),
		BookingStart:    Base.AddDate(0, 0, 11),
		BookingEnd:      Base.AddDate(0, 0, 40),
		ExecutionStart:  Base.AddDate(0, 0, 60),
		ExecutionEnd:    Base.AddDate(0, 0, 90),
		Active:          true,
		CreatedAt:       Base,
	}
	for _, m := range mods {
		m(p)
	}
	f.insert(p)
	return p
}

func (f *Fixtures) Activity() *models.Activity {
	f.t.Helper()
	a := &models.Activity{
		ID:        uuid.NewString(),
		Title:     "Forest walk",
		Username:  "organiser@example.org",
		CreatedAt: Base,
	}
	f.insert(a)
	return a
}

// Date builds an occasion date on the given day of the period's execution
// window, starting at hour (UTC) and lasting the given number of hours.
func Date(p *models.Period, day, hour, hours int) *models.OccasionDate {
	start := time.Date(p.ExecutionStart.Year(), p.ExecutionStart.Month(), p.ExecutionStart.Day(), hour, 0, 0, 0, time.UTC).
		AddDate(0, 0, day)
	return &models.OccasionDate{
		Start:    start,
		End:      start.Add(time.Duration(hours) * time.Hour),
		Timezone: "UTC",
	}
}

// Occasion creates an occasion with the given closed spots range, an age
// range of 0 to 99 and, unless mods set dates, a single two hour date on the
// first execution day.
func (f *Fixtures) Occasion(p *models.Period, minSpots, maxSpots int, mods ...func(*models.Occasion)) *models.Occasion {
	f.t.Helper()
	o := &models.Occasion{
		ID:         uuid.NewString(),
		ActivityID: f.Activity().ID,
		PeriodID:   p.ID,
		Spots:      models.MustClosedRange(minSpots, maxSpots),
		Age:        models.MustClosedRange(0, 99),
		CreatedAt:  f.next(),
	}
	for _, m := range mods {
		m(o)
	}
	if o.Dates == nil {
		o.Dates = []*models.OccasionDate{Date(p, 0, 10, 2)}
	}
	o.RecomputeDurations()
	f.insert(o)
	for _, d := range o.Dates {
		d.ID = uuid.NewString()
		d.OccasionID = o.ID
		f.insert(d)
	}
	return o
}

// Attendee creates an attendee who is exactly age years old during the
// default execution window.
func (f *Fixtures) Attendee(username string, age int) *models.Attendee {
	f.t.Helper()
	a := &models.Attendee{
		ID:        uuid.NewString(),
		Username:  username,
		Name:      "Child of " + username,
		BirthDate: Base.AddDate(-age, 0, 0),
		CreatedAt: Base,
	}
	f.insert(a)
	return a
}

func (f *Fixtures) Booking(a *models.Attendee, o *models.Occasion, mods ...func(*models.Booking)) *models.Booking {
	f.t.Helper()
	b := &models.Booking{
		ID:         uuid.NewString(),
		Username:   a.Username,
		AttendeeID: a.ID,
		OccasionID: o.ID,
		PeriodID:   o.PeriodID,
		State:      models.BookingOpen,
		CreatedAt:  f.next(),
	}
	for _, m := range mods {
		m(b)
	}
	f.insert(b)
	return b
}

func (f *Fixtures) UserTag(username, tag string) {
	f.t.Helper()
	f.insert(&models.UserTag{Username: username, Tag: tag})
}

func Starred(b *models.Booking) { b.Priority = 1 }

func InState(state models.BookingState) func(*models.Booking) {
	return func(b *models.Booking) { b.State = state }
}

func Confirmed(p *models.Period) { p.Confirmed = true }

func Finalized(p *models.Period) {
	p.Confirmed = true
	p.Finalized = true
}
