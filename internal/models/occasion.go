package models

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// DurationKind classifies how long an occasion date lasts. Occasions store
// the bitwise OR of the kinds of all their dates.
type DurationKind int

const (
	DurationHalf DurationKind = 1 << iota
	DurationFull
	DurationMany
)

// overnightCutoff is the local hour before which an event that crossed
// midnight still counts as a single day.
const overnightCutoff = 6

func (d DurationKind) String() string {
	switch d {
	case DurationHalf:
		return "half"
	case DurationFull:
		return "full"
	case DurationMany:
		return "many"
	default:
		return fmt.Sprintf("durations(%d)", int(d))
	}
}

// ClassifyDuration reports whether the span between start and end is a
// half day (up to 6 hours), a full day (up to 24 hours on one local calendar
// day, or an overnight event ending before 06:00) or a multi-day event.
func ClassifyDuration(start, end time.Time, loc *time.Location) DurationKind {
	elapsed := end.Sub(start)
	if elapsed <= 6*time.Hour {
		return DurationHalf
	}
	if elapsed > 24*time.Hour {
		return DurationMany
	}
	if loc == nil {
		loc = time.UTC
	}
	ls, le := start.In(loc), end.In(loc)
	if sameDay(ls, le) {
		return DurationFull
	}
	if le.Hour() < overnightCutoff {
		return DurationFull
	}
	return DurationMany
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

type OccasionDate struct {
	bun.BaseModel `bun:"table:occasion_dates"`

	ID         string    `bun:"id,pk" json:"id"`
	OccasionID string    `bun:"occasion_id,notnull" json:"occasion_id"`
	Start      time.Time `bun:"start_at,notnull" json:"start"`
	End        time.Time `bun:"end_at,notnull" json:"end"`
	Timezone   string    `bun:"timezone,notnull" json:"timezone"`
}

func (d *OccasionDate) Validate() error {
	if d.Start.IsZero() || d.End.IsZero() || d.End.Before(d.Start) {
		return fmt.Errorf("%w: occasion date must start before it ends", ErrInvalidRange)
	}
	if _, err := time.LoadLocation(d.Timezone); err != nil {
		return fmt.Errorf("%w: unknown timezone %q", ErrInvalidRange, d.Timezone)
	}
	return nil
}

func (d *OccasionDate) Location() *time.Location {
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (d *OccasionDate) Duration() DurationKind {
	return ClassifyDuration(d.Start, d.End, d.Location())
}

// Overlaps reports whether both dates intersect once each is widened by the
// given gap on both ends. Touching dates do not overlap.
func (d *OccasionDate) Overlaps(other *OccasionDate, gap time.Duration) bool {
	return d.Start.Add(-gap).Before(other.End) && other.Start.Before(d.End.Add(gap))
}

type OccasionNeed struct {
	bun.BaseModel `bun:"table:occasion_needs"`

	ID         string   `bun:"id,pk" json:"id"`
	OccasionID string   `bun:"occasion_id,notnull" json:"occasion_id"`
	Name       string   `bun:"name,notnull" json:"name"`
	Number     IntRange `bun:"embed:number_" json:"number"`
}

type Occasion struct {
	bun.BaseModel `bun:"table:occasions"`

	ID         string       `bun:"id,pk" json:"id"`
	ActivityID string       `bun:"activity_id,notnull" json:"activity_id"`
	PeriodID   string       `bun:"period_id,notnull" json:"period_id"`
	Spots      IntRange     `bun:"embed:spots_" json:"spots"`
	Age        IntRange     `bun:"embed:age_" json:"age"`
	Cost       float64      `bun:"cost,notnull,default:0" json:"cost"`
	Cancelled  bool         `bun:"cancelled,notnull,default:false" json:"cancelled"`
	Durations  DurationKind `bun:"durations,notnull,default:0" json:"durations"`
	CreatedAt  time.Time    `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`

	Dates    []*OccasionDate `bun:"rel:has-many,join:id=occasion_id" json:"dates,omitempty"`
	Activity *Activity       `bun:"rel:belongs-to,join:activity_id=id" json:"activity,omitempty"`
}

func (o *Occasion) Validate() error {
	if err := o.Spots.Validate(); err != nil {
		return fmt.Errorf("spots: %w", err)
	}
	if err := o.Age.Validate(); err != nil {
		return fmt.Errorf("age: %w", err)
	}
	if o.Cost < 0 {
		return fmt.Errorf("%w: negative cost", ErrInvalidRange)
	}
	for _, d := range o.Dates {
		if err := d.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// RecomputeDurations re-derives the cached duration bitmask from the dates.
// It has to run whenever a date is added, changed or removed.
func (o *Occasion) RecomputeDurations() {
	var kinds DurationKind
	for _, d := range o.Dates {
		kinds |= d.Duration()
	}
	o.Durations = kinds
}

// Start is the earliest date start, used as the reference point for ages.
func (o *Occasion) Start() time.Time {
	var start time.Time
	for _, d := range o.Dates {
		if start.IsZero() || d.Start.Before(start) {
			start = d.Start
		}
	}
	return start
}

// Overlaps reports whether any date of o intersects any date of other.
func (o *Occasion) Overlaps(other *Occasion, gap time.Duration) bool {
	for _, a := range o.Dates {
		for _, b := range other.Dates {
			if a.Overlaps(b, gap) {
				return true
			}
		}
	}
	return false
}

// AcceptsAge reports whether an attendee born on birthDate fits the age
// range when the occasion starts. Occasions without dates accept anyone.
func (o *Occasion) AcceptsAge(birthDate time.Time) bool {
	start := o.Start()
	if start.IsZero() {
		return true
	}
	return o.Age.Contains(AgeAt(birthDate, start))
}

type OccasionState string

const (
	OccasionCancelled  OccasionState = "cancelled"
	OccasionOverfull   OccasionState = "overfull"
	OccasionEmpty      OccasionState = "empty"
	OccasionUnoperable OccasionState = "unoperable"
	OccasionOperable   OccasionState = "operable"
	OccasionFull       OccasionState = "full"
)

var OccasionStates = []OccasionState{
	OccasionCancelled, OccasionOverfull, OccasionEmpty,
	OccasionUnoperable, OccasionOperable, OccasionFull,
}

func ParseOccasionState(s string) (OccasionState, bool) {
	for _, st := range OccasionStates {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// ClassifyOccasion derives the state of an occasion from its accepted
// booking count. The analytics SQL uses the same CASE order.
func ClassifyOccasion(cancelled bool, spots IntRange, accepted int) OccasionState {
	switch {
	case cancelled:
		return OccasionCancelled
	case accepted > spots.Max():
		return OccasionOverfull
	case accepted == 0:
		return OccasionEmpty
	case accepted < spots.Min():
		return OccasionUnoperable
	case accepted == spots.Max():
		return OccasionFull
	default:
		return OccasionOperable
	}
}
