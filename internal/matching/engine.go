// Package matching assigns attendees to occasions. The engine works on an
// in-memory snapshot and never touches the database; Service loads the
// snapshot and writes the outcome back.
package matching

import (
	"sort"
	"time"

	"ms-activity/internal/models"
)

// Options tune a matching run.
type Options struct {
	// MinutesBetween is the minimum gap between two accepted occasions of
	// one attendee.
	MinutesBetween int
	// MaxBookingsPerAttendee caps accepted bookings per attendee; 0 means
	// no cap.
	MaxBookingsPerAttendee int
	// EnforceMinimum closes occasions that cannot reach their minimum
	// number of spots and reruns until none are left below it.
	EnforceMinimum bool
	// Scoring ranks competing bookings on an occasion. Empty means
	// DefaultScoring.
	Scoring []Criterion
}

func DefaultOptions() Options {
	return Options{EnforceMinimum: true, Scoring: DefaultScoring}
}

// OptionsFor derives the options from a period's settings.
func OptionsFor(p *models.Period) Options {
	opts := DefaultOptions()
	opts.MinutesBetween = p.MinutesBetween
	opts.MaxBookingsPerAttendee = p.MaxBookingsPerAttendee
	return opts
}

// Input is the snapshot a run works on. Cancelled bookings are ignored.
type Input struct {
	Occasions []*models.Occasion
	Attendees map[string]*models.Attendee
	Bookings  []*models.Booking
}

// Result maps every non-cancelled booking id to accepted or denied.
type Result struct {
	States map[string]models.BookingState
	// Closed lists occasions shut down for missing their minimum, in the
	// order they were closed.
	Closed []string
	Rounds int
}

func (r *Result) Accepted() []string { return r.idsIn(models.BookingAccepted) }
func (r *Result) Denied() []string   { return r.idsIn(models.BookingDenied) }

func (r *Result) idsIn(state models.BookingState) []string {
	var ids []string
	for id, s := range r.States {
		if s == state {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Match computes the assignment. It is deterministic: the same input gives
// the same result regardless of slice or map order.
func Match(in Input, opts Options) *Result {
	if len(opts.Scoring) == 0 {
		opts.Scoring = DefaultScoring
	}

	e := newEngine(in, opts)
	closed := make(map[string]bool)
	result := &Result{States: make(map[string]models.BookingState)}

	for {
		result.Rounds++
		held := e.run(closed)
		if !opts.EnforceMinimum {
			e.collect(held, result)
			return result
		}
		victim := e.belowMinimum(held)
		if victim == "" {
			e.collect(held, result)
			return result
		}
		closed[victim] = true
		result.Closed = append(result.Closed, victim)
	}
}

type candidate struct {
	booking  *models.Booking
	occasion *models.Occasion
	score    float64
	eligible bool
	// groupKey orders coupled bookings next to each other on an occasion.
	groupKey *models.Booking
}

type engine struct {
	opts      Options
	gap       time.Duration
	occasions map[string]*models.Occasion
	// wishes per attendee, most preferred first
	wishes    map[string][]*candidate
	attendees []string
	overlaps  map[[2]string]bool
}

func newEngine(in Input, opts Options) *engine {
	e := &engine{
		opts:      opts,
		gap:       time.Duration(opts.MinutesBetween) * time.Minute,
		occasions: make(map[string]*models.Occasion, len(in.Occasions)),
		wishes:    make(map[string][]*candidate),
		overlaps:  make(map[[2]string]bool),
	}
	for _, o := range in.Occasions {
		e.occasions[o.ID] = o
	}

	byOccasion := make(map[string][]*candidate)
	for _, b := range in.Bookings {
		if b.State == models.BookingCancelled {
			continue
		}
		o := e.occasions[b.OccasionID]
		a := in.Attendees[b.AttendeeID]
		c := &candidate{booking: b, occasion: o, groupKey: b}
		if o != nil && a != nil {
			c.score = opts.score(b, o, a)
			c.eligible = o.AcceptsAge(a.BirthDate)
		}
		e.wishes[b.AttendeeID] = append(e.wishes[b.AttendeeID], c)
		byOccasion[b.OccasionID] = append(byOccasion[b.OccasionID], c)
	}

	couple(byOccasion)

	for id, ws := range e.wishes {
		sort.Slice(ws, func(i, j int) bool {
			if ws[i].booking.Priority != ws[j].booking.Priority {
				return ws[i].booking.Priority > ws[j].booking.Priority
			}
			return ws[i].booking.Before(ws[j].booking)
		})
		e.attendees = append(e.attendees, id)
	}
	sort.Strings(e.attendees)
	return e
}

// couple lets the bookings of a group share the best score of the group on
// each occasion and rank right after each other.
func couple(byOccasion map[string][]*candidate) {
	for _, cs := range byOccasion {
		best := make(map[string]*candidate)
		for _, c := range cs {
			code := c.booking.GroupCode
			if code == "" {
				continue
			}
			lead, ok := best[code]
			if !ok || c.score > lead.score || (c.score == lead.score && c.booking.Before(lead.booking)) {
				best[code] = c
			}
		}
		for _, c := range cs {
			if lead, ok := best[c.booking.GroupCode]; ok && c.booking.GroupCode != "" {
				c.score = lead.score
				c.groupKey = lead.booking
			}
		}
	}
}

// ranks reports whether a should be preferred over b on their occasion.
func ranks(a, b *candidate) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.groupKey != b.groupKey {
		return a.groupKey.Before(b.groupKey)
	}
	return a.booking.Before(b.booking)
}

func (e *engine) open(c *candidate, closed map[string]bool) bool {
	o := c.occasion
	return c.eligible && !o.Cancelled && !closed[o.ID] && o.Spots.Max() > 0
}

func (e *engine) overlap(a, b *models.Occasion) bool {
	if a.ID == b.ID {
		return true
	}
	key := [2]string{a.ID, b.ID}
	if a.ID > b.ID {
		key = [2]string{b.ID, a.ID}
	}
	v, ok := e.overlaps[key]
	if !ok {
		v = a.Overlaps(b, e.gap)
		e.overlaps[key] = v
	}
	return v
}

// run is one round of attendee-proposing deferred acceptance. It returns
// the bookings held by each occasion.
func (e *engine) run(closed map[string]bool) map[string][]*candidate {
	held := make(map[string][]*candidate)
	holding := make(map[string][]*candidate)
	tried := make(map[*candidate]bool)

	queue := append([]string(nil), e.attendees...)
	queued := make(map[string]bool, len(queue))
	for _, id := range queue {
		queued[id] = true
	}

	for len(queue) > 0 {
		attendee := queue[0]
		queue = queue[1:]
		queued[attendee] = false

		for _, c := range e.wishes[attendee] {
			if tried[c] {
				continue
			}
			if limit := e.opts.MaxBookingsPerAttendee; limit > 0 && len(holding[attendee]) >= limit {
				break
			}
			if !e.open(c, closed) {
				tried[c] = true
				continue
			}
			if e.clashes(c, holding[attendee]) {
				// Not tried: it becomes available again if the clashing
				// booking is bumped later.
				continue
			}

			tried[c] = true
			accepted, bumped := propose(held, c)
			if !accepted {
				continue
			}
			holding[attendee] = append(holding[attendee], c)
			if bumped != nil {
				other := bumped.booking.AttendeeID
				holding[other] = remove(holding[other], bumped)
				if !queued[other] {
					queued[other] = true
					queue = append(queue, other)
				}
			}
		}
	}
	return held
}

func (e *engine) clashes(c *candidate, holding []*candidate) bool {
	for _, h := range holding {
		if e.overlap(c.occasion, h.occasion) {
			return true
		}
	}
	return false
}

// propose offers c to its occasion. The occasion keeps its best ranked
// bookings up to the maximum number of spots.
func propose(held map[string][]*candidate, c *candidate) (accepted bool, bumped *candidate) {
	id := c.occasion.ID
	list := held[id]
	capacity := c.occasion.Spots.Max()

	pos := sort.Search(len(list), func(i int) bool { return ranks(c, list[i]) })
	if len(list) >= capacity && pos >= len(list) {
		return false, nil
	}

	list = append(list, nil)
	copy(list[pos+1:], list[pos:])
	list[pos] = c

	if len(list) > capacity {
		bumped = list[len(list)-1]
		list = list[:len(list)-1]
	}
	held[id] = list
	return true, bumped
}

func remove(list []*candidate, c *candidate) []*candidate {
	for i, x := range list {
		if x == c {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// belowMinimum picks the occasion to close next: among occasions with some
// but not enough accepted bookings, the one with the fewest, then by id.
func (e *engine) belowMinimum(held map[string][]*candidate) string {
	var victim string
	fewest := 0
	for id, list := range held {
		n := len(list)
		if n == 0 || n >= e.occasions[id].Spots.Min() {
			continue
		}
		if victim == "" || n < fewest || (n == fewest && id < victim) {
			victim, fewest = id, n
		}
	}
	return victim
}

func (e *engine) collect(held map[string][]*candidate, result *Result) {
	accepted := make(map[string]bool)
	for _, list := range held {
		for _, c := range list {
			accepted[c.booking.ID] = true
		}
	}
	for _, ws := range e.wishes {
		for _, c := range ws {
			if accepted[c.booking.ID] {
				result.States[c.booking.ID] = models.BookingAccepted
			} else {
				result.States[c.booking.ID] = models.BookingDenied
			}
		}
	}
}
