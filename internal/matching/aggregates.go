package matching

import "ms-activity/internal/models"

// AttendeeHappiness is the weighted share of an attendee's wishes that were
// accepted, each booking weighing 1 + priority. ok is false when the
// attendee has no non-cancelled bookings.
func AttendeeHappiness(bookings []*models.Booking) (happiness float64, ok bool) {
	var got, wished int
	for _, b := range bookings {
		if b.State == models.BookingCancelled {
			continue
		}
		w := 1 + b.Priority
		wished += w
		if b.State == models.BookingAccepted {
			got += w
		}
	}
	if wished == 0 {
		return 0, false
	}
	return float64(got) / float64(wished), true
}

// Happiness is the mean attendee happiness over attendees with at least
// one non-cancelled booking, 0 when there are none.
func Happiness(bookings []*models.Booking) float64 {
	byAttendee := make(map[string][]*models.Booking)
	for _, b := range bookings {
		byAttendee[b.AttendeeID] = append(byAttendee[b.AttendeeID], b)
	}

	var sum float64
	var n int
	for _, bs := range byAttendee {
		if h, ok := AttendeeHappiness(bs); ok {
			sum += h
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// AcceptedCounts counts accepted bookings per occasion.
func AcceptedCounts(bookings []*models.Booking) map[string]int {
	counts := make(map[string]int)
	for _, b := range bookings {
		if b.State == models.BookingAccepted {
			counts[b.OccasionID]++
		}
	}
	return counts
}

// OccasionStates classifies every occasion by its accepted bookings.
func OccasionStates(occasions []*models.Occasion, bookings []*models.Booking) map[string]models.OccasionState {
	counts := AcceptedCounts(bookings)
	states := make(map[string]models.OccasionState, len(occasions))
	for _, o := range occasions {
		states[o.ID] = models.ClassifyOccasion(o.Cancelled, o.Spots, counts[o.ID])
	}
	return states
}

// Operability is the share of non-cancelled occasions that are operable or
// full, 0 when there are none. Occasions without accepted bookings are empty
// and count against it, even when their minimum is 0.
func Operability(occasions []*models.Occasion, bookings []*models.Booking) float64 {
	var total, ok int
	for _, state := range OccasionStates(occasions, bookings) {
		switch state {
		case models.OccasionCancelled:
			continue
		case models.OccasionOperable, models.OccasionFull:
			ok++
		}
		total++
	}
	if total == 0 {
		return 0
	}
	return float64(ok) / float64(total)
}
