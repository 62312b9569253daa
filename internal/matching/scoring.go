package matching

import (
	"fmt"
	"math"
	"strings"

	"ms-activity/internal/models"
)

// Criterion adds to the score of a booking on its occasion. Scores only
// depend on stored fields so reruns rank identically.
type Criterion struct {
	Name  string
	Score func(b *models.Booking, o *models.Occasion, a *models.Attendee) float64
}

// PreferMotivated ranks starred bookings first.
var PreferMotivated = Criterion{
	Name: "prefer-motivated",
	Score: func(b *models.Booking, _ *models.Occasion, _ *models.Attendee) float64 {
		return float64(b.Score())
	},
}

// PreferInAgeBracket favours attendees close to the middle of the
// occasion's age range. It contributes less than one point, so it only
// separates bookings of equal priority.
var PreferInAgeBracket = Criterion{
	Name: "prefer-in-age-bracket",
	Score: func(_ *models.Booking, o *models.Occasion, a *models.Attendee) float64 {
		start := o.Start()
		if start.IsZero() {
			return 0
		}
		half := float64(o.Age.Max()-o.Age.Min()) / 2
		if half <= 0 {
			return 0.5
		}
		mid := float64(o.Age.Min()) + half
		dist := math.Abs(float64(a.AgeAt(start)) - mid)
		return 0.5 * math.Max(0, 1-dist/half)
	},
}

// PreferGroups gives bookings made together a small edge.
var PreferGroups = Criterion{
	Name: "prefer-groups",
	Score: func(b *models.Booking, _ *models.Occasion, _ *models.Attendee) float64 {
		if b.GroupCode == "" {
			return 0
		}
		return 0.25
	},
}

var DefaultScoring = []Criterion{PreferMotivated}

var criteria = map[string]Criterion{
	PreferMotivated.Name:    PreferMotivated,
	PreferInAgeBracket.Name: PreferInAgeBracket,
	PreferGroups.Name:       PreferGroups,
}

// ParseScoring turns a comma separated list of criterion names into a
// scoring. An empty string gives DefaultScoring.
func ParseScoring(s string) ([]Criterion, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultScoring, nil
	}
	var scoring []Criterion
	for _, name := range strings.Split(s, ",") {
		c, ok := criteria[strings.TrimSpace(name)]
		if !ok {
			return nil, fmt.Errorf("unknown scoring criterion %q", name)
		}
		scoring = append(scoring, c)
	}
	return scoring, nil
}

func (o Options) score(b *models.Booking, occ *models.Occasion, a *models.Attendee) float64 {
	var total float64
	for _, c := range o.Scoring {
		total += c.Score(b, occ, a)
	}
	return total
}
