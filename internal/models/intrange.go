package models

import "fmt"

// IntRange is a half-open integer interval [Lower, Upper). Closed ranges
// such as "2 to 4 spots" are stored as [2, 5).
type IntRange struct {
	Lower int `bun:"lower" json:"lower"`
	Upper int `bun:"upper" json:"upper"`
}

// NewClosedRange builds the half-open representation of [min, max].
func NewClosedRange(min, max int) (IntRange, error) {
	if min < 0 || min > max {
		return IntRange{}, fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, min, max)
	}
	return IntRange{Lower: min, Upper: max + 1}, nil
}

// MustClosedRange is NewClosedRange for literals known to be valid.
func MustClosedRange(min, max int) IntRange {
	r, err := NewClosedRange(min, max)
	if err != nil {
		panic(err)
	}
	return r
}

func (r IntRange) Min() int { return r.Lower }

func (r IntRange) Max() int { return r.Upper - 1 }

func (r IntRange) Contains(v int) bool {
	return v >= r.Lower && v < r.Upper
}

func (r IntRange) Validate() error {
	if r.Lower < 0 || r.Upper <= r.Lower {
		return fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, r.Lower, r.Upper)
	}
	return nil
}

func (r IntRange) String() string {
	return fmt.Sprintf("%d-%d", r.Min(), r.Max())
}
