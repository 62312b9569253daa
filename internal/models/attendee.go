package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Attendee struct {
	bun.BaseModel `bun:"table:attendees"`

	ID        string    `bun:"id,pk" json:"id"`
	Username  string    `bun:"username,notnull" json:"username"`
	Name      string    `bun:"name,notnull" json:"name"`
	BirthDate time.Time `bun:"birth_date,notnull" json:"birth_date"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// AgeAt returns the age in completed years on the given day.
func AgeAt(birthDate, at time.Time) int {
	if at.IsZero() {
		return 0
	}
	by, bm, bd := birthDate.Date()
	ay, am, ad := at.Date()
	age := ay - by
	if am < bm || (am == bm && ad < bd) {
		age--
	}
	return age
}

func (a *Attendee) AgeAt(at time.Time) int {
	return AgeAt(a.BirthDate, at)
}
