package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Activity struct {
	bun.BaseModel `bun:"table:activities"`

	ID        string    `bun:"id,pk" json:"id"`
	Title     string    `bun:"title,notnull" json:"title"`
	Username  string    `bun:"username,notnull" json:"username"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// UserTag labels a user for targeted billing adjustments.
type UserTag struct {
	bun.BaseModel `bun:"table:user_tags"`

	Username string `bun:"username,pk" json:"username"`
	Tag      string `bun:"tag,pk" json:"tag"`
}
