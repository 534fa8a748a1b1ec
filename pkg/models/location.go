package models

import (
	"time"

	"github.com/google/uuid"
)

// Location is one city a user's services are marketed in. City and province
// together form the lookup key for geo-target resolution.
type Location struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	UserID    uuid.UUID `db:"user_id"    json:"user_id"`
	City      string    `db:"city"       json:"city"`
	Province  string    `db:"province"   json:"province"`
	Slug      string    `db:"slug"       json:"slug"`
	Active    bool      `db:"active"     json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
