package models

import (
	"time"

	"github.com/google/uuid"
)

// Service is one offered service (e.g. "window-installation") whose keyword
// list is enriched by the keyword orchestrator.
type Service struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	UserID    uuid.UUID `db:"user_id"    json:"user_id"`
	Name      string    `db:"name"       json:"name"`
	Slug      string    `db:"slug"       json:"slug"`
	Keywords  []string  `db:"keywords"   json:"keywords"`
	Active    bool      `db:"active"     json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
