package models

import (
	"time"

	"github.com/google/uuid"
)

// SearchStat is one day of Search Console performance data for a single
// (page, query, country) combination. The composite key
// (user_id, site_url, date, page, query_norm, country) is unique in the sink;
// re-ingesting the same day overwrites the metrics instead of duplicating rows.
type SearchStat struct {
	UserID      uuid.UUID `db:"user_id"     json:"user_id"`
	SiteURL     string    `db:"site_url"    json:"site_url"`
	Date        time.Time `db:"date"        json:"date"`
	Page        string    `db:"page"        json:"page"`
	Query       string    `db:"query"       json:"query"`
	Country     string    `db:"country"     json:"country"`
	Clicks      int64     `db:"clicks"      json:"clicks"`
	Impressions int64     `db:"impressions" json:"impressions"`
	CTR         float64   `db:"ctr"         json:"ctr"`
	Position    float64   `db:"position"    json:"position"`
}
