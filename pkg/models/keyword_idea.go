package models

import "github.com/google/uuid"

// KeywordIdea is one keyword suggestion for a (service, location) pair,
// with planner metrics. Bids are in whole currency units, converted from
// the micros the Ads API reports.
type KeywordIdea struct {
	UserID             uuid.UUID `db:"user_id"              json:"user_id"`
	ServiceID          uuid.UUID `db:"service_id"           json:"service_id"`
	LocationID         uuid.UUID `db:"location_id"          json:"location_id"`
	GeoID              int64     `db:"geo_id"               json:"geo_id"`
	Text               string    `db:"text"                 json:"text"`
	AvgMonthlySearches int64     `db:"avg_monthly_searches" json:"avg_monthly_searches"`
	Competition        *string   `db:"competition"          json:"competition,omitempty"`
	LowBid             *int64    `db:"low_bid"              json:"low_bid,omitempty"`
	HighBid            *int64    `db:"high_bid"             json:"high_bid,omitempty"`
}
