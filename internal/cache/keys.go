package cache

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

// GeoTargetKey caches resolved geo-target constant ids across orchestration
// runs. The location key is lowercased so "Kitchener, ON" and "kitchener, on"
// share one entry.
func GeoTargetKey(countryCode, locationKey string) string {
	return fmt.Sprintf("geo:%s:%s", countryCode, strings.ToLower(locationKey))
}
