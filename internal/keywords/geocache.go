package keywords

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rankpulse/rankpulse/internal/cache"
	"github.com/rankpulse/rankpulse/pkg/models"
)

// Geo target constants change rarely; a week keeps redis lookups warm
// across daily runs without holding stale IDs forever.
const geoTargetTTL = 7 * 24 * time.Hour

// GeoClient is the slice of the Ads client the resolver needs.
type GeoClient interface {
	SuggestGeoTarget(ctx context.Context, locationName string) (int64, error)
}

// GeoResolver maps locations to geo target IDs through two cache layers:
// a per-run map so one run never asks twice for the same city, and redis
// so repeated runs skip the API entirely.
type GeoResolver struct {
	ads         GeoClient
	cache       cache.Cache
	countryCode string

	mu  sync.Mutex
	run map[string]int64
}

func NewGeoResolver(ads GeoClient, c cache.Cache, countryCode string) *GeoResolver {
	return &GeoResolver{
		ads:         ads,
		cache:       c,
		countryCode: countryCode,
		run:         make(map[string]int64),
	}
}

// Resolve returns the geo target ID for a location. Errors from the redis
// layer degrade to an API lookup, never fail the resolution.
func (r *GeoResolver) Resolve(ctx context.Context, loc *models.Location) (int64, error) {
	name := loc.City + ", " + loc.Province

	r.mu.Lock()
	if id, ok := r.run[name]; ok {
		r.mu.Unlock()
		return id, nil
	}
	r.mu.Unlock()

	key := cache.GeoTargetKey(r.countryCode, name)
	if r.cache != nil {
		if raw, ok, err := r.cache.Get(ctx, key); err == nil && ok {
			if id, perr := strconv.ParseInt(string(raw), 10, 64); perr == nil && id > 0 {
				r.remember(name, id)
				return id, nil
			}
		}
	}

	id, err := r.ads.SuggestGeoTarget(ctx, name)
	if err != nil {
		return 0, err
	}

	r.remember(name, id)
	if r.cache != nil {
		// best effort, a miss next run just repeats the lookup
		_ = r.cache.Set(ctx, key, []byte(strconv.FormatInt(id, 10)), geoTargetTTL)
	}
	return id, nil
}

func (r *GeoResolver) remember(name string, id int64) {
	r.mu.Lock()
	r.run[name] = id
	r.mu.Unlock()
}
