// Package keywords orchestrates keyword research across a user's services
// and locations: it resolves each city to a geo target, generates ideas
// seeded by the service's existing keywords, and rolls the best ideas up
// into a deduplicated top list per service.
package keywords

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rankpulse/rankpulse/internal/google"
	"github.com/rankpulse/rankpulse/internal/jobs"
	"github.com/rankpulse/rankpulse/internal/store"
	"github.com/rankpulse/rankpulse/pkg/models"
)

const maxSeeds = 3

// IdeasClient is the slice of the Ads client the orchestrator needs.
type IdeasClient interface {
	GenerateKeywordIdeas(ctx context.Context, geoID int64, seeds []string) ([]google.Idea, error)
}

// Store is the slice of the data layer the orchestrator needs.
type Store interface {
	ListActiveServices(ctx context.Context, filter store.ServiceFilter) ([]*models.Service, error)
	ListActiveLocations(ctx context.Context, userID uuid.UUID, slug string) ([]*models.Location, error)
	UpdateServiceKeywords(ctx context.Context, serviceID uuid.UUID, keywords []string) error
	UpsertKeywordIdeas(ctx context.Context, rows []models.KeywordIdea) (store.UpsertResult, error)
}

// Options describes one research run.
type Options struct {
	UserID       uuid.UUID
	ServiceSlug  string // optional, restrict to one service
	LocationSlug string // optional, restrict to one location

	PerLocationLimit int
	OverallLimit     int
	Delay            time.Duration // throttle between location lookups
	Brand            string        // ideas containing this phrase are dropped

	SaveIdeas      bool // persist per-location ideas to keyword_ideas
	UpdateServices bool // merge the top list back into services.keywords
}

// Orchestrator runs keyword research jobs.
type Orchestrator struct {
	store Store
	ideas IdeasClient
	geo   *GeoResolver
}

func New(st Store, ideas IdeasClient, geo *GeoResolver) *Orchestrator {
	return &Orchestrator{store: st, ideas: ideas, geo: geo}
}

// scored is one candidate keyword while a service is being processed.
type scored struct {
	idea  google.Idea
	geoID int64
	locID uuid.UUID
}

// Run processes every matching service against every matching location.
// Per-location failures are logged and skipped so one unresolvable city
// never sinks the run.
func (o *Orchestrator) Run(ctx context.Context, opts Options, logf jobs.LogFunc) error {
	services, err := o.store.ListActiveServices(ctx, store.ServiceFilter{Slug: opts.ServiceSlug})
	if err != nil {
		return fmt.Errorf("listing services: %w", err)
	}
	if len(services) == 0 {
		logf("no active services match, nothing to do")
		return nil
	}

	locations, err := o.store.ListActiveLocations(ctx, opts.UserID, opts.LocationSlug)
	if err != nil {
		return fmt.Errorf("listing locations: %w", err)
	}
	if len(locations) == 0 {
		logf("no active locations match, nothing to do")
		return nil
	}

	logf("keyword run start: %d services x %d locations", len(services), len(locations))

	first := true
	for _, svc := range services {
		if err := o.runService(ctx, opts, svc, locations, &first, logf); err != nil {
			return err
		}
	}

	logf("keyword run done")
	return nil
}

func (o *Orchestrator) runService(ctx context.Context, opts Options, svc *models.Service, locations []*models.Location, first *bool, logf jobs.LogFunc) error {
	seeds := seedsFor(svc)
	logf("service %s: seeds=%s", svc.Slug, strings.Join(seeds, ", "))

	var pool []scored
	for _, loc := range locations {
		if !*first && opts.Delay > 0 {
			if err := sleepCtx(ctx, opts.Delay); err != nil {
				return err
			}
		}
		*first = false
		if err := ctx.Err(); err != nil {
			return err
		}

		kept, err := o.runLocation(ctx, opts, svc, loc, seeds, logf)
		if err != nil {
			return err
		}
		pool = append(pool, kept...)
	}

	top := topIdeas(pool, opts.OverallLimit)
	logf("service %s: selected %d keywords", svc.Slug, len(top))

	if opts.UpdateServices && len(top) > 0 {
		merged := mergeKeywords(svc.Keywords, top)
		if err := o.store.UpdateServiceKeywords(ctx, svc.ID, merged); err != nil {
			logf("WARN service %s: keyword update failed, skipping: %v", svc.Slug, err)
			return nil
		}
		logf("service %s: keywords updated (%d total)", svc.Slug, len(merged))
	}
	return nil
}

func (o *Orchestrator) runLocation(ctx context.Context, opts Options, svc *models.Service, loc *models.Location, seeds []string, logf jobs.LogFunc) ([]scored, error) {
	geoID, err := o.geo.Resolve(ctx, loc)
	if err != nil {
		if errors.Is(err, google.ErrNoGeoTarget) {
			logf("WARN location %s: no geo target for %q, skipping", loc.Slug, loc.City+", "+loc.Province)
			return nil, nil
		}
		logf("WARN location %s: geo lookup failed, skipping: %v", loc.Slug, err)
		return nil, nil
	}

	ideas, err := o.ideas.GenerateKeywordIdeas(ctx, geoID, seeds)
	if err != nil {
		logf("WARN location %s: keyword ideas failed, skipping: %v", loc.Slug, err)
		return nil, nil
	}

	kept := filterIdeas(ideas, opts.Brand)
	sortByVolume(kept)
	if opts.PerLocationLimit > 0 && len(kept) > opts.PerLocationLimit {
		kept = kept[:opts.PerLocationLimit]
	}
	logf("location %s: %d ideas, kept %d", loc.Slug, len(ideas), len(kept))

	if opts.SaveIdeas && len(kept) > 0 {
		rows := make([]models.KeywordIdea, 0, len(kept))
		for _, idea := range kept {
			rows = append(rows, toModel(opts.UserID, svc.ID, loc.ID, geoID, idea))
		}
		res, err := o.store.UpsertKeywordIdeas(ctx, rows)
		if err != nil {
			logf("WARN location %s: storing ideas failed, skipping: %v", loc.Slug, err)
			return nil, nil
		}
		if res.UsedFallback {
			logf("WARN location %s: wrote with raw conflict key, run migrations", loc.Slug)
		}
	}

	out := make([]scored, 0, len(kept))
	for _, idea := range kept {
		out = append(out, scored{idea: idea, geoID: geoID, locID: loc.ID})
	}
	return out, nil
}

// seedsFor picks the seed phrases for a service: its first few stored
// keywords, or just the service name when none exist yet.
func seedsFor(svc *models.Service) []string {
	seeds := make([]string, 0, maxSeeds)
	for _, k := range svc.Keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		seeds = append(seeds, k)
		if len(seeds) == maxSeeds {
			return seeds
		}
	}
	if len(seeds) == 0 {
		seeds = append(seeds, svc.Name)
	}
	return seeds
}

// filterIdeas drops empty and brand-bearing ideas. Zero-volume ideas are
// kept; the volume sort pushes them to the back. The brand match also
// checks the whitespace-stripped spelling so "acme co" catches "acmeco".
func filterIdeas(ideas []google.Idea, brand string) []google.Idea {
	brand = strings.ToLower(strings.TrimSpace(brand))
	brandTight := strings.ReplaceAll(brand, " ", "")
	kept := make([]google.Idea, 0, len(ideas))
	for _, idea := range ideas {
		text := strings.TrimSpace(idea.Text)
		if text == "" {
			continue
		}
		if brand != "" {
			lower := strings.ToLower(text)
			if strings.Contains(lower, brand) ||
				strings.Contains(strings.ReplaceAll(lower, " ", ""), brandTight) {
				continue
			}
		}
		idea.Text = text
		kept = append(kept, idea)
	}
	return kept
}

func sortByVolume(ideas []google.Idea) {
	sort.SliceStable(ideas, func(i, j int) bool {
		if ideas[i].AvgMonthlySearches != ideas[j].AvgMonthlySearches {
			return ideas[i].AvgMonthlySearches > ideas[j].AvgMonthlySearches
		}
		return ideas[i].Text < ideas[j].Text
	})
}

// topIdeas deduplicates the pooled candidates case-insensitively, keeping
// the highest-volume occurrence of each phrase, and caps the result.
func topIdeas(pool []scored, limit int) []string {
	best := make(map[string]google.Idea)
	for _, s := range pool {
		key := strings.ToLower(s.idea.Text)
		if cur, ok := best[key]; !ok || s.idea.AvgMonthlySearches > cur.AvgMonthlySearches {
			best[key] = s.idea
		}
	}

	ideas := make([]google.Idea, 0, len(best))
	for _, idea := range best {
		ideas = append(ideas, idea)
	}
	sortByVolume(ideas)
	if limit > 0 && len(ideas) > limit {
		ideas = ideas[:limit]
	}

	texts := make([]string, 0, len(ideas))
	for _, idea := range ideas {
		texts = append(texts, idea.Text)
	}
	return texts
}

// mergeKeywords appends new phrases to the existing list, preserving the
// existing order and skipping case-insensitive duplicates.
func mergeKeywords(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing)+len(incoming))
	merged := make([]string, 0, len(existing)+len(incoming))
	for _, list := range [][]string{existing, incoming} {
		for _, k := range list {
			k = strings.TrimSpace(k)
			if k == "" || seen[strings.ToLower(k)] {
				continue
			}
			seen[strings.ToLower(k)] = true
			merged = append(merged, k)
		}
	}
	return merged
}

func toModel(userID, serviceID, locationID uuid.UUID, geoID int64, idea google.Idea) models.KeywordIdea {
	row := models.KeywordIdea{
		UserID:             userID,
		ServiceID:          serviceID,
		LocationID:         locationID,
		GeoID:              geoID,
		Text:               idea.Text,
		AvgMonthlySearches: idea.AvgMonthlySearches,
	}
	if idea.Competition != "" {
		c := idea.Competition
		row.Competition = &c
	}
	row.LowBid = microsToUnits(idea.LowBidMicros)
	row.HighBid = microsToUnits(idea.HighBidMicros)
	return row
}

func microsToUnits(micros *int64) *int64 {
	if micros == nil {
		return nil
	}
	units := *micros / 1_000_000
	return &units
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
