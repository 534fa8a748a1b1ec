// Package ingest pulls Search Console performance data day by day and
// upserts it into Postgres. A run walks an inclusive date window, fetching
// and writing one day at a time so a crashed or re-triggered sync can
// repeat any day without duplicating rows.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rankpulse/rankpulse/internal/google"
	"github.com/rankpulse/rankpulse/internal/jobs"
	"github.com/rankpulse/rankpulse/internal/store"
	"github.com/rankpulse/rankpulse/pkg/models"
)

// StatsClient is the slice of the Search Console client the ingestor needs.
type StatsClient interface {
	QueryDay(ctx context.Context, req google.QueryRequest) ([]google.Row, error)
}

// StatsStore is the slice of the store the ingestor needs.
type StatsStore interface {
	UpsertSearchStats(ctx context.Context, rows []models.SearchStat) (store.UpsertResult, error)
}

// Options describes one sync run.
type Options struct {
	UserID   uuid.UUID
	SiteURL  string
	Start    time.Time // inclusive
	End      time.Time // inclusive
	Country  string    // lowercase ISO-3166-1 alpha-3, e.g. "can"; empty means all
	RowLimit int
	DayDelay time.Duration
}

// Ingestor runs day-windowed sync jobs.
type Ingestor struct {
	client StatsClient
	store  StatsStore
}

func New(client StatsClient, st StatsStore) *Ingestor {
	return &Ingestor{client: client, store: st}
}

// Run walks the window one day at a time. A day that still fails after the
// client's retries is logged and skipped; authorization failures abort the
// whole run since every remaining day would fail the same way.
func (in *Ingestor) Run(ctx context.Context, opts Options, logf jobs.LogFunc) error {
	start := opts.Start.UTC().Truncate(24 * time.Hour)
	end := opts.End.UTC().Truncate(24 * time.Hour)
	if end.Before(start) {
		return fmt.Errorf("invalid window: end %s before start %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	logf("sync start site=%s window=%s..%s",
		opts.SiteURL, start.Format("2006-01-02"), end.Format("2006-01-02"))

	var days, skipped int
	var total int64
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if day.After(start) && opts.DayDelay > 0 {
			if err := sleepCtx(ctx, opts.DayDelay); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		date := day.Format("2006-01-02")
		rows, err := in.client.QueryDay(ctx, google.QueryRequest{
			SiteURL:  opts.SiteURL,
			Date:     day,
			RowLimit: opts.RowLimit,
			Country:  opts.Country,
			// retry warnings belong to this job's log, not the server log
			Notify: func(attempt, retries int, delay time.Duration, err error) {
				logf("WARN retry %d/%d in %s: %v", attempt, retries, delay.Round(time.Millisecond), err)
			},
		})
		if err != nil {
			if fatal(err) {
				return fmt.Errorf("day %s: %w", date, err)
			}
			logf("WARN day %s failed, skipping: %v", date, err)
			skipped++
			continue
		}

		stats := in.normalize(opts, day, rows)
		if len(stats) > 0 {
			res, err := in.store.UpsertSearchStats(ctx, stats)
			if err != nil {
				return fmt.Errorf("day %s: storing rows: %w", date, err)
			}
			if res.UsedFallback {
				logf("WARN day %s: wrote with raw conflict key, run migrations", date)
			}
			total += int64(len(stats))
			// empty days stay silent; the summary line still counts them
			logf("day %s: %d rows", date, len(stats))
		}
		days++
	}

	logf("sync done: %d days, %d rows, %d skipped", days, total, skipped)
	if skipped > 0 && days == 0 {
		return fmt.Errorf("all %d days failed", skipped)
	}
	return nil
}

// normalize converts API rows to storage rows. The country is re-checked
// here even when the query carried a server-side filter.
func (in *Ingestor) normalize(opts Options, day time.Time, rows []google.Row) []models.SearchStat {
	stats := make([]models.SearchStat, 0, len(rows))
	for _, r := range rows {
		if len(r.Keys) < 4 {
			continue
		}
		country := strings.ToLower(r.Keys[3])
		if opts.Country != "" && country != strings.ToLower(opts.Country) {
			continue
		}
		stats = append(stats, models.SearchStat{
			UserID:      opts.UserID,
			SiteURL:     opts.SiteURL,
			Date:        day,
			Page:        r.Keys[1],
			Query:       r.Keys[2],
			Country:     country,
			Clicks:      int64(math.Round(r.Clicks)),
			Impressions: int64(math.Round(r.Impressions)),
			CTR:         r.CTR,
			Position:    r.Position,
		})
	}
	return stats
}

// fatal reports whether the error dooms the whole run. Bad credentials and
// unknown properties fail identically on every day of the window.
func fatal(err error) bool {
	var serr *google.StatusError
	if errors.As(err, &serr) {
		return serr.Code == http.StatusUnauthorized || serr.Code == http.StatusForbidden ||
			serr.Code == http.StatusNotFound
	}
	return false
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
