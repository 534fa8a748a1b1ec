package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	mw "github.com/rankpulse/rankpulse/internal/api/middleware"
	"github.com/rankpulse/rankpulse/internal/api/response"
	"github.com/rankpulse/rankpulse/internal/cache"
	"github.com/rankpulse/rankpulse/internal/ingest"
	"github.com/rankpulse/rankpulse/internal/jobs"
)

// Search Console publishes data with a lag; the window ends two days back
// so a sync never asks for days that do not exist yet.
const searchConsoleLag = 2

const maxSyncDays = 90

// SyncRunner is the slice of the ingestor the handler needs.
type SyncRunner interface {
	Run(ctx context.Context, opts ingest.Options, logf jobs.LogFunc) error
}

// SyncDefaults carries the configured defaults a request may override.
type SyncDefaults struct {
	SiteURL  string
	Days     int
	Country  string
	RowLimit int
	DayDelay time.Duration
}

// NewSyncHandler returns the handler for POST /api/v1/sync. It registers a
// job, kicks off the ingestion detached from the request, and answers 202
// with the job ID immediately.
func NewSyncHandler(runner SyncRunner, registry jobs.Registry, c cache.Cache, defaults SyncDefaults) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req struct {
			SiteURL string `json:"site_url"`
			Days    int    `json:"days"`
			Start   string `json:"start"`
			End     string `json:"end"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		siteURL := req.SiteURL
		if siteURL == "" {
			siteURL = defaults.SiteURL
		}

		days := req.Days
		if days <= 0 {
			days = defaults.Days
		}
		if days > maxSyncDays {
			days = maxSyncDays
		}

		start, end, err := resolveWindow(req.Start, req.End, days)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}

		opts := ingest.Options{
			UserID:   userID,
			SiteURL:  siteURL,
			Start:    start,
			End:      end,
			Country:  defaults.Country,
			RowLimit: defaults.RowLimit,
			DayDelay: defaults.DayDelay,
		}

		job := registry.Create()
		mirrorRunning(job, c)

		// The job outlives the request on purpose.
		jobs.StartFunc(context.Background(), newStatusSink(job, c), func(ctx context.Context, logf jobs.LogFunc) error {
			return runner.Run(ctx, opts, logf)
		})

		response.Accepted(w, map[string]any{"job_id": job.ID})
	}
}

// resolveWindow turns an optional explicit range into concrete dates. With
// no explicit range the window is the last `days` days ending at the lag
// boundary.
func resolveWindow(startStr, endStr string, days int) (time.Time, time.Time, error) {
	if (startStr == "") != (endStr == "") {
		return time.Time{}, time.Time{}, errors.New("start and end must be given together")
	}

	if startStr == "" {
		end := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -searchConsoleLag)
		return end.AddDate(0, 0, -(days - 1)), end, nil
	}

	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("start must be a YYYY-MM-DD date")
	}
	end, err := time.Parse("2006-01-02", endStr)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("end must be a YYYY-MM-DD date")
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.New("end must not be before start")
	}
	if int(end.Sub(start).Hours()/24)+1 > maxSyncDays {
		return time.Time{}, time.Time{}, errors.New("window too large")
	}
	return start, end, nil
}
