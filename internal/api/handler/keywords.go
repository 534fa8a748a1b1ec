package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	mw "github.com/rankpulse/rankpulse/internal/api/middleware"
	"github.com/rankpulse/rankpulse/internal/api/response"
	"github.com/rankpulse/rankpulse/internal/cache"
	"github.com/rankpulse/rankpulse/internal/jobs"
	"github.com/rankpulse/rankpulse/internal/keywords"
)

// KeywordsRunner is the slice of the orchestrator the handler needs.
type KeywordsRunner interface {
	Run(ctx context.Context, opts keywords.Options, logf jobs.LogFunc) error
}

// KeywordsDefaults carries the configured defaults a request may override.
type KeywordsDefaults struct {
	// Configured is false when the Ads credentials are absent; the
	// endpoint then refuses instead of starting jobs doomed to fail.
	Configured bool
	// WorkerBin, when set, runs each job as this binary in its own
	// process instead of in-process.
	WorkerBin string

	Options keywords.Options
}

// NewKeywordsHandler returns the handler for POST /api/v1/keywords. Like
// sync it answers 202 immediately; the work runs detached, either
// in-process or as an isolated worker process.
func NewKeywordsHandler(runner KeywordsRunner, registry jobs.Registry, c cache.Cache, defaults KeywordsDefaults) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		if !defaults.Configured {
			response.Error(w, http.StatusServiceUnavailable, "ADS_NOT_CONFIGURED",
				"Google Ads credentials are not configured", nil)
			return
		}

		var req struct {
			ServiceSlug    string `json:"service_slug"`
			LocationSlug   string `json:"location_slug"`
			SaveIdeas      *bool  `json:"save_ideas"`
			UpdateServices *bool  `json:"update_services"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		opts := defaults.Options
		opts.UserID = userID
		opts.ServiceSlug = req.ServiceSlug
		opts.LocationSlug = req.LocationSlug
		if req.SaveIdeas != nil {
			opts.SaveIdeas = *req.SaveIdeas
		}
		if req.UpdateServices != nil {
			opts.UpdateServices = *req.UpdateServices
		}

		job := registry.Create()
		mirrorRunning(job, c)
		sink := newStatusSink(job, c)

		if defaults.WorkerBin != "" {
			jobs.StartCommand(context.Background(), sink, defaults.WorkerBin, workerArgs(opts)...)
		} else {
			jobs.StartFunc(context.Background(), sink, func(ctx context.Context, logf jobs.LogFunc) error {
				return runner.Run(ctx, opts, logf)
			})
		}

		response.Accepted(w, map[string]any{"job_id": job.ID})
	}
}

// workerArgs serializes run options into keywordsync flags.
func workerArgs(opts keywords.Options) []string {
	args := []string{
		"-user-id", opts.UserID.String(),
		"-top", strconv.Itoa(opts.OverallLimit),
		"-per-loc", strconv.Itoa(opts.PerLocationLimit),
		"-delay-ms", strconv.FormatInt(opts.Delay.Milliseconds(), 10),
	}
	if opts.ServiceSlug != "" {
		args = append(args, "-service-slug", opts.ServiceSlug)
	}
	if opts.LocationSlug != "" {
		args = append(args, "-only-loc-slug", opts.LocationSlug)
	}
	if opts.Brand != "" {
		args = append(args, "-brand", opts.Brand)
	}
	if opts.SaveIdeas {
		args = append(args, "-save-ideas")
	}
	if opts.UpdateServices {
		args = append(args, "-update-services")
	}
	return args
}
