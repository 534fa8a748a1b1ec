package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rankpulse/rankpulse/internal/api/response"
	"github.com/rankpulse/rankpulse/internal/jobs"
)

// streamFlushInterval paces the tail loop. New lines are batched per tick
// rather than flushed one by one.
const streamFlushInterval = 500 * time.Millisecond

// NewStreamHandler returns the handler for GET /api/v1/jobs/{jobID}/stream.
// It speaks server-sent events: an init event with the job snapshot, the
// buffered log replayed from the start, then a live tail until the job
// reaches a terminal status, closed by a done event. Subscribers are
// independent; each connection keeps its own cursor.
func NewStreamHandler(registry jobs.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid job ID", nil)
			return
		}

		job, ok := registry.Get(id)
		if !ok {
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Unknown job", nil)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			response.Error(w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED",
				"Streaming is not supported by this connection", nil)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache, no-transform")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		snap, _ := json.Marshal(job.Snapshot())
		fmt.Fprintf(w, "event: init\ndata: %s\n\n", snap)

		cursor := 0
		// emit drains everything past the cursor and reports whether the
		// stream is finished. The terminal check happens after the drain so
		// a subscriber never loses the tail of a finished job.
		emit := func() bool {
			lines, next := job.LogsSince(cursor)
			cursor = next
			for _, line := range lines {
				// Each line is JSON-encoded so interior newlines cannot split
				// one log line across SSE events.
				enc, _ := json.Marshal(line)
				fmt.Fprintf(w, "data: %s\n\n", enc)
			}

			s := job.Snapshot()
			if s.Status != jobs.StatusRunning && cursor >= s.LogCount {
				final, _ := json.Marshal(map[string]any{
					"status":      s.Status,
					"finished_at": s.FinishedAt,
				})
				fmt.Fprintf(w, "event: done\ndata: %s\n\n", final)
				flusher.Flush()
				return true
			}
			flusher.Flush()
			return false
		}

		if emit() {
			return
		}

		ticker := time.NewTicker(streamFlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				if emit() {
					return
				}
			}
		}
	}
}
