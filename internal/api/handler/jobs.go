package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rankpulse/rankpulse/internal/api/response"
	"github.com/rankpulse/rankpulse/internal/cache"
	"github.com/rankpulse/rankpulse/internal/jobs"
)

// NewJobHandler returns the handler for GET /api/v1/jobs/{jobID}. It serves
// the registry snapshot, falling back to the redis status mirror for jobs
// started before the last server restart.
func NewJobHandler(registry jobs.Registry, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid job ID", nil)
			return
		}

		if job, ok := registry.Get(id); ok {
			response.JSON(w, job.Snapshot())
			return
		}

		if c != nil {
			if status, ok, err := c.GetJobStatus(r.Context(), id); err == nil && ok {
				response.JSON(w, map[string]any{"id": id, "status": status})
				return
			}
		}

		response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Unknown job", nil)
	}
}
