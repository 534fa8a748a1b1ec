package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/rankpulse/rankpulse/internal/api/middleware"
	"github.com/rankpulse/rankpulse/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler    http.HandlerFunc
	SyncHandler      http.HandlerFunc
	KeywordsHandler  http.HandlerFunc
	JobHandler       http.HandlerFunc
	StreamHandler    http.HandlerFunc
	SitesHandler     http.HandlerFunc
	CreateKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
// The stream route sits outside auth because EventSource cannot send an
// Authorization header; job IDs are unguessable capability tokens.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public routes
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	r.Get("/api/v1/jobs/{jobID}/stream", orNotImplemented(deps.StreamHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/sync", orNotImplemented(deps.SyncHandler))
		r.Post("/api/v1/keywords", orNotImplemented(deps.KeywordsHandler))
		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.JobHandler))
		r.Get("/api/v1/sites", orNotImplemented(deps.SitesHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
