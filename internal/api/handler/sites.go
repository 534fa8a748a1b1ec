package handler

import (
	"context"
	"net/http"

	"github.com/rankpulse/rankpulse/internal/api/response"
	"github.com/rankpulse/rankpulse/internal/google"
)

// SiteLister is the slice of the Search Console client the handler needs.
type SiteLister interface {
	ListSites(ctx context.Context) ([]google.Site, error)
}

// NewSitesHandler returns the handler for GET /api/v1/sites. It proxies the
// list of Search Console properties the configured credential can read,
// which is how the dashboard validates a site_url before triggering a sync.
func NewSitesHandler(client SiteLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sites, err := client.ListSites(r.Context())
		if err != nil {
			response.Error(w, http.StatusBadGateway, "UPSTREAM_ERROR",
				"Failed to list Search Console properties", nil)
			return
		}
		response.JSON(w, map[string]any{"sites": sites})
	}
}
