package google

import (
	"context"
	"net/url"
	"time"

	"github.com/rankpulse/rankpulse/pkg/retry"
	"golang.org/x/oauth2"
)

// DefaultSearchConsoleEndpoint is the production Search Console API base URL.
const DefaultSearchConsoleEndpoint = "https://searchconsole.googleapis.com"

// SearchConsoleClient queries the Search Console search analytics API.
type SearchConsoleClient struct {
	api     *apiClient
	baseURL string
}

func NewSearchConsoleClient(baseURL string, tokens oauth2.TokenSource, policy retry.Policy, timeout time.Duration) *SearchConsoleClient {
	if baseURL == "" {
		baseURL = DefaultSearchConsoleEndpoint
	}
	return &SearchConsoleClient{
		api:     newAPIClient(tokens, policy, timeout, nil),
		baseURL: baseURL,
	}
}

// QueryRequest describes a single-day search analytics query.
type QueryRequest struct {
	SiteURL  string
	Date     time.Time
	RowLimit int
	// Country, when set, adds a server-side equality filter. Rows are
	// still re-checked client side because the API applies the filter
	// only on exact three-letter matches.
	Country string
	// Notify, when set, replaces the client's retry notification hook
	// for this call so retry warnings reach the requesting job's log.
	Notify func(attempt, retries int, delay time.Duration, err error)
}

// Row is one aggregated result keyed by (date, page, query, country).
type Row struct {
	Keys        []string `json:"keys"`
	Clicks      float64  `json:"clicks"`
	Impressions float64  `json:"impressions"`
	CTR         float64  `json:"ctr"`
	Position    float64  `json:"position"`
}

type searchAnalyticsRequest struct {
	StartDate             string        `json:"startDate"`
	EndDate               string        `json:"endDate"`
	Dimensions            []string      `json:"dimensions"`
	RowLimit              int           `json:"rowLimit"`
	DimensionFilterGroups []filterGroup `json:"dimensionFilterGroups,omitempty"`
}

type filterGroup struct {
	Filters []dimensionFilter `json:"filters"`
}

type dimensionFilter struct {
	Dimension  string `json:"dimension"`
	Operator   string `json:"operator"`
	Expression string `json:"expression"`
}

type searchAnalyticsResponse struct {
	Rows []Row `json:"rows"`
}

// QueryDay fetches all rows for one calendar day. A day with no data
// returns an empty slice, not an error.
func (c *SearchConsoleClient) QueryDay(ctx context.Context, req QueryRequest) ([]Row, error) {
	day := req.Date.Format("2006-01-02")
	payload := searchAnalyticsRequest{
		StartDate:  day,
		EndDate:    day,
		Dimensions: []string{"date", "page", "query", "country"},
		RowLimit:   req.RowLimit,
	}
	if req.Country != "" {
		payload.DimensionFilterGroups = []filterGroup{{
			Filters: []dimensionFilter{{
				Dimension:  "country",
				Operator:   "equals",
				Expression: req.Country,
			}},
		}}
	}

	endpoint := c.baseURL + "/webmasters/v3/sites/" + url.PathEscape(req.SiteURL) + "/searchAnalytics/query"

	var resp searchAnalyticsResponse
	if err := c.api.doJSONNotify(ctx, "POST", endpoint, payload, &resp, req.Notify); err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

// Site is one Search Console property the authorized account can read.
type Site struct {
	SiteURL         string `json:"siteUrl"`
	PermissionLevel string `json:"permissionLevel"`
}

type sitesResponse struct {
	SiteEntry []Site `json:"siteEntry"`
}

// ListSites returns the properties visible to the credential. Used by the
// sites endpoint and by startup verification of the configured property.
func (c *SearchConsoleClient) ListSites(ctx context.Context) ([]Site, error) {
	var resp sitesResponse
	if err := c.api.doJSON(ctx, "GET", c.baseURL+"/webmasters/v3/sites", nil, &resp); err != nil {
		return nil, err
	}
	return resp.SiteEntry, nil
}
