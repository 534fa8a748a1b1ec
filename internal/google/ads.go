package google

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rankpulse/rankpulse/internal/config"
	"github.com/rankpulse/rankpulse/pkg/retry"
	"golang.org/x/oauth2"
)

// DefaultAdsEndpoint is the production Google Ads REST API base URL.
const DefaultAdsEndpoint = "https://googleads.googleapis.com"

const adsAPIVersion = "v18"

// ErrNoGeoTarget means the suggest call returned no usable candidate for
// the requested location. Callers skip the location rather than fail the run.
var ErrNoGeoTarget = errors.New("no geo target candidate")

// AdsClient talks to the Google Ads REST API for geo-target resolution and
// keyword-idea generation.
type AdsClient struct {
	api     *apiClient
	baseURL string

	customerID  string
	languageID  string
	countryCode string
}

func NewAdsClient(baseURL string, tokens oauth2.TokenSource, policy retry.Policy, cfg config.GoogleConfig) *AdsClient {
	if baseURL == "" {
		baseURL = DefaultAdsEndpoint
	}
	headers := map[string]string{
		"developer-token": cfg.AdsDeveloperToken,
	}
	if cfg.AdsLoginCustomerID != "" {
		headers["login-customer-id"] = cfg.AdsLoginCustomerID
	}
	return &AdsClient{
		api:         newAPIClient(tokens, policy, cfg.Timeout, headers),
		baseURL:     baseURL,
		customerID:  cfg.AdsCustomerID,
		languageID:  cfg.LanguageID,
		countryCode: cfg.CountryCode,
	}
}

type geoSuggestRequest struct {
	Locale        string   `json:"locale"`
	CountryCode   string   `json:"countryCode"`
	LocationNames geoNames `json:"locationNames"`
}

type geoNames struct {
	Names []string `json:"names"`
}

type geoSuggestResponse struct {
	GeoTargetConstantSuggestions []struct {
		GeoTargetConstant struct {
			ResourceName string `json:"resourceName"`
			Status       string `json:"status"`
		} `json:"geoTargetConstant"`
	} `json:"geoTargetConstantSuggestions"`
}

// SuggestGeoTarget resolves a free-form location name to a geo target
// constant ID. The first ENABLED candidate wins; if none is enabled the
// first candidate is used. Returns ErrNoGeoTarget when nothing matches.
func (c *AdsClient) SuggestGeoTarget(ctx context.Context, locationName string) (int64, error) {
	payload := geoSuggestRequest{
		Locale:        "en",
		CountryCode:   c.countryCode,
		LocationNames: geoNames{Names: []string{locationName}},
	}

	var resp geoSuggestResponse
	endpoint := c.baseURL + "/" + adsAPIVersion + "/geoTargetConstants:suggest"
	if err := c.api.doJSON(ctx, "POST", endpoint, payload, &resp); err != nil {
		return 0, err
	}
	if len(resp.GeoTargetConstantSuggestions) == 0 {
		return 0, ErrNoGeoTarget
	}

	pick := resp.GeoTargetConstantSuggestions[0].GeoTargetConstant
	for _, s := range resp.GeoTargetConstantSuggestions {
		if s.GeoTargetConstant.Status == "ENABLED" {
			pick = s.GeoTargetConstant
			break
		}
	}

	// resourceName looks like "geoTargetConstants/1017323".
	raw := pick.ResourceName
	if i := strings.LastIndexByte(raw, '/'); i >= 0 {
		raw = raw[i+1:]
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrNoGeoTarget
	}
	return id, nil
}

// Idea is one normalized keyword idea.
type Idea struct {
	Text               string
	AvgMonthlySearches int64
	Competition        string
	LowBidMicros       *int64
	HighBidMicros      *int64
}

type keywordIdeasRequest struct {
	Language             string      `json:"language"`
	GeoTargetConstants   []string    `json:"geoTargetConstants"`
	IncludeAdultKeywords bool        `json:"includeAdultKeywords"`
	KeywordSeed          keywordSeed `json:"keywordSeed"`
}

type keywordSeed struct {
	Keywords []string `json:"keywords"`
}

type keywordIdeasResponse struct {
	Results []struct {
		Text               string `json:"text"`
		KeywordIdeaMetrics struct {
			AvgMonthlySearches     string `json:"avgMonthlySearches"`
			Competition            string `json:"competition"`
			LowTopOfPageBidMicros  string `json:"lowTopOfPageBidMicros"`
			HighTopOfPageBidMicros string `json:"highTopOfPageBidMicros"`
		} `json:"keywordIdeaMetrics"`
	} `json:"results"`
	NextPageToken string `json:"nextPageToken"`
}

// GenerateKeywordIdeas returns keyword ideas seeded by the given phrases,
// scoped to one geo target. Seeds beyond the API's limit of ten are not
// truncated here; callers pass at most a handful.
func (c *AdsClient) GenerateKeywordIdeas(ctx context.Context, geoID int64, seeds []string) ([]Idea, error) {
	payload := keywordIdeasRequest{
		Language:             "languageConstants/" + c.languageID,
		GeoTargetConstants:   []string{"geoTargetConstants/" + strconv.FormatInt(geoID, 10)},
		IncludeAdultKeywords: false,
		KeywordSeed:          keywordSeed{Keywords: seeds},
	}

	var resp keywordIdeasResponse
	endpoint := c.baseURL + "/" + adsAPIVersion + "/customers/" + c.customerID + ":generateKeywordIdeas"
	if err := c.api.doJSON(ctx, "POST", endpoint, payload, &resp); err != nil {
		return nil, err
	}

	ideas := make([]Idea, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Text == "" {
			continue
		}
		m := r.KeywordIdeaMetrics
		idea := Idea{
			Text:               r.Text,
			AvgMonthlySearches: parseInt64(m.AvgMonthlySearches),
			Competition:        m.Competition,
		}
		if v := m.LowTopOfPageBidMicros; v != "" {
			n := parseInt64(v)
			idea.LowBidMicros = &n
		}
		if v := m.HighTopOfPageBidMicros; v != "" {
			n := parseInt64(v)
			idea.HighBidMicros = &n
		}
		ideas = append(ideas, idea)
	}
	return ideas, nil
}

// The Ads API serializes int64 fields as JSON strings.
func parseInt64(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
