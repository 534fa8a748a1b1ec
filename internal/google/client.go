// Package google contains thin HTTP clients for the Google APIs the sync
// jobs depend on: Search Console for performance data and the Ads REST API
// for geo-target and keyword-idea lookups. All calls go through the retry
// layer; 429 and 5xx responses are retried, everything else is fatal.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rankpulse/rankpulse/pkg/retry"
	"golang.org/x/oauth2"
)

// StatusError is a non-2xx API response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

func retriableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// apiClient is the shared transport: it mints an access token per attempt
// from the long-lived refresh token and marks retriable failures for the
// retry layer.
type apiClient struct {
	httpClient *http.Client
	tokens     oauth2.TokenSource
	policy     retry.Policy
	headers    map[string]string
}

func newAPIClient(tokens oauth2.TokenSource, policy retry.Policy, timeout time.Duration, headers map[string]string) *apiClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &apiClient{
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		policy:     policy,
		headers:    headers,
	}
}

// doJSON issues one call with retry. payload may be nil for GET requests.
// A token-exchange failure is a fatal precondition, never retried.
func (c *apiClient) doJSON(ctx context.Context, method, url string, payload, out any) error {
	return c.doJSONNotify(ctx, method, url, payload, out, nil)
}

// doJSONNotify is doJSON with a per-call retry notification hook, so the
// job that triggered the call can see its retry warnings. A nil notify
// keeps the client's own hook.
func (c *apiClient) doJSONNotify(ctx context.Context, method, url string, payload, out any, notify func(attempt, retries int, delay time.Duration, err error)) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	policy := c.policy
	if notify != nil {
		policy.Notify = notify
	}

	return retry.Do(ctx, policy, func(ctx context.Context) error {
		tok, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("exchanging credentials: %w", err)
		}

		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.Transient(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			serr := &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(b))}
			if retriableStatus(resp.StatusCode) {
				return retry.Transient(serr)
			}
			return serr
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	})
}
