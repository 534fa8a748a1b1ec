package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rankpulse/rankpulse/internal/jobs"
	"github.com/rankpulse/rankpulse/internal/keywords"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockKeywordsRunner struct {
	gotOpts chan keywords.Options
}

func newMockKeywordsRunner() *mockKeywordsRunner {
	return &mockKeywordsRunner{gotOpts: make(chan keywords.Options, 1)}
}

func (m *mockKeywordsRunner) Run(_ context.Context, opts keywords.Options, _ jobs.LogFunc) error {
	m.gotOpts <- opts
	return nil
}

func keywordsDefaults() KeywordsDefaults {
	return KeywordsDefaults{
		Configured: true,
		Options: keywords.Options{
			PerLocationLimit: 40,
			OverallLimit:     50,
			Brand:            "acme",
			SaveIdeas:        true,
			UpdateServices:   true,
		},
	}
}

func TestKeywordsHandler_NotConfigured(t *testing.T) {
	defaults := keywordsDefaults()
	defaults.Configured = false

	h := NewKeywordsHandler(newMockKeywordsRunner(), jobs.NewMemoryRegistry(), nil, defaults)

	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/keywords", nil), uuid.New())
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "ADS_NOT_CONFIGURED", decodeError(t, w)["code"])
}

func TestKeywordsHandler_AcceptedWithDefaults(t *testing.T) {
	runner := newMockKeywordsRunner()
	registry := jobs.NewMemoryRegistry()
	userID := uuid.New()

	h := NewKeywordsHandler(runner, registry, nil, keywordsDefaults())

	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/keywords", nil), userID)
	w := httptest.NewRecorder()
	h(w, req)

	jobID := jobIDFromAccepted(t, w)
	_, ok := registry.Get(jobID)
	assert.True(t, ok)

	select {
	case opts := <-runner.gotOpts:
		assert.Equal(t, userID, opts.UserID)
		assert.Equal(t, 40, opts.PerLocationLimit)
		assert.Equal(t, 50, opts.OverallLimit)
		assert.True(t, opts.SaveIdeas)
		assert.True(t, opts.UpdateServices)
	case <-time.After(2 * time.Second):
		t.Fatal("runner was never called")
	}
}

func TestKeywordsHandler_Overrides(t *testing.T) {
	runner := newMockKeywordsRunner()
	h := NewKeywordsHandler(runner, jobs.NewMemoryRegistry(), nil, keywordsDefaults())

	body := bytes.NewBufferString(`{"service_slug":"seo","location_slug":"kitchener","save_ideas":false,"update_services":false}`)
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/keywords", body), uuid.New())
	w := httptest.NewRecorder()
	h(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	select {
	case opts := <-runner.gotOpts:
		assert.Equal(t, "seo", opts.ServiceSlug)
		assert.Equal(t, "kitchener", opts.LocationSlug)
		assert.False(t, opts.SaveIdeas)
		assert.False(t, opts.UpdateServices)
	case <-time.After(2 * time.Second):
		t.Fatal("runner was never called")
	}
}

func TestKeywordsHandler_NoUser(t *testing.T) {
	h := NewKeywordsHandler(newMockKeywordsRunner(), jobs.NewMemoryRegistry(), nil, keywordsDefaults())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/keywords", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestKeywordsHandler_WorkerProcess(t *testing.T) {
	defaults := keywordsDefaults()
	// echo is not a real worker but it exercises the process path: the
	// flags come back on stdout and the zero exit finishes the job.
	defaults.WorkerBin = "/bin/echo"
	registry := jobs.NewMemoryRegistry()

	h := NewKeywordsHandler(newMockKeywordsRunner(), registry, nil, defaults)

	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/keywords", nil), uuid.New())
	w := httptest.NewRecorder()
	h(w, req)

	jobID := jobIDFromAccepted(t, w)
	job, ok := registry.Get(jobID)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		return job.Snapshot().Status == jobs.StatusFinished
	}, 2*time.Second, 10*time.Millisecond)

	lines, _ := job.LogsSince(0)
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[0], "[OUT] ")
	assert.Contains(t, lines[0], "-top 50")
}

func TestWorkerArgs(t *testing.T) {
	userID := uuid.New()
	args := workerArgs(keywords.Options{
		UserID:           userID,
		ServiceSlug:      "seo",
		PerLocationLimit: 40,
		OverallLimit:     50,
		Delay:            800 * time.Millisecond,
		Brand:            "acme",
		SaveIdeas:        true,
	})

	assert.Equal(t, []string{
		"-user-id", userID.String(),
		"-top", "50",
		"-per-loc", "40",
		"-delay-ms", "800",
		"-service-slug", "seo",
		"-brand", "acme",
		"-save-ideas",
	}, args)
}
