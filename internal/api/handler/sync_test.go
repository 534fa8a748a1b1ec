package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rankpulse/rankpulse/internal/ingest"
	"github.com/rankpulse/rankpulse/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSyncRunner struct {
	gotOpts chan ingest.Options
	fn      func(ctx context.Context, logf jobs.LogFunc) error
}

func newMockSyncRunner() *mockSyncRunner {
	return &mockSyncRunner{gotOpts: make(chan ingest.Options, 1)}
}

func (m *mockSyncRunner) Run(ctx context.Context, opts ingest.Options, logf jobs.LogFunc) error {
	m.gotOpts <- opts
	if m.fn != nil {
		return m.fn(ctx, logf)
	}
	return nil
}

func syncDefaults() SyncDefaults {
	return SyncDefaults{
		SiteURL:  "sc-domain:example.com",
		Days:     28,
		Country:  "can",
		RowLimit: 1000,
	}
}

func receiveOpts(t *testing.T, ch chan ingest.Options) ingest.Options {
	t.Helper()
	select {
	case opts := <-ch:
		return opts
	case <-time.After(2 * time.Second):
		t.Fatal("runner was never called")
		return ingest.Options{}
	}
}

func TestSyncHandler_AcceptedWithDefaults(t *testing.T) {
	runner := newMockSyncRunner()
	registry := jobs.NewMemoryRegistry()
	userID := uuid.New()

	h := NewSyncHandler(runner, registry, nil, syncDefaults())

	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil), userID)
	w := httptest.NewRecorder()
	h(w, req)

	jobID := jobIDFromAccepted(t, w)
	_, ok := registry.Get(jobID)
	assert.True(t, ok)

	opts := receiveOpts(t, runner.gotOpts)
	assert.Equal(t, userID, opts.UserID)
	assert.Equal(t, "sc-domain:example.com", opts.SiteURL)
	assert.Equal(t, "can", opts.Country)
	assert.Equal(t, 1000, opts.RowLimit)

	days := int(opts.End.Sub(opts.Start).Hours()/24) + 1
	assert.Equal(t, 28, days)
}

func TestSyncHandler_Overrides(t *testing.T) {
	runner := newMockSyncRunner()
	h := NewSyncHandler(runner, jobs.NewMemoryRegistry(), nil, syncDefaults())

	body := bytes.NewBufferString(`{"site_url":"https://other.com/","start":"2026-08-01","end":"2026-08-03"}`)
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/sync", body), uuid.New())
	w := httptest.NewRecorder()
	h(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	opts := receiveOpts(t, runner.gotOpts)
	assert.Equal(t, "https://other.com/", opts.SiteURL)
	assert.Equal(t, "2026-08-01", opts.Start.Format("2006-01-02"))
	assert.Equal(t, "2026-08-03", opts.End.Format("2006-01-02"))
}

func TestSyncHandler_StartWithoutEnd(t *testing.T) {
	h := NewSyncHandler(newMockSyncRunner(), jobs.NewMemoryRegistry(), nil, syncDefaults())

	body := bytes.NewBufferString(`{"start":"2026-08-01"}`)
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/sync", body), uuid.New())
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeError(t, w)["code"])
}

func TestSyncHandler_EndBeforeStart(t *testing.T) {
	h := NewSyncHandler(newMockSyncRunner(), jobs.NewMemoryRegistry(), nil, syncDefaults())

	body := bytes.NewBufferString(`{"start":"2026-08-03","end":"2026-08-01"}`)
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/sync", body), uuid.New())
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSyncHandler_InvalidJSON(t *testing.T) {
	h := NewSyncHandler(newMockSyncRunner(), jobs.NewMemoryRegistry(), nil, syncDefaults())

	body := bytes.NewBufferString(`{not json`)
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/sync", body), uuid.New())
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSyncHandler_NoUser(t *testing.T) {
	h := NewSyncHandler(newMockSyncRunner(), jobs.NewMemoryRegistry(), nil, syncDefaults())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSyncHandler_JobFinishesAndMirrors(t *testing.T) {
	runner := newMockSyncRunner()
	runner.fn = func(_ context.Context, logf jobs.LogFunc) error {
		logf("day 2026-08-01: 3 rows")
		return nil
	}
	registry := jobs.NewMemoryRegistry()
	c := newMockCache()

	h := NewSyncHandler(runner, registry, c, syncDefaults())

	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil), uuid.New())
	w := httptest.NewRecorder()
	h(w, req)

	jobID := jobIDFromAccepted(t, w)
	job, ok := registry.Get(jobID)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		return job.Snapshot().Status == jobs.StatusFinished
	}, 2*time.Second, 10*time.Millisecond)

	lines, _ := job.LogsSince(0)
	assert.Contains(t, lines, "day 2026-08-01: 3 rows")

	status, ok := c.status(jobID)
	require.True(t, ok)
	assert.Equal(t, jobs.StatusFinished, status)
}

func TestSyncHandler_RunnerErrorFailsJob(t *testing.T) {
	runner := newMockSyncRunner()
	runner.fn = func(_ context.Context, _ jobs.LogFunc) error {
		return assert.AnError
	}
	registry := jobs.NewMemoryRegistry()

	h := NewSyncHandler(runner, registry, nil, syncDefaults())

	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil), uuid.New())
	w := httptest.NewRecorder()
	h(w, req)

	jobID := jobIDFromAccepted(t, w)
	job, _ := registry.Get(jobID)

	require.Eventually(t, func() bool {
		return job.Snapshot().Status == jobs.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)
}
