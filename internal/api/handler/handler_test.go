package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/rankpulse/rankpulse/internal/api/middleware"
	"github.com/rankpulse/rankpulse/internal/store"
	"github.com/rankpulse/rankpulse/pkg/models"
	"github.com/stretchr/testify/require"
)

// --- shared mocks ---

type mockStore struct {
	mu         sync.Mutex
	createdKey *models.APIKey
	createErr  error
}

func (m *mockStore) Ping(_ context.Context) error { return nil }
func (m *mockStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return nil, nil
}
func (m *mockStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (m *mockStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.createdKey = key
	return nil
}
func (m *mockStore) ListActiveServices(_ context.Context, _ store.ServiceFilter) ([]*models.Service, error) {
	return nil, nil
}
func (m *mockStore) ListActiveLocations(_ context.Context, _ uuid.UUID, _ string) ([]*models.Location, error) {
	return nil, nil
}
func (m *mockStore) UpdateServiceKeywords(_ context.Context, _ uuid.UUID, _ []string) error {
	return nil
}
func (m *mockStore) UpsertSearchStats(_ context.Context, _ []models.SearchStat) (store.UpsertResult, error) {
	return store.UpsertResult{}, nil
}
func (m *mockStore) UpsertKeywordIdeas(_ context.Context, _ []models.KeywordIdea) (store.UpsertResult, error) {
	return store.UpsertResult{}, nil
}

type mockCache struct {
	mu       sync.Mutex
	statuses map[uuid.UUID]string
}

func newMockCache() *mockCache { return &mockCache{statuses: make(map[uuid.UUID]string)} }

func (m *mockCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (m *mockCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (m *mockCache) Delete(_ context.Context, _ string) error                         { return nil }
func (m *mockCache) Ping(_ context.Context) error                                     { return nil }
func (m *mockCache) SetJobStatus(_ context.Context, jobID uuid.UUID, status string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[jobID] = status
	return nil
}
func (m *mockCache) GetJobStatus(_ context.Context, jobID uuid.UUID) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[jobID]
	return s, ok, nil
}
func (m *mockCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

func (m *mockCache) status(jobID uuid.UUID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[jobID]
	return s, ok
}

// --- request helpers ---

func withUser(r *http.Request, id uuid.UUID) *http.Request {
	return r.WithContext(mw.SetUserID(r.Context(), id))
}

func withJobID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("jobID", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "missing data envelope: %s", w.Body.String())
	return data
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error envelope: %s", w.Body.String())
	return errBody
}

func jobIDFromAccepted(t *testing.T, w *httptest.ResponseRecorder) uuid.UUID {
	t.Helper()
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	id, err := uuid.Parse(decodeData(t, w)["job_id"].(string))
	require.NoError(t, err)
	return id
}
