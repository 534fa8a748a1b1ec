package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rankpulse/rankpulse/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error

	ListActiveServices(ctx context.Context, filter ServiceFilter) ([]*models.Service, error)
	ListActiveLocations(ctx context.Context, userID uuid.UUID, slug string) ([]*models.Location, error)
	UpdateServiceKeywords(ctx context.Context, serviceID uuid.UUID, keywords []string) error

	UpsertSearchStats(ctx context.Context, rows []models.SearchStat) (UpsertResult, error)
	UpsertKeywordIdeas(ctx context.Context, rows []models.KeywordIdea) (UpsertResult, error)
}

// ServiceFilter narrows ListActiveServices. Zero value lists every active service.
type ServiceFilter struct {
	Slug string
}

// UpsertResult reports the outcome of one bulk upsert, including whether the
// fallback conflict key had to be used because the preferred one was rejected
// by an older schema.
type UpsertResult struct {
	Upserted     int64
	UsedFallback bool
}
