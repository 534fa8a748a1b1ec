package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rankpulse/rankpulse/pkg/models"
)

const defaultChunkSize = 500

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool      *pgxpool.Pool
	chunkSize int
}

// Option configures a PostgresStore.
type Option func(*PostgresStore)

// WithChunkSize bounds the number of rows per bulk upsert statement.
func WithChunkSize(n int) Option {
	return func(s *PostgresStore) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...Option) *PostgresStore {
	s := &PostgresStore{pool: pool, chunkSize: defaultChunkSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// --- Services & Locations ---

func (s *PostgresStore) ListActiveServices(ctx context.Context, filter ServiceFilter) ([]*models.Service, error) {
	q := `SELECT id, user_id, name, slug, keywords, active, created_at, updated_at
	      FROM services WHERE active`
	args := []any{}
	if filter.Slug != "" {
		q += ` AND slug = $1`
		args = append(args, filter.Slug)
	}
	q += ` ORDER BY slug`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list active services: %w", err)
	}
	defer rows.Close()

	var services []*models.Service
	for rows.Next() {
		var svc models.Service
		if err := rows.Scan(&svc.ID, &svc.UserID, &svc.Name, &svc.Slug, &svc.Keywords,
			&svc.Active, &svc.CreatedAt, &svc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, &svc)
	}
	return services, rows.Err()
}

func (s *PostgresStore) ListActiveLocations(ctx context.Context, userID uuid.UUID, slug string) ([]*models.Location, error) {
	q := `SELECT id, user_id, city, province, slug, active, created_at, updated_at
	      FROM locations WHERE active AND user_id = $1`
	args := []any{userID}
	if slug != "" {
		q += ` AND slug = $2`
		args = append(args, slug)
	}
	q += ` ORDER BY slug`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list active locations: %w", err)
	}
	defer rows.Close()

	var locations []*models.Location
	for rows.Next() {
		var loc models.Location
		if err := rows.Scan(&loc.ID, &loc.UserID, &loc.City, &loc.Province, &loc.Slug,
			&loc.Active, &loc.CreatedAt, &loc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		locations = append(locations, &loc)
	}
	return locations, rows.Err()
}

func (s *PostgresStore) UpdateServiceKeywords(ctx context.Context, serviceID uuid.UUID, keywords []string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE services SET keywords = $2, updated_at = NOW() WHERE id = $1`,
		serviceID, keywords)
	if err != nil {
		return fmt.Errorf("update service keywords: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Search stats ---

// Conflict targets for search_stats. The preferred one relies on the
// query_norm generated column; databases that have not run that migration
// reject it, and the upsert retries against the raw-text key.
const (
	searchStatsConflictNorm = `(user_id, site_url, date, page, query_norm, country)`
	searchStatsConflictRaw  = `(user_id, site_url, date, page, query, country)`
)

// UpsertSearchStats bulk-upserts rows in bounded chunks. Re-ingesting a day
// updates the metrics of existing keys instead of duplicating rows.
func (s *PostgresStore) UpsertSearchStats(ctx context.Context, rows []models.SearchStat) (UpsertResult, error) {
	var res UpsertResult
	if len(rows) == 0 {
		return res, nil
	}

	for start := 0; start < len(rows); start += s.chunkSize {
		end := min(start+s.chunkSize, len(rows))
		chunk := rows[start:end]

		conflict := searchStatsConflictNorm
		if res.UsedFallback {
			conflict = searchStatsConflictRaw
		}

		n, err := s.upsertSearchStatsChunk(ctx, chunk, conflict)
		if err != nil && !res.UsedFallback && isMissingConflictKey(err) {
			res.UsedFallback = true
			n, err = s.upsertSearchStatsChunk(ctx, chunk, searchStatsConflictRaw)
		}
		if err != nil {
			return res, fmt.Errorf("upsert search stats: %w", err)
		}
		res.Upserted += n
	}
	return res, nil
}

func (s *PostgresStore) upsertSearchStatsChunk(ctx context.Context, chunk []models.SearchStat, conflict string) (int64, error) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO search_stats
		(user_id, site_url, date, page, query, country, clicks, impressions, ctr, avg_position)
		VALUES `)

	args := make([]any, 0, len(chunk)*10)
	for i, r := range chunk {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(placeholders(i*10, 10))
		args = append(args, r.UserID, r.SiteURL, r.Date, r.Page, r.Query, r.Country,
			r.Clicks, r.Impressions, r.CTR, r.Position)
	}

	sb.WriteString(` ON CONFLICT ` + conflict + ` DO UPDATE SET
		clicks = EXCLUDED.clicks,
		impressions = EXCLUDED.impressions,
		ctr = EXCLUDED.ctr,
		avg_position = EXCLUDED.avg_position,
		updated_at = NOW()`)

	tag, err := s.pool.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// --- Keyword ideas ---

const (
	keywordIdeasConflictNorm = `(service_id, location_id, text_norm)`
	keywordIdeasConflictRaw  = `(service_id, location_id, text)`
)

// UpsertKeywordIdeas bulk-upserts keyword ideas with the same chunking and
// conflict-key fallback behavior as UpsertSearchStats.
func (s *PostgresStore) UpsertKeywordIdeas(ctx context.Context, rows []models.KeywordIdea) (UpsertResult, error) {
	var res UpsertResult
	if len(rows) == 0 {
		return res, nil
	}

	for start := 0; start < len(rows); start += s.chunkSize {
		end := min(start+s.chunkSize, len(rows))
		chunk := rows[start:end]

		conflict := keywordIdeasConflictNorm
		if res.UsedFallback {
			conflict = keywordIdeasConflictRaw
		}

		n, err := s.upsertKeywordIdeasChunk(ctx, chunk, conflict)
		if err != nil && !res.UsedFallback && isMissingConflictKey(err) {
			res.UsedFallback = true
			n, err = s.upsertKeywordIdeasChunk(ctx, chunk, keywordIdeasConflictRaw)
		}
		if err != nil {
			return res, fmt.Errorf("upsert keyword ideas: %w", err)
		}
		res.Upserted += n
	}
	return res, nil
}

func (s *PostgresStore) upsertKeywordIdeasChunk(ctx context.Context, chunk []models.KeywordIdea, conflict string) (int64, error) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO keyword_ideas
		(user_id, service_id, location_id, geo_id, text, avg_monthly_searches, competition, low_bid, high_bid)
		VALUES `)

	args := make([]any, 0, len(chunk)*9)
	for i, r := range chunk {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(placeholders(i*9, 9))
		args = append(args, r.UserID, r.ServiceID, r.LocationID, r.GeoID, r.Text,
			r.AvgMonthlySearches, r.Competition, r.LowBid, r.HighBid)
	}

	sb.WriteString(` ON CONFLICT ` + conflict + ` DO UPDATE SET
		geo_id = EXCLUDED.geo_id,
		avg_monthly_searches = EXCLUDED.avg_monthly_searches,
		competition = EXCLUDED.competition,
		low_bid = EXCLUDED.low_bid,
		high_bid = EXCLUDED.high_bid,
		updated_at = NOW()`)

	tag, err := s.pool.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// --- helpers ---

// placeholders renders "($n+1, $n+2, ...)" for one VALUES tuple.
func placeholders(offset, n int) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "$%d", offset+i+1)
	}
	sb.WriteByte(')')
	return sb.String()
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isMissingConflictKey reports whether the error means the preferred conflict
// key cannot be used: the derived column is absent (42703) or no unique index
// matches the conflict target (42P10).
func isMissingConflictKey(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "42703" || pgErr.Code == "42P10"
}
