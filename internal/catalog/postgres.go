package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/querybridge/querybridge/internal/ttlcache"
)

// CollectorRowStore abstracts the collector DB queries for testability.
type CollectorRowStore interface {
	LookupCollector(ctx context.Context, nameOrID string) (*collectorRow, error)
	ListCollectors(ctx context.Context, filter CollectorFilter) ([]*collectorRow, error)
	UpsertCollector(ctx context.Context, row *collectorRow) error
	DeleteCollector(ctx context.Context, id string) error
	BumpExecutionStats(ctx context.Context, id string, ts time.Time) error
}

type collectorRow struct {
	ID             string
	Name           string
	FilePath       string
	InputSchema    sql.NullString // JSONB as string
	OutputSchema   sql.NullString
	TimeoutSeconds int
	Enabled        bool
	Version        string
	Dependencies   string // JSONB array
	Environment    string // JSONB object
	CreatedAt      time.Time
	LastExecutedAt sql.NullTime
	ExecutionCount int64
}

// sqlCollectorStore is the real implementation using *sql.DB.
type sqlCollectorStore struct {
	db *sql.DB
}

const collectorColumns = `id, name, file_path, input_schema, output_schema,
	       timeout_seconds, enabled, version, dependencies, environment,
	       created_at, last_executed_at, execution_count`

func (s *sqlCollectorStore) LookupCollector(ctx context.Context, nameOrID string) (*collectorRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+collectorColumns+`
		FROM collectors
		WHERE id = $1 OR name = $1
	`, nameOrID)
	return scanCollectorRow(row)
}

func (s *sqlCollectorStore) ListCollectors(ctx context.Context, filter CollectorFilter) ([]*collectorRow, error) {
	query := `SELECT ` + collectorColumns + ` FROM collectors`
	var args []any
	if filter.EnabledOnly {
		query += ` WHERE enabled = true`
	}
	query += ` ORDER BY created_at, name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*collectorRow
	for rows.Next() {
		r, err := scanCollectorRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlCollectorStore) UpsertCollector(ctx context.Context, row *collectorRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collectors (`+collectorColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			file_path = EXCLUDED.file_path,
			input_schema = EXCLUDED.input_schema,
			output_schema = EXCLUDED.output_schema,
			timeout_seconds = EXCLUDED.timeout_seconds,
			enabled = EXCLUDED.enabled,
			version = EXCLUDED.version,
			dependencies = EXCLUDED.dependencies,
			environment = EXCLUDED.environment
	`, row.ID, row.Name, row.FilePath, row.InputSchema, row.OutputSchema,
		row.TimeoutSeconds, row.Enabled, row.Version, row.Dependencies,
		row.Environment, row.CreatedAt, row.LastExecutedAt, row.ExecutionCount)
	return err
}

func (s *sqlCollectorStore) DeleteCollector(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM collectors WHERE id = $1`, id)
	return err
}

func (s *sqlCollectorStore) BumpExecutionStats(ctx context.Context, id string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE collectors
		SET execution_count = execution_count + 1, last_executed_at = $2
		WHERE id = $1
	`, id, ts)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCollectorRow(row rowScanner) (*collectorRow, error) {
	var r collectorRow
	if err := row.Scan(
		&r.ID, &r.Name, &r.FilePath, &r.InputSchema, &r.OutputSchema,
		&r.TimeoutSeconds, &r.Enabled, &r.Version, &r.Dependencies,
		&r.Environment, &r.CreatedAt, &r.LastExecutedAt, &r.ExecutionCount,
	); err != nil {
		return nil, err
	}
	return &r, nil
}

// PostgresStore persists the catalog in Postgres with a read-through
// collector cache. Negative lookups are cached too, so repeated requests
// for an unknown name do not hammer the database.
type PostgresStore struct {
	db     *sql.DB
	rows   CollectorRowStore
	cache  *ttlcache.Cache[*Collector]
	logger *zap.Logger
}

// PostgresStoreConfig configures the PostgresStore.
type PostgresStoreConfig struct {
	DB       *sql.DB
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(cfg PostgresStoreConfig) *PostgresStore {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 60 * time.Second
	}
	return &PostgresStore{
		db:     cfg.DB,
		rows:   &sqlCollectorStore{db: cfg.DB},
		cache:  ttlcache.New[*Collector](ttl),
		logger: cfg.Logger,
	}
}

// newPostgresStoreWithRows creates a store with a custom row store (for testing).
func newPostgresStoreWithRows(rows CollectorRowStore, cacheTTL time.Duration, logger *zap.Logger) *PostgresStore {
	if cacheTTL == 0 {
		cacheTTL = 60 * time.Second
	}
	return &PostgresStore{
		rows:   rows,
		cache:  ttlcache.New[*Collector](cacheTTL),
		logger: logger,
	}
}

func (s *PostgresStore) GetCollector(ctx context.Context, nameOrID string) (*Collector, error) {
	cached := s.cache.Get(nameOrID)
	if cached.Hit {
		if cached.NeedsRefresh {
			go s.refreshInBackground(nameOrID)
		}
		return cached.Value, nil
	}

	col, err := s.fetchFromDB(ctx, nameOrID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.cache.Set(nameOrID, nil)
			return nil, nil
		}
		return nil, fmt.Errorf("GetCollector: %w", err)
	}

	s.cache.Set(nameOrID, col)
	return col, nil
}

func (s *PostgresStore) fetchFromDB(ctx context.Context, nameOrID string) (*Collector, error) {
	row, err := s.rows.LookupCollector(ctx, nameOrID)
	if err != nil {
		return nil, err
	}
	return parseCollectorRow(row)
}

func (s *PostgresStore) refreshInBackground(nameOrID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	col, err := s.fetchFromDB(ctx, nameOrID)
	if err != nil {
		s.logger.Warn("background collector refresh failed",
			zap.String("collector", nameOrID),
			zap.Error(err),
		)
		return
	}
	s.cache.Set(nameOrID, col)
}

func (s *PostgresStore) ListCollectors(ctx context.Context, filter CollectorFilter) ([]*Collector, error) {
	rows, err := s.rows.ListCollectors(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("ListCollectors: %w", err)
	}

	wanted := make(map[string]bool, len(filter.Names))
	for _, n := range filter.Names {
		wanted[n] = true
	}

	out := make([]*Collector, 0, len(rows))
	for _, r := range rows {
		if len(wanted) > 0 && !wanted[r.Name] {
			continue
		}
		col, err := parseCollectorRow(r)
		if err != nil {
			return nil, fmt.Errorf("ListCollectors: %w", err)
		}
		out = append(out, col)
	}
	return out, nil
}

func (s *PostgresStore) SaveCollector(ctx context.Context, c *Collector) error {
	row, err := buildCollectorRow(c)
	if err != nil {
		return fmt.Errorf("SaveCollector: %w", err)
	}
	if err := s.rows.UpsertCollector(ctx, row); err != nil {
		return fmt.Errorf("SaveCollector: %w", err)
	}
	s.cache.Delete(c.ID)
	s.cache.Delete(c.Name)
	return nil
}

func (s *PostgresStore) DeleteCollector(ctx context.Context, id string) error {
	col, err := s.GetCollector(ctx, id)
	if err != nil {
		return err
	}
	if err := s.rows.DeleteCollector(ctx, id); err != nil {
		return fmt.Errorf("DeleteCollector: %w", err)
	}
	s.cache.Delete(id)
	if col != nil {
		s.cache.Delete(col.Name)
	}
	return nil
}

func (s *PostgresStore) IncrementExecutionStats(ctx context.Context, id string, ts time.Time) error {
	if err := s.rows.BumpExecutionStats(ctx, id, ts); err != nil {
		return fmt.Errorf("IncrementExecutionStats: %w", err)
	}
	// Counters change on every run; let the TTL refresh pick them up rather
	// than invalidating the hot cache entry each time.
	return nil
}

func parseCollectorRow(row *collectorRow) (*Collector, error) {
	c := &Collector{
		ID:             row.ID,
		Name:           row.Name,
		FilePath:       row.FilePath,
		TimeoutSeconds: row.TimeoutSeconds,
		Enabled:        row.Enabled,
		Version:        row.Version,
		CreatedAt:      row.CreatedAt,
		ExecutionCount: row.ExecutionCount,
	}

	if row.LastExecutedAt.Valid {
		t := row.LastExecutedAt.Time
		c.LastExecutedAt = &t
	}

	if row.InputSchema.Valid && row.InputSchema.String != "" {
		if err := json.Unmarshal([]byte(row.InputSchema.String), &c.InputSchema); err != nil {
			return nil, fmt.Errorf("parseCollectorRow: input_schema: %w", err)
		}
	}

	if row.OutputSchema.Valid && row.OutputSchema.String != "" {
		if err := json.Unmarshal([]byte(row.OutputSchema.String), &c.OutputSchema); err != nil {
			return nil, fmt.Errorf("parseCollectorRow: output_schema: %w", err)
		}
	}

	if row.Dependencies != "" && row.Dependencies != "[]" {
		if err := json.Unmarshal([]byte(row.Dependencies), &c.Dependencies); err != nil {
			return nil, fmt.Errorf("parseCollectorRow: dependencies: %w", err)
		}
	}

	if row.Environment != "" && row.Environment != "{}" {
		if err := json.Unmarshal([]byte(row.Environment), &c.Environment); err != nil {
			return nil, fmt.Errorf("parseCollectorRow: environment: %w", err)
		}
	}

	return c, nil
}

func buildCollectorRow(c *Collector) (*collectorRow, error) {
	row := &collectorRow{
		ID:             c.ID,
		Name:           c.Name,
		FilePath:       c.FilePath,
		TimeoutSeconds: c.TimeoutSeconds,
		Enabled:        c.Enabled,
		Version:        c.Version,
		CreatedAt:      c.CreatedAt,
		ExecutionCount: c.ExecutionCount,
	}

	if c.LastExecutedAt != nil {
		row.LastExecutedAt = sql.NullTime{Time: *c.LastExecutedAt, Valid: true}
	}

	if c.InputSchema != nil {
		b, err := json.Marshal(c.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("buildCollectorRow: input_schema: %w", err)
		}
		row.InputSchema = sql.NullString{String: string(b), Valid: true}
	}

	if c.OutputSchema != nil {
		b, err := json.Marshal(c.OutputSchema)
		if err != nil {
			return nil, fmt.Errorf("buildCollectorRow: output_schema: %w", err)
		}
		row.OutputSchema = sql.NullString{String: string(b), Valid: true}
	}

	dependencies := c.Dependencies
	if dependencies == nil {
		dependencies = []string{}
	}
	deps, err := json.Marshal(dependencies)
	if err != nil {
		return nil, fmt.Errorf("buildCollectorRow: dependencies: %w", err)
	}
	row.Dependencies = string(deps)

	env := c.Environment
	if env == nil {
		env = map[string]string{}
	}
	envJSON, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("buildCollectorRow: environment: %w", err)
	}
	row.Environment = string(envJSON)

	return row, nil
}
