package catalog

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// countingRowStore is an in-memory CollectorRowStore that counts DB round
// trips so cache behavior can be asserted.
type countingRowStore struct {
	mu      sync.Mutex
	rows    map[string]*collectorRow // by id
	lookups int
	bumps   int
}

func newCountingRowStore() *countingRowStore {
	return &countingRowStore{rows: make(map[string]*collectorRow)}
}

func (s *countingRowStore) LookupCollector(_ context.Context, nameOrID string) (*collectorRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if r, ok := s.rows[nameOrID]; ok {
		cp := *r
		return &cp, nil
	}
	for _, r := range s.rows {
		if r.Name == nameOrID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *countingRowStore) ListCollectors(_ context.Context, _ CollectorFilter) ([]*collectorRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*collectorRow, 0, len(s.rows))
	for _, r := range s.rows {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *countingRowStore) UpsertCollector(_ context.Context, row *collectorRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *row
	s.rows[row.ID] = &cp
	return nil
}

func (s *countingRowStore) DeleteCollector(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

func (s *countingRowStore) BumpExecutionStats(_ context.Context, id string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bumps++
	if r, ok := s.rows[id]; ok {
		r.ExecutionCount++
		r.LastExecutedAt = sql.NullTime{Time: ts, Valid: true}
	}
	return nil
}

func (s *countingRowStore) lookupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

func newTestPostgresStore(t *testing.T, rows CollectorRowStore, ttl time.Duration) *PostgresStore {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	return newPostgresStoreWithRows(rows, ttl, logger)
}

func seedRow(t *testing.T, rows *countingRowStore, c *Collector) {
	t.Helper()
	row, err := buildCollectorRow(c)
	if err != nil {
		t.Fatal(err)
	}
	if err := rows.UpsertCollector(context.Background(), row); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresStore_GetCollectorCachesSecondLookup(t *testing.T) {
	rows := newCountingRowStore()
	seedRow(t, rows, &Collector{ID: "c1", Name: "disk-usage", FilePath: "/opt/disk.sh", Enabled: true, CreatedAt: time.Now()})

	store := newTestPostgresStore(t, rows, time.Minute)

	for i := 0; i < 3; i++ {
		c, err := store.GetCollector(context.Background(), "disk-usage")
		if err != nil {
			t.Fatal(err)
		}
		if c == nil || c.ID != "c1" {
			t.Fatalf("lookup %d: unexpected collector %+v", i, c)
		}
	}

	if got := rows.lookupCount(); got != 1 {
		t.Fatalf("expected a single DB lookup, got %d", got)
	}
}

func TestPostgresStore_NegativeCacheForMissingCollector(t *testing.T) {
	rows := newCountingRowStore()
	store := newTestPostgresStore(t, rows, time.Minute)

	for i := 0; i < 3; i++ {
		c, err := store.GetCollector(context.Background(), "ghost")
		if err != nil {
			t.Fatal(err)
		}
		if c != nil {
			t.Fatalf("expected nil for missing collector, got %+v", c)
		}
	}

	if got := rows.lookupCount(); got != 1 {
		t.Fatalf("negative result must be cached; got %d lookups", got)
	}
}

func TestPostgresStore_SaveInvalidatesCache(t *testing.T) {
	rows := newCountingRowStore()
	c := &Collector{ID: "c1", Name: "disk-usage", FilePath: "/opt/disk.sh", Enabled: true, CreatedAt: time.Now()}
	seedRow(t, rows, c)

	store := newTestPostgresStore(t, rows, time.Minute)

	if _, err := store.GetCollector(context.Background(), "disk-usage"); err != nil {
		t.Fatal(err)
	}

	c.Enabled = false
	if err := store.SaveCollector(context.Background(), c); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetCollector(context.Background(), "disk-usage")
	if err != nil {
		t.Fatal(err)
	}
	if got.Enabled {
		t.Fatal("save must invalidate the cached entry")
	}
}

func TestPostgresStore_RoundTripPreservesFields(t *testing.T) {
	rows := newCountingRowStore()
	store := newTestPostgresStore(t, rows, time.Minute)

	last := time.Now().Add(-time.Hour).Truncate(time.Second)
	original := &Collector{
		ID:       "c1",
		Name:     "pg-stats",
		FilePath: "/opt/collectors/pg_stats.py",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"dsn"},
		},
		OutputSchema:   map[string]any{"type": "object"},
		TimeoutSeconds: 45,
		Enabled:        true,
		Version:        "1.2.0",
		Dependencies:   []string{"base-env"},
		Environment:    map[string]string{"PGAPPNAME": "querybridge"},
		CreatedAt:      time.Now().Truncate(time.Second),
		LastExecutedAt: &last,
		ExecutionCount: 12,
	}

	if err := store.SaveCollector(context.Background(), original); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetCollector(context.Background(), "pg-stats")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("collector not found after save")
	}
	if got.TimeoutSeconds != 45 || got.Version != "1.2.0" || got.ExecutionCount != 12 {
		t.Fatalf("scalar fields lost: %+v", got)
	}
	if len(got.Dependencies) != 1 || got.Dependencies[0] != "base-env" {
		t.Fatalf("dependencies lost: %v", got.Dependencies)
	}
	if got.Environment["PGAPPNAME"] != "querybridge" {
		t.Fatalf("environment lost: %v", got.Environment)
	}
	if got.InputSchema == nil || got.InputSchema["type"] != "object" {
		t.Fatalf("input schema lost: %v", got.InputSchema)
	}
	if got.LastExecutedAt == nil || !got.LastExecutedAt.Equal(last) {
		t.Fatalf("last executed at lost: %v", got.LastExecutedAt)
	}
}

func TestPostgresStore_DeleteInvalidatesBothKeys(t *testing.T) {
	rows := newCountingRowStore()
	c := &Collector{ID: "c1", Name: "disk-usage", FilePath: "/opt/disk.sh", Enabled: true, CreatedAt: time.Now()}
	seedRow(t, rows, c)

	store := newTestPostgresStore(t, rows, time.Minute)

	// Prime the cache under both keys.
	if _, err := store.GetCollector(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetCollector(context.Background(), "disk-usage"); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteCollector(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetCollector(context.Background(), "disk-usage")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("deleted collector still served: %+v", got)
	}
}

func TestBuildCollectorRow_NilSlicesMarshalAsEmptyJSON(t *testing.T) {
	row, err := buildCollectorRow(&Collector{ID: "c1", Name: "bare"})
	if err != nil {
		t.Fatal(err)
	}
	if row.Dependencies != "[]" {
		t.Fatalf("nil dependencies must serialize as [], got %q", row.Dependencies)
	}
	if row.Environment != "{}" {
		t.Fatalf("nil environment must serialize as {}, got %q", row.Environment)
	}
}
