package catalog

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_GetByNameOrID(t *testing.T) {
	store := NewMemoryStore()
	c := &Collector{ID: "c1", Name: "disk-usage", CreatedAt: time.Now()}
	if err := store.SaveCollector(context.Background(), c); err != nil {
		t.Fatal(err)
	}

	byID, err := store.GetCollector(context.Background(), "c1")
	if err != nil || byID == nil {
		t.Fatalf("lookup by id failed: %v %v", byID, err)
	}
	byName, err := store.GetCollector(context.Background(), "disk-usage")
	if err != nil || byName == nil {
		t.Fatalf("lookup by name failed: %v %v", byName, err)
	}
	missing, err := store.GetCollector(context.Background(), "ghost")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Fatal("missing collector must be nil, not an error")
	}
}

func TestMemoryStore_ClonesOnReadAndWrite(t *testing.T) {
	store := NewMemoryStore()
	c := &Collector{ID: "c1", Name: "disk-usage", Dependencies: []string{"base"}}
	if err := store.SaveCollector(context.Background(), c); err != nil {
		t.Fatal(err)
	}

	// Mutating the caller's copy must not leak into the store.
	c.Dependencies[0] = "mutated"

	got, err := store.GetCollector(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Dependencies[0] != "base" {
		t.Fatal("store must hold its own copy")
	}

	// Mutating a read result must not leak either.
	got.Name = "renamed"
	again, err := store.GetCollector(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if again.Name != "disk-usage" {
		t.Fatal("reads must return copies")
	}
}

func TestMemoryStore_ListFiltersAndSorts(t *testing.T) {
	store := NewMemoryStore()
	base := time.Now()
	for _, c := range []*Collector{
		{ID: "c2", Name: "beta", Enabled: true, CreatedAt: base.Add(time.Second)},
		{ID: "c1", Name: "alpha", Enabled: true, CreatedAt: base},
		{ID: "c3", Name: "gamma", Enabled: false, CreatedAt: base.Add(2 * time.Second)},
	} {
		if err := store.SaveCollector(context.Background(), c); err != nil {
			t.Fatal(err)
		}
	}

	all, err := store.ListCollectors(context.Background(), CollectorFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Name != "alpha" || all[2].Name != "gamma" {
		t.Fatalf("unexpected order: %v", names(all))
	}

	enabled, err := store.ListCollectors(context.Background(), CollectorFilter{EnabledOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(enabled) != 2 {
		t.Fatalf("expected 2 enabled collectors, got %d", len(enabled))
	}

	named, err := store.ListCollectors(context.Background(), CollectorFilter{Names: []string{"beta"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(named) != 1 || named[0].Name != "beta" {
		t.Fatalf("name filter failed: %v", names(named))
	}
}

func TestMemoryStore_IncrementExecutionStats(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SaveCollector(context.Background(), &Collector{ID: "c1", Name: "disk-usage"}); err != nil {
		t.Fatal(err)
	}

	ts := time.Now()
	if err := store.IncrementExecutionStats(context.Background(), "c1", ts); err != nil {
		t.Fatal(err)
	}
	if err := store.IncrementExecutionStats(context.Background(), "c1", ts.Add(time.Second)); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetCollector(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ExecutionCount != 2 {
		t.Fatalf("expected count 2, got %d", got.ExecutionCount)
	}
	if got.LastExecutedAt == nil || !got.LastExecutedAt.Equal(ts.Add(time.Second)) {
		t.Fatalf("unexpected last executed at: %v", got.LastExecutedAt)
	}
}

func names(cs []*Collector) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name
	}
	return out
}
