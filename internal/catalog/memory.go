package catalog

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and DSN-less development mode.
type MemoryStore struct {
	mu          sync.RWMutex
	collectors  map[string]*Collector // by id
	tools       map[string]*Tool
	queries     map[string]*Query
	credentials map[string]*Credential
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collectors:  make(map[string]*Collector),
		tools:       make(map[string]*Tool),
		queries:     make(map[string]*Query),
		credentials: make(map[string]*Credential),
	}
}

func (s *MemoryStore) GetCollector(_ context.Context, nameOrID string) (*Collector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.collectors[nameOrID]; ok {
		return cloneCollector(c), nil
	}
	for _, c := range s.collectors {
		if c.Name == nameOrID {
			return cloneCollector(c), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListCollectors(_ context.Context, filter CollectorFilter) ([]*Collector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(filter.Names))
	for _, n := range filter.Names {
		wanted[n] = true
	}

	out := make([]*Collector, 0, len(s.collectors))
	for _, c := range s.collectors {
		if filter.EnabledOnly && !c.Enabled {
			continue
		}
		if len(wanted) > 0 && !wanted[c.Name] {
			continue
		}
		out = append(out, cloneCollector(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *MemoryStore) SaveCollector(_ context.Context, c *Collector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collectors[c.ID] = cloneCollector(c)
	return nil
}

func (s *MemoryStore) DeleteCollector(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collectors, id)
	return nil
}

func (s *MemoryStore) IncrementExecutionStats(_ context.Context, id string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collectors[id]; ok {
		c.ExecutionCount++
		t := ts
		c.LastExecutedAt = &t
	}
	return nil
}

func (s *MemoryStore) GetTool(_ context.Context, id string) (*Tool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tools[id]; ok {
		cp := *t
		return &cp, nil
	}
	for _, t := range s.tools {
		if t.Name == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListTools(_ context.Context) ([]*Tool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Tool, 0, len(s.tools))
	for _, t := range s.tools {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) SaveTool(_ context.Context, t *Tool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tools[t.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteTool(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tools, id)
	return nil
}

func (s *MemoryStore) GetQuery(_ context.Context, id string) (*Query, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if q, ok := s.queries[id]; ok {
		cp := *q
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) SaveQuery(_ context.Context, q *Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *q
	s.queries[q.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteQuery(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queries, id)
	return nil
}

func (s *MemoryStore) SaveCredential(_ context.Context, c *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.credentials[c.ID] = &cp
	return nil
}

func (s *MemoryStore) ListCredentialsForTool(_ context.Context, toolID string) ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Credential
	for _, c := range s.credentials {
		if c.ToolID == toolID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteCredential(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.credentials, id)
	return nil
}

func cloneCollector(c *Collector) *Collector {
	cp := *c
	if c.Dependencies != nil {
		cp.Dependencies = append([]string(nil), c.Dependencies...)
	}
	if c.Environment != nil {
		cp.Environment = make(map[string]string, len(c.Environment))
		for k, v := range c.Environment {
			cp.Environment[k] = v
		}
	}
	if c.LastExecutedAt != nil {
		t := *c.LastExecutedAt
		cp.LastExecutedAt = &t
	}
	return &cp
}
