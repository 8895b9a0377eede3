package catalog

import (
	"context"
	"time"
)

// CollectorFilter narrows ListCollectors results.
type CollectorFilter struct {
	EnabledOnly bool
	Names       []string // empty = all
}

// CollectorStore is the slice of the catalog the execution engine consumes.
type CollectorStore interface {
	// GetCollector looks a collector up by name or id.
	// Returns nil if no collector matches.
	GetCollector(ctx context.Context, nameOrID string) (*Collector, error)

	ListCollectors(ctx context.Context, filter CollectorFilter) ([]*Collector, error)
	SaveCollector(ctx context.Context, c *Collector) error
	DeleteCollector(ctx context.Context, id string) error

	// IncrementExecutionStats bumps executionCount and lastExecutedAt.
	// Fire-and-forget from the engine's perspective.
	IncrementExecutionStats(ctx context.Context, id string, ts time.Time) error
}

// Store is the full catalog surface used by the API layer.
type Store interface {
	CollectorStore

	GetTool(ctx context.Context, id string) (*Tool, error)
	ListTools(ctx context.Context) ([]*Tool, error)
	SaveTool(ctx context.Context, t *Tool) error
	DeleteTool(ctx context.Context, id string) error

	GetQuery(ctx context.Context, id string) (*Query, error)
	SaveQuery(ctx context.Context, q *Query) error
	DeleteQuery(ctx context.Context, id string) error

	SaveCredential(ctx context.Context, c *Credential) error
	ListCredentialsForTool(ctx context.Context, toolID string) ([]*Credential, error)
	DeleteCredential(ctx context.Context, id string) error
}
