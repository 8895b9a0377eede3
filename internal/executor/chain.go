package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/querybridge/querybridge/internal/catalog"
	"github.com/querybridge/querybridge/internal/graph"
)

// ExecuteChain runs the given collectors in dependency order with a shared
// input. Resolution failure (a cycle) aborts the whole chain before any
// process runs. A failing collector does not stop the chain — downstream
// collectors still execute — but the chain's Success is the AND across all
// member results.
func (e *Executor) ExecuteChain(ctx context.Context, collectors []*catalog.Collector, sharedInput any, opts Options) (*ChainResult, error) {
	chain := &ChainResult{
		ExecutionID: uuid.New().String(),
		StartedAt:   time.Now(),
		Success:     true,
	}

	ordered, err := graph.ResolveOrder(collectors)
	if err != nil {
		return nil, fmt.Errorf("ExecuteChain: %w", err)
	}

	e.logger.Info("executing collector chain",
		zap.String("chain_execution_id", chain.ExecutionID),
		zap.Int("collectors", len(ordered)),
	)

	// Dependency order requires sequential execution; no parallelism.
	for _, c := range ordered {
		res := e.Execute(ctx, c, sharedInput, opts)
		chain.Results = append(chain.Results, res)
		if !res.Success {
			chain.Success = false
			e.logger.Warn("chain member failed, continuing",
				zap.String("chain_execution_id", chain.ExecutionID),
				zap.String("collector", c.Name),
				zap.String("error_kind", string(res.ErrorKind)),
			)
		}
	}

	chain.CompletedAt = time.Now()
	chain.DurationMs = chain.CompletedAt.Sub(chain.StartedAt).Milliseconds()
	return chain, nil
}

// ExecuteChainByNames loads the named collectors from the catalog and runs
// them as a chain. Names that do not resolve in the catalog are an error;
// the chain never starts partially assembled.
func (e *Executor) ExecuteChainByNames(ctx context.Context, names []string, sharedInput any, opts Options) (*ChainResult, error) {
	if e.store == nil {
		return nil, fmt.Errorf("ExecuteChainByNames: no catalog store configured")
	}

	collectors := make([]*catalog.Collector, 0, len(names))
	for _, name := range names {
		c, err := e.store.GetCollector(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("ExecuteChainByNames: %w", err)
		}
		if c == nil {
			return nil, fmt.Errorf("ExecuteChainByNames: collector %q not found", name)
		}
		collectors = append(collectors, c)
	}

	return e.ExecuteChain(ctx, collectors, sharedInput, opts)
}
