// Package executor orchestrates collector runs: validation, process
// launch, output decoding and chain execution in dependency order.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/querybridge/querybridge/internal/catalog"
	"github.com/querybridge/querybridge/internal/procrun"
	"github.com/querybridge/querybridge/internal/schema"
)

// statsTimeout bounds the fire-and-forget execution stats update.
const statsTimeout = 5 * time.Second

// Executor runs single collectors. Safe for concurrent use; every
// invocation owns its own child process and timers.
type Executor struct {
	store  catalog.CollectorStore
	runner procrun.Runner
	logger *zap.Logger
}

// New creates an Executor. store may be nil when execution stats are not
// tracked (ad-hoc CLI runs against unregistered files).
func New(store catalog.CollectorStore, runner procrun.Runner, logger *zap.Logger) *Executor {
	return &Executor{
		store:  store,
		runner: runner,
		logger: logger,
	}
}

// ExecuteByName resolves a collector by name or id and executes it.
// A missing collector is a failed result, not an error; the error return
// is reserved for catalog store failures.
func (e *Executor) ExecuteByName(ctx context.Context, nameOrID string, input any, opts Options) (*ExecutionResult, error) {
	if e.store == nil {
		return nil, errors.New("ExecuteByName: no catalog store configured")
	}
	c, err := e.store.GetCollector(ctx, nameOrID)
	if err != nil {
		return nil, fmt.Errorf("ExecuteByName: %w", err)
	}
	if c == nil {
		res := newResult("", nameOrID)
		return res.fail(KindNotFound, fmt.Sprintf("collector %q not found", nameOrID)), nil
	}
	return e.Execute(ctx, c, input, opts), nil
}

// Execute runs one collector. Every expected failure mode — disabled
// collector, missing file, invalid input, spawn error, timeout,
// cancellation, non-zero exit, invalid output — comes back as a normally
// returned result with Success=false.
func (e *Executor) Execute(ctx context.Context, c *catalog.Collector, input any, opts Options) *ExecutionResult {
	res := newResult(c.ID, c.Name)

	if !c.Enabled {
		return res.fail(KindConfig, fmt.Sprintf("collector %q is disabled", c.Name))
	}

	// Collector files may be edited or removed between registration and
	// use; re-check rather than trust the catalog.
	if _, err := os.Stat(c.FilePath); err != nil {
		return res.fail(KindConfig, fmt.Sprintf("collector file missing: %s", c.FilePath))
	}

	// Collectors always receive a JSON object argument; no input means {}.
	if input == nil {
		input = map[string]any{}
	}

	if !opts.SkipInputValidation && c.InputSchema != nil {
		if v := schema.Validate(c.InputSchema, input, "input"); !v.Valid {
			return res.fail(KindInvalidInput, strings.Join(v.Errors, "; "))
		}
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return res.fail(KindConfig, fmt.Sprintf("input not JSON-encodable: %v", err))
	}

	command, args := interpreterFor(c.FilePath).commandLine(c.FilePath)
	args = append(args, string(payload))

	timeout := c.Timeout()
	if opts.TimeoutMs > 0 {
		timeout = time.Duration(opts.TimeoutMs) * time.Millisecond
	}

	workDir := opts.WorkingDirectory
	if workDir == "" {
		workDir = filepath.Dir(c.FilePath)
	}

	procRes, runErr := e.runner.Run(ctx, command, args, procrun.Options{
		Timeout:    timeout,
		WorkingDir: workDir,
		Env:        mergedEnv(c.Environment),
	})

	// The process ran (or at least was asked to); count the attempt. The
	// update must not block the result and its failure must not mask it.
	e.recordStats(c.ID)

	if procRes != nil {
		res.Stdout = procRes.Stdout
		res.Stderr = procRes.Stderr
		res.DurationMs = procRes.Duration.Milliseconds()
	}

	if runErr != nil {
		switch {
		case errors.Is(runErr, procrun.ErrTimeout):
			return res.fail(KindTimeout, fmt.Sprintf("collector %q timed out after %s", c.Name, timeout))
		case errors.Is(runErr, procrun.ErrCancelled):
			return res.fail(KindCancelled, fmt.Sprintf("collector %q cancelled", c.Name))
		default:
			var spawnErr *procrun.SpawnError
			if errors.As(runErr, &spawnErr) {
				return res.fail(KindSpawnError, spawnErr.Error())
			}
			return res.fail(KindSpawnError, runErr.Error())
		}
	}

	exitCode := procRes.ExitCode
	res.ExitCode = &exitCode
	res.Output = decodeOutput(procRes.Stdout)

	if exitCode != 0 {
		msg := strings.TrimSpace(procRes.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("process exited with code %d", exitCode)
		}
		return res.fail(KindNonZeroExit, msg)
	}

	if !opts.SkipOutputValidation && c.OutputSchema != nil {
		if v := schema.Validate(c.OutputSchema, res.Output, "output"); !v.Valid {
			// Schema mismatch downgrades success; the process is not re-run.
			return res.fail(KindInvalidOutput, strings.Join(v.Errors, "; "))
		}
	}

	res.Success = true
	res.CompletedAt = time.Now()
	res.DurationMs = res.CompletedAt.Sub(res.StartedAt).Milliseconds()
	return res
}

func newResult(collectorID, collectorName string) *ExecutionResult {
	return &ExecutionResult{
		CollectorID:   collectorID,
		CollectorName: collectorName,
		ExecutionID:   uuid.New().String(),
		StartedAt:     time.Now(),
	}
}

func (r *ExecutionResult) fail(kind ErrorKind, msg string) *ExecutionResult {
	r.Success = false
	r.ErrorKind = kind
	r.Error = msg
	r.CompletedAt = time.Now()
	r.DurationMs = r.CompletedAt.Sub(r.StartedAt).Milliseconds()
	return r
}

// decodeOutput leniently parses stdout. Collectors are free-form scripts;
// unparsable output falls back to the raw trimmed string.
func decodeOutput(stdout string) any {
	trimmed := strings.TrimSpace(stdout)
	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return trimmed
	}
	return decoded
}

// recordStats bumps executionCount / lastExecutedAt without blocking.
func (e *Executor) recordStats(collectorID string) {
	if e.store == nil || collectorID == "" {
		return
	}
	now := time.Now()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
		defer cancel()
		if err := e.store.IncrementExecutionStats(ctx, collectorID, now); err != nil {
			e.logger.Warn("execution stats update failed",
				zap.String("collector_id", collectorID),
				zap.Error(err),
			)
		}
	}()
}

// mergedEnv overlays the collector's environment on the engine's own.
func mergedEnv(overlay map[string]string) []string {
	if len(overlay) == 0 {
		return nil // inherit as-is
	}
	env := os.Environ()
	for k, v := range overlay {
		env = append(env, k+"="+v)
	}
	return env
}
