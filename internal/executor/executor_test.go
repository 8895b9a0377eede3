package executor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/querybridge/querybridge/internal/catalog"
	"github.com/querybridge/querybridge/internal/procrun"
)

// spyRunner records invocations and plays back a scripted result.
type spyRunner struct {
	mu       sync.Mutex
	calls    int
	lastCmd  string
	lastArgs []string
	lastOpts procrun.Options

	result *procrun.Result
	err    error
}

func (s *spyRunner) Run(_ context.Context, command string, args []string, opts procrun.Options) (*procrun.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastCmd = command
	s.lastArgs = args
	s.lastOpts = opts
	return s.result, s.err
}

func (s *spyRunner) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func okRunner(stdout string) *spyRunner {
	return &spyRunner{result: &procrun.Result{Stdout: stdout, ExitCode: 0, Duration: 5 * time.Millisecond}}
}

func writeScript(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func testCollector(t *testing.T, name string) *catalog.Collector {
	t.Helper()
	return &catalog.Collector{
		ID:       "id-" + name,
		Name:     name,
		FilePath: writeScript(t, name+".sh"),
		Enabled:  true,
	}
}

func newTestExecutor(t *testing.T, store catalog.CollectorStore, runner procrun.Runner) *Executor {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	return New(store, runner, logger)
}

func TestExecute_DisabledCollectorFailsWithoutSpawning(t *testing.T) {
	runner := okRunner(`{}`)
	exec := newTestExecutor(t, nil, runner)

	c := testCollector(t, "disabled")
	c.Enabled = false

	res := exec.Execute(context.Background(), c, nil, Options{})
	if res.Success {
		t.Fatal("disabled collector must not succeed")
	}
	if res.ErrorKind != KindConfig {
		t.Fatalf("expected %s, got %s", KindConfig, res.ErrorKind)
	}
	if runner.callCount() != 0 {
		t.Fatal("runner must not be invoked for a disabled collector")
	}
}

func TestExecute_MissingFileFailsWithoutSpawning(t *testing.T) {
	runner := okRunner(`{}`)
	exec := newTestExecutor(t, nil, runner)

	c := testCollector(t, "gone")
	c.FilePath = filepath.Join(t.TempDir(), "does-not-exist.sh")

	res := exec.Execute(context.Background(), c, nil, Options{})
	if res.Success {
		t.Fatal("missing file must not succeed")
	}
	if res.ErrorKind != KindConfig {
		t.Fatalf("expected %s, got %s", KindConfig, res.ErrorKind)
	}
	if runner.callCount() != 0 {
		t.Fatal("runner must not be invoked when the file is missing")
	}
}

func TestExecute_InvalidInputShortCircuits(t *testing.T) {
	runner := okRunner(`{}`)
	exec := newTestExecutor(t, nil, runner)

	c := testCollector(t, "strict")
	c.InputSchema = map[string]any{
		"type":     "object",
		"required": []any{"host"},
		"properties": map[string]any{
			"host": map[string]any{"type": "string"},
		},
	}

	res := exec.Execute(context.Background(), c, map[string]any{}, Options{})
	if res.Success {
		t.Fatal("invalid input must not succeed")
	}
	if res.ErrorKind != KindInvalidInput {
		t.Fatalf("expected %s, got %s", KindInvalidInput, res.ErrorKind)
	}
	if !strings.Contains(res.Error, "input") {
		t.Fatalf("error should name the input path: %q", res.Error)
	}
	if runner.callCount() != 0 {
		t.Fatal("runner must not be invoked on invalid input")
	}
}

func TestExecute_SkipInputValidation(t *testing.T) {
	runner := okRunner(`{}`)
	exec := newTestExecutor(t, nil, runner)

	c := testCollector(t, "lenient")
	c.InputSchema = map[string]any{
		"type":     "object",
		"required": []any{"host"},
	}

	res := exec.Execute(context.Background(), c, map[string]any{}, Options{SkipInputValidation: true})
	if !res.Success {
		t.Fatalf("expected success with validation skipped, got %s: %s", res.ErrorKind, res.Error)
	}
	if runner.callCount() != 1 {
		t.Fatalf("expected one runner call, got %d", runner.callCount())
	}
}

func TestExecute_InputPassedAsSingleJSONArgument(t *testing.T) {
	runner := okRunner(`{}`)
	exec := newTestExecutor(t, nil, runner)

	c := testCollector(t, "args")
	input := map[string]any{"host": "db-1", "port": 5432}

	res := exec.Execute(context.Background(), c, input, Options{})
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Error)
	}

	// .sh resolves to bash, so args are [script, payload].
	if runner.lastCmd != "bash" {
		t.Fatalf("expected bash interpreter, got %q", runner.lastCmd)
	}
	if len(runner.lastArgs) != 2 {
		t.Fatalf("expected script + payload, got %v", runner.lastArgs)
	}
	payload := runner.lastArgs[len(runner.lastArgs)-1]
	if !strings.Contains(payload, `"host":"db-1"`) {
		t.Fatalf("payload missing input: %q", payload)
	}
}

func TestExecute_UnparsableStdoutFallsBackToRawString(t *testing.T) {
	runner := okRunner("plain text, not json\n")
	exec := newTestExecutor(t, nil, runner)

	res := exec.Execute(context.Background(), testCollector(t, "raw"), nil, Options{})
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Error)
	}
	got, ok := res.Output.(string)
	if !ok {
		t.Fatalf("expected string output, got %T", res.Output)
	}
	if got != "plain text, not json" {
		t.Fatalf("expected trimmed raw stdout, got %q", got)
	}
}

func TestExecute_JSONStdoutDecoded(t *testing.T) {
	runner := okRunner(` {"count": 3} `)
	exec := newTestExecutor(t, nil, runner)

	res := exec.Execute(context.Background(), testCollector(t, "json"), nil, Options{})
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Error)
	}
	obj, ok := res.Output.(map[string]any)
	if !ok {
		t.Fatalf("expected decoded object, got %T", res.Output)
	}
	if obj["count"] != float64(3) {
		t.Fatalf("unexpected output: %v", obj)
	}
}

func TestExecute_NonZeroExitUsesStderrMessage(t *testing.T) {
	runner := &spyRunner{result: &procrun.Result{
		Stdout:   "",
		Stderr:   "connection refused\n",
		ExitCode: 2,
	}}
	exec := newTestExecutor(t, nil, runner)

	res := exec.Execute(context.Background(), testCollector(t, "fail"), nil, Options{})
	if res.Success {
		t.Fatal("non-zero exit must not succeed")
	}
	if res.ErrorKind != KindNonZeroExit {
		t.Fatalf("expected %s, got %s", KindNonZeroExit, res.ErrorKind)
	}
	if res.Error != "connection refused" {
		t.Fatalf("expected stderr as message, got %q", res.Error)
	}
	if res.ExitCode == nil || *res.ExitCode != 2 {
		t.Fatalf("expected exit code 2, got %v", res.ExitCode)
	}
}

func TestExecute_NonZeroExitWithEmptyStderr(t *testing.T) {
	runner := &spyRunner{result: &procrun.Result{ExitCode: 7}}
	exec := newTestExecutor(t, nil, runner)

	res := exec.Execute(context.Background(), testCollector(t, "silent"), nil, Options{})
	if res.Error != "process exited with code 7" {
		t.Fatalf("unexpected message: %q", res.Error)
	}
}

func TestExecute_TimeoutAndCancellationAreDistinct(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"timeout", procrun.ErrTimeout, KindTimeout},
		{"cancelled", procrun.ErrCancelled, KindCancelled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runner := &spyRunner{result: &procrun.Result{ExitCode: -1}, err: tc.err}
			exec := newTestExecutor(t, nil, runner)

			res := exec.Execute(context.Background(), testCollector(t, tc.name), nil, Options{})
			if res.Success {
				t.Fatal("must not succeed")
			}
			if res.ErrorKind != tc.kind {
				t.Fatalf("expected %s, got %s", tc.kind, res.ErrorKind)
			}
		})
	}
}

func TestExecute_SpawnErrorKind(t *testing.T) {
	runner := &spyRunner{err: &procrun.SpawnError{Command: "node", Err: os.ErrNotExist}}
	exec := newTestExecutor(t, nil, runner)

	res := exec.Execute(context.Background(), testCollector(t, "nospawn"), nil, Options{})
	if res.ErrorKind != KindSpawnError {
		t.Fatalf("expected %s, got %s", KindSpawnError, res.ErrorKind)
	}
}

func TestExecute_OutputValidationDowngradesSuccess(t *testing.T) {
	outputSchema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"n": map[string]any{"type": "number"},
		},
		"required": []any{"n"},
	}

	t.Run("conforming output passes", func(t *testing.T) {
		runner := okRunner(`{"n": 3}`)
		exec := newTestExecutor(t, nil, runner)
		c := testCollector(t, "conform")
		c.OutputSchema = outputSchema

		res := exec.Execute(context.Background(), c, nil, Options{})
		if !res.Success {
			t.Fatalf("unexpected failure: %s", res.Error)
		}
	})

	t.Run("mismatched output downgrades", func(t *testing.T) {
		runner := okRunner(`{"n": "three"}`)
		exec := newTestExecutor(t, nil, runner)
		c := testCollector(t, "mismatch")
		c.OutputSchema = outputSchema

		res := exec.Execute(context.Background(), c, nil, Options{})
		if res.Success {
			t.Fatal("output schema mismatch must downgrade success")
		}
		if res.ErrorKind != KindInvalidOutput {
			t.Fatalf("expected %s, got %s", KindInvalidOutput, res.ErrorKind)
		}
		if !strings.Contains(res.Error, "output.n") {
			t.Fatalf("error should carry the output path: %q", res.Error)
		}
		// The process output is still preserved on the failed result.
		if res.Output == nil {
			t.Fatal("output must be preserved on validation failure")
		}
		if res.ExitCode == nil || *res.ExitCode != 0 {
			t.Fatal("exit code must be preserved on validation failure")
		}
	})
}

func TestExecute_TimeoutOverrideReachesRunner(t *testing.T) {
	runner := okRunner(`{}`)
	exec := newTestExecutor(t, nil, runner)

	c := testCollector(t, "fast")
	c.TimeoutSeconds = 60

	exec.Execute(context.Background(), c, nil, Options{TimeoutMs: 250})
	if runner.lastOpts.Timeout != 250*time.Millisecond {
		t.Fatalf("expected 250ms timeout, got %s", runner.lastOpts.Timeout)
	}
}

func TestExecute_RecordsExecutionStats(t *testing.T) {
	store := catalog.NewMemoryStore()
	c := testCollector(t, "counted")
	if err := store.SaveCollector(context.Background(), c); err != nil {
		t.Fatal(err)
	}

	runner := okRunner(`{}`)
	exec := newTestExecutor(t, store, runner)

	res := exec.Execute(context.Background(), c, nil, Options{})
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Error)
	}

	// The stats update is fire-and-forget; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := store.GetCollector(context.Background(), c.Name)
		if err != nil {
			t.Fatal(err)
		}
		if got.ExecutionCount == 1 && got.LastExecutedAt != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("execution stats never recorded")
}

func TestExecuteByName_MissingCollectorIsFailedResult(t *testing.T) {
	store := catalog.NewMemoryStore()
	exec := newTestExecutor(t, store, okRunner(`{}`))

	res, err := exec.ExecuteByName(context.Background(), "ghost", nil, Options{})
	if err != nil {
		t.Fatalf("missing collector must not be an error: %v", err)
	}
	if res.Success {
		t.Fatal("missing collector must not succeed")
	}
	if res.ErrorKind != KindNotFound {
		t.Fatalf("expected %s, got %s", KindNotFound, res.ErrorKind)
	}
}

func TestExecuteByName_RunsRegisteredCollector(t *testing.T) {
	store := catalog.NewMemoryStore()
	c := testCollector(t, "registered")
	if err := store.SaveCollector(context.Background(), c); err != nil {
		t.Fatal(err)
	}

	runner := okRunner(`{"ok": true}`)
	exec := newTestExecutor(t, store, runner)

	res, err := exec.ExecuteByName(context.Background(), "registered", nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Error)
	}
	if res.CollectorID != c.ID {
		t.Fatalf("result should carry the collector id, got %q", res.CollectorID)
	}
}
