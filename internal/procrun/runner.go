// Package procrun launches one child process per collector invocation with
// a wall-clock timeout and graceful-then-forceful termination.
package procrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultGracePeriod is the fixed window between SIGTERM and SIGKILL.
	// It is a constant, not derived from the collector's configured timeout.
	DefaultGracePeriod = 5 * time.Second

	// DefaultMaxOutputBytes caps each captured stream.
	DefaultMaxOutputBytes = 1 << 20
)

// Options controls a single process run.
type Options struct {
	Timeout        time.Duration // 0 = no timeout
	GracePeriod    time.Duration // 0 = DefaultGracePeriod
	WorkingDir     string
	Env            []string // nil = inherit the engine's environment
	MaxOutputBytes int      // 0 = DefaultMaxOutputBytes
}

// Result is the captured outcome of a completed (or terminated) process.
type Result struct {
	Stdout    string
	Stderr    string
	ExitCode  int // -1 when the process was terminated before exiting normally
	Duration  time.Duration
	Truncated bool
}

// Runner runs one child process per call.
//
// A non-zero exit is reported via Result.ExitCode, not as an error. The
// error return is reserved for the runner's own failure modes: ErrTimeout,
// ErrCancelled and *SpawnError. On timeout and cancellation the partial
// Result (captured output so far) is returned alongside the error.
type Runner interface {
	Run(ctx context.Context, command string, args []string, opts Options) (*Result, error)
}

// ExecRunner is the os/exec-backed Runner.
type ExecRunner struct {
	logger *zap.Logger
}

// NewExecRunner creates an ExecRunner.
func NewExecRunner(logger *zap.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

func (r *ExecRunner) Run(ctx context.Context, command string, args []string, opts Options) (*Result, error) {
	// Cancelled before spawn: nothing to kill, nothing captured.
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}

	maxBytes := opts.MaxOutputBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxOutputBytes
	}
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	var stdout, stderr bytes.Buffer
	outW := &limitedWriter{w: &stdout, limit: maxBytes}
	errW := &limitedWriter{w: &stderr, limit: maxBytes}

	cmd := exec.Command(command, args...)
	cmd.Stdout = outW
	cmd.Stderr = errW
	if opts.WorkingDir != "" {
		cmd.Dir = opts.WorkingDir
	}
	if opts.Env != nil {
		cmd.Env = opts.Env
	}
	// Collectors run under interpreters that fork (bash, python); put the
	// whole tree in its own process group so termination reaches every
	// descendant, not just the interpreter.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// A descendant that survives the child can keep the output pipes open
	// and stall Wait; give up on the pipes after the grace period.
	cmd.WaitDelay = grace

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Command: command, Err: err}
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	// The timeout clock starts at spawn, not at invocation.
	var timeoutC <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	var cause error
	select {
	case waitErr := <-waitDone:
		return r.finish(cmd, command, waitErr, &stdout, &stderr, outW, errW, start)
	case <-timeoutC:
		cause = ErrTimeout
	case <-ctx.Done():
		cause = ErrCancelled
	}

	r.terminate(command, cmd, waitDone, grace, cause)

	result := &Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		ExitCode:  -1,
		Duration:  time.Since(start),
		Truncated: outW.truncated || errW.truncated,
	}
	return result, cause
}

// terminate SIGTERMs the child's process group, waits out the grace period,
// then SIGKILLs the group. Returns once the child has been reaped; the
// WaitDelay set at spawn bounds any descendant still holding the pipes.
func (r *ExecRunner) terminate(command string, cmd *exec.Cmd, waitDone <-chan error, grace time.Duration, cause error) {
	pgid := cmd.Process.Pid // Setpgid makes the child the group leader

	r.logger.Warn("terminating collector process group",
		zap.String("command", command),
		zap.Int("pgid", pgid),
		zap.NamedError("cause", cause),
	)

	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil {
		// Likely already exited; fall through to the wait below.
		r.logger.Debug("SIGTERM failed", zap.Error(err))
	}

	graceTimer := time.NewTimer(grace)
	defer graceTimer.Stop()

	select {
	case <-waitDone:
		return
	case <-graceTimer.C:
		r.logger.Warn("grace period expired, killing process group",
			zap.String("command", command),
			zap.Int("pgid", pgid),
		)
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		<-waitDone
	}
}

func (r *ExecRunner) finish(cmd *exec.Cmd, command string, waitErr error, stdout, stderr *bytes.Buffer, outW, errW *limitedWriter, start time.Time) (*Result, error) {
	result := &Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Duration:  time.Since(start),
		Truncated: outW.truncated || errW.truncated,
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(waitErr, &exitErr):
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		case errors.Is(waitErr, exec.ErrWaitDelay):
			// The child exited but a backgrounded descendant kept the pipes
			// open past the wait delay; the exit status itself is known.
			result.ExitCode = cmd.ProcessState.ExitCode()
			return result, nil
		}
		result.ExitCode = -1
		return result, fmt.Errorf("wait %s: %w", command, waitErr)
	}

	result.ExitCode = 0
	return result, nil
}

// limitedWriter caps captured output so a chatty collector cannot exhaust memory.
type limitedWriter struct {
	w         *bytes.Buffer
	limit     int
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	remaining := lw.limit - lw.w.Len()
	if remaining <= 0 {
		lw.truncated = true
		return len(p), nil // swallow, keep the pipe drained
	}
	if len(p) > remaining {
		lw.truncated = true
		lw.w.Write(p[:remaining])
		return len(p), nil
	}
	return lw.w.Write(p)
}
