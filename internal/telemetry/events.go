package telemetry

import "time"

// EventWriter is the interface for writing collector execution events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *ExecutionEvent)
	Close()
}

// ExecutionEvent represents a single collector execution to be persisted.
type ExecutionEvent struct {
	ExecutionID      string
	ChainExecutionID string // empty for standalone runs
	CollectorID      string
	CollectorName    string
	Timestamp        time.Time
	Success          bool
	ErrorKind        string
	Error            string
	ExitCode         int32
	DurationMs       int64
	StdoutBytes      int32
	StderrBytes      int32
	Source           string // "api", "cli"
}
