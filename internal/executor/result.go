package executor

import "time"

// ErrorKind classifies a failed execution so callers can distinguish
// failure modes without parsing the error message.
type ErrorKind string

const (
	KindNone          ErrorKind = ""
	KindConfig        ErrorKind = "config"         // disabled, file missing, malformed input payload
	KindNotFound      ErrorKind = "not_found"      // collector not in the catalog
	KindInvalidInput  ErrorKind = "invalid_input"  // input schema validation failed
	KindSpawnError    ErrorKind = "spawn_error"    // binary missing, permission denied
	KindTimeout       ErrorKind = "timeout"        // wall-clock timeout fired
	KindCancelled     ErrorKind = "cancelled"      // caller cancelled mid-flight
	KindNonZeroExit   ErrorKind = "nonzero_exit"   // process exited non-zero
	KindInvalidOutput ErrorKind = "invalid_output" // output schema validation failed
)

// ExecutionResult is the outcome of one collector run. Every expected
// failure mode is captured here with Success=false rather than surfaced as
// an error; it is ephemeral and owned by the caller.
type ExecutionResult struct {
	CollectorID   string    `json:"collectorId"`
	CollectorName string    `json:"collectorName"`
	ExecutionID   string    `json:"executionId"`
	Success       bool      `json:"success"`
	Output        any       `json:"output,omitempty"` // decoded JSON or raw trimmed stdout
	Error         string    `json:"error,omitempty"`
	ErrorKind     ErrorKind `json:"errorKind,omitempty"`
	ExitCode      *int      `json:"exitCode,omitempty"`
	Stdout        string    `json:"stdout,omitempty"`
	Stderr        string    `json:"stderr,omitempty"`
	DurationMs    int64     `json:"durationMs"`
	StartedAt     time.Time `json:"startedAt"`
	CompletedAt   time.Time `json:"completedAt"`
}

// ChainResult aggregates the results of one chain invocation.
// Success is the AND across all members.
type ChainResult struct {
	ExecutionID string             `json:"executionId"`
	Results     []*ExecutionResult `json:"results"`
	Success     bool               `json:"success"`
	DurationMs  int64              `json:"durationMs"`
	StartedAt   time.Time          `json:"startedAt"`
	CompletedAt time.Time          `json:"completedAt"`
}

// Options tunes a single execution. The zero value keeps both validations
// on, uses the collector's own timeout and runs in the collector's directory.
type Options struct {
	TimeoutMs            int    // overrides the collector timeout when > 0
	SkipInputValidation  bool   // validateInput defaults to true
	SkipOutputValidation bool   // validateOutput defaults to true
	WorkingDirectory     string // default: directory of the collector file
}
