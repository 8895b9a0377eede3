package procrun

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned when the wall-clock timeout fired and the process
// was terminated. Distinct from a non-zero exit, which is not an error.
var ErrTimeout = errors.New("process timed out")

// ErrCancelled is returned when the caller's context was cancelled and the
// process was terminated through the same escalation path as a timeout.
var ErrCancelled = errors.New("process cancelled")

// SpawnError reports that the child process could not be started at all
// (binary not found, permission denied).
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
