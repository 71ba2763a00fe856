package snapshot

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSnapshotNotFound indicates no snapshot exists for the given workflow.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// Error wraps snapshot-related failures with operation context.
type Error struct {
	Op         string // Operation being performed (e.g., "Load", "Save", "Clear")
	WorkflowID string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s operation failed for snapshot %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a snapshot error with operation context.
func NewError(op, workflowID string, err error) *Error {
	return &Error{Op: op, WorkflowID: workflowID, Err: err}
}

// IsNotFound checks if an error indicates a missing snapshot.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSnapshotNotFound)
}

// IsStale reports whether an execution failure means the stored snapshot
// no longer matches the workflow graph. Runs that start from a block rely
// on prior state; when the graph changed underneath it, the run fails
// with one of these shapes and the stale snapshot must be cleared so the
// next run starts fresh.
func IsStale(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	return strings.Contains(msg, "block not found") ||
		strings.Contains(msg, "upstream dependency not executed")
}
