package execution

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xde-mcp/sim-sub005/pkg/trigger"
)

// genericErrorMessage is the last-resort user-facing message. Error
// normalization must never surface empty or placeholder text.
const genericErrorMessage = "an unknown error occurred during execution"

// BlockRuntimeError is a failure reported by one block at run time. It
// does not necessarily abort sibling branches.
type BlockRuntimeError struct {
	BlockID   string
	BlockName string
	Err       error
}

func (e *BlockRuntimeError) Error() string {
	return fmt.Sprintf("block %s failed: %v", e.BlockName, e.Err)
}

func (e *BlockRuntimeError) Unwrap() error {
	return e.Err
}

// TransportError is a delivery-level failure. A user-initiated cancel
// is deliberately not surfaced as an error.
type TransportError struct {
	UserCancelled bool
	Err           error
}

func (e *TransportError) Error() string {
	if e.UserCancelled {
		return "execution cancelled"
	}

	return fmt.Sprintf("transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// SnapshotInvalidationError means the stored snapshot no longer matches
// the graph; the stale snapshot has been cleared and the run must be
// redone from the start.
type SnapshotInvalidationError struct {
	WorkflowID string
	Err        error
}

func (e *SnapshotInvalidationError) Error() string {
	return fmt.Sprintf("workflow %s changed since the last run, stored state was discarded: %v", e.WorkflowID, e.Err)
}

func (e *SnapshotInvalidationError) Unwrap() error {
	return e.Err
}

// IsSnapshotInvalidation reports whether err carries a cleared-snapshot
// failure.
func IsSnapshotInvalidation(err error) bool {
	var target *SnapshotInvalidationError

	return errors.As(err, &target)
}

// normalizeError is the single funnel every surfaced error passes
// through: structured messages first, then the nested error text, then
// the fixed generic fallback.
func normalizeError(err error) string {
	if err == nil {
		return genericErrorMessage
	}

	var validation *trigger.ValidationError
	if errors.As(err, &validation) && validation.Message != "" {
		return validation.Message
	}

	var blockErr *BlockRuntimeError
	if errors.As(err, &blockErr) {
		return blockErr.Error()
	}

	msg := strings.TrimSpace(err.Error())
	if msg == "" || msg == "<nil>" || strings.Contains(msg, "undefined") {
		return genericErrorMessage
	}

	return msg
}
