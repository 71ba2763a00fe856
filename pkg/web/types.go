package web

import "github.com/xde-mcp/sim-sub005/pkg/models"

// RunRequest starts a full run of the workflow.
type RunRequest struct {
	Mode  string         `json:"mode"            validate:"omitempty,oneof=manual chat api"`
	Input map[string]any `json:"input,omitempty"`
	Debug bool           `json:"debug,omitempty"`
}

// PartialRunRequest starts a run-from-block or run-until-block.
type PartialRunRequest struct {
	Mode  string         `json:"mode,omitempty"  validate:"omitempty,oneof=manual chat api"`
	Input map[string]any `json:"input,omitempty"`
}

// ExecutionStateResponse reports the controller's position.
type ExecutionStateResponse struct {
	WorkflowID    string   `json:"workflow_id"`
	State         string   `json:"state"`
	PendingBlocks []string `json:"pending_blocks,omitempty"`
	Streamed      string   `json:"streamed,omitempty"`
	Traversed     []string `json:"traversed_edges,omitempty"`
}

// ImportResponse carries the reconciled graph and any non-fatal
// diagnostics the import produced.
type ImportResponse struct {
	State       *models.WorkflowState `json:"state"`
	Diagnostics []string              `json:"diagnostics,omitempty"`
}
