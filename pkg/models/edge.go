package models

// Source handle kinds distinguish the different outputs of one block.
const (
	HandleSource        = "source"
	HandleError         = "error"
	HandleCondition     = "condition" // Suffixed with the condition id: "condition-<id>"
	HandleLoopStart     = "loop-start-source"
	HandleLoopEnd       = "loop-end-source"
	HandleParallelStart = "parallel-start-source"
	HandleParallelEnd   = "parallel-end-source"
)

// Edge connects two blocks. SourceHandle selects which output of the
// source block the edge carries (success, error, a condition branch, or
// a container boundary).
type Edge struct {
	ID           string `json:"id"                      yaml:"id"`
	Source       string `json:"source"                  yaml:"source"        validate:"required"`
	Target       string `json:"target"                  yaml:"target"        validate:"required"`
	SourceHandle string `json:"source_handle,omitempty" yaml:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty" yaml:"target_handle,omitempty"`
}
