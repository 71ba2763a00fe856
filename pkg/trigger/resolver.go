// Package trigger resolves the start block and initial payload for a
// run, given the graph and an execution mode.
package trigger

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/xde-mcp/sim-sub005/pkg/models"
	"github.com/xde-mcp/sim-sub005/pkg/registry"
)

// Mode is the entry kind of a run.
type Mode string

const (
	ModeManual Mode = "manual"
	ModeChat   Mode = "chat"
	ModeAPI    Mode = "api"
)

// ValidationError is the only failure shape trigger resolution produces.
// It always carries the offending block so callers can highlight it.
type ValidationError struct {
	BlockID   string
	BlockName string
	Message   string
}

func (e *ValidationError) Error() string {
	if e.BlockName != "" {
		return fmt.Sprintf("%s (block %q)", e.Message, e.BlockName)
	}

	return e.Message
}

// IsValidationError reports whether err is a trigger validation error.
func IsValidationError(err error) bool {
	var target *ValidationError

	return errors.As(err, &target)
}

// Resolution is the outcome of trigger resolution: exactly one start
// block and its synthesized input payload.
type Resolution struct {
	StartBlockID string
	Payload      map[string]any
}

type Resolver struct {
	registry *registry.Registry
	logger   *slog.Logger
}

func NewResolver(reg *registry.Registry, logger *slog.Logger) *Resolver {
	return &Resolver{
		registry: reg,
		logger:   logger.With("module", "trigger_resolver"),
	}
}

// Resolve picks the start block for the given mode and synthesizes its
// initial payload. Failures are always *ValidationError.
func (r *Resolver) Resolve(state *models.WorkflowState, mode Mode) (*Resolution, error) {
	switch mode {
	case ModeChat:
		return r.resolveChat(state)
	case ModeAPI:
		return r.resolveAPI(state)
	default:
		return r.resolveManual(state)
	}
}

// enabledOfType narrows BlocksOfType to enabled blocks; disabled triggers
// neither start runs nor count toward ambiguity.
func enabledOfType(state *models.WorkflowState, blockType string) []*models.Block {
	var out []*models.Block

	for _, block := range state.BlocksOfType(blockType) {
		if block.Enabled {
			out = append(out, block)
		}
	}

	return out
}

func (r *Resolver) resolveChat(state *models.WorkflowState) (*Resolution, error) {
	blocks := enabledOfType(state, models.BlockTypeChat)
	if len(blocks) == 0 {
		return nil, &ValidationError{Message: "no chat trigger block in workflow"}
	}

	// The chat payload itself arrives with the user message; resolution
	// only locates the entry point.
	return &Resolution{StartBlockID: blocks[0].ID, Payload: map[string]any{}}, nil
}

func (r *Resolver) resolveAPI(state *models.WorkflowState) (*Resolution, error) {
	blocks := enabledOfType(state, models.BlockTypeAPI)
	if len(blocks) == 0 {
		return nil, &ValidationError{Message: "no API trigger block in workflow"}
	}

	if len(blocks) > 1 {
		return nil, &ValidationError{
			BlockID:   blocks[1].ID,
			BlockName: blocks[1].Name,
			Message:   "multiple API trigger blocks, at most one is allowed",
		}
	}

	payload, err := r.synthesizePayload(blocks[0])
	if err != nil {
		return nil, err
	}

	return &Resolution{StartBlockID: blocks[0].ID, Payload: payload}, nil
}

func (r *Resolver) resolveManual(state *models.WorkflowState) (*Resolution, error) {
	candidates := r.startCandidates(state)
	if len(candidates) == 0 {
		return nil, &ValidationError{Message: "workflow has no valid start block"}
	}

	apiTriggers := enabledOfType(state, models.BlockTypeAPI)
	if len(apiTriggers) > 1 {
		return nil, &ValidationError{
			BlockID:   apiTriggers[1].ID,
			BlockName: apiTriggers[1].Name,
			Message:   "multiple API trigger blocks, at most one is allowed",
		}
	}

	winner := candidates[0]

	if !r.isLegacy(winner) && len(state.OutgoingEdges(winner.ID)) == 0 {
		return nil, &ValidationError{
			BlockID:   winner.ID,
			BlockName: winner.Name,
			Message:   "trigger block is not connected to any other block",
		}
	}

	payload, err := r.synthesizePayload(winner)
	if err != nil {
		return nil, err
	}

	return &Resolution{StartBlockID: winner.ID, Payload: payload}, nil
}

// startCandidates enumerates every block that can start a manual run,
// ranked best-first: trigger-category blocks, legacy starters and blocks
// explicitly switched into trigger mode.
func (r *Resolver) startCandidates(state *models.WorkflowState) []*models.Block {
	var candidates []*models.Block

	for _, block := range state.Blocks {
		if !block.Enabled {
			continue
		}

		def, err := r.registry.Get(block.Type)
		if err != nil {
			continue
		}

		if def.Category() == models.CategoryTrigger || block.TriggerMode {
			candidates = append(candidates, block)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		pi, pj := r.priority(candidates[i]), r.priority(candidates[j])
		if pi != pj {
			return pi > pj
		}

		return candidates[i].Name < candidates[j].Name
	})

	return candidates
}

func (r *Resolver) priority(block *models.Block) int {
	def, err := r.registry.Get(block.Type)
	if err != nil {
		return 0
	}

	if ranker, ok := def.(registry.TriggerRanker); ok {
		return ranker.TriggerPriority()
	}

	// Non-trigger blocks running in trigger mode rank below any real
	// trigger type.
	return 1
}

func (r *Resolver) isLegacy(block *models.Block) bool {
	return block.Type == models.BlockTypeStarter
}

// synthesizePayload builds the start block's input: mock payload
// providers replay their declared test data, input-format providers
// coerce each declared field's example value to its declared type.
func (r *Resolver) synthesizePayload(block *models.Block) (map[string]any, error) {
	def, err := r.registry.Get(block.Type)
	if err != nil {
		return nil, &ValidationError{BlockID: block.ID, BlockName: block.Name, Message: err.Error()}
	}

	if provider, ok := def.(registry.MockPayloadProvider); ok {
		payload, err := provider.MockPayload(block)
		if err != nil {
			return nil, &ValidationError{BlockID: block.ID, BlockName: block.Name, Message: err.Error()}
		}

		return payload, nil
	}

	if provider, ok := def.(registry.InputFormatProvider); ok {
		if fields, ok := provider.InputFormat(block); ok {
			payload := make(map[string]any, len(fields))
			for _, field := range fields {
				payload[field.Name] = coerceField(field)
			}

			return payload, nil
		}
	}

	return map[string]any{}, nil
}
