// Package identity generates and remaps block identities for workflow
// duplication, copy/paste and document import, keeping names unique and
// string-embedded cross-references valid across the transform.
package identity

import (
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/xde-mcp/sim-sub005/pkg/models"
	"github.com/xde-mcp/sim-sub005/pkg/reference"
	"github.com/xde-mcp/sim-sub005/pkg/registry"
)

// Trigger runtime parameters are externally assigned (webhook paths,
// provider-side identifiers) and must not survive workflow duplication.
var triggerRuntimeParams = []string{"webhookPath", "webhookId", "webhookSecret", "scheduleId"}

// Offsets larger than this look like a viewport-sized paste jump; when
// pasting into an existing container they are replaced by a small
// default so members stay near their siblings.
const (
	maxContainerOffset     = 200.0
	defaultContainerOffset = 30.0
)

type Service struct {
	registry *registry.Registry
	logger   *slog.Logger
}

func NewService(reg *registry.Registry, logger *slog.Logger) *Service {
	return &Service{
		registry: reg,
		logger:   logger.With("module", "identity"),
	}
}

// RegenerateWorkflowIDs returns a structurally isomorphic copy of the
// graph in which every block, edge and container carries a fresh id.
// Parent references are remapped alongside; a parent missing from the
// graph is dropped. When clearTriggerRuntime is set, externally assigned
// trigger runtime values are nulled in the copy.
func (s *Service) RegenerateWorkflowIDs(state *models.WorkflowState, clearTriggerRuntime bool) *models.WorkflowState {
	idMap := make(map[string]string, len(state.Blocks))
	for oldID := range state.Blocks {
		idMap[oldID] = uuid.New().String()
	}

	out := models.NewWorkflowState(state.WorkflowID)

	for oldID, block := range state.Blocks {
		clone := block.Clone()
		clone.ID = idMap[oldID]

		if block.ParentID != "" {
			if newParent, ok := idMap[block.ParentID]; ok {
				clone.ParentID = newParent
			} else {
				s.logger.Warn("Dropping dangling parent reference",
					"block_id", oldID, "parent_id", block.ParentID)
				clone.ParentID = ""
				clone.Extent = ""
			}
		}

		if clearTriggerRuntime && models.IsTriggerType(block.Type) {
			for _, param := range triggerRuntimeParams {
				if _, ok := clone.SubBlocks[param]; ok {
					clone.SubBlocks[param].Value = nil
				}
			}
		}

		out.Blocks[clone.ID] = clone
	}

	for _, edge := range state.Edges {
		source, sourceOK := idMap[edge.Source]
		target, targetOK := idMap[edge.Target]

		if !sourceOK || !targetOK {
			s.logger.Warn("Dropping edge with unknown endpoint", "edge_id", edge.ID)

			continue
		}

		out.Edges = append(out.Edges, &models.Edge{
			ID:           uuid.New().String(),
			Source:       source,
			Target:       target,
			SourceHandle: edge.SourceHandle,
			TargetHandle: edge.TargetHandle,
		})
	}

	for oldID, loop := range state.Loops {
		newLoop := *loop
		newLoop.ID = idMap[oldID]
		newLoop.Nodes = remapIDs(loop.Nodes, idMap)
		out.Loops[newLoop.ID] = &newLoop
	}

	for oldID, parallel := range state.Parallels {
		newParallel := *parallel
		newParallel.ID = idMap[oldID]
		newParallel.Nodes = remapIDs(parallel.Nodes, idMap)
		out.Parallels[newParallel.ID] = &newParallel
	}

	return out
}

// PasteRequest carries the blocks being duplicated or pasted and the
// target graph they land in. Blocks is ordered: naming is sequential, so
// the second copy of "Agent" becomes "Agent 2" even when "Agent 1" was
// minted a moment earlier in the same paste.
type PasteRequest struct {
	Blocks           []*models.Block
	Edges            []*models.Edge
	Loops            map[string]*models.Loop
	Parallels        map[string]*models.Parallel
	Offset           models.Position
	Target           *models.WorkflowState
	LockedContainers map[string]bool
}

// PasteResult is the regenerated material, ready to merge into the
// target graph.
type PasteResult struct {
	Blocks    []*models.Block
	Edges     []*models.Edge
	Loops     map[string]*models.Loop
	Parallels map[string]*models.Parallel
	IDMap     map[string]string // old block id -> new block id
	NameMap   map[string]string // normalized old name -> new name
}

// RegenerateBlockIDs remaps identities for duplicate/paste into a
// possibly non-empty target graph: fresh ids, sequentially unique names,
// the three-way position and parent rules, and exact cross-reference
// rewriting for every renamed block.
func (s *Service) RegenerateBlockIDs(req PasteRequest) *PasteResult {
	result := &PasteResult{
		Loops:     make(map[string]*models.Loop),
		Parallels: make(map[string]*models.Parallel),
		IDMap:     make(map[string]string, len(req.Blocks)),
		NameMap:   make(map[string]string, len(req.Blocks)),
	}

	copiedSet := make(map[string]bool, len(req.Blocks))
	for _, block := range req.Blocks {
		copiedSet[block.ID] = true
	}

	takenNames := make([]string, 0, len(req.Target.Blocks)+len(req.Blocks))
	for _, existing := range req.Target.Blocks {
		takenNames = append(takenNames, existing.Name)
	}

	// First pass: mint ids, names and positions.
	for _, block := range req.Blocks {
		clone := block.Clone()
		clone.ID = uuid.New().String()
		result.IDMap[block.ID] = clone.ID

		newName := s.UniqueName(block.Type, block.Name, takenNames)
		if newName != block.Name {
			result.NameMap[models.NormalizeName(block.Name)] = newName
		}

		clone.Name = newName
		takenNames = append(takenNames, newName)

		clone.Position = s.pastePosition(block, req, copiedSet)

		result.Blocks = append(result.Blocks, clone)
	}

	// Second pass: remap parents with the same three-way rule.
	for i, block := range req.Blocks {
		clone := result.Blocks[i]

		switch {
		case block.ParentID == "":
			// Top-level stays top-level.
		case copiedSet[block.ParentID]:
			clone.ParentID = result.IDMap[block.ParentID]
		case s.existingUnlockedContainer(req, block.ParentID):
			clone.ParentID = block.ParentID
		default:
			clone.ParentID = ""
			clone.Extent = ""
		}
	}

	for _, edge := range req.Edges {
		source, sourceOK := result.IDMap[edge.Source]
		target, targetOK := result.IDMap[edge.Target]

		if !sourceOK || !targetOK {
			continue
		}

		result.Edges = append(result.Edges, &models.Edge{
			ID:           uuid.New().String(),
			Source:       source,
			Target:       target,
			SourceHandle: edge.SourceHandle,
			TargetHandle: edge.TargetHandle,
		})
	}

	for oldID, loop := range req.Loops {
		newID, ok := result.IDMap[oldID]
		if !ok {
			continue
		}

		newLoop := *loop
		newLoop.ID = newID
		newLoop.Nodes = remapIDs(loop.Nodes, result.IDMap)
		result.Loops[newID] = &newLoop
	}

	for oldID, parallel := range req.Parallels {
		newID, ok := result.IDMap[oldID]
		if !ok {
			continue
		}

		newParallel := *parallel
		newParallel.ID = newID
		newParallel.Nodes = remapIDs(parallel.Nodes, result.IDMap)
		result.Parallels[newID] = &newParallel
	}

	// Rewrite <oldName.path> references to the new names, deep through
	// nested values.
	if len(result.NameMap) > 0 {
		for _, clone := range result.Blocks {
			for _, sb := range clone.SubBlocks {
				sb.Value = reference.RewriteValue(sb.Value, result.NameMap)
			}
		}
	}

	return result
}

// pastePosition applies the three-way offset rule: members of a copied
// container keep their relative position, members landing in an existing
// container get a capped offset, everything else gets the full offset.
func (s *Service) pastePosition(block *models.Block, req PasteRequest, copiedSet map[string]bool) models.Position {
	if block.ParentID != "" && copiedSet[block.ParentID] {
		return block.Position
	}

	if block.ParentID != "" && s.existingUnlockedContainer(req, block.ParentID) {
		offset := req.Offset
		if math.Abs(offset.X) > maxContainerOffset || math.Abs(offset.Y) > maxContainerOffset {
			offset = models.Position{X: defaultContainerOffset, Y: defaultContainerOffset}
		}

		return models.Position{X: block.Position.X + offset.X, Y: block.Position.Y + offset.Y}
	}

	return models.Position{X: block.Position.X + req.Offset.X, Y: block.Position.Y + req.Offset.Y}
}

func (s *Service) existingUnlockedContainer(req PasteRequest, containerID string) bool {
	target, ok := req.Target.Blocks[containerID]
	if !ok || !target.IsContainer() {
		return false
	}

	return !req.LockedContainers[containerID]
}

func remapIDs(ids []string, idMap map[string]string) []string {
	out := make([]string, 0, len(ids))

	for _, id := range ids {
		if newID, ok := idMap[id]; ok {
			out = append(out, newID)
		}
	}

	return out
}
