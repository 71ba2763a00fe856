package document

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/xde-mcp/sim-sub005/pkg/identity"
	"github.com/xde-mcp/sim-sub005/pkg/models"
	"github.com/xde-mcp/sim-sub005/pkg/registry"
)

// Policy selects how declared node keys map to actual graph ids.
type Policy string

const (
	// PolicyFresh imports into an empty target: every node gets a brand
	// new id, nothing of the existing graph is preserved.
	PolicyFresh Policy = "fresh"

	// PolicyMerge imports into the open document: exactly one existing
	// start/trigger block keeps its identity, imported start nodes are
	// merged into it, and every other node gets a new id. The rest of
	// the existing graph is replaced.
	PolicyMerge Policy = "merge"
)

// Diagnostic is a non-fatal import finding. Unresolvable references are
// reported and dropped; the import continues.
type Diagnostic struct {
	Level   string `json:"level"` // "warning" or "error"
	NodeKey string `json:"node_key,omitempty"`
	Message string `json:"message"`
}

// Importer reconciles parsed documents into workflow graphs.
type Importer struct {
	identity *identity.Service
	registry *registry.Registry
	logger   *slog.Logger
}

func NewImporter(ids *identity.Service, reg *registry.Registry, logger *slog.Logger) *Importer {
	return &Importer{
		identity: ids,
		registry: reg,
		logger:   logger.With("module", "document_import"),
	}
}

// Import parses data and builds a new graph under the given policy.
// existing is only consulted under PolicyMerge.
func (im *Importer) Import(data []byte, policy Policy, existing *models.WorkflowState, workflowID string) (*models.WorkflowState, []Diagnostic, error) {
	doc, err := Parse(data)
	if err != nil {
		return nil, nil, err
	}

	var diags []Diagnostic

	keys := sortedKeys(doc.Blocks)

	// Drop blocks with unregistered types up front so nothing downstream
	// references them.
	valid := make(map[string]*DocBlock, len(doc.Blocks))

	for _, key := range keys {
		docBlock := doc.Blocks[key]
		if _, err := im.registry.Get(docBlock.Type); err != nil {
			diags = append(diags, Diagnostic{
				Level: "error", NodeKey: key,
				Message: fmt.Sprintf("unknown block type %q, block dropped", docBlock.Type),
			})

			continue
		}

		valid[key] = docBlock
	}

	keys = sortedKeys(valid)

	var surviving *models.Block

	if policy == PolicyMerge {
		surviving = pickSurvivingTrigger(existing)
		if surviving == nil {
			diags = append(diags, Diagnostic{
				Level:   "warning",
				Message: "merge import found no existing trigger to preserve, importing fresh",
			})
		}
	}

	// Map declared keys to actual ids. Under merge, every imported start
	// node collapses onto the surviving trigger's id.
	idMap := make(map[string]string, len(valid))

	for _, key := range keys {
		if surviving != nil && models.IsTriggerType(valid[key].Type) {
			idMap[key] = surviving.ID

			continue
		}

		idMap[key] = uuid.New().String()
	}

	out := models.NewWorkflowState(workflowID)

	takenNames := make([]string, 0, len(keys))

	for _, key := range keys {
		docBlock := valid[key]
		newID := idMap[key]

		if surviving != nil && newID == surviving.ID {
			// First start node seen creates the merged block from the
			// surviving identity; later ones union their params in.
			block, ok := out.Blocks[newID]
			if !ok {
				block = surviving.Clone()
				block.Type = docBlock.Type
				block.Position = docBlock.Position
				out.Blocks[newID] = block
				takenNames = append(takenNames, block.Name)
			}

			for inputID, value := range docBlock.Inputs {
				block.SetSubBlockValue(inputID, value)
			}

			continue
		}

		name := im.identity.UniqueName(docBlock.Type, docBlock.Name, takenNames)
		if models.NormalizeName(name) != models.NormalizeName(docBlock.Name) {
			diags = append(diags, Diagnostic{
				Level: "warning", NodeKey: key,
				Message: fmt.Sprintf("name %q already taken, renamed to %q", docBlock.Name, name),
			})
		}

		takenNames = append(takenNames, name)

		enabled := true
		if docBlock.Enabled != nil {
			enabled = *docBlock.Enabled
		}

		block := &models.Block{
			ID:          newID,
			Type:        docBlock.Type,
			Name:        name,
			Position:    docBlock.Position,
			Enabled:     enabled,
			TriggerMode: docBlock.TriggerMode,
			SubBlocks:   make(map[string]*models.SubBlock, len(docBlock.Inputs)),
		}

		for inputID, value := range docBlock.Inputs {
			block.SetSubBlockValue(inputID, value)
		}

		out.Blocks[newID] = block
	}

	diags = append(diags, im.resolveParents(doc, valid, keys, idMap, out)...)
	diags = append(diags, im.resolveEdges(doc, idMap, out)...)
	diags = append(diags, im.resolveContainers(doc, idMap, out)...)

	return out, diags, nil
}

// resolveParents maps parent keys and breaks cyclic parent chains
// deterministically in key order.
func (im *Importer) resolveParents(doc *Document, valid map[string]*DocBlock, keys []string, idMap map[string]string, out *models.WorkflowState) []Diagnostic {
	var diags []Diagnostic

	parents := make(map[string]string, len(keys)) // doc key -> doc key

	for _, key := range keys {
		parent := valid[key].Parent
		if parent == "" {
			continue
		}

		if _, ok := idMap[parent]; !ok {
			diags = append(diags, Diagnostic{
				Level: "warning", NodeKey: key,
				Message: fmt.Sprintf("parent %q not found, relationship dropped", parent),
			})

			continue
		}

		parents[key] = parent
	}

	// Break cycles: walking up from each key in order, a chain that
	// returns to its origin loses the origin's parent link.
	for _, key := range keys {
		seen := map[string]bool{key: true}
		current := parents[key]

		for current != "" {
			if seen[current] {
				diags = append(diags, Diagnostic{
					Level: "warning", NodeKey: key,
					Message: "cyclic parent chain broken",
				})
				delete(parents, key)

				break
			}

			seen[current] = true
			current = parents[current]
		}
	}

	for key, parent := range parents {
		out.Blocks[idMap[key]].ParentID = idMap[parent]
	}

	return diags
}

func (im *Importer) resolveEdges(doc *Document, idMap map[string]string, out *models.WorkflowState) []Diagnostic {
	var diags []Diagnostic

	for _, docEdge := range doc.Edges {
		source, sourceOK := idMap[docEdge.Source]
		target, targetOK := idMap[docEdge.Target]

		if !sourceOK || !targetOK {
			diags = append(diags, Diagnostic{
				Level:   "warning",
				Message: fmt.Sprintf("edge %s -> %s references an unknown node, edge dropped", docEdge.Source, docEdge.Target),
			})

			continue
		}

		if targetBlock, ok := out.Blocks[target]; ok && models.IsTriggerType(targetBlock.Type) {
			diags = append(diags, Diagnostic{
				Level:   "warning",
				Message: fmt.Sprintf("edge %s -> %s targets a trigger block, edge dropped", docEdge.Source, docEdge.Target),
			})

			continue
		}

		out.Edges = append(out.Edges, &models.Edge{
			ID:           uuid.New().String(),
			Source:       source,
			Target:       target,
			SourceHandle: docEdge.SourceHandle,
			TargetHandle: docEdge.TargetHandle,
		})
	}

	return diags
}

func (im *Importer) resolveContainers(doc *Document, idMap map[string]string, out *models.WorkflowState) []Diagnostic {
	var diags []Diagnostic

	mapMembers := func(containerKey string, nodes []string) []string {
		var members []string

		for _, memberKey := range nodes {
			memberID, ok := idMap[memberKey]
			if !ok {
				diags = append(diags, Diagnostic{
					Level: "warning", NodeKey: containerKey,
					Message: fmt.Sprintf("container member %q not found, dropped", memberKey),
				})

				continue
			}

			members = append(members, memberID)

			// Membership stays symmetric with the member's parent link.
			if member, ok := out.Blocks[memberID]; ok && member.ParentID == "" {
				member.ParentID = idMap[containerKey]
			}
		}

		return members
	}

	for _, containerKey := range sortedKeys(doc.Loops) {
		containerID, ok := idMap[containerKey]
		if !ok {
			diags = append(diags, Diagnostic{
				Level: "warning", NodeKey: containerKey,
				Message: "loop declaration has no matching block, dropped",
			})

			continue
		}

		docLoop := doc.Loops[containerKey]
		out.Loops[containerID] = &models.Loop{
			ID:           containerID,
			Nodes:        mapMembers(containerKey, docLoop.Nodes),
			Iterations:   docLoop.Iterations,
			LoopType:     docLoop.LoopType,
			ForEachItems: docLoop.ForEachItems,
		}
	}

	for _, containerKey := range sortedKeys(doc.Parallels) {
		containerID, ok := idMap[containerKey]
		if !ok {
			diags = append(diags, Diagnostic{
				Level: "warning", NodeKey: containerKey,
				Message: "parallel declaration has no matching block, dropped",
			})

			continue
		}

		docParallel := doc.Parallels[containerKey]
		out.Parallels[containerID] = &models.Parallel{
			ID:           containerID,
			Nodes:        mapMembers(containerKey, docParallel.Nodes),
			Count:        docParallel.Count,
			Distribution: docParallel.Distribution,
		}
	}

	return diags
}

// pickSurvivingTrigger chooses the one existing trigger whose identity a
// merge import preserves: the explicit start block when present, else
// the first trigger in id order.
func pickSurvivingTrigger(existing *models.WorkflowState) *models.Block {
	if existing == nil {
		return nil
	}

	var candidates []*models.Block

	for _, block := range existing.Blocks {
		if models.IsTriggerType(block.Type) {
			candidates = append(candidates, block)
		}
	}

	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		iStart := candidates[i].Type == models.BlockTypeStart || candidates[i].Type == models.BlockTypeStarter
		jStart := candidates[j].Type == models.BlockTypeStart || candidates[j].Type == models.BlockTypeStarter

		if iStart != jStart {
			return iStart
		}

		return candidates[i].ID < candidates[j].ID
	})

	return candidates[0]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
