package models

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// WorkflowState is the full graph of one workflow: blocks, edges and
// container membership. It is owned by the editing session and mutated
// only through the identity service's explicit operations.
type WorkflowState struct {
	WorkflowID string               `json:"workflow_id"         yaml:"workflow_id"`
	Blocks     map[string]*Block    `json:"blocks"              yaml:"blocks"`
	Edges      []*Edge              `json:"edges"               yaml:"edges"`
	Loops      map[string]*Loop     `json:"loops,omitempty"     yaml:"loops,omitempty"`
	Parallels  map[string]*Parallel `json:"parallels,omitempty" yaml:"parallels,omitempty"`
}

// NewWorkflowState returns an empty graph for the given workflow.
func NewWorkflowState(workflowID string) *WorkflowState {
	return &WorkflowState{
		WorkflowID: workflowID,
		Blocks:     make(map[string]*Block),
		Edges:      make([]*Edge, 0),
		Loops:      make(map[string]*Loop),
		Parallels:  make(map[string]*Parallel),
	}
}

// IsTriggerType reports whether a block type belongs to the trigger
// category. Edges must never target a trigger-typed block.
func IsTriggerType(blockType string) bool {
	switch blockType {
	case BlockTypeStarter, BlockTypeStart, BlockTypeAPI, BlockTypeChat,
		BlockTypeSchedule, BlockTypeWebhook:
		return true
	default:
		return false
	}
}

// BlockByNormalizedName finds a block whose normalized name matches the
// normalized form of name.
func (s *WorkflowState) BlockByNormalizedName(name string) (*Block, bool) {
	want := NormalizeName(name)
	for _, block := range s.Blocks {
		if NormalizeName(block.Name) == want {
			return block, true
		}
	}

	return nil, false
}

// BlocksOfType returns all blocks with the given type.
func (s *WorkflowState) BlocksOfType(blockType string) []*Block {
	var out []*Block

	for _, block := range s.Blocks {
		if block.Type == blockType {
			out = append(out, block)
		}
	}

	return out
}

// IncomingEdges returns the edges terminating at the given block.
func (s *WorkflowState) IncomingEdges(blockID string) []*Edge {
	var out []*Edge

	for _, edge := range s.Edges {
		if edge.Target == blockID {
			out = append(out, edge)
		}
	}

	return out
}

// OutgoingEdges returns the edges leaving the given block.
func (s *WorkflowState) OutgoingEdges(blockID string) []*Edge {
	var out []*Edge

	for _, edge := range s.Edges {
		if edge.Source == blockID {
			out = append(out, edge)
		}
	}

	return out
}

// ContainerMembers returns the member ids of a loop or parallel
// container, or nil when the id is not a container.
func (s *WorkflowState) ContainerMembers(containerID string) []string {
	if loop, ok := s.Loops[containerID]; ok {
		return loop.Nodes
	}

	if parallel, ok := s.Parallels[containerID]; ok {
		return parallel.Nodes
	}

	return nil
}

// Clone returns a deep copy of the graph.
func (s *WorkflowState) Clone() *WorkflowState {
	clone := NewWorkflowState(s.WorkflowID)

	for id, block := range s.Blocks {
		clone.Blocks[id] = block.Clone()
	}

	for _, edge := range s.Edges {
		edgeCopy := *edge
		clone.Edges = append(clone.Edges, &edgeCopy)
	}

	for id, loop := range s.Loops {
		loopCopy := *loop
		loopCopy.Nodes = append([]string(nil), loop.Nodes...)
		clone.Loops[id] = &loopCopy
	}

	for id, parallel := range s.Parallels {
		parallelCopy := *parallel
		parallelCopy.Nodes = append([]string(nil), parallel.Nodes...)
		clone.Parallels[id] = &parallelCopy
	}

	return clone
}

// Validate checks the structural invariants of the graph: struct tags,
// edge endpoints, no trigger targets, unique normalized names and
// symmetric container membership.
func (s *WorkflowState) Validate() error {
	validate := validator.New()

	seenNames := make(map[string]string, len(s.Blocks))

	for id, block := range s.Blocks {
		if err := validate.Struct(block); err != nil {
			return fmt.Errorf("block %s: %w", id, err)
		}

		if block.ID != id {
			return fmt.Errorf("block %s: id mismatch with map key %s", block.ID, id)
		}

		normalized := NormalizeName(block.Name)
		if other, dup := seenNames[normalized]; dup {
			return fmt.Errorf("block %s: name %q collides with block %s", id, block.Name, other)
		}

		seenNames[normalized] = id

		if block.ParentID != "" {
			if _, ok := s.Blocks[block.ParentID]; !ok {
				return fmt.Errorf("block %s: parent %s does not exist", id, block.ParentID)
			}
		}
	}

	for _, edge := range s.Edges {
		if err := validate.Struct(edge); err != nil {
			return fmt.Errorf("edge %s: %w", edge.ID, err)
		}

		if _, ok := s.Blocks[edge.Source]; !ok {
			return fmt.Errorf("edge %s: source %s does not exist", edge.ID, edge.Source)
		}

		target, ok := s.Blocks[edge.Target]
		if !ok {
			return fmt.Errorf("edge %s: target %s does not exist", edge.ID, edge.Target)
		}

		if IsTriggerType(target.Type) {
			return fmt.Errorf("edge %s: target %s is a trigger block", edge.ID, edge.Target)
		}
	}

	for containerID, members := range s.containerMemberships() {
		if _, ok := s.Blocks[containerID]; !ok {
			return fmt.Errorf("container %s: no matching block", containerID)
		}

		for _, memberID := range members {
			member, ok := s.Blocks[memberID]
			if !ok {
				return fmt.Errorf("container %s: member %s does not exist", containerID, memberID)
			}

			if member.ParentID != containerID {
				return fmt.Errorf("container %s: member %s has parent %q", containerID, memberID, member.ParentID)
			}
		}
	}

	return nil
}

func (s *WorkflowState) containerMemberships() map[string][]string {
	memberships := make(map[string][]string, len(s.Loops)+len(s.Parallels))

	for id, loop := range s.Loops {
		memberships[id] = loop.Nodes
	}

	for id, parallel := range s.Parallels {
		memberships[id] = parallel.Nodes
	}

	return memberships
}
