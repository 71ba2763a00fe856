// Package models defines the core domain models for the block-based workflow graph.
package models

import "strings"

// BlockCategory represents the category of a block type.
type BlockCategory string

const (
	CategoryBlock     BlockCategory = "block"     // Regular executable blocks (agent, api, function, ...)
	CategoryTrigger   BlockCategory = "trigger"   // Trigger blocks (start, chat, schedule, webhook, api)
	CategoryContainer BlockCategory = "container" // Container blocks (loop, parallel)
)

// Built-in block types. The set is closed: the registry refuses unknown types.
const (
	BlockTypeStarter   = "starter" // Legacy single-start block
	BlockTypeStart     = "start"
	BlockTypeAPI       = "api_trigger"
	BlockTypeChat      = "chat_trigger"
	BlockTypeSchedule  = "schedule"
	BlockTypeWebhook   = "webhook"
	BlockTypeAgent     = "agent"
	BlockTypeAPICall   = "api"
	BlockTypeFunction  = "function"
	BlockTypeCondition = "condition"
	BlockTypeRouter    = "router"
	BlockTypeLoop      = "loop"
	BlockTypeParallel  = "parallel"
	BlockTypeResponse  = "response"
	BlockTypeWorkflow  = "workflow" // Sub-workflow invocation
)

// Position is the canvas position of a block.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// SubBlock holds one declared parameter of a block together with its
// current value. Values may embed <name.path> cross-references to the
// outputs of other blocks; those references are kept valid by the
// identity service on rename and regeneration.
type SubBlock struct {
	ID    string `json:"id"             yaml:"id"`
	Type  string `json:"type"           yaml:"type"`
	Value any    `json:"value,omitempty" yaml:"value,omitempty"`
}

// Block represents a node instance in a workflow graph.
type Block struct {
	ID          string               `json:"id"                     yaml:"id"          validate:"required"`
	Type        string               `json:"type"                   yaml:"type"        validate:"required"`
	Name        string               `json:"name"                   yaml:"name"        validate:"required,min=1"`
	Position    Position             `json:"position"               yaml:"position"`
	ParentID    string               `json:"parent_id,omitempty"    yaml:"parent_id,omitempty"`
	Extent      string               `json:"extent,omitempty"       yaml:"extent,omitempty"`
	Enabled     bool                 `json:"enabled"                yaml:"enabled"`
	TriggerMode bool                 `json:"trigger_mode,omitempty" yaml:"trigger_mode,omitempty"`
	SubBlocks   map[string]*SubBlock `json:"sub_blocks"             yaml:"sub_blocks"`
	Outputs     map[string]any       `json:"outputs,omitempty"      yaml:"outputs,omitempty"`
	Data        map[string]any       `json:"data,omitempty"         yaml:"data,omitempty"`
}

// IsContainer reports whether the block is a loop or parallel container.
func (b *Block) IsContainer() bool {
	return b.Type == BlockTypeLoop || b.Type == BlockTypeParallel
}

// SubBlockValue returns the current value of a parameter, or nil.
func (b *Block) SubBlockValue(id string) any {
	sb, ok := b.SubBlocks[id]
	if !ok {
		return nil
	}

	return sb.Value
}

// SetSubBlockValue sets a parameter value, creating the SubBlock if the
// parameter was not declared yet.
func (b *Block) SetSubBlockValue(id string, value any) {
	if b.SubBlocks == nil {
		b.SubBlocks = make(map[string]*SubBlock)
	}

	sb, ok := b.SubBlocks[id]
	if !ok {
		sb = &SubBlock{ID: id, Type: "short-input"}
		b.SubBlocks[id] = sb
	}

	sb.Value = value
}

// Clone returns a deep copy of the block.
func (b *Block) Clone() *Block {
	clone := *b

	clone.SubBlocks = make(map[string]*SubBlock, len(b.SubBlocks))
	for id, sb := range b.SubBlocks {
		sbCopy := *sb
		sbCopy.Value = deepCopyValue(sb.Value)
		clone.SubBlocks[id] = &sbCopy
	}

	clone.Outputs = deepCopyMap(b.Outputs)
	clone.Data = deepCopyMap(b.Data)

	return &clone
}

// NormalizeName is the canonical form used for name uniqueness and for
// resolving <name.path> references: lowercased with all whitespace removed.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), ""))
}

func deepCopyValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return deepCopyMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = deepCopyValue(item)
		}

		return out
	default:
		return v
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}

	return out
}
