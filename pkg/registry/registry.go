// Package registry maps the closed set of block types to descriptors
// carrying their parameter schema, output schema and trigger behavior.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/xeipuuv/gojsonschema"

	"github.com/xde-mcp/sim-sub005/pkg/models"
)

// Definition describes one block type. Optional behavior is expressed
// through the capability interfaces below instead of duck typing.
type Definition interface {
	// Type returns the unique type discriminator for this block type.
	Type() string

	// DisplayName returns the default human-readable block name.
	DisplayName() string

	// Category returns whether this is a trigger, container or regular block.
	Category() models.BlockCategory

	// Outputs returns the schema of what downstream blocks may reference.
	Outputs() map[string]any

	// ConfigSchema returns the JSON schema for the block's parameters.
	ConfigSchema() map[string]any
}

// FixedNamer marks block types whose name is pinned and never suffixed
// by the unique-name algorithm ("Start", "Response").
type FixedNamer interface {
	FixedName() string
}

// TriggerRanker orders trigger candidates during manual start resolution.
// Higher wins.
type TriggerRanker interface {
	TriggerPriority() int
}

// MockPayloadProvider is implemented by trigger types whose manual runs
// need a payload synthesized from the block's own declared test data.
type MockPayloadProvider interface {
	MockPayload(block *models.Block) (map[string]any, error)
}

// InputField is one declared field of a structured trigger input format.
type InputField struct {
	Name  string
	Type  string
	Value any
}

// InputFormatProvider is implemented by trigger types that expose a
// structured input-format parameter. Manual payloads are built by
// coercing each declared field's example value to its declared type.
type InputFormatProvider interface {
	InputFormat(block *models.Block) ([]InputField, bool)
}

// ConfigValidator is implemented by block types with validation beyond
// what the JSON schema can express (e.g. cron expressions).
type ConfigValidator interface {
	ValidateConfig(block *models.Block) error
}

// Registry holds the closed set of registered block definitions.
type Registry struct {
	logger      *slog.Logger
	definitions map[string]Definition
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:      logger,
		definitions: make(map[string]Definition),
	}
}

func (r *Registry) Register(def Definition) {
	r.definitions[def.Type()] = def
}

// Get returns the definition for a block type.
func (r *Registry) Get(blockType string) (Definition, error) {
	def, ok := r.definitions[blockType]
	if !ok {
		return nil, fmt.Errorf("block type %q not registered", blockType)
	}

	return def, nil
}

// MustGet panics on unknown types; reserved for the built-in set.
func (r *Registry) MustGet(blockType string) Definition {
	def, err := r.Get(blockType)
	if err != nil {
		panic(err)
	}

	return def
}

// Types returns all registered type discriminators.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.definitions))
	for t := range r.definitions {
		types = append(types, t)
	}

	return types
}

// ValidateConfig validates a block's parameter values against its
// definition: JSON schema first, then any type-specific validator.
func (r *Registry) ValidateConfig(block *models.Block) error {
	def, err := r.Get(block.Type)
	if err != nil {
		return err
	}

	if schema := def.ConfigSchema(); schema != nil {
		config := make(map[string]any, len(block.SubBlocks))
		for id, sb := range block.SubBlocks {
			if sb.Value != nil {
				config[id] = sb.Value
			}
		}

		result, err := gojsonschema.Validate(
			gojsonschema.NewGoLoader(schema),
			gojsonschema.NewGoLoader(config),
		)
		if err != nil {
			return fmt.Errorf("schema validation for block %s: %w", block.ID, err)
		}

		if !result.Valid() {
			return fmt.Errorf("block %s (%s): invalid config: %s", block.ID, block.Type, result.Errors()[0].String())
		}
	}

	if validator, ok := def.(ConfigValidator); ok {
		if err := validator.ValidateConfig(block); err != nil {
			return err
		}
	}

	return nil
}
