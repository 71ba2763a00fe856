// Package document serializes workflow graphs to a YAML document format
// and reconciles imported documents back into graph identities.
package document

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/xde-mcp/sim-sub005/pkg/models"
)

// Document is the YAML representation of a workflow graph. Block keys
// are the node keys declared in the document; on import they are mapped
// to actual graph ids by the reconciliation policy.
type Document struct {
	Version   string               `yaml:"version"`
	Blocks    map[string]*DocBlock `yaml:"blocks"`
	Edges     []*DocEdge           `yaml:"edges,omitempty"`
	Loops     map[string]*DocLoop  `yaml:"loops,omitempty"`
	Parallels map[string]*DocLoop  `yaml:"parallels,omitempty"`
}

// DocBlock is one block as declared in a document.
type DocBlock struct {
	Type        string          `yaml:"type"`
	Name        string          `yaml:"name"`
	Parent      string          `yaml:"parent,omitempty"`
	Position    models.Position `yaml:"position,omitempty"`
	Enabled     *bool           `yaml:"enabled,omitempty"`
	TriggerMode bool            `yaml:"trigger_mode,omitempty"`
	Inputs      map[string]any  `yaml:"inputs,omitempty"`
}

// DocEdge is one edge as declared in a document; endpoints are node keys.
type DocEdge struct {
	Source       string `yaml:"source"`
	Target       string `yaml:"target"`
	SourceHandle string `yaml:"source_handle,omitempty"`
	TargetHandle string `yaml:"target_handle,omitempty"`
}

// DocLoop declares container membership and settings for both loop and
// parallel containers.
type DocLoop struct {
	Nodes        []string `yaml:"nodes"`
	Iterations   int      `yaml:"iterations,omitempty"`
	LoopType     string   `yaml:"loop_type,omitempty"`
	ForEachItems any      `yaml:"for_each_items,omitempty"`
	Count        int      `yaml:"count,omitempty"`
	Distribution any      `yaml:"distribution,omitempty"`
}

// docSchema is the structural JSON schema every imported document must
// satisfy before reconciliation runs.
var docSchema = map[string]any{
	"type":     "object",
	"required": []any{"version", "blocks"},
	"properties": map[string]any{
		"version": map[string]any{"type": "string"},
		"blocks": map[string]any{
			"type": "object",
			"additionalProperties": map[string]any{
				"type":     "object",
				"required": []any{"type", "name"},
				"properties": map[string]any{
					"type": map[string]any{"type": "string"},
					"name": map[string]any{"type": "string"},
				},
			},
		},
		"edges": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"source", "target"},
			},
		},
	},
}

// Parse decodes and schema-validates a YAML document without touching
// graph identities.
func Parse(data []byte) (*Document, error) {
	// Round-trip through an untyped value for schema validation; yaml.v3
	// decodes mappings as map[string]any.
	var untyped any
	if err := yaml.Unmarshal(data, &untyped); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(docSchema),
		gojsonschema.NewGoLoader(untyped),
	)
	if err != nil {
		return nil, fmt.Errorf("document schema validation: %w", err)
	}

	if !result.Valid() {
		return nil, fmt.Errorf("invalid workflow document: %s", result.Errors()[0].String())
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	return &doc, nil
}

// Export renders a graph as a YAML document keyed by block id.
func Export(state *models.WorkflowState) ([]byte, error) {
	doc := Document{
		Version:   "1.0",
		Blocks:    make(map[string]*DocBlock, len(state.Blocks)),
		Loops:     make(map[string]*DocLoop),
		Parallels: make(map[string]*DocLoop),
	}

	for id, block := range state.Blocks {
		enabled := block.Enabled
		docBlock := &DocBlock{
			Type:        block.Type,
			Name:        block.Name,
			Parent:      block.ParentID,
			Position:    block.Position,
			Enabled:     &enabled,
			TriggerMode: block.TriggerMode,
		}

		if len(block.SubBlocks) > 0 {
			docBlock.Inputs = make(map[string]any, len(block.SubBlocks))
			for sbID, sb := range block.SubBlocks {
				if sb.Value != nil {
					docBlock.Inputs[sbID] = sb.Value
				}
			}
		}

		doc.Blocks[id] = docBlock
	}

	for _, edge := range state.Edges {
		doc.Edges = append(doc.Edges, &DocEdge{
			Source:       edge.Source,
			Target:       edge.Target,
			SourceHandle: edge.SourceHandle,
			TargetHandle: edge.TargetHandle,
		})
	}

	for id, loop := range state.Loops {
		doc.Loops[id] = &DocLoop{
			Nodes:        loop.Nodes,
			Iterations:   loop.Iterations,
			LoopType:     loop.LoopType,
			ForEachItems: loop.ForEachItems,
		}
	}

	for id, parallel := range state.Parallels {
		doc.Parallels[id] = &DocLoop{
			Nodes:        parallel.Nodes,
			Count:        parallel.Count,
			Distribution: parallel.Distribution,
		}
	}

	return yaml.Marshal(&doc)
}
