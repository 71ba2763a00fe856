package registry

import (
	"encoding/json"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/xde-mcp/sim-sub005/pkg/models"
)

// Trigger ranking used by manual start resolution: explicit start wins
// over schedules, schedules over externally-triggered blocks, and the
// legacy starter loses to everything.
const (
	priorityStart    = 40
	prioritySchedule = 30
	priorityExternal = 20
	priorityLegacy   = 10
)

type baseDefinition struct {
	blockType string
	name      string
	category  models.BlockCategory
	outputs   map[string]any
	schema    map[string]any
}

func (d baseDefinition) Type() string                   { return d.blockType }
func (d baseDefinition) DisplayName() string            { return d.name }
func (d baseDefinition) Category() models.BlockCategory { return d.category }
func (d baseDefinition) Outputs() map[string]any        { return d.outputs }
func (d baseDefinition) ConfigSchema() map[string]any   { return d.schema }

// inputFormatOf decodes the structured input-format parameter shared by
// the start, api-trigger and legacy starter types.
func inputFormatOf(block *models.Block) ([]InputField, bool) {
	raw, ok := block.SubBlockValue("inputFormat").([]any)
	if !ok || len(raw) == 0 {
		return nil, false
	}

	fields := make([]InputField, 0, len(raw))

	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}

		name, _ := entry["name"].(string)
		if name == "" {
			continue
		}

		fieldType, _ := entry["type"].(string)
		fields = append(fields, InputField{Name: name, Type: fieldType, Value: entry["value"]})
	}

	return fields, len(fields) > 0
}

// start block: the explicit manual entry point.

type startDefinition struct{ baseDefinition }

func (startDefinition) FixedName() string    { return "Start" }
func (startDefinition) TriggerPriority() int { return priorityStart }

func (startDefinition) InputFormat(block *models.Block) ([]InputField, bool) {
	return inputFormatOf(block)
}

// legacy starter block.

type starterDefinition struct{ baseDefinition }

func (starterDefinition) FixedName() string    { return "Start" }
func (starterDefinition) TriggerPriority() int { return priorityLegacy }

func (starterDefinition) InputFormat(block *models.Block) ([]InputField, bool) {
	return inputFormatOf(block)
}

// api trigger block.

type apiTriggerDefinition struct{ baseDefinition }

func (apiTriggerDefinition) TriggerPriority() int { return priorityExternal }

func (apiTriggerDefinition) InputFormat(block *models.Block) ([]InputField, bool) {
	return inputFormatOf(block)
}

// chat trigger block.

type chatTriggerDefinition struct{ baseDefinition }

func (chatTriggerDefinition) TriggerPriority() int { return priorityExternal }

// schedule trigger block.

type scheduleDefinition struct{ baseDefinition }

func (scheduleDefinition) TriggerPriority() int { return prioritySchedule }

func (scheduleDefinition) ValidateConfig(block *models.Block) error {
	expr, _ := block.SubBlockValue("cronExpression").(string)
	if expr == "" {
		return nil
	}

	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("block %s: invalid cron expression %q: %w", block.ID, expr, err)
	}

	return nil
}

// webhook trigger block; manual runs replay its declared test payload.

type webhookDefinition struct{ baseDefinition }

func (webhookDefinition) TriggerPriority() int { return priorityExternal }

func (webhookDefinition) MockPayload(block *models.Block) (map[string]any, error) {
	raw := block.SubBlockValue("testPayload")

	switch typed := raw.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return typed, nil
	case string:
		if typed == "" {
			return map[string]any{}, nil
		}

		var payload map[string]any
		if err := json.Unmarshal([]byte(typed), &payload); err != nil {
			return nil, fmt.Errorf("block %s: test payload is not valid JSON: %w", block.ID, err)
		}

		return payload, nil
	default:
		return nil, fmt.Errorf("block %s: unsupported test payload type %T", block.ID, raw)
	}
}

// response block: pinned terminal name.

type responseDefinition struct{ baseDefinition }

func (responseDefinition) FixedName() string { return "Response" }

type plainDefinition struct{ baseDefinition }

// RegisterDefaultBlocks registers the closed built-in block set.
func RegisterDefaultBlocks(r *Registry) {
	r.Register(startDefinition{baseDefinition{
		blockType: models.BlockTypeStart,
		name:      "Start",
		category:  models.CategoryTrigger,
		outputs:   map[string]any{"input": "any", "conversationId": "string", "files": "array"},
	}})

	r.Register(starterDefinition{baseDefinition{
		blockType: models.BlockTypeStarter,
		name:      "Start",
		category:  models.CategoryTrigger,
		outputs:   map[string]any{"input": "any"},
	}})

	r.Register(apiTriggerDefinition{baseDefinition{
		blockType: models.BlockTypeAPI,
		name:      "API",
		category:  models.CategoryTrigger,
		outputs:   map[string]any{"input": "any"},
	}})

	r.Register(chatTriggerDefinition{baseDefinition{
		blockType: models.BlockTypeChat,
		name:      "Chat",
		category:  models.CategoryTrigger,
		outputs:   map[string]any{"input": "string", "conversationId": "string", "files": "array"},
	}})

	r.Register(scheduleDefinition{baseDefinition{
		blockType: models.BlockTypeSchedule,
		name:      "Schedule",
		category:  models.CategoryTrigger,
		outputs:   map[string]any{"scheduledAt": "string"},
		schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"cronExpression": map[string]any{"type": "string"},
				"timezone":       map[string]any{"type": "string"},
			},
		},
	}})

	r.Register(webhookDefinition{baseDefinition{
		blockType: models.BlockTypeWebhook,
		name:      "Webhook",
		category:  models.CategoryTrigger,
		outputs:   map[string]any{"payload": "object", "headers": "object"},
	}})

	r.Register(plainDefinition{baseDefinition{
		blockType: models.BlockTypeAgent,
		name:      "Agent",
		category:  models.CategoryBlock,
		outputs:   map[string]any{"content": "string", "model": "string", "tokens": "object"},
		schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"model":        map[string]any{"type": "string"},
				"systemPrompt": map[string]any{"type": "string"},
				"userPrompt":   map[string]any{},
				"temperature":  map[string]any{"type": "number"},
			},
		},
	}})

	r.Register(plainDefinition{baseDefinition{
		blockType: models.BlockTypeAPICall,
		name:      "API Call",
		category:  models.CategoryBlock,
		outputs:   map[string]any{"data": "any", "status": "number", "headers": "object"},
		schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url":    map[string]any{"type": "string"},
				"method": map[string]any{"type": "string", "enum": []any{"GET", "POST", "PUT", "PATCH", "DELETE"}},
			},
		},
	}})

	r.Register(plainDefinition{baseDefinition{
		blockType: models.BlockTypeFunction,
		name:      "Function",
		category:  models.CategoryBlock,
		outputs:   map[string]any{"result": "any", "stdout": "string"},
	}})

	r.Register(plainDefinition{baseDefinition{
		blockType: models.BlockTypeCondition,
		name:      "Condition",
		category:  models.CategoryBlock,
		outputs:   map[string]any{"selectedConditionId": "string"},
	}})

	r.Register(plainDefinition{baseDefinition{
		blockType: models.BlockTypeRouter,
		name:      "Router",
		category:  models.CategoryBlock,
		outputs:   map[string]any{"selectedPath": "object"},
	}})

	r.Register(plainDefinition{baseDefinition{
		blockType: models.BlockTypeLoop,
		name:      "Loop",
		category:  models.CategoryContainer,
		outputs:   map[string]any{"results": "array"},
	}})

	r.Register(plainDefinition{baseDefinition{
		blockType: models.BlockTypeParallel,
		name:      "Parallel",
		category:  models.CategoryContainer,
		outputs:   map[string]any{"results": "array"},
	}})

	r.Register(responseDefinition{baseDefinition{
		blockType: models.BlockTypeResponse,
		name:      "Response",
		category:  models.CategoryBlock,
		outputs:   map[string]any{"data": "any", "status": "number"},
	}})

	r.Register(plainDefinition{baseDefinition{
		blockType: models.BlockTypeWorkflow,
		name:      "Workflow",
		category:  models.CategoryBlock,
		outputs:   map[string]any{"result": "any", "childWorkflowName": "string"},
	}})
}
