package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/xde-mcp/sim-sub005/pkg/models"
)

// RunInput is what a block runner receives: the block itself, the
// merged input (upstream outputs keyed by normalized block name, or the
// trigger payload for start blocks), and the run's workflow id.
type RunInput struct {
	WorkflowID string
	Block      *models.Block
	Input      map[string]any
}

// RunOutput is a runner's result. SelectedHandle routes condition
// blocks, SelectedTarget routes router blocks, Stream carries
// incremental output drained concurrently with the walk.
type RunOutput struct {
	Output         map[string]any
	SelectedHandle string
	SelectedTarget string
	Stream         <-chan string
}

// BlockRunner executes one block.
type BlockRunner func(ctx context.Context, in RunInput) (*RunOutput, error)

// Runners maps block types to their runner, with an echo fallback for
// types without a dedicated one.
type Runners struct {
	byType   map[string]BlockRunner
	fallback BlockRunner
}

func NewRunners() *Runners {
	return &Runners{
		byType:   make(map[string]BlockRunner),
		fallback: echoRunner,
	}
}

func (r *Runners) Register(blockType string, runner BlockRunner) {
	r.byType[blockType] = runner
}

func (r *Runners) Get(blockType string) BlockRunner {
	if runner, ok := r.byType[blockType]; ok {
		return runner
	}

	return r.fallback
}

// DefaultRunners builds the local runner set: triggers pass their
// payload through, agents stream their content, conditions and routers
// route on their configured values.
func DefaultRunners() *Runners {
	runners := NewRunners()

	for _, triggerType := range []string{
		models.BlockTypeStarter, models.BlockTypeStart, models.BlockTypeAPI,
		models.BlockTypeChat, models.BlockTypeSchedule, models.BlockTypeWebhook,
	} {
		runners.Register(triggerType, passthroughRunner)
	}

	runners.Register(models.BlockTypeAgent, agentRunner)
	runners.Register(models.BlockTypeCondition, conditionRunner)
	runners.Register(models.BlockTypeRouter, routerRunner)
	runners.Register(models.BlockTypeResponse, responseRunner)

	return runners
}

// passthroughRunner hands the trigger payload downstream untouched.
func passthroughRunner(_ context.Context, in RunInput) (*RunOutput, error) {
	output := make(map[string]any, len(in.Input))
	for k, v := range in.Input {
		output[k] = v
	}

	return &RunOutput{Output: output}, nil
}

// echoRunner is the fallback: block parameters plus run input.
func echoRunner(_ context.Context, in RunInput) (*RunOutput, error) {
	output := map[string]any{}

	for key, sub := range in.Block.SubBlocks {
		output[key] = sub.Value
	}

	if len(in.Input) > 0 {
		output["input"] = in.Input
	}

	return &RunOutput{Output: output}, nil
}

// agentRunner emits its configured content both as the block output and
// as a word-by-word stream.
func agentRunner(_ context.Context, in RunInput) (*RunOutput, error) {
	content, _ := in.Block.SubBlockValue("content").(string)
	if content == "" {
		content, _ = in.Block.SubBlockValue("systemPrompt").(string)
	}

	stream := make(chan string)

	go func() {
		defer close(stream)

		for _, word := range strings.Fields(content) {
			stream <- word + " "
		}
	}()

	return &RunOutput{
		Output: map[string]any{"content": content},
		Stream: stream,
	}, nil
}

// lookupInput resolves a condition key against the merged input: a
// top-level hit wins, otherwise the upstream block outputs (one level
// deep) are searched in turn.
func lookupInput(input map[string]any, key string) (any, bool) {
	if v, ok := input[key]; ok {
		return v, true
	}

	for _, v := range input {
		nested, ok := v.(map[string]any)
		if !ok {
			continue
		}

		if found, ok := nested[key]; ok {
			return found, true
		}
	}

	return nil, false
}

// conditionRunner picks the first condition entry whose configured key
// matches the input, falling back to the last entry (the "else" arm).
// Entries are maps with "id" and optionally "key" and "equals".
func conditionRunner(_ context.Context, in RunInput) (*RunOutput, error) {
	raw, ok := in.Block.SubBlockValue("conditions").([]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("condition block %s has no conditions configured", in.Block.ID)
	}

	selected := ""

	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}

		id, _ := entry["id"].(string)
		if id == "" {
			continue
		}

		key, hasKey := entry["key"].(string)
		if !hasKey {
			// Unconditional arm: matches when nothing before it did.
			selected = id

			break
		}

		if value, ok := lookupInput(in.Input, key); ok && value == entry["equals"] {
			selected = id

			break
		}

		selected = id // last arm wins if nothing matches
	}

	if selected == "" {
		return nil, fmt.Errorf("condition block %s selected no branch", in.Block.ID)
	}

	return &RunOutput{
		Output:         map[string]any{"selected": selected},
		SelectedHandle: models.HandleCondition + "-" + selected,
	}, nil
}

// routerRunner routes to the block named by its "target" parameter.
func routerRunner(_ context.Context, in RunInput) (*RunOutput, error) {
	target, _ := in.Block.SubBlockValue("target").(string)
	if target == "" {
		return nil, fmt.Errorf("router block %s has no target configured", in.Block.ID)
	}

	return &RunOutput{
		Output:         map[string]any{"target": target},
		SelectedTarget: models.NormalizeName(target),
	}, nil
}

// responseRunner shapes the run's final output.
func responseRunner(_ context.Context, in RunInput) (*RunOutput, error) {
	output := map[string]any{}

	if data, ok := in.Block.SubBlockValue("data").(map[string]any); ok {
		for k, v := range data {
			output[k] = v
		}
	}

	if len(in.Input) > 0 {
		output["input"] = in.Input
	}

	return &RunOutput{Output: output}, nil
}
