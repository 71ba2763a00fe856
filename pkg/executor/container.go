package executor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xde-mcp/sim-sub005/pkg/models"
)

// runContainer executes a loop or parallel block as a unit: its members
// run in internal dependency order once per iteration, and the
// container's output aggregates the per-iteration member outputs.
func (r *run) runContainer(ctx context.Context, block *models.Block) (*RunOutput, error) {
	members := r.state.ContainerMembers(block.ID)
	if len(members) == 0 {
		return &RunOutput{Output: map[string]any{"results": []any{}}}, nil
	}

	iterations, items, err := r.containerIterations(block)
	if err != nil {
		return nil, err
	}

	order, err := r.memberOrder(block, members)
	if err != nil {
		return nil, err
	}

	results := make([]any, 0, iterations)

	for i := 0; i < iterations; i++ {
		if r.stopped || r.cancelled.Load() {
			break
		}

		scope := map[string]any{"index": i}
		if items != nil && i < len(items) {
			scope["item"] = items[i]
		}

		iterationOutputs, err := r.runIteration(ctx, block, order, scope)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}

		results = append(results, iterationOutputs)
	}

	return &RunOutput{Output: map[string]any{"results": results}}, nil
}

func (r *run) containerIterations(block *models.Block) (int, []any, error) {
	if block.Type == models.BlockTypeLoop {
		loop, ok := r.state.Loops[block.ID]
		if !ok {
			return 0, nil, fmt.Errorf("loop block %s has no loop configuration", block.ID)
		}

		if loop.LoopType == "forEach" {
			items, ok := loop.ForEachItems.([]any)
			if !ok {
				return 0, nil, fmt.Errorf("loop block %s: forEach items are not a list", block.ID)
			}

			return len(items), items, nil
		}

		if loop.Iterations <= 0 {
			return 1, nil, nil
		}

		return loop.Iterations, nil, nil
	}

	parallel, ok := r.state.Parallels[block.ID]
	if !ok {
		return 0, nil, fmt.Errorf("parallel block %s has no parallel configuration", block.ID)
	}

	if items, ok := parallel.Distribution.([]any); ok && len(items) > 0 {
		return len(items), items, nil
	}

	if parallel.Count <= 0 {
		return 1, nil, nil
	}

	return parallel.Count, nil, nil
}

// memberOrder topologically sorts the container's members over their
// internal edges. Ties break on block name for determinism.
func (r *run) memberOrder(block *models.Block, members []string) ([]string, error) {
	memberSet := make(map[string]bool, len(members))
	for _, id := range members {
		memberSet[id] = true
	}

	inDegree := make(map[string]int, len(members))
	for _, id := range members {
		inDegree[id] = 0
	}

	for _, edge := range r.state.Edges {
		if memberSet[edge.Source] && memberSet[edge.Target] {
			inDegree[edge.Target]++
		}
	}

	queue := make([]string, 0, len(members))

	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(members))

	for len(queue) > 0 {
		sort.Slice(queue, func(i, j int) bool {
			return r.state.Blocks[queue[i]].Name < r.state.Blocks[queue[j]].Name
		})

		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, edge := range r.state.Edges {
			if edge.Source != id || !memberSet[edge.Target] {
				continue
			}

			inDegree[edge.Target]--
			if inDegree[edge.Target] == 0 {
				queue = append(queue, edge.Target)
			}
		}
	}

	if len(order) != len(members) {
		return nil, fmt.Errorf("container %s has a cycle among its members", block.ID)
	}

	return order, nil
}

func (r *run) runIteration(ctx context.Context, container *models.Block, order []string, scope map[string]any) (map[string]any, error) {
	iterationOutputs := make(map[string]map[string]any, len(order))
	aggregated := make(map[string]any, len(order))

	for _, id := range order {
		member := r.state.Blocks[id]
		if member == nil || !member.Enabled {
			continue
		}

		input := map[string]any{}
		for k, v := range scope {
			input[k] = v
		}

		for _, edge := range r.state.IncomingEdges(id) {
			source, ok := r.state.Blocks[edge.Source]
			if !ok {
				continue
			}

			if output, ok := iterationOutputs[edge.Source]; ok {
				input[models.NormalizeName(source.Name)] = output
			} else if output, ok := r.outputs[edge.Source]; ok {
				input[models.NormalizeName(source.Name)] = output
			}
		}

		started := time.Now().UTC()

		r.emitStarted(ctx, member, input)

		runner := r.svc.runners.Get(member.Type)

		out, err := runner(ctx, RunInput{WorkflowID: r.workflowID, Block: member, Input: input})

		ended := time.Now().UTC()
		durationMs := ended.Sub(started).Milliseconds()

		if err != nil {
			r.recordError(ctx, member, err, started, ended, durationMs)

			return nil, fmt.Errorf("member %s: %w", member.Name, err)
		}

		if out.Stream != nil {
			r.drainStream(ctx, member.ID, out.Stream)
		}

		iterationOutputs[id] = out.Output
		aggregated[models.NormalizeName(member.Name)] = out.Output
		r.outputs[id] = out.Output
		r.executed[id] = true

		r.logs = append(r.logs, &models.BlockLog{
			BlockID:    member.ID,
			BlockName:  member.Name,
			BlockType:  member.Type,
			StartedAt:  started,
			EndedAt:    ended,
			DurationMs: durationMs,
			Success:    true,
			Output:     out.Output,
		})

		r.emitCompleted(ctx, member, out.Output, durationMs)

		// Stop-after applies to members too: halt right after the named
		// block, leaving the iteration partial.
		if id == r.stopAfter {
			r.stopped = true

			break
		}
	}

	return aggregated, nil
}
