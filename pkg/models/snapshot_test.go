package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotWith(executed ...string) *ExecutionSnapshot {
	snapshot := NewExecutionSnapshot()
	for _, id := range executed {
		snapshot.ExecutedBlocks[id] = true
		snapshot.BlockStates[id] = &BlockState{Executed: true, Output: map[string]any{"from": id}}
		snapshot.BlockLogs = append(snapshot.BlockLogs, &BlockLog{BlockID: id, Success: true})
	}

	return snapshot
}

func TestExecutionSnapshot_Merge_Union(t *testing.T) {
	base := snapshotWith("a", "b")
	partial := snapshotWith("b", "c")

	base.Merge(partial)

	assert.True(t, base.ExecutedBlocks["a"])
	assert.True(t, base.ExecutedBlocks["b"])
	assert.True(t, base.ExecutedBlocks["c"])
	assert.Len(t, base.BlockLogs, 4) // logs concatenate, not dedupe

	// Later data wins per block.
	assert.Equal(t, map[string]any{"from": "b"}, base.BlockStates["b"].Output)
}

func TestExecutionSnapshot_Merge_Associative(t *testing.T) {
	executedSet := func(s *ExecutionSnapshot) map[string]bool { return s.ExecutedBlocks }

	s1 := snapshotWith("a", "b", "c")
	s2 := snapshotWith("a", "x")
	s3 := snapshotWith("y")

	// (s1 <- s2) <- s3
	left := s1.Clone()
	left.Merge(s2)
	left.Merge(s3)

	// s1 <- (s2 <- s3)
	inner := s2.Clone()
	inner.Merge(s3)
	right := s1.Clone()
	right.Merge(inner)

	assert.Equal(t, executedSet(left), executedSet(right))
}

func TestExecutionSnapshot_Clone_Independent(t *testing.T) {
	original := snapshotWith("a")
	clone := original.Clone()

	clone.ExecutedBlocks["b"] = true
	clone.BlockStates["a"].Output["from"] = "mutated"

	assert.False(t, original.ExecutedBlocks["b"])
	require.NotNil(t, original.BlockStates["a"])
	assert.Equal(t, "a", original.BlockStates["a"].Output["from"])
}
