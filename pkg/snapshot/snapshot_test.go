package snapshot_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xde-mcp/sim-sub005/pkg/models"
	"github.com/xde-mcp/sim-sub005/pkg/snapshot"
	"github.com/xde-mcp/sim-sub005/pkg/snapshot/file"
)

func snapWith(blockIDs ...string) *models.ExecutionSnapshot {
	snap := models.NewExecutionSnapshot()
	for _, id := range blockIDs {
		snap.BlockStates[id] = &models.BlockState{Output: map[string]any{"id": id}, Executed: true}
		snap.ExecutedBlocks[id] = true
	}

	return snap
}

func TestStore_GetEmptyNeverNil(t *testing.T) {
	store := snapshot.NewStore(nil, slog.Default())

	snap := store.Get(context.Background(), "wf-1")
	require.NotNil(t, snap)
	assert.Empty(t, snap.BlockStates)
}

func TestStore_ReplaceOverwrites(t *testing.T) {
	ctx := context.Background()
	store := snapshot.NewStore(nil, slog.Default())

	store.Replace(ctx, "wf-1", snapWith("a", "b"))
	store.Replace(ctx, "wf-1", snapWith("c"))

	snap := store.Get(ctx, "wf-1")
	assert.Len(t, snap.BlockStates, 1)
	assert.Contains(t, snap.BlockStates, "c")
	assert.False(t, store.HasExecuted(ctx, "wf-1", "a"))
}

func TestStore_MergeIntoUnions(t *testing.T) {
	ctx := context.Background()
	store := snapshot.NewStore(nil, slog.Default())

	store.Replace(ctx, "wf-1", snapWith("a"))
	store.MergeInto(ctx, "wf-1", snapWith("b"))

	snap := store.Get(ctx, "wf-1")
	assert.Len(t, snap.BlockStates, 2)
	assert.True(t, store.HasExecuted(ctx, "wf-1", "a"))
	assert.True(t, store.HasExecuted(ctx, "wf-1", "b"))
}

func TestStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := snapshot.NewStore(nil, slog.Default())

	store.Replace(ctx, "wf-1", snapWith("a"))

	first := store.Get(ctx, "wf-1")
	first.BlockStates["a"].Output["id"] = "mutated"
	delete(first.BlockStates, "a")

	second := store.Get(ctx, "wf-1")
	require.Contains(t, second.BlockStates, "a")
	assert.Equal(t, "a", second.BlockStates["a"].Output["id"])
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	store := snapshot.NewStore(nil, slog.Default())

	store.Replace(ctx, "wf-1", snapWith("a"))
	store.Clear(ctx, "wf-1")

	assert.Empty(t, store.Get(ctx, "wf-1").BlockStates)
}

func TestStore_FileRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := file.NewRepository(t.TempDir())

	store := snapshot.NewStore(repo, slog.Default())
	store.Replace(ctx, "wf-1", snapWith("a"))

	// A second store over the same repository sees the persisted snapshot.
	fresh := snapshot.NewStore(repo, slog.Default())
	assert.True(t, fresh.HasExecuted(ctx, "wf-1", "a"))

	store.Clear(ctx, "wf-1")

	_, err := repo.Load(ctx, "wf-1")
	require.Error(t, err)
	assert.True(t, snapshot.IsNotFound(err))
}

func TestIsStale(t *testing.T) {
	assert.True(t, snapshot.IsStale(errors.New("block not found: abc")))
	assert.True(t, snapshot.IsStale(errors.New("upstream dependency not executed: def")))
	assert.False(t, snapshot.IsStale(errors.New("network unreachable")))
	assert.False(t, snapshot.IsStale(nil))
}

func TestError_Unwrap(t *testing.T) {
	err := snapshot.NewError("Load", "wf-1", snapshot.ErrSnapshotNotFound)

	assert.ErrorIs(t, err, snapshot.ErrSnapshotNotFound)
	assert.Contains(t, err.Error(), "wf-1")
	assert.Contains(t, err.Error(), "Load")
}
