// Package snapshot stores per-workflow execution snapshots: the block
// outputs, decisions and logs a partial run leaves behind so a later
// run can start from the middle of the graph.
package snapshot

import (
	"context"
	"log/slog"
	"sync"

	"github.com/xde-mcp/sim-sub005/pkg/models"
)

// Repository persists snapshots across process restarts.
type Repository interface {
	Load(ctx context.Context, workflowID string) (*models.ExecutionSnapshot, error)
	Save(ctx context.Context, workflowID string, snap *models.ExecutionSnapshot) error
	Delete(ctx context.Context, workflowID string) error
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// Store is the in-memory snapshot cache backing executions. A nil
// repository keeps snapshots process-local.
type Store struct {
	mu     sync.RWMutex
	cache  map[string]*models.ExecutionSnapshot
	repo   Repository
	logger *slog.Logger
}

func NewStore(repo Repository, logger *slog.Logger) *Store {
	return &Store{
		cache:  make(map[string]*models.ExecutionSnapshot),
		repo:   repo,
		logger: logger.With("module", "snapshot"),
	}
}

// Get returns a copy of the workflow's snapshot, loading from the
// repository on a cache miss. A workflow with no snapshot yields an
// empty one, never nil.
func (s *Store) Get(ctx context.Context, workflowID string) *models.ExecutionSnapshot {
	s.mu.RLock()
	cached, ok := s.cache[workflowID]
	s.mu.RUnlock()

	if ok {
		return cached.Clone()
	}

	if s.repo != nil {
		loaded, err := s.repo.Load(ctx, workflowID)
		if err == nil && loaded != nil {
			s.mu.Lock()
			s.cache[workflowID] = loaded
			s.mu.Unlock()

			return loaded.Clone()
		}

		if err != nil && !IsNotFound(err) {
			s.logger.WarnContext(ctx, "failed to load snapshot", "workflow_id", workflowID, "error", err)
		}
	}

	return models.NewExecutionSnapshot()
}

// Replace overwrites the workflow's snapshot wholesale. Full runs call
// this: their result is complete, so nothing from before survives.
func (s *Store) Replace(ctx context.Context, workflowID string, snap *models.ExecutionSnapshot) {
	stored := snap.Clone()

	s.mu.Lock()
	s.cache[workflowID] = stored
	s.mu.Unlock()

	s.persist(ctx, workflowID, stored)
}

// MergeInto unions the run's result into the existing snapshot. Partial
// runs call this: blocks outside the run keep their prior state.
func (s *Store) MergeInto(ctx context.Context, workflowID string, snap *models.ExecutionSnapshot) {
	existing := s.Get(ctx, workflowID)

	s.mu.Lock()
	existing.Merge(snap)
	s.cache[workflowID] = existing
	stored := existing.Clone()
	s.mu.Unlock()

	s.persist(ctx, workflowID, stored)
}

// Clear drops the workflow's snapshot entirely.
func (s *Store) Clear(ctx context.Context, workflowID string) {
	s.mu.Lock()
	delete(s.cache, workflowID)
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.Delete(ctx, workflowID); err != nil && !IsNotFound(err) {
			s.logger.WarnContext(ctx, "failed to delete snapshot", "workflow_id", workflowID, "error", err)
		}
	}
}

// HasExecuted reports whether the snapshot records a successful prior
// execution of the block.
func (s *Store) HasExecuted(ctx context.Context, workflowID, blockID string) bool {
	snap := s.Get(ctx, workflowID)

	state, ok := snap.BlockStates[blockID]

	return ok && state.Executed
}

func (s *Store) persist(ctx context.Context, workflowID string, snap *models.ExecutionSnapshot) {
	if s.repo == nil {
		return
	}

	if err := s.repo.Save(ctx, workflowID, snap); err != nil {
		s.logger.WarnContext(ctx, "failed to persist snapshot", "workflow_id", workflowID, "error", err)
	}
}
