// Package file provides file-based snapshot persistence.
package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/xde-mcp/sim-sub005/pkg/models"
	"github.com/xde-mcp/sim-sub005/pkg/snapshot"
)

const dirPerm = 0o755
const filePerm = 0o644

// Repository stores one JSON file per workflow under root/snapshots.
type Repository struct {
	root string
}

func NewRepository(root string) *Repository {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Repository{root: cleanRoot}
}

func (r *Repository) path(workflowID string) string {
	return filepath.Join(r.root, "snapshots", workflowID+".json")
}

func (r *Repository) Load(_ context.Context, workflowID string) (*models.ExecutionSnapshot, error) {
	data, err := os.ReadFile(r.path(workflowID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, snapshot.NewError("Load", workflowID, snapshot.ErrSnapshotNotFound)
		}

		return nil, snapshot.NewError("Load", workflowID, err)
	}

	snap := models.NewExecutionSnapshot()
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, snapshot.NewError("Load", workflowID, err)
	}

	return snap, nil
}

func (r *Repository) Save(_ context.Context, workflowID string, snap *models.ExecutionSnapshot) error {
	if err := os.MkdirAll(filepath.Join(r.root, "snapshots"), dirPerm); err != nil {
		return snapshot.NewError("Save", workflowID, err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return snapshot.NewError("Save", workflowID, err)
	}

	if err := os.WriteFile(r.path(workflowID), data, filePerm); err != nil {
		return snapshot.NewError("Save", workflowID, err)
	}

	return nil
}

func (r *Repository) Delete(_ context.Context, workflowID string) error {
	err := os.Remove(r.path(workflowID))
	if err != nil {
		if os.IsNotExist(err) {
			return snapshot.NewError("Delete", workflowID, snapshot.ErrSnapshotNotFound)
		}

		return snapshot.NewError("Delete", workflowID, err)
	}

	return nil
}

func (r *Repository) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(r.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (r *Repository) Close(_ context.Context) error {
	return nil
}
