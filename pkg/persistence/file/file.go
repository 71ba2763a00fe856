// Package file provides file-based persistence for execution records.
package file

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xde-mcp/sim-sub005/pkg/persistence"
)

const dirPerm = 0o755
const filePerm = 0o644

// Repository stores one JSON file per execution under
// root/executions/<workflowID>/.
type Repository struct {
	root string
}

func NewRepository(root string) *Repository {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Repository{root: cleanRoot}
}

func (r *Repository) dir(workflowID string) string {
	return filepath.Join(r.root, "executions", workflowID)
}

func (r *Repository) SaveExecution(_ context.Context, record *persistence.ExecutionRecord) error {
	if err := os.MkdirAll(r.dir(record.WorkflowID), dirPerm); err != nil {
		return persistence.NewExecutionError("Save", record.ExecutionID, err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return persistence.NewExecutionError("Save", record.ExecutionID, err)
	}

	path := filepath.Join(r.dir(record.WorkflowID), record.ExecutionID+".json")
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return persistence.NewExecutionError("Save", record.ExecutionID, err)
	}

	return nil
}

func (r *Repository) ExecutionsByWorkflow(_ context.Context, workflowID string) ([]*persistence.ExecutionRecord, error) {
	root := os.DirFS(r.dir(workflowID))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, persistence.NewExecutionError("ByWorkflow", workflowID, err)
	}

	records := make([]*persistence.ExecutionRecord, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		data, err := os.ReadFile(filepath.Join(r.dir(workflowID), file))
		if err != nil {
			return nil, persistence.NewExecutionError("ByWorkflow", workflowID, err)
		}

		record := &persistence.ExecutionRecord{}
		if err := json.Unmarshal(data, record); err != nil {
			return nil, persistence.NewExecutionError("ByWorkflow", workflowID, err)
		}

		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})

	return records, nil
}

func (r *Repository) ExecutionByID(ctx context.Context, executionID string) (*persistence.ExecutionRecord, error) {
	workflowDirs, err := os.ReadDir(filepath.Join(r.root, "executions"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewExecutionError("ByID", executionID, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("ByID", executionID, err)
	}

	for _, dir := range workflowDirs {
		if !dir.IsDir() {
			continue
		}

		path := filepath.Join(r.root, "executions", dir.Name(), executionID+".json")

		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return nil, persistence.NewExecutionError("ByID", executionID, err)
		}

		record := &persistence.ExecutionRecord{}
		if err := json.Unmarshal(data, record); err != nil {
			return nil, persistence.NewExecutionError("ByID", executionID, err)
		}

		return record, nil
	}

	return nil, persistence.NewExecutionError("ByID", executionID, persistence.ErrExecutionNotFound)
}

func (r *Repository) Close(_ context.Context) error {
	return nil
}
