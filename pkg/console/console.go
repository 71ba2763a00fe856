// Package console collects per-block run entries for display: a
// provisional entry appears when a block starts and is finalized when it
// completes or fails.
package console

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

type Entry struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	BlockID     string         `json:"block_id"`
	BlockName   string         `json:"block_name"`
	BlockType   string         `json:"block_type"`
	Status      Status         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     time.Time      `json:"ended_at,omitzero"`
	DurationMs  int64          `json:"duration_ms"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Update carries the terminal fields applied when an entry finalizes.
type Update struct {
	Status     Status
	EndedAt    time.Time
	DurationMs int64
	Output     map[string]any
	Error      string
}

type Console interface {
	// Add records a provisional running entry and returns its id.
	Add(entry *Entry) string
	// Finalize applies the terminal update to the entry with the given id.
	Finalize(id string, update Update)
	// MarkAllCancelled flips every still-running entry of the execution
	// to cancelled.
	MarkAllCancelled(executionID string)
	// Entries returns the execution's entries in insertion order.
	Entries(executionID string) []*Entry
}

// Memory is the in-process Console used by the controller and CLI.
type Memory struct {
	mu      sync.Mutex
	entries []*Entry
	byID    map[string]*Entry
}

func NewMemory() *Memory {
	return &Memory{byID: make(map[string]*Entry)}
}

func (m *Memory) Add(entry *Entry) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	if entry.Status == "" {
		entry.Status = StatusRunning
	}

	if entry.StartedAt.IsZero() {
		entry.StartedAt = time.Now().UTC()
	}

	m.entries = append(m.entries, entry)
	m.byID[entry.ID] = entry

	return entry.ID
}

func (m *Memory) Finalize(id string, update Update) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.byID[id]
	if !ok {
		return
	}

	entry.Status = update.Status
	entry.EndedAt = update.EndedAt
	entry.DurationMs = update.DurationMs
	entry.Output = update.Output
	entry.Error = update.Error
}

func (m *Memory) MarkAllCancelled(executionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range m.entries {
		if entry.ExecutionID == executionID && entry.Status == StatusRunning {
			entry.Status = StatusCancelled
			entry.EndedAt = time.Now().UTC()
		}
	}
}

func (m *Memory) Entries(executionID string) []*Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Entry, 0)

	for _, entry := range m.entries {
		if entry.ExecutionID == executionID {
			out = append(out, entry)
		}
	}

	return out
}
