// Package events defines event types and structures for workflow
// execution lifecycle notifications.
package events

import (
	"time"

	"github.com/xde-mcp/sim-sub005/pkg/models"
)

type EventType string

// Kafka topics.
const ExecutionTopic = "simflow.executions" // Topic for execution lifecycle events

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Block lifecycle events.
	BlockStartedEvent   EventType = "block.started"
	BlockCompletedEvent EventType = "block.completed"
	BlockErrorEvent     EventType = "block.error"

	// Streaming output events.
	StreamChunkEvent EventType = "stream.chunk"

	// Execution lifecycle events. Exactly one of these terminates a run.
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionErrorEvent     EventType = "execution.error"
	ExecutionCancelledEvent EventType = "execution.cancelled"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	WorkflowID  string         `json:"workflow_id"`
	ExecutionID string         `json:"execution_id"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type BlockStarted struct {
	BaseEvent

	BlockID   string         `json:"block_id"`
	BlockType string         `json:"block_type"`
	BlockName string         `json:"block_name"`
	Input     map[string]any `json:"input,omitempty"`
}

func (b BlockStarted) GetType() EventType {
	return BlockStartedEvent
}

type BlockCompleted struct {
	BaseEvent

	BlockID    string         `json:"block_id"`
	BlockType  string         `json:"block_type"`
	BlockName  string         `json:"block_name"`
	Output     map[string]any `json:"output,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

func (b BlockCompleted) GetType() EventType {
	return BlockCompletedEvent
}

type BlockError struct {
	BaseEvent

	BlockID    string `json:"block_id"`
	BlockType  string `json:"block_type"`
	BlockName  string `json:"block_name"`
	Error      string `json:"error"`
	DurationMs int64  `json:"duration_ms"`
}

func (b BlockError) GetType() EventType {
	return BlockErrorEvent
}

// StreamChunk carries one piece of incremental block output. Chunks for
// the same block arrive in order; chunks for different blocks may
// interleave.
type StreamChunk struct {
	BaseEvent

	BlockID string `json:"block_id"`
	Chunk   string `json:"chunk"`
}

func (s StreamChunk) GetType() EventType {
	return StreamChunkEvent
}

type ExecutionCompleted struct {
	BaseEvent

	Output         map[string]any            `json:"output,omitempty"`
	Logs           []*models.BlockLog        `json:"logs,omitempty"`
	TraversedEdges []string                  `json:"traversed_edges,omitempty"`
	PendingBlocks  []string                  `json:"pending_blocks,omitempty"`
	Snapshot       *models.ExecutionSnapshot `json:"snapshot,omitempty"`
	DurationMs     int64                     `json:"duration_ms"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionError struct {
	BaseEvent

	Error      string             `json:"error"`
	Logs       []*models.BlockLog `json:"logs,omitempty"`
	DurationMs int64              `json:"duration_ms"`
}

func (e ExecutionError) GetType() EventType {
	return ExecutionErrorEvent
}

type ExecutionCancelled struct {
	BaseEvent

	Logs       []*models.BlockLog `json:"logs,omitempty"`
	DurationMs int64              `json:"duration_ms"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}
