package workflow

import (
	"context"
	"time"
)

// NodeLogEntry records one node execution
type NodeLogEntry struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	WorkflowID  string         `json:"workflow_id"`
	NodeID      string         `json:"node_id"`
	NodeType    NodeType       `json:"node_type"`
	Iteration   int            `json:"iteration"`
	Config      map[string]any `json:"config,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Branch      string         `json:"branch,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartTime   time.Time      `json:"start_time"`
	Duration    float64        `json:"duration"`
}

// NodeLogger records every executed node of an execution
type NodeLogger interface {
	// LogNode logs a completed node execution
	LogNode(ctx context.Context, entry *NodeLogEntry) error

	// GetNodeHistory retrieves the node log for an execution
	GetNodeHistory(ctx context.Context, executionID string) ([]*NodeLogEntry, error)
}
