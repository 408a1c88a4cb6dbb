package workflow

import (
	"time"

	"go.jetify.com/typeid"
)

// NewExecutionID returns a new id for execution identification
func NewExecutionID() string {
	return newTypeID("exec")
}

// NewCheckpointID returns a new id for a human checkpoint
func NewCheckpointID() string {
	return newTypeID("ckpt")
}

func newTypeID(prefix string) string {
	id, err := typeid.WithPrefix(prefix)
	if err != nil {
		panic(err)
	}
	return id.String()
}

// ExecutionStatus represents the execution status. Besides the built-in
// values, end nodes may declare terminal aliases such as "approved".
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether no further traversal happens from this status.
// Workflow-declared aliases are terminal.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case "", ExecutionStatusPending, ExecutionStatusRunning, ExecutionStatusPaused:
		return false
	}
	return true
}

// ExecutionContext carries caller information for an execution.
type ExecutionContext struct {
	Language string `json:"language,omitempty"`
	User     string `json:"user,omitempty"`
}

// ErrorRecord is an error recorded into execution state.
type ErrorRecord struct {
	Type        string    `json:"type"`
	Message     string    `json:"message"`
	NodeID      string    `json:"nodeId,omitempty"`
	Recoverable bool      `json:"recoverable"`
	At          time.Time `json:"at"`
}

// ExecutionState is the mutable record of one run. It is fully JSON
// serializable; everything needed to resume an execution lives here.
type ExecutionState struct {
	ExecutionID       string           `json:"executionId"`
	WorkflowID        string           `json:"workflowId"`
	Status            ExecutionStatus  `json:"status"`
	Data              map[string]any   `json:"data"`
	Output            map[string]any   `json:"output,omitempty"`
	CompletedNodes    []string         `json:"completedNodes"`
	CurrentNode       string           `json:"currentNode,omitempty"`
	Iterations        int              `json:"iterations"`
	Errors            []ErrorRecord    `json:"errors,omitempty"`
	PendingCheckpoint *Checkpoint      `json:"pendingCheckpoint,omitempty"`
	Context           ExecutionContext `json:"context"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
	CompletedAt       time.Time        `json:"completedAt,omitzero"`
}

func newExecutionState(executionID, workflowID string, data map[string]any, ec ExecutionContext) *ExecutionState {
	now := time.Now().UTC()
	if data == nil {
		data = map[string]any{}
	}
	return &ExecutionState{
		ExecutionID:    executionID,
		WorkflowID:     workflowID,
		Status:         ExecutionStatusPending,
		Data:           data,
		CompletedNodes: []string{},
		Context:        ec,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Copy returns a deep copy of the state.
func (s *ExecutionState) Copy() *ExecutionState {
	if s == nil {
		return nil
	}
	c := *s
	c.Data = copyMap(s.Data)
	if s.Output != nil {
		c.Output = copyMap(s.Output)
	}
	c.CompletedNodes = append([]string{}, s.CompletedNodes...)
	if s.Errors != nil {
		c.Errors = append([]ErrorRecord{}, s.Errors...)
	}
	if s.PendingCheckpoint != nil {
		c.PendingCheckpoint = s.PendingCheckpoint.Copy()
	}
	return &c
}

// LastError returns the most recently recorded error, if any.
func (s *ExecutionState) LastError() *ErrorRecord {
	if len(s.Errors) == 0 {
		return nil
	}
	return &s.Errors[len(s.Errors)-1]
}

// Summary returns a summary view of the state.
func (s *ExecutionState) Summary() *ExecutionSummary {
	summary := &ExecutionSummary{
		ExecutionID: s.ExecutionID,
		WorkflowID:  s.WorkflowID,
		Status:      s.Status,
		CurrentNode: s.CurrentNode,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		CompletedAt: s.CompletedAt,
	}
	if !s.CompletedAt.IsZero() {
		summary.Duration = s.CompletedAt.Sub(s.CreatedAt)
	} else {
		summary.Duration = s.UpdatedAt.Sub(s.CreatedAt)
	}
	if last := s.LastError(); last != nil {
		summary.Error = last.Message
	}
	return summary
}

func (s *ExecutionState) recordError(rec ErrorRecord) {
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	s.Errors = append(s.Errors, rec)
}

func (s *ExecutionState) finish(status ExecutionStatus) {
	s.Status = status
	s.CompletedAt = time.Now().UTC()
}

// copyMap creates a deep copy of a map
func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	copy := make(map[string]any, len(m))
	for k, v := range m {
		copy[k] = copyValue(v)
	}
	return copy
}

func copyValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return copyMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = copyValue(item)
		}
		return out
	case []string:
		return append([]string{}, v...)
	default:
		return v
	}
}
