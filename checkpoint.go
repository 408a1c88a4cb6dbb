package workflow

import "time"

// Checkpoint is a pending human decision. A fresh id is generated per pause
// so late or duplicate responses can be told apart from the current one.
type Checkpoint struct {
	ID          string         `json:"id"`
	NodeID      string         `json:"nodeId"`
	Message     string         `json:"message,omitempty"`
	Options     []HumanOption  `json:"options"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
	ShowData    []string       `json:"showData,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Copy returns a deep copy of the checkpoint.
func (c *Checkpoint) Copy() *Checkpoint {
	out := *c
	out.Options = append([]HumanOption{}, c.Options...)
	out.InputSchema = copyMap(c.InputSchema)
	out.ShowData = append([]string(nil), c.ShowData...)
	out.Data = copyMap(c.Data)
	return &out
}

// HasOption reports whether value is one of the checkpoint's option values.
func (c *Checkpoint) HasOption(value string) bool {
	for _, opt := range c.Options {
		if opt.Value == value {
			return true
		}
	}
	return false
}

// HumanResponse answers a pending checkpoint.
type HumanResponse struct {
	CheckpointID string         `json:"checkpointId"`
	Response     string         `json:"response"`
	Data         map[string]any `json:"data,omitempty"`
}
