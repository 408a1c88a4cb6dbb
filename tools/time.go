package tools

import (
	"context"
	"fmt"
	"time"

	workflow "github.com/intrafind/ihub-apps-sub010"
)

// TimeInput defines the input parameters for the time tool
type TimeInput struct {
	UTC      bool   `mapstructure:"utc"`
	Location string `mapstructure:"location"`
	Format   string `mapstructure:"format"`
}

// TimeTool returns the current time formatted as text (RFC 3339 by default).
type TimeTool struct {
	now func() time.Time
}

func NewTimeTool() workflow.Tool {
	return workflow.NewTypedTool[TimeInput, string](&TimeTool{now: time.Now})
}

func (t *TimeTool) Name() string {
	return "time"
}

func (t *TimeTool) Description() string {
	return "Get the current date and time"
}

func (t *TimeTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"utc":      map[string]any{"type": "boolean"},
			"location": map[string]any{"type": "string", "description": "IANA time zone, e.g. Europe/Berlin"},
			"format":   map[string]any{"type": "string", "description": "Go time layout"},
		},
	}
}

func (t *TimeTool) Execute(ctx context.Context, params TimeInput) (string, error) {
	now := t.now()
	switch {
	case params.Location != "":
		loc, err := time.LoadLocation(params.Location)
		if err != nil {
			return "", fmt.Errorf("invalid location: %w", err)
		}
		now = now.In(loc)
	case params.UTC:
		now = now.UTC()
	}
	format := params.Format
	if format == "" {
		format = time.RFC3339
	}
	return now.Format(format), nil
}
