package tools

import (
	"context"
	"fmt"
	"time"

	workflow "github.com/intrafind/ihub-apps-sub010"
)

// WaitInput defines the input parameters for the wait tool
type WaitInput struct {
	Duration any `mapstructure:"duration"` // "1m30s" or seconds
}

// WaitOutput defines the result of the wait tool
type WaitOutput struct {
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration"`
}

// WaitTool sleeps for a duration or until the context is done.
type WaitTool struct{}

func NewWaitTool() workflow.Tool {
	return workflow.NewTypedTool[WaitInput, WaitOutput](&WaitTool{})
}

func (t *WaitTool) Name() string {
	return "wait"
}

func (t *WaitTool) Description() string {
	return "Wait for a duration such as 5s or 1m"
}

func (t *WaitTool) Execute(ctx context.Context, params WaitInput) (WaitOutput, error) {
	if params.Duration == nil {
		return WaitOutput{}, fmt.Errorf("wait tool requires 'duration' parameter")
	}
	duration, err := parseDuration(params.Duration)
	if err != nil {
		return WaitOutput{}, err
	}
	if duration <= 0 {
		return WaitOutput{Message: "no delay specified"}, nil
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return WaitOutput{}, ctx.Err()
	case <-timer.C:
		return WaitOutput{Message: fmt.Sprintf("waited %s", duration), Duration: duration}, nil
	}
}

func parseDuration(v any) (time.Duration, error) {
	switch d := v.(type) {
	case string:
		duration, err := time.ParseDuration(d)
		if err != nil {
			return 0, fmt.Errorf("invalid duration format: %w", err)
		}
		return duration, nil
	case time.Duration:
		return d, nil
	case int:
		return time.Duration(d) * time.Second, nil
	case int64:
		return time.Duration(d) * time.Second, nil
	case float64:
		return time.Duration(d * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("duration must be a string or a number of seconds, got %T", v)
	}
}
