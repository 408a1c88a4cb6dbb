package tools

import (
	"context"
	"fmt"

	workflow "github.com/intrafind/ihub-apps-sub010"
	"github.com/intrafind/ihub-apps-sub010/retry"
)

// FailInput defines the input parameters for the fail tool
type FailInput struct {
	Message     string `mapstructure:"message"`
	Recoverable bool   `mapstructure:"recoverable"`
}

// FailTool always returns an error. It is useful for exercising error
// policies in workflows.
type FailTool struct{}

func NewFailTool() workflow.Tool {
	return workflow.NewTypedTool[FailInput, any](&FailTool{})
}

func (t *FailTool) Name() string {
	return "fail"
}

func (t *FailTool) Description() string {
	return "Fail with the given message"
}

func (t *FailTool) Execute(ctx context.Context, params FailInput) (any, error) {
	message := params.Message
	if message == "" {
		message = "intentional failure"
	}
	err := fmt.Errorf("fail tool: %s", message)
	if params.Recoverable {
		return nil, retry.NewRecoverableError(err)
	}
	return nil, err
}
