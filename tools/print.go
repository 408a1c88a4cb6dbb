package tools

import (
	"context"
	"fmt"
	"io"
	"os"

	workflow "github.com/intrafind/ihub-apps-sub010"
)

// PrintInput defines the input parameters for the print tool
type PrintInput struct {
	Message any `mapstructure:"message"`
}

// PrintOutput defines the result of the print tool
type PrintOutput struct {
	Success bool `json:"success"`
}

// PrintTool writes a message to an output stream and the execution log.
type PrintTool struct {
	out io.Writer
}

// NewPrintTool returns the print tool. Output goes to stdout when w is nil.
func NewPrintTool(w io.Writer) workflow.Tool {
	if w == nil {
		w = os.Stdout
	}
	return workflow.NewTypedTool[PrintInput, PrintOutput](&PrintTool{out: w})
}

func (t *PrintTool) Name() string {
	return "print"
}

func (t *PrintTool) Description() string {
	return "Print a message"
}

func (t *PrintTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{"description": "Value to print"},
		},
		"required": []string{"message"},
	}
}

func (t *PrintTool) Execute(ctx context.Context, params PrintInput) (PrintOutput, error) {
	if params.Message == nil {
		return PrintOutput{}, fmt.Errorf("print tool requires 'message' parameter")
	}
	workflow.LoggerFromContext(ctx).Info("print", "message", params.Message)
	if _, err := fmt.Fprintln(t.out, params.Message); err != nil {
		return PrintOutput{}, err
	}
	return PrintOutput{Success: true}, nil
}
