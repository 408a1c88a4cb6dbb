package workflow

import (
	"context"
	"fmt"
)

type toolExecutor struct{}

// Execute resolves the params against the current state and invokes the
// tool exactly once. The raw result is written to the output variable.
func (toolExecutor) Execute(ctx context.Context, node *Node, state *ExecutionState, svc *Services) (*NodeResult, error) {
	cfg, err := configFor[ToolConfig](svc, node)
	if err != nil {
		return nil, err
	}
	if svc.Tools == nil {
		return nil, externalError(node.ID, fmt.Errorf("no tool invoker configured for tool %q", cfg.ToolName))
	}
	params, _ := newScope(state).resolveAll(cfg.Params).(map[string]any)
	if params == nil {
		params = map[string]any{}
	}
	result, err := svc.Tools.Invoke(WithLogger(ctx, svc.Logger), cfg.ToolName, params)
	if err != nil {
		return nil, externalError(node.ID, fmt.Errorf("tool %q failed: %w", cfg.ToolName, err))
	}
	return &NodeResult{Output: map[string]any{cfg.OutputVariable: result}}, nil
}
