package workflow

import (
	"context"
	"strconv"
)

type decisionExecutor struct{}

// Execute evaluates the decision expression and returns branch "true" or
// "false". Decisions never write data.
func (decisionExecutor) Execute(ctx context.Context, node *Node, state *ExecutionState, svc *Services) (*NodeResult, error) {
	cfg, err := configFor[DecisionConfig](svc, node)
	if err != nil {
		return nil, err
	}
	ok, err := svc.expressions.truthy(ctx, cfg.Expression, newScope(state))
	if err != nil {
		return nil, newNodeError(ErrorTypeExecution, node.ID, err)
	}
	return &NodeResult{Branch: strconv.FormatBool(ok)}, nil
}
