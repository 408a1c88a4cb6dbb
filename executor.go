package workflow

import (
	"context"
	"log/slog"
)

// NodeExecutor executes one kind of node. Executors never mutate state; the
// engine applies the returned result.
type NodeExecutor interface {
	Execute(ctx context.Context, node *Node, state *ExecutionState, svc *Services) (*NodeResult, error)
}

// Services are the collaborators available to node executors.
type Services struct {
	Workflow  *Workflow
	Completer Completer
	Tools     ToolInvoker
	Logger    *slog.Logger

	expressions *expressions
}

// NodeResult is what a node produced. Output keys are merged into the
// execution data; Delete lists keys removed from it.
type NodeResult struct {
	Output     map[string]any
	Delete     []string
	Branch     string
	Checkpoint *Checkpoint
	Terminal   *Terminal
}

// Terminal finalizes an execution from an end node.
type Terminal struct {
	Status ExecutionStatus
	Output map[string]any
}

// resultScope returns the value visible as "result" to edge conditions.
func (r *NodeResult) resultScope() map[string]any {
	result := make(map[string]any, len(r.Output)+1)
	for k, v := range r.Output {
		result[k] = v
	}
	result["branch"] = r.Branch
	return result
}

// newExecutors builds the dispatch table. The set of node types is closed.
func newExecutors() map[NodeType]NodeExecutor {
	return map[NodeType]NodeExecutor{
		NodeTypeStart:     startExecutor{},
		NodeTypeEnd:       endExecutor{},
		NodeTypeTransform: transformExecutor{},
		NodeTypeDecision:  decisionExecutor{},
		NodeTypeAgent:     agentExecutor{},
		NodeTypeTool:      toolExecutor{},
		NodeTypeHuman:     humanExecutor{},
	}
}

func configFor[T any](svc *Services, node *Node) (*T, error) {
	if svc.Workflow != nil {
		if cfg, ok := svc.Workflow.nodeConfig(node.ID).(*T); ok {
			return cfg, nil
		}
	}
	// Nodes built outside New carry no decoded config.
	cfg, err := decodeNodeConfig(node)
	if err != nil {
		return nil, newNodeError(ErrorTypeValidation, node.ID, err)
	}
	typed, ok := cfg.(*T)
	if !ok {
		return nil, newNodeError(ErrorTypeGraph, node.ID, ErrUnknownNodeType)
	}
	return typed, nil
}
