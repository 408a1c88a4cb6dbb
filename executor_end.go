package workflow

import (
	"context"
)

type endExecutor struct{}

// Execute projects the configured output variables out of the execution data
// and names the terminal status.
func (endExecutor) Execute(ctx context.Context, node *Node, state *ExecutionState, svc *Services) (*NodeResult, error) {
	cfg, err := configFor[EndConfig](svc, node)
	if err != nil {
		return nil, err
	}
	status := ExecutionStatusCompleted
	if cfg.Status != "" {
		status = ExecutionStatus(cfg.Status)
	}
	s := newScope(state)
	output := make(map[string]any, len(cfg.OutputVariables))
	for _, name := range cfg.OutputVariables {
		value, ok := s.resolve(name)
		if !ok {
			svc.Logger.Warn("output variable not found", "variable", name)
			continue
		}
		output[outputKey(name)] = copyValue(value)
	}
	return &NodeResult{Terminal: &Terminal{Status: status, Output: output}}, nil
}

// outputKey names a projected output: the last segment of its path.
func outputKey(path string) string {
	parts, err := parsePath(trimDataPrefix(path))
	if err != nil || len(parts) == 0 {
		return path
	}
	for i := len(parts) - 1; i >= 0; i-- {
		if !parts[i].isIndex {
			return parts[i].key
		}
	}
	return path
}
