package workflow

import (
	"context"
	"fmt"
	"time"
)

// feedbackField is accepted in human response data even when the node's
// inputSchema does not declare it.
const feedbackField = "feedback"

type humanExecutor struct{}

// Execute produces a checkpoint. The engine pauses the execution until a
// matching response is supplied to Resume.
func (humanExecutor) Execute(ctx context.Context, node *Node, state *ExecutionState, svc *Services) (*NodeResult, error) {
	cfg, err := configFor[HumanConfig](svc, node)
	if err != nil {
		return nil, err
	}
	s := newScope(state)
	checkpoint := &Checkpoint{
		ID:          NewCheckpointID(),
		NodeID:      node.ID,
		Message:     s.resolveTemplate(cfg.Message),
		Options:     append([]HumanOption{}, cfg.Options...),
		InputSchema: copyMap(cfg.InputSchema),
		ShowData:    append([]string(nil), cfg.ShowData...),
		CreatedAt:   time.Now().UTC(),
	}
	if len(cfg.ShowData) > 0 {
		checkpoint.Data = make(map[string]any, len(cfg.ShowData))
		for _, path := range cfg.ShowData {
			value, _ := s.resolve(path)
			checkpoint.Data[path] = copyValue(value)
		}
	}
	return &NodeResult{Checkpoint: checkpoint}, nil
}

// humanResult turns a response to a checkpoint into the node result used for
// edge selection. The branch is the response value. Response data is merged
// into the execution data, limited to the inputSchema properties (plus
// feedback) when the schema declares any.
func humanResult(node *Node, checkpoint *Checkpoint, resp HumanResponse) (*NodeResult, error) {
	if !checkpoint.HasOption(resp.Response) {
		return nil, &WorkflowError{
			Type:    ErrorTypeValidation,
			Cause:   fmt.Sprintf("response %q is not an option of checkpoint %q", resp.Response, checkpoint.ID),
			NodeID:  node.ID,
			Wrapped: ErrInvalidResponse,
		}
	}
	output := map[string]any{}
	properties, _ := checkpoint.InputSchema["properties"].(map[string]any)
	for key, value := range resp.Data {
		if len(properties) > 0 && key != feedbackField {
			if _, declared := properties[key]; !declared {
				continue
			}
		}
		output[key] = copyValue(value)
	}
	output[node.ID+"_response"] = resp.Response
	return &NodeResult{Output: output, Branch: resp.Response}, nil
}
