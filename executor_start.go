package workflow

import (
	"context"
	"reflect"
)

type startExecutor struct{}

// Execute fills declared defaults for inputs that were not provided. Input
// validation happens before the execution exists, in validateInput.
func (startExecutor) Execute(ctx context.Context, node *Node, state *ExecutionState, svc *Services) (*NodeResult, error) {
	cfg, err := configFor[StartConfig](svc, node)
	if err != nil {
		return nil, err
	}
	output := map[string]any{}
	for _, v := range cfg.InputVariables {
		if _, ok := state.Data[v.Name]; !ok && v.Default != nil {
			output[v.Name] = copyValue(v.Default)
		}
	}
	return &NodeResult{Output: output}, nil
}

// validateInput checks the provided input against the start node's declared
// variables and returns the data an execution is seeded with. Undeclared
// keys pass through unchanged.
func validateInput(wf *Workflow, input map[string]any) (map[string]any, error) {
	start := wf.Start()
	cfg, ok := wf.nodeConfig(start.ID).(*StartConfig)
	if !ok {
		return nil, validationError("start node %q has no config", start.ID)
	}
	data := copyMap(input)
	if data == nil {
		data = map[string]any{}
	}
	for _, v := range cfg.InputVariables {
		value, ok := data[v.Name]
		if !ok || value == nil {
			if v.Required && v.Default == nil {
				return nil, &WorkflowError{
					Type:    ErrorTypeValidation,
					Cause:   "missing required input " + quote(v.Name),
					NodeID:  start.ID,
					Wrapped: ErrValidation,
				}
			}
			continue
		}
		if !matchesInputType(v.Type, value) {
			return nil, &WorkflowError{
				Type:    ErrorTypeValidation,
				Cause:   "input " + quote(v.Name) + " must be of type " + v.Type,
				NodeID:  start.ID,
				Wrapped: ErrValidation,
			}
		}
	}
	return data, nil
}

func matchesInputType(t string, value any) bool {
	rv := reflect.ValueOf(value)
	switch t {
	case "", "any":
		return true
	case "string":
		return rv.Kind() == reflect.String
	case "boolean":
		return rv.Kind() == reflect.Bool
	case "number":
		_, ok := toFloat(value)
		return ok && rv.Kind() != reflect.String
	case "integer":
		f, ok := toFloat(value)
		return ok && rv.Kind() != reflect.String && f == float64(int64(f))
	case "object":
		return rv.Kind() == reflect.Map
	case "array":
		return rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array
	}
	return false
}

func quote(s string) string {
	return `"` + s + `"`
}
