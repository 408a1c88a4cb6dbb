package workflow

import (
	"context"
	"testing"

	"github.com/intrafind/ihub-apps-sub010/script"
	"github.com/stretchr/testify/require"
)

func testServices() *Services {
	return &Services{
		Logger:      discardLogger(),
		expressions: newExpressions(script.NewExprEngine()),
	}
}

func transformNode(ops ...map[string]any) *Node {
	list := make([]any, len(ops))
	for i, op := range ops {
		list[i] = op
	}
	return &Node{ID: "transform", Type: NodeTypeTransform, Config: map[string]any{"operations": list}}
}

func runTransform(t *testing.T, data map[string]any, ops ...map[string]any) (*NodeResult, error) {
	t.Helper()
	state := newExecutionState("exec_1", "wf", data, ExecutionContext{})
	return transformExecutor{}.Execute(context.Background(), transformNode(ops...), state, testServices())
}

func TestTransformOperations(t *testing.T) {
	tests := []struct {
		name   string
		data   map[string]any
		ops    []map[string]any
		output map[string]any
		delete []string
	}{
		{
			name:   "set literal and template",
			data:   map[string]any{"name": "Ada"},
			ops:    []map[string]any{{"type": "set", "field": "greeting", "value": "hi {{name}}"}},
			output: map[string]any{"greeting": "hi Ada"},
		},
		{
			name:   "set expression",
			data:   map[string]any{"a": 2, "b": 5},
			ops:    []map[string]any{{"type": "set", "field": "sum", "expression": "data.a + data.b"}},
			output: map[string]any{"sum": 7},
		},
		{
			name:   "set nested path",
			data:   map[string]any{"user": map[string]any{"name": "Ada"}},
			ops:    []map[string]any{{"type": "set", "field": "$.data.user.email", "value": "ada@example.com"}},
			output: map[string]any{"user": map[string]any{"name": "Ada", "email": "ada@example.com"}},
		},
		{
			name:   "increment missing field",
			data:   map[string]any{},
			ops:    []map[string]any{{"type": "increment", "field": "count"}},
			output: map[string]any{"count": 1},
		},
		{
			name:   "increment by float",
			data:   map[string]any{"total": 1},
			ops:    []map[string]any{{"type": "increment", "field": "total", "by": 0.5}},
			output: map[string]any{"total": 1.5},
		},
		{
			name:   "push creates and appends",
			data:   map[string]any{"item": "x"},
			ops:    []map[string]any{{"type": "push", "to": "items", "value": "$.data.item"}, {"type": "push", "field": "items", "value": "y"}},
			output: map[string]any{"items": []any{"x", "y"}},
		},
		{
			name:   "lengthOf",
			data:   map[string]any{"items": []any{1, 2, 3}, "word": "héllo"},
			ops:    []map[string]any{{"type": "lengthOf", "source": "items", "to": "n"}, {"type": "lengthOf", "field": "word", "target": "chars"}},
			output: map[string]any{"n": 3, "chars": 5},
		},
		{
			name:   "arrayGet",
			data:   map[string]any{"items": []any{"a", "b", "c"}, "i": 2},
			ops:    []map[string]any{{"type": "arrayGet", "source": "items", "index": "{{i}}", "to": "picked"}, {"type": "arrayGet", "source": "items", "to": "first"}},
			output: map[string]any{"picked": "c", "first": "a"},
		},
		{
			name:   "arrayGet out of range is nil",
			data:   map[string]any{"items": []any{"a"}},
			ops:    []map[string]any{{"type": "arrayGet", "source": "items", "index": 5, "to": "picked"}},
			output: map[string]any{"picked": nil},
		},
		{
			name:   "delete",
			data:   map[string]any{"tmp": 1, "keep": 2},
			ops:    []map[string]any{{"type": "delete", "field": "tmp"}},
			output: map[string]any{},
			delete: []string{"tmp"},
		},
		{
			name:   "delete nested",
			data:   map[string]any{"user": map[string]any{"name": "Ada", "secret": "x"}},
			ops:    []map[string]any{{"type": "delete", "field": "user.secret"}},
			output: map[string]any{"user": map[string]any{"name": "Ada"}},
		},
		{
			name:   "merge",
			data:   map[string]any{"settings": map[string]any{"a": 1, "b": 2}},
			ops:    []map[string]any{{"type": "merge", "field": "settings", "value": map[string]any{"b": 3, "c": 4}}},
			output: map[string]any{"settings": map[string]any{"a": 1, "b": 3, "c": 4}},
		},
		{
			name: "later operations see earlier results",
			data: map[string]any{},
			ops: []map[string]any{
				{"type": "set", "field": "x", "value": 1},
				{"type": "increment", "field": "x", "by": "$.data.x"},
				{"type": "set", "field": "label", "value": "x={{x}}"},
			},
			output: map[string]any{"x": 2, "label": "x=2"},
		},
		{
			name:   "unchanged values are not reported",
			data:   map[string]any{"x": 1},
			ops:    []map[string]any{{"type": "set", "field": "x", "value": 1}},
			output: map[string]any{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := runTransform(t, tt.data, tt.ops...)
			require.NoError(t, err)
			require.Equal(t, tt.output, result.Output)
			require.Equal(t, tt.delete, result.Delete)
		})
	}
}

func TestTransformDoesNotMutateState(t *testing.T) {
	data := map[string]any{
		"user":  map[string]any{"name": "Ada"},
		"items": []any{"a"},
		"count": 1,
	}
	state := newExecutionState("exec_1", "wf", data, ExecutionContext{})
	before := state.Copy()

	node := transformNode(
		map[string]any{"type": "set", "field": "user.name", "value": "Grace"},
		map[string]any{"type": "push", "to": "items", "value": "b"},
		map[string]any{"type": "increment", "field": "count"},
		map[string]any{"type": "delete", "field": "user.name"},
	)
	result, err := transformExecutor{}.Execute(context.Background(), node, state, testServices())
	require.NoError(t, err)
	require.Equal(t, before, state)
	require.Equal(t, []any{"a", "b"}, result.Output["items"])
	require.Equal(t, map[string]any{}, result.Output["user"])
}

func TestTransformRoundTrip(t *testing.T) {
	data := map[string]any{"a": 1, "tmp": "x", "list": []any{1}}
	state := newExecutionState("exec_1", "wf", data, ExecutionContext{})
	node := transformNode(
		map[string]any{"type": "set", "field": "b", "value": 2},
		map[string]any{"type": "push", "to": "list", "value": 2},
		map[string]any{"type": "delete", "field": "tmp"},
	)
	result, err := transformExecutor{}.Execute(context.Background(), node, state, testServices())
	require.NoError(t, err)

	merged := copyMap(state.Data)
	ApplyPatches(merged, patchesFor(result))
	require.Equal(t, map[string]any{"a": 1, "b": 2, "list": []any{1, 2}}, merged)
}

func TestTransformErrors(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		op   map[string]any
	}{
		{"increment string", map[string]any{"x": "abc"}, map[string]any{"type": "increment", "field": "x"}},
		{"push to scalar", map[string]any{"x": 1}, map[string]any{"type": "push", "to": "x", "value": 2}},
		{"lengthOf number", map[string]any{"x": 1}, map[string]any{"type": "lengthOf", "source": "x", "to": "n"}},
		{"merge non-object", map[string]any{}, map[string]any{"type": "merge", "field": "x", "value": "str"}},
		{"set through scalar", map[string]any{"x": 1}, map[string]any{"type": "set", "field": "x.y", "value": 2}},
		{"bad expression", map[string]any{}, map[string]any{"type": "set", "field": "x", "expression": "1 +"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runTransform(t, tt.data, tt.op)
			require.Error(t, err)
			require.True(t, MatchesErrorType(err, ErrorTypeExecution))
		})
	}
}

func TestTransformConfigValidation(t *testing.T) {
	for _, op := range []map[string]any{
		{"type": "rename", "field": "x"},
		{"type": "set", "value": 1},
		{"type": "set", "field": "x"},
		{"type": "push", "value": 1},
		{"type": "lengthOf", "source": "x"},
	} {
		_, err := decodeNodeConfig(transformNode(op))
		require.Error(t, err, "%v", op)
	}
}
