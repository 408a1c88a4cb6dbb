package workflow

import (
	"context"
	"testing"

	"github.com/intrafind/ihub-apps-sub010/script"
	"github.com/stretchr/testify/require"
)

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		a, b any
		want bool
	}{
		{"approve", "approve", true},
		{"approve", "reject", false},
		{3, 3.0, true},
		{int64(2), "2", true},
		{true, "true", true},
		{false, "true", false},
		{nil, nil, true},
		{nil, "", false},
		{[]any{"a"}, []any{"a"}, true},
		{map[string]any{"a": 1}, "map", false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, valuesEqual(tt.a, tt.b), "%v == %v", tt.a, tt.b)
	}
}

func TestEdgeEvaluatorSelect(t *testing.T) {
	ctx := context.Background()
	state := newExecutionState("exec_1", "wf", map[string]any{"iteration": 3, "maxIterations": 3}, ExecutionContext{})
	node := &Node{ID: "check", Type: NodeTypeDecision}

	fallback := &Edge{ID: "default", Source: "check", Target: "other"}
	approve := &Edge{ID: "approve", Source: "check", Target: "done",
		Condition: &Condition{Type: ConditionEquals, Value: "approve"}}
	shorthand := &Edge{ID: "shorthand", Source: "check", Target: "done",
		Condition: &Condition{Type: ConditionEquals, Field: "branch", Value: "approve"}}
	limit := &Edge{ID: "limit", Source: "check", Target: "stop",
		Condition: &Condition{Type: ConditionExpression, Expression: "$.data.iteration >= $.data.maxIterations"}}
	field := &Edge{ID: "field", Source: "check", Target: "done",
		Condition: &Condition{Type: ConditionEquals, Field: "result.verdict", Value: "ok"}}

	for _, compiler := range []struct {
		name     string
		compiler script.Compiler
	}{
		{"expr", script.NewExprEngine()},
		{"risor", script.NewRisorScriptingEngine(script.DefaultRisorGlobals())},
	} {
		t.Run(compiler.name, func(t *testing.T) {
			evaluator := NewEdgeEvaluator(compiler.compiler)

			t.Run("conditioned edge beats fallback declared first", func(t *testing.T) {
				edge, err := evaluator.Select(ctx, node, []*Edge{fallback, approve}, state, map[string]any{"branch": "approve"})
				require.NoError(t, err)
				require.Equal(t, "approve", edge.ID)
			})

			t.Run("fallback when nothing conditioned matches", func(t *testing.T) {
				edge, err := evaluator.Select(ctx, node, []*Edge{approve, fallback}, state, map[string]any{"branch": "reject"})
				require.NoError(t, err)
				require.Equal(t, "default", edge.ID)
			})

			t.Run("first matching edge wins", func(t *testing.T) {
				edges := []*Edge{shorthand, approve}
				for i := 0; i < 20; i++ {
					edge, err := evaluator.Select(ctx, node, edges, state, map[string]any{"branch": "approve"})
					require.NoError(t, err)
					require.Equal(t, "shorthand", edge.ID)
				}
				matches, err := evaluator.MatchingEdges(ctx, edges, state, map[string]any{"branch": "approve"})
				require.NoError(t, err)
				require.Len(t, matches, 2)
			})

			t.Run("expression over data", func(t *testing.T) {
				edge, err := evaluator.Select(ctx, node, []*Edge{limit, fallback}, state, nil)
				require.NoError(t, err)
				require.Equal(t, "limit", edge.ID)
			})

			t.Run("equals on a result field", func(t *testing.T) {
				edge, err := evaluator.Select(ctx, node, []*Edge{field}, state, map[string]any{"verdict": "ok"})
				require.NoError(t, err)
				require.Equal(t, "field", edge.ID)
			})

			t.Run("no match is an error", func(t *testing.T) {
				_, err := evaluator.Select(ctx, node, []*Edge{approve}, state, map[string]any{"branch": "reject"})
				require.ErrorIs(t, err, ErrNoMatchingEdge)
				require.True(t, MatchesErrorType(err, ErrorTypeGraph))
			})

			t.Run("end nodes have no successor", func(t *testing.T) {
				edge, err := evaluator.Select(ctx, &Node{ID: "end", Type: NodeTypeEnd}, nil, state, nil)
				require.NoError(t, err)
				require.Nil(t, edge)
			})
		})
	}
}

func TestEdgeEvaluatorInvalidExpression(t *testing.T) {
	evaluator := NewEdgeEvaluator(nil)
	state := newExecutionState("exec_1", "wf", nil, ExecutionContext{})
	bad := &Edge{ID: "bad", Source: "a", Target: "b",
		Condition: &Condition{Type: ConditionExpression, Expression: "data.x >>> 1"}}
	_, err := evaluator.Select(context.Background(), &Node{ID: "a", Type: NodeTypeDecision}, []*Edge{bad}, state, nil)
	require.Error(t, err)
	require.True(t, MatchesErrorType(err, ErrorTypeGraph))
}
