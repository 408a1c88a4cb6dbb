package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateInput(t *testing.T) {
	wf := mustWorkflow(t, Options{
		ID: "inputs",
		Nodes: []*Node{
			startNode(
				map[string]any{"name": "query", "type": "string", "required": true},
				map[string]any{"name": "limit", "type": "integer", "default": 10},
				map[string]any{"name": "ratio", "type": "number"},
				map[string]any{"name": "flags", "type": "array"},
				map[string]any{"name": "meta", "type": "object"},
				map[string]any{"name": "verbose", "type": "boolean"},
			),
			endNode("end"),
		},
		Edges: []*Edge{link("start", "end")},
	})

	data, err := validateInput(wf, map[string]any{"query": "go", "extra": true})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"query": "go", "extra": true}, data)

	_, err = validateInput(wf, map[string]any{
		"query": "go", "limit": 5.0, "ratio": 0.3, "flags": []any{"a"},
		"meta": map[string]any{}, "verbose": false,
	})
	require.NoError(t, err)

	for name, input := range map[string]map[string]any{
		"missing required": {},
		"nil required":     {"query": nil},
		"string as int":    {"query": "go", "limit": "5"},
		"fractional int":   {"query": "go", "limit": 1.5},
		"number as string": {"query": "go", "ratio": "0.3"},
		"array as object":  {"query": "go", "meta": []any{}},
		"bool as string":   {"query": "go", "verbose": "yes"},
		"string as array":  {"query": "go", "flags": "a,b"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := validateInput(wf, input)
			require.ErrorIs(t, err, ErrValidation)
			require.True(t, MatchesErrorType(err, ErrorTypeValidation))
		})
	}
}

func TestStartExecutorDefaults(t *testing.T) {
	node := startNode(
		map[string]any{"name": "limit", "default": 10},
		map[string]any{"name": "query"},
	)
	state := newExecutionState("exec_1", "wf", map[string]any{"query": "go"}, ExecutionContext{})
	result, err := startExecutor{}.Execute(context.Background(), node, state, testServices())
	require.NoError(t, err)
	require.Equal(t, map[string]any{"limit": 10}, result.Output)
}

func TestEndExecutor(t *testing.T) {
	node := &Node{ID: "end", Type: NodeTypeEnd, Config: map[string]any{
		"outputVariables": []any{"answer", "$.data.report.summary", "missing"},
	}}
	state := newExecutionState("exec_1", "wf", map[string]any{
		"answer": 42,
		"report": map[string]any{"summary": "short"},
		"other":  "hidden",
	}, ExecutionContext{})
	result, err := endExecutor{}.Execute(context.Background(), node, state, testServices())
	require.NoError(t, err)
	require.NotNil(t, result.Terminal)
	require.Equal(t, ExecutionStatusCompleted, result.Terminal.Status)
	require.Equal(t, map[string]any{"answer": 42, "summary": "short"}, result.Terminal.Output)

	_, err = decodeNodeConfig(&Node{ID: "end", Type: NodeTypeEnd, Config: map[string]any{"status": "paused"}})
	require.Error(t, err)
}

func TestDecisionExecutor(t *testing.T) {
	state := newExecutionState("exec_1", "wf", map[string]any{"score": 0.9, "tags": []any{"a"}}, ExecutionContext{})
	for expression, want := range map[string]string{
		"$.data.score > 0.5":       "true",
		"{{score}} < 0.5":          "false",
		"len(data.tags) == 1":      "true",
		"data.missing == nil":      "true",
		"status == 'pending'":      "true",
		"score > 0.5 && score < 1": "true",
	} {
		t.Run(expression, func(t *testing.T) {
			node := &Node{ID: "decide", Type: NodeTypeDecision, Config: map[string]any{"expression": expression}}
			result, err := decisionExecutor{}.Execute(context.Background(), node, state, testServices())
			require.NoError(t, err)
			require.Equal(t, want, result.Branch)
			require.Empty(t, result.Output)
		})
	}
}

func TestHumanExecutor(t *testing.T) {
	node := &Node{ID: "review", Type: NodeTypeHuman, Config: map[string]any{
		"message": "Approve {{title}}?",
		"options": []any{
			map[string]any{"value": "yes", "label": "Yes"},
			map[string]any{"value": "no"},
		},
		"showData":    []any{"title", "$.data.draft.body"},
		"inputSchema": map[string]any{"properties": map[string]any{"comment": map[string]any{}}},
	}}
	state := newExecutionState("exec_1", "wf", map[string]any{
		"title": "Q3 report",
		"draft": map[string]any{"body": "text"},
	}, ExecutionContext{})

	result, err := humanExecutor{}.Execute(context.Background(), node, state, testServices())
	require.NoError(t, err)
	checkpoint := result.Checkpoint
	require.NotNil(t, checkpoint)
	require.Contains(t, checkpoint.ID, "ckpt_")
	require.Equal(t, "Approve Q3 report?", checkpoint.Message)
	require.Equal(t, map[string]any{"title": "Q3 report", "$.data.draft.body": "text"}, checkpoint.Data)
	require.True(t, checkpoint.HasOption("yes"))
	require.False(t, checkpoint.HasOption("maybe"))

	resp, err := humanResult(node, checkpoint, HumanResponse{
		CheckpointID: checkpoint.ID,
		Response:     "no",
		Data:         map[string]any{"comment": "needs work", "feedback": "see notes", "other": 1},
	})
	require.NoError(t, err)
	require.Equal(t, "no", resp.Branch)
	require.Equal(t, map[string]any{
		"comment":         "needs work",
		"feedback":        "see notes",
		"review_response": "no",
	}, resp.Output)

	_, err = humanResult(node, checkpoint, HumanResponse{CheckpointID: checkpoint.ID, Response: "maybe"})
	require.ErrorIs(t, err, ErrInvalidResponse)
}
