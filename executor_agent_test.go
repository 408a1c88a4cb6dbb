package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// scriptedCompleter replays responses in order and records requests.
type scriptedCompleter struct {
	mutex     sync.Mutex
	responses []*CompletionResponse
	requests  []CompletionRequest
	err       error
}

func (c *scriptedCompleter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	if len(c.responses) == 0 {
		return &CompletionResponse{Content: "done"}, nil
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

func agentNode(cfg map[string]any) *Node {
	return &Node{ID: "agent", Type: NodeTypeAgent, Config: cfg}
}

func runAgent(t *testing.T, node *Node, data map[string]any, completer Completer, tools ToolInvoker) (*NodeResult, error) {
	t.Helper()
	svc := testServices()
	svc.Completer = completer
	svc.Tools = tools
	state := newExecutionState("exec_1", "wf", data, ExecutionContext{Language: "en"})
	return agentExecutor{}.Execute(context.Background(), node, state, svc)
}

func TestAgentPlainCompletion(t *testing.T) {
	completer := &scriptedCompleter{responses: []*CompletionResponse{{Content: "Paris"}}}
	node := agentNode(map[string]any{
		"system":  "Answer in {{context.language}}",
		"prompt":  "Capital of {{country}}?",
		"modelId": "gpt-4o-mini",
	})
	result, err := runAgent(t, node, map[string]any{"country": "France"}, completer, nil)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"agent": "Paris"}, result.Output)

	require.Len(t, completer.requests, 1)
	req := completer.requests[0]
	require.Equal(t, "Answer in en", req.System)
	require.Equal(t, "Capital of France?", req.Prompt)
	require.Equal(t, "gpt-4o-mini", req.ModelID)
	require.Empty(t, req.Tools)
}

func TestAgentToolLoop(t *testing.T) {
	var calls []map[string]any
	tools := NewToolRegistry(NewToolFunction("lookup", "look things up", func(ctx context.Context, params map[string]any) (any, error) {
		calls = append(calls, params)
		return map[string]any{"population": 2100000}, nil
	}).WithParameters(map[string]any{"type": "object"}))

	completer := &scriptedCompleter{responses: []*CompletionResponse{
		{ToolCalls: []ToolCall{{Name: "lookup", Arguments: map[string]any{"city": "Paris"}}}},
		{Content: `{"city": "Paris", "population": 2100000}`},
	}}
	node := agentNode(map[string]any{
		"prompt":         "How many people live in Paris?",
		"tools":          []any{"lookup"},
		"outputVariable": "facts",
		"outputSchema":   map[string]any{"type": "object", "required": []any{"city"}},
	})
	result, err := runAgent(t, node, nil, completer, tools)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"city": "Paris", "population": float64(2100000)}, result.Output["facts"])
	require.Equal(t, []map[string]any{{"city": "Paris"}}, calls)

	require.Len(t, completer.requests, 2)
	require.Equal(t, []ToolSpec{{Name: "lookup", Description: "look things up", Parameters: map[string]any{"type": "object"}}},
		completer.requests[0].Tools)
	second := completer.requests[1].Messages
	require.Len(t, second, 2)
	require.Equal(t, RoleAssistant, second[0].Role)
	require.NotEmpty(t, second[0].ToolCalls[0].ID)
	require.Equal(t, RoleTool, second[1].Role)
	require.Equal(t, second[0].ToolCalls[0].ID, second[1].ToolCallID)
	require.Equal(t, `{"population":2100000}`, second[1].Content)
}

func TestAgentStopsAtMaxIterations(t *testing.T) {
	tools := NewToolRegistry(NewToolFunction("again", "", func(ctx context.Context, params map[string]any) (any, error) {
		return "ok", nil
	}))
	loop := &CompletionResponse{Content: "thinking", ToolCalls: []ToolCall{{ID: "c1", Name: "again"}}}
	completer := &scriptedCompleter{responses: []*CompletionResponse{loop, loop, loop, loop}}
	node := agentNode(map[string]any{"prompt": "go", "tools": []any{"again"}, "maxIterations": 3})

	result, err := runAgent(t, node, nil, completer, tools)
	require.NoError(t, err)
	require.Len(t, completer.requests, 3)
	require.Equal(t, "thinking", result.Output["agent"])
}

func TestAgentStructuredOutput(t *testing.T) {
	schema := map[string]any{"type": "object"}
	tests := []struct {
		name    string
		content string
		want    any
	}{
		{"plain json", `{"ok": true}`, map[string]any{"ok": true}},
		{"fenced json", "```json\n{\"ok\": true}\n```", map[string]any{"ok": true}},
		{"bare fence", "```\n[1, 2]\n```", []any{float64(1), float64(2)}},
		{"not json keeps raw text", "I think yes", "I think yes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, parseStructuredOutput(tt.content, schema, discardLogger()))
		})
	}
}

func TestAgentErrors(t *testing.T) {
	t.Run("completion failure", func(t *testing.T) {
		completer := &scriptedCompleter{err: errors.New("rate limit exceeded")}
		_, err := runAgent(t, agentNode(map[string]any{"prompt": "x"}), nil, completer, nil)
		require.ErrorIs(t, err, ErrExternalCall)
		require.True(t, MatchesErrorType(err, ErrorTypeExternalCall))
	})

	t.Run("no completer", func(t *testing.T) {
		_, err := runAgent(t, agentNode(map[string]any{"prompt": "x"}), nil, nil, nil)
		require.ErrorIs(t, err, ErrExternalCall)
	})

	t.Run("tool not enabled", func(t *testing.T) {
		tools := NewToolRegistry(NewToolFunction("allowed", "", func(ctx context.Context, params map[string]any) (any, error) {
			return nil, nil
		}))
		completer := &scriptedCompleter{responses: []*CompletionResponse{
			{ToolCalls: []ToolCall{{ID: "1", Name: "forbidden"}}},
		}}
		_, err := runAgent(t, agentNode(map[string]any{"prompt": "x", "tools": []any{"allowed"}}), nil, completer, tools)
		require.ErrorIs(t, err, ErrExternalCall)
		require.Contains(t, err.Error(), "forbidden")
	})

	t.Run("tool failure fails the node", func(t *testing.T) {
		tools := NewToolRegistry(NewToolFunction("broken", "", func(ctx context.Context, params map[string]any) (any, error) {
			return nil, errors.New("boom")
		}))
		completer := &scriptedCompleter{responses: []*CompletionResponse{
			{ToolCalls: []ToolCall{{ID: "1", Name: "broken"}}},
		}}
		_, err := runAgent(t, agentNode(map[string]any{"prompt": "x", "tools": []any{"broken"}}), nil, completer, tools)
		require.ErrorIs(t, err, ErrExternalCall)
		require.Len(t, completer.requests, 1)
	})

	t.Run("unknown tool in config", func(t *testing.T) {
		_, err := runAgent(t, agentNode(map[string]any{"prompt": "x", "tools": []any{"nope"}}), nil,
			&scriptedCompleter{}, NewToolRegistry())
		require.ErrorIs(t, err, ErrToolNotFound)
	})
}

func TestAgentConfigValidation(t *testing.T) {
	for name, cfg := range map[string]map[string]any{
		"no prompt":      {},
		"bad timeout":    {"prompt": "x", "timeout": "soon"},
		"bad error mode": {"prompt": "x", "onError": "ignore"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := decodeNodeConfig(agentNode(cfg))
			require.Error(t, err)
		})
	}

	cfg, err := decodeNodeConfig(agentNode(map[string]any{"prompt": "x", "timeout": "90"}))
	require.NoError(t, err)
	agent := cfg.(*AgentConfig)
	require.Equal(t, DefaultAgentMaxIterations, agent.MaxIterations)
	require.Equal(t, "agent", agent.OutputVariable)
	require.Equal(t, float64(90), agent.timeout.Seconds())
}

func TestToolExecutor(t *testing.T) {
	var got map[string]any
	tools := NewToolRegistry(NewToolFunction("echo", "", func(ctx context.Context, params map[string]any) (any, error) {
		got = params
		return params["q"], nil
	}))
	svc := testServices()
	svc.Tools = tools
	node := &Node{ID: "search", Type: NodeTypeTool, Config: map[string]any{
		"toolName": "echo",
		"params":   map[string]any{"q": "{{query}}", "limit": 3, "raw": "$.data.filters"},
	}}
	state := newExecutionState("exec_1", "wf", map[string]any{
		"query":   "golang",
		"filters": []any{"recent"},
	}, ExecutionContext{})

	result, err := toolExecutor{}.Execute(context.Background(), node, state, svc)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"search": "golang"}, result.Output)
	require.Equal(t, map[string]any{"q": "golang", "limit": 3, "raw": []any{"recent"}}, got)

	_, err = toolExecutor{}.Execute(context.Background(), &Node{ID: "x", Type: NodeTypeTool, Config: map[string]any{
		"toolName": "missing",
	}}, state, svc)
	require.ErrorIs(t, err, ErrToolNotFound)
	require.ErrorIs(t, err, ErrExternalCall)
}
