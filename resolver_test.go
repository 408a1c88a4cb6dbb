package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func resolverState() *ExecutionState {
	state := newExecutionState("exec_1", "wf", map[string]any{
		"name":  "Ada",
		"count": 3,
		"score": 0.5,
		"user":  map[string]any{"email": "ada@example.com", "tags": []any{"a", "b"}},
		"plan": map[string]any{
			"steps": []any{
				map[string]any{"title": "first"},
				map[string]any{"title": "second"},
			},
		},
		"typed": map[string]string{"k": "v"},
	}, ExecutionContext{Language: "de", User: "u-7"})
	state.Status = ExecutionStatusRunning
	return state
}

func TestResolve(t *testing.T) {
	state := resolverState()
	tests := []struct {
		path  string
		want  any
		found bool
	}{
		{"name", "Ada", true},
		{"$.data.name", "Ada", true},
		{"$.name", "Ada", true},
		{"data.user.email", "ada@example.com", true},
		{"input.count", 3, true},
		{"user.tags[1]", "b", true},
		{"user.tags.0", "a", true},
		{"$.data.plan.steps[1].title", "second", true},
		{"plan.steps[2].title", nil, false},
		{"typed.k", "v", true},
		{"context.language", "de", true},
		{"context.user", "u-7", true},
		{"status", "running", true},
		{"executionId", "exec_1", true},
		{"missing", nil, false},
		{"user.missing.deeper", nil, false},
		{"result.branch", nil, false},
		{"", nil, false},
		{"user..email", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := Resolve(tt.path, state)
			require.Equal(t, tt.found, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestResolveDataShadowsRoots(t *testing.T) {
	state := newExecutionState("exec_1", "wf", map[string]any{"status": "draft"}, ExecutionContext{})
	got, ok := Resolve("status", state)
	require.True(t, ok)
	require.Equal(t, "draft", got)

	// The explicit form always reaches the root.
	got, ok = Resolve("$.status", state)
	require.True(t, ok)
	require.Equal(t, "pending", got)
}

func TestResolveTemplate(t *testing.T) {
	state := resolverState()
	tests := []struct {
		template string
		want     string
	}{
		{"Hello {{name}}", "Hello Ada"},
		{"{{ name }} has {{count}} items", "Ada has 3 items"},
		{"score={{score}}", "score=0.5"},
		{"tags={{user.tags}}", `tags=["a","b"]`},
		{"missing=[{{nope}}]", "missing=[]"},
		{"no tokens", "no tokens"},
		{"lang {{context.language}}", "lang de"},
	}
	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			require.Equal(t, tt.want, ResolveTemplate(tt.template, state))
		})
	}
}

func TestResolveAll(t *testing.T) {
	state := resolverState()
	got := ResolveAll(map[string]any{
		"raw":      "{{count}}",
		"path":     "$.data.user.tags",
		"text":     "{{name}} ({{count}})",
		"list":     []any{"{{name}}", 7, "$.data.missing"},
		"literal":  "plain",
		"number":   42,
		"nested":   map[string]any{"email": "{{user.email}}"},
		"strings":  []string{"{{name}}"},
		"dollar":   "costs $5",
		"notAPath": "$.data.user tags",
	}, state)
	require.Equal(t, map[string]any{
		"raw":      3,
		"path":     []any{"a", "b"},
		"text":     "Ada (3)",
		"list":     []any{"Ada", 7, nil},
		"literal":  "plain",
		"number":   42,
		"nested":   map[string]any{"email": "ada@example.com"},
		"strings":  []any{"Ada"},
		"dollar":   "costs $5",
		"notAPath": "$.data.user tags",
	}, got)
}

func TestResolveIsPure(t *testing.T) {
	state := resolverState()
	before := state.Copy()
	ResolveAll(map[string]any{"a": "{{plan.steps}}", "b": "$.data.user"}, state)
	Resolve("plan.steps[0].title", state)
	require.Equal(t, before, state)
}

func TestResolveResultRoot(t *testing.T) {
	state := newExecutionState("exec_1", "wf", map[string]any{"result": "processed: Hello"}, ExecutionContext{})

	got, ok := Resolve("result", state)
	require.True(t, ok)
	require.Equal(t, "processed: Hello", got)

	s := newScope(state).withResult(map[string]any{"branch": "approve"})
	for _, path := range []string{"result.branch", "$.result.branch"} {
		got, ok := s.resolve(path)
		require.True(t, ok, path)
		require.Equal(t, "approve", got, path)
	}
	got, ok = s.resolve("$.data.result")
	require.True(t, ok)
	require.Equal(t, "processed: Hello", got)

	require.Equal(t, "processed: Hello", newScope(state).globals()["result"])
	require.Equal(t, map[string]any{"branch": "approve"}, s.globals()["result"])
}
