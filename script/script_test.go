package script

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExprEngine(t *testing.T) {
	ctx := context.Background()
	engine := NewExprEngine()

	tests := []struct {
		name       string
		code       string
		globals    map[string]any
		wantValue  any
		wantTruthy bool
	}{
		{
			name:       "comparison over data",
			code:       "data.value > 10",
			globals:    map[string]any{"data": map[string]any{"value": 15}},
			wantValue:  true,
			wantTruthy: true,
		},
		{
			name: "comparison of two fields",
			code: "data.iteration >= data.maxIterations",
			globals: map[string]any{"data": map[string]any{
				"iteration":     1,
				"maxIterations": 2,
			}},
			wantValue:  false,
			wantTruthy: false,
		},
		{
			name:       "mixed int and float",
			code:       "count + 0.5",
			globals:    map[string]any{"count": 2},
			wantValue:  2.5,
			wantTruthy: true,
		},
		{
			name:       "variable named like a builtin",
			code:       "len > 1 && map == 'road'",
			globals:    map[string]any{"len": 3, "map": "road"},
			wantValue:  true,
			wantTruthy: true,
		},
		{
			name:       "builtin call without a shadowing variable",
			code:       "count(data.items, # > 1)",
			globals:    map[string]any{"data": map[string]any{"items": []any{1, 2, 3}}},
			wantValue:  2,
			wantTruthy: true,
		},
		{
			name:       "undefined variable is nil",
			code:       "missing",
			globals:    nil,
			wantValue:  nil,
			wantTruthy: false,
		},
		{
			name:       "string value",
			code:       `"hello " + name`,
			globals:    map[string]any{"name": "world"},
			wantValue:  "hello world",
			wantTruthy: true,
		},
		{
			name:       "false string is falsy",
			code:       "flag",
			globals:    map[string]any{"flag": "false"},
			wantValue:  "false",
			wantTruthy: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := engine.Compile(ctx, tt.code)
			require.NoError(t, err)
			value, err := s.Evaluate(ctx, tt.globals)
			require.NoError(t, err)
			require.Equal(t, tt.wantValue, value.Value())
			require.Equal(t, tt.wantTruthy, value.IsTruthy())
		})
	}
}

func TestExprEngineCompileError(t *testing.T) {
	_, err := NewExprEngine().Compile(context.Background(), "1 +")
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to compile expression")
}

func TestExprValueString(t *testing.T) {
	require.Equal(t, "", NewValue(nil).String())
	require.Equal(t, "3", NewValue(3.0).String())
	require.Equal(t, `["a","b"]`, NewValue([]any{"a", "b"}).String())
	require.Equal(t, "true", NewValue(true).String())
}

func TestRisorEngine(t *testing.T) {
	ctx := context.Background()
	engine := NewRisorScriptingEngine(DefaultRisorGlobals())

	t.Run("data index", func(t *testing.T) {
		s, err := engine.Compile(ctx, `data["value"] > 10`)
		require.NoError(t, err)
		value, err := s.Evaluate(ctx, map[string]any{
			"data": map[string]any{"value": 15},
		})
		require.NoError(t, err)
		require.True(t, value.IsTruthy())
		require.Equal(t, true, value.Value())
	})

	t.Run("undeclared globals are ignored", func(t *testing.T) {
		s, err := engine.Compile(ctx, `len(data["items"])`)
		require.NoError(t, err)
		value, err := s.Evaluate(ctx, map[string]any{
			"data":  map[string]any{"items": []any{"a", "b"}},
			"items": []any{"ignored"},
		})
		require.NoError(t, err)
		require.Equal(t, int64(2), value.Value())
	})

	t.Run("declared globals without a value are nil", func(t *testing.T) {
		s, err := engine.Compile(ctx, `result == nil && data["value"] > 10`)
		require.NoError(t, err)
		value, err := s.Evaluate(ctx, map[string]any{
			"data":   map[string]any{"value": 15},
			"result": nil,
		})
		require.NoError(t, err)
		require.True(t, value.IsTruthy())
	})

	t.Run("no globals supplied", func(t *testing.T) {
		s, err := engine.Compile(ctx, `data == nil`)
		require.NoError(t, err)
		value, err := s.Evaluate(ctx, nil)
		require.NoError(t, err)
		require.True(t, value.IsTruthy())
	})

	t.Run("undefined variable fails to compile", func(t *testing.T) {
		_, err := engine.Compile(ctx, `undefined_var + 1`)
		require.Error(t, err)
	})
}

func TestConvertValueToBool(t *testing.T) {
	tests := []struct {
		value any
		want  bool
	}{
		{nil, false},
		{true, true},
		{0, false},
		{int64(3), true},
		{0.0, false},
		{"", false},
		{"FALSE", false},
		{"no", true},
		{[]any{}, false},
		{[]string{"a"}, true},
		{map[string]any{"a": 1}, true},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ConvertValueToBool(tt.value), "value %#v", tt.value)
	}
}

func TestConvertEachValue(t *testing.T) {
	items, err := ConvertEachValue([]string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, []any{"a", "b"}, items)

	items, err = ConvertEachValue(7)
	require.NoError(t, err)
	require.Equal(t, []any{7}, items)

	_, err = ConvertEachValue(struct{}{})
	require.Error(t, err)
}
