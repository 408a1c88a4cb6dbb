package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	workflow "github.com/intrafind/ihub-apps-sub010"
)

// JSONInput defines the input parameters for the json tool
type JSONInput struct {
	Operation string `mapstructure:"operation"` // parse, stringify, query, merge, validate
	Data      any    `mapstructure:"data"`
	Query     string `mapstructure:"query"`
	MergeWith any    `mapstructure:"merge_with"`
}

// JSONTool parses, formats, queries and merges JSON documents. Data may be a
// JSON string or an already decoded value.
type JSONTool struct{}

func NewJSONTool() workflow.Tool {
	return workflow.NewTypedTool[JSONInput, any](&JSONTool{})
}

func (t *JSONTool) Name() string {
	return "json"
}

func (t *JSONTool) Description() string {
	return "Parse, stringify, query, merge or validate JSON data"
}

func (t *JSONTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation":  map[string]any{"type": "string", "enum": []string{"parse", "stringify", "query", "merge", "validate"}},
			"data":       map[string]any{"description": "JSON text or value"},
			"query":      map[string]any{"type": "string", "description": "Dot path such as items.0.name"},
			"merge_with": map[string]any{"description": "Object merged over data"},
		},
		"required": []string{"data"},
	}
}

func (t *JSONTool) Execute(ctx context.Context, params JSONInput) (any, error) {
	if params.Operation == "" {
		params.Operation = "parse"
	}
	switch strings.ToLower(params.Operation) {
	case "parse":
		return decode(params.Data)

	case "stringify":
		parsed, err := decode(params.Data)
		if err != nil {
			return nil, err
		}
		formatted, err := json.MarshalIndent(parsed, "", "  ")
		if err != nil {
			return nil, err
		}
		return string(formatted), nil

	case "query":
		if params.Query == "" {
			return nil, fmt.Errorf("query cannot be empty for query operation")
		}
		parsed, err := decode(params.Data)
		if err != nil {
			return nil, err
		}
		return queryJSON(parsed, params.Query)

	case "merge":
		if params.MergeWith == nil {
			return nil, fmt.Errorf("merge_with cannot be empty for merge operation")
		}
		base, err := decodeObject(params.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse data: %w", err)
		}
		other, err := decodeObject(params.MergeWith)
		if err != nil {
			return nil, fmt.Errorf("failed to parse merge_with: %w", err)
		}
		return mergeJSON(base, other), nil

	case "validate":
		s, ok := params.Data.(string)
		if !ok {
			return params.Data != nil, nil
		}
		return json.Valid([]byte(s)), nil

	default:
		return nil, fmt.Errorf("unsupported operation: %s", params.Operation)
	}
}

// decode parses JSON text. Values that are not strings are normalized
// through a JSON round trip.
func decode(data any) (any, error) {
	var raw []byte
	switch v := data.(type) {
	case nil:
		return nil, fmt.Errorf("data cannot be empty")
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}
	var result any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func decodeObject(data any) (map[string]any, error) {
	parsed, err := decode(data)
	if err != nil {
		return nil, err
	}
	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %T", parsed)
	}
	return obj, nil
}

func queryJSON(data any, query string) (any, error) {
	query = strings.TrimPrefix(query, ".")
	if query == "" {
		return data, nil
	}
	current := data
	for _, part := range strings.Split(query, ".") {
		if part == "" {
			continue
		}
		switch v := current.(type) {
		case map[string]any:
			val, exists := v[part]
			if !exists {
				return nil, fmt.Errorf("key %q not found", part)
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid array index %q", part)
			}
			if idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("array index %d out of bounds", idx)
			}
			current = v[idx]
		default:
			return nil, fmt.Errorf("cannot query %q into %T", part, current)
		}
	}
	return current, nil
}

// mergeJSON merges other over base, recursing into nested objects.
func mergeJSON(base, other map[string]any) map[string]any {
	result := make(map[string]any, len(base)+len(other))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range other {
		if existing, ok := result[k].(map[string]any); ok {
			if vMap, ok := v.(map[string]any); ok {
				result[k] = mergeJSON(existing, vMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}
