package workflow

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// Root names a path may start with. A path whose first segment is not a key
// of data falls back to these.
const (
	rootData        = "data"
	rootInput       = "input"
	rootResult      = "result"
	rootContext     = "context"
	rootStatus      = "status"
	rootExecutionID = "executionId"
)

var (
	templateToken = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)
	singleToken   = regexp.MustCompile(`^\{\{\s*([^{}]+?)\s*\}\}$`)
	pathExpr      = regexp.MustCompile(`^\$\.[A-Za-z_][\w-]*(\.[\w-]+|\[\d+\])*$`)
)

// scope is the set of values paths resolve against.
type scope struct {
	data        map[string]any
	result      map[string]any
	context     ExecutionContext
	status      ExecutionStatus
	executionID string
}

func newScope(state *ExecutionState) *scope {
	if state == nil {
		return &scope{data: map[string]any{}}
	}
	return &scope{
		data:        state.Data,
		context:     state.Context,
		status:      state.Status,
		executionID: state.ExecutionID,
	}
}

func (s *scope) withData(data map[string]any) *scope {
	c := *s
	c.data = data
	return &c
}

func (s *scope) withResult(result map[string]any) *scope {
	c := *s
	c.result = result
	return &c
}

func (s *scope) root(name string) (any, bool) {
	switch name {
	case rootData, rootInput:
		return s.data, true
	case rootResult:
		if s.result == nil {
			return nil, false
		}
		return s.result, true
	case rootContext:
		return map[string]any{"language": s.context.Language, "user": s.context.User}, true
	case rootStatus:
		return string(s.status), true
	case rootExecutionID:
		return s.executionID, true
	}
	return nil, false
}

// globals returns the variables visible to expressions: every data key at
// the top level, with the root names taking precedence. A data key named
// result stays visible while no node result is in scope.
func (s *scope) globals() map[string]any {
	globals := make(map[string]any, len(s.data)+6)
	for k, v := range s.data {
		globals[k] = v
	}
	for _, name := range []string{rootData, rootInput, rootResult, rootContext, rootStatus, rootExecutionID} {
		value, ok := s.root(name)
		if _, shadowed := s.data[name]; !ok && shadowed {
			continue
		}
		globals[name] = value
	}
	return globals
}

// Resolve looks up a path expression against the execution state. Paths
// may start with "$.", use dot segments and [n] indices, and resolve
// against data unless they start with a root name (data, input, result,
// context, status, executionId) that data does not shadow. While a node
// result is in scope, "result" always names it. Missing paths return
// (nil, false).
func Resolve(path string, state *ExecutionState) (any, bool) {
	return newScope(state).resolve(path)
}

// ResolveAll returns v with every template string resolved against state.
// Maps and slices are walked and copied; other values are returned as is.
func ResolveAll(v any, state *ExecutionState) any {
	return newScope(state).resolveAll(v)
}

// ResolveTemplate replaces every {{path}} token in s with the stringified
// value of the path. Missing values become empty strings.
func ResolveTemplate(s string, state *ExecutionState) string {
	return newScope(state).resolveTemplate(s)
}

func (s *scope) resolve(path string) (any, bool) {
	path = strings.TrimSpace(path)
	rooted := strings.HasPrefix(path, "$.")
	path = strings.TrimPrefix(path, "$.")
	parts, err := parsePath(path)
	if err != nil || len(parts) == 0 || parts[0].isIndex {
		return nil, false
	}
	first := parts[0].key
	if first == rootResult && s.result != nil {
		return walkPath(s.result, parts[1:])
	}
	if !rooted {
		if v, ok := s.data[first]; ok {
			return walkPath(v, parts[1:])
		}
	}
	if v, ok := s.root(first); ok {
		return walkPath(v, parts[1:])
	}
	if v, ok := s.data[first]; ok && rooted {
		return walkPath(v, parts[1:])
	}
	return nil, false
}

func (s *scope) resolveAll(v any) any {
	switch v := v.(type) {
	case string:
		return s.resolveString(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = s.resolveAll(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = s.resolveAll(item)
		}
		return out
	case []string:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = s.resolveString(item)
		}
		return out
	default:
		return v
	}
}

// resolveString returns the raw value when the string is exactly one path
// expression or one token, and the rendered template otherwise.
func (s *scope) resolveString(str string) any {
	trimmed := strings.TrimSpace(str)
	if pathExpr.MatchString(trimmed) {
		v, _ := s.resolve(trimmed)
		return v
	}
	if m := singleToken.FindStringSubmatch(trimmed); m != nil {
		v, _ := s.resolve(m[1])
		return v
	}
	if !strings.Contains(str, "{{") {
		return str
	}
	return s.resolveTemplate(str)
}

func (s *scope) resolveTemplate(str string) string {
	return templateToken.ReplaceAllStringFunc(str, func(token string) string {
		m := templateToken.FindStringSubmatch(token)
		v, _ := s.resolve(m[1])
		return stringify(v)
	})
}

type pathPart struct {
	key     string
	index   int
	isIndex bool
}

// parsePath splits "foo.bar[2].baz" into its segments. Numeric dot segments
// ("items.0") are treated as indices when walking slices.
func parsePath(path string) ([]pathPart, error) {
	var parts []pathPart
	for _, segment := range strings.Split(path, ".") {
		if segment == "" {
			return nil, fmt.Errorf("empty segment in path %q", path)
		}
		name := segment
		var indices []int
		if i := strings.IndexByte(segment, '['); i >= 0 {
			name = segment[:i]
			rest := segment[i:]
			for rest != "" {
				if rest[0] != '[' {
					return nil, fmt.Errorf("invalid path %q", path)
				}
				end := strings.IndexByte(rest, ']')
				if end < 0 {
					return nil, fmt.Errorf("unclosed index in path %q", path)
				}
				n, err := strconv.Atoi(strings.TrimSpace(rest[1:end]))
				if err != nil {
					return nil, fmt.Errorf("invalid index in path %q", path)
				}
				indices = append(indices, n)
				rest = rest[end+1:]
			}
		}
		if name != "" {
			parts = append(parts, pathPart{key: name})
		}
		for _, n := range indices {
			parts = append(parts, pathPart{index: n, isIndex: true})
		}
	}
	return parts, nil
}

func walkPath(v any, parts []pathPart) (any, bool) {
	current := v
	for _, part := range parts {
		if current == nil {
			return nil, false
		}
		if part.isIndex {
			item, ok := indexValue(current, part.index)
			if !ok {
				return nil, false
			}
			current = item
			continue
		}
		switch c := current.(type) {
		case map[string]any:
			item, ok := c[part.key]
			if !ok {
				return nil, false
			}
			current = item
		default:
			if n, err := strconv.Atoi(part.key); err == nil {
				item, ok := indexValue(current, n)
				if !ok {
					return nil, false
				}
				current = item
				continue
			}
			rv := reflect.ValueOf(current)
			if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
				return nil, false
			}
			item := rv.MapIndex(reflect.ValueOf(part.key).Convert(rv.Type().Key()))
			if !item.IsValid() {
				return nil, false
			}
			current = item.Interface()
		}
	}
	return current, true
}

func indexValue(v any, index int) (any, bool) {
	if list, ok := v.([]any); ok {
		if index < 0 || index >= len(list) {
			return nil, false
		}
		return list[index], true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if index < 0 || index >= rv.Len() {
		return nil, false
	}
	return rv.Index(index).Interface(), true
}

// stringify renders a value for inclusion in a template. Maps and slices are
// JSON encoded and nil renders as the empty string.
func stringify(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
	return fmt.Sprintf("%v", v)
}
