package workflow

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

type transformExecutor struct{}

// Execute applies the operations in order to a working copy of the data.
// Later operations see the results of earlier ones. The result holds the
// changed and deleted top-level keys.
func (transformExecutor) Execute(ctx context.Context, node *Node, state *ExecutionState, svc *Services) (*NodeResult, error) {
	cfg, err := configFor[TransformConfig](svc, node)
	if err != nil {
		return nil, err
	}
	original := state.Data
	work := make(map[string]any, len(original))
	for k, v := range original {
		work[k] = v
	}
	base := newScope(state)
	for i, op := range cfg.Operations {
		if err := applyOperation(ctx, svc, op, base.withData(work)); err != nil {
			return nil, &WorkflowError{
				Type:    ErrorTypeExecution,
				Cause:   fmt.Sprintf("operation %d (%s): %v", i, op.Type, err),
				NodeID:  node.ID,
				Wrapped: err,
			}
		}
	}
	result := &NodeResult{Output: map[string]any{}}
	for _, patch := range GeneratePatches(original, work) {
		if patch.Delete() {
			result.Delete = append(result.Delete, patch.Variable())
		} else {
			result.Output[patch.Variable()] = patch.Value()
		}
	}
	return result, nil
}

// applyOperation applies op to the data held by s. The data map is
// modified in place; nested maps and slices are replaced, never mutated.
func applyOperation(ctx context.Context, svc *Services, op Operation, s *scope) error {
	data := s.data
	switch op.Type {
	case OpSet:
		value, err := operationValue(ctx, svc, op, s)
		if err != nil {
			return err
		}
		return setPath(data, op.Field, value)

	case OpIncrement:
		current, _ := getPath(data, op.Field)
		if current == nil {
			current = 0
		}
		by := any(1)
		if op.By != nil {
			by = s.resolveAll(op.By)
		}
		sum, err := addNumbers(current, by)
		if err != nil {
			return fmt.Errorf("increment %q: %w", op.Field, err)
		}
		return setPath(data, op.Field, sum)

	case OpPush:
		value, err := operationValue(ctx, svc, op, s)
		if err != nil {
			return err
		}
		current, _ := getPath(data, op.To)
		list, err := toList(current)
		if err != nil {
			return fmt.Errorf("push to %q: %w", op.To, err)
		}
		next := make([]any, len(list), len(list)+1)
		copy(next, list)
		return setPath(data, op.To, append(next, value))

	case OpLengthOf:
		value, _ := s.resolve(op.Source)
		n, err := lengthOf(value)
		if err != nil {
			return fmt.Errorf("lengthOf %q: %w", op.Source, err)
		}
		return setPath(data, op.To, n)

	case OpArrayGet:
		value, _ := s.resolve(op.Source)
		index, ok := toFloat(s.resolveAll(op.Index))
		if !ok {
			return fmt.Errorf("arrayGet %q: index %v is not a number", op.Source, op.Index)
		}
		item, _ := indexValue(value, int(index))
		return setPath(data, op.To, copyValue(item))

	case OpDelete:
		return deletePath(data, op.Field)

	case OpMerge:
		value, err := operationValue(ctx, svc, op, s)
		if err != nil {
			return err
		}
		patch, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("merge into %q: value is %T, not an object", op.Field, value)
		}
		current, _ := getPath(data, op.Field)
		merged := map[string]any{}
		if existing, ok := current.(map[string]any); ok {
			for k, v := range existing {
				merged[k] = v
			}
		} else if current != nil {
			return fmt.Errorf("merge into %q: existing value is %T, not an object", op.Field, current)
		}
		for k, v := range patch {
			merged[k] = v
		}
		return setPath(data, op.Field, merged)
	}
	return fmt.Errorf("unknown transform operation %q", op.Type)
}

// operationValue resolves the value an operation writes: an expression when
// configured, otherwise the templated value.
func operationValue(ctx context.Context, svc *Services, op Operation, s *scope) (any, error) {
	if op.Expression != "" {
		value, err := svc.expressions.evaluate(ctx, op.Expression, s)
		if err != nil {
			return nil, err
		}
		return value.Value(), nil
	}
	return copyValue(s.resolveAll(op.Value)), nil
}

// trimDataPrefix strips "$." and a leading "data." so transform targets can
// be written in any of the path forms.
func trimDataPrefix(path string) string {
	path = strings.TrimPrefix(strings.TrimSpace(path), "$.")
	return strings.TrimPrefix(path, rootData+".")
}

func fieldKeys(path string) ([]string, error) {
	path = trimDataPrefix(path)
	if path == "" {
		return nil, fmt.Errorf("empty field path")
	}
	keys := strings.Split(path, ".")
	for _, key := range keys {
		if key == "" || strings.ContainsAny(key, "[]") {
			return nil, fmt.Errorf("invalid field path %q", path)
		}
	}
	return keys, nil
}

func getPath(data map[string]any, path string) (any, bool) {
	keys, err := fieldKeys(path)
	if err != nil {
		return nil, false
	}
	parts := make([]pathPart, len(keys))
	for i, key := range keys {
		parts[i] = pathPart{key: key}
	}
	return walkPath(data, parts)
}

// setPath writes value at a dotted path, copying every intermediate map it
// passes through so values shared with the original data are untouched.
func setPath(data map[string]any, path string, value any) error {
	keys, err := fieldKeys(path)
	if err != nil {
		return err
	}
	current := data
	for i, key := range keys[:len(keys)-1] {
		next := map[string]any{}
		if existing, ok := current[key]; ok && existing != nil {
			m, ok := existing.(map[string]any)
			if !ok {
				return fmt.Errorf("%q is %T, not an object", strings.Join(keys[:i+1], "."), existing)
			}
			for k, v := range m {
				next[k] = v
			}
		}
		current[key] = next
		current = next
	}
	current[keys[len(keys)-1]] = value
	return nil
}

func deletePath(data map[string]any, path string) error {
	keys, err := fieldKeys(path)
	if err != nil {
		return err
	}
	if len(keys) == 1 {
		delete(data, keys[0])
		return nil
	}
	parentPath := strings.Join(keys[:len(keys)-1], ".")
	parent, _ := getPath(data, parentPath)
	m, ok := parent.(map[string]any)
	if !ok {
		return nil
	}
	next := copyShallow(m)
	delete(next, keys[len(keys)-1])
	return setPath(data, parentPath, next)
}

func copyShallow(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func toList(v any) ([]any, error) {
	if v == nil {
		return nil, nil
	}
	if list, ok := v.([]any); ok {
		return list, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("value is %T, not an array", v)
	}
	list := make([]any, rv.Len())
	for i := range list {
		list[i] = rv.Index(i).Interface()
	}
	return list, nil
}

func lengthOf(v any) (int, error) {
	if v == nil {
		return 0, nil
	}
	if s, ok := v.(string); ok {
		return len([]rune(s)), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len(), nil
	}
	return 0, fmt.Errorf("value is %T, which has no length", v)
}

// addNumbers adds two numbers. The sum stays an int when both operands are
// Go integers and is a float64 otherwise.
func addNumbers(a, b any) (any, error) {
	ai, aInt := toInt(a)
	bi, bInt := toInt(b)
	if aInt && bInt {
		return ai + bi, nil
	}
	af, ok := toFloat(a)
	if !ok || isStringValue(a) {
		return nil, fmt.Errorf("%v (%T) is not a number", a, a)
	}
	bf, ok := toFloat(b)
	if !ok || isStringValue(b) {
		return nil, fmt.Errorf("%v (%T) is not a number", b, b)
	}
	return af + bf, nil
}

func toInt(v any) (int, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(rv.Uint()), true
	}
	return 0, false
}

func isStringValue(v any) bool {
	_, ok := v.(string)
	return ok
}
