package workflow

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/intrafind/ihub-apps-sub010/script"
)

// defaultConditionField is compared by equals conditions that name no field.
const defaultConditionField = "$.result.branch"

// EdgeEvaluator decides which outgoing edge a node takes. Evaluation is
// deterministic: edges are considered in declaration order and the same
// inputs always select the same edge.
type EdgeEvaluator struct {
	expressions *expressions
}

// NewEdgeEvaluator returns an evaluator that compiles expression conditions
// with the given compiler.
func NewEdgeEvaluator(compiler script.Compiler) *EdgeEvaluator {
	if compiler == nil {
		compiler = script.NewExprEngine()
	}
	return &EdgeEvaluator{expressions: newExpressions(compiler)}
}

func newEdgeEvaluator(exprs *expressions) *EdgeEvaluator {
	return &EdgeEvaluator{expressions: exprs}
}

// MatchingEdges returns the edges whose condition matches, in declaration
// order. Unconditional edges are returned only when no conditioned edge
// matches.
func (e *EdgeEvaluator) MatchingEdges(ctx context.Context, edges []*Edge, state *ExecutionState, result map[string]any) ([]*Edge, error) {
	return e.matching(ctx, edges, newScope(state).withResult(result))
}

// Select returns the edge taken out of node. End nodes may have no match
// and return (nil, nil); any other node without a match fails with
// ErrNoMatchingEdge.
func (e *EdgeEvaluator) Select(ctx context.Context, node *Node, edges []*Edge, state *ExecutionState, result map[string]any) (*Edge, error) {
	return e.selectEdge(ctx, node, edges, newScope(state).withResult(result))
}

func (e *EdgeEvaluator) selectEdge(ctx context.Context, node *Node, edges []*Edge, s *scope) (*Edge, error) {
	matches, err := e.matching(ctx, edges, s)
	if err != nil {
		return nil, newNodeError(ErrorTypeGraph, node.ID, err)
	}
	if len(matches) > 0 {
		return matches[0], nil
	}
	if node.Type == NodeTypeEnd {
		return nil, nil
	}
	return nil, newNodeError(ErrorTypeGraph, node.ID,
		fmt.Errorf("%w: node %q has %d outgoing edges", ErrNoMatchingEdge, node.ID, len(edges)))
}

func (e *EdgeEvaluator) matching(ctx context.Context, edges []*Edge, s *scope) ([]*Edge, error) {
	var matched, defaults []*Edge
	for _, edge := range edges {
		if edge.Condition == nil {
			defaults = append(defaults, edge)
			continue
		}
		ok, err := e.matches(ctx, edge.Condition, s)
		if err != nil {
			return nil, fmt.Errorf("edge %q: %w", edge.ID, err)
		}
		if ok {
			matched = append(matched, edge)
		}
	}
	if len(matched) > 0 {
		return matched, nil
	}
	return defaults, nil
}

func (e *EdgeEvaluator) matches(ctx context.Context, c *Condition, s *scope) (bool, error) {
	switch c.Type {
	case ConditionEquals:
		actual, _ := s.resolve(conditionField(c.Field))
		return valuesEqual(actual, c.Value), nil
	case ConditionExpression:
		return e.expressions.truthy(ctx, c.Expression, s)
	}
	return false, fmt.Errorf("unknown condition type %q", c.Type)
}

// conditionField normalizes the field an equals condition compares. The
// bare "branch" shorthand refers to the node result.
func conditionField(field string) string {
	field = strings.TrimSpace(field)
	switch field {
	case "", "branch", "$.branch":
		return defaultConditionField
	}
	return field
}

// valuesEqual compares values loosely: numbers compare by value regardless
// of their Go type, and booleans equal their string form.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	if isScalar(a) && isScalar(b) {
		return stringify(a) == stringify(b)
	}
	return false
}

func isScalar(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// toFloat converts numeric values, and strings holding numbers, to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case bool:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
