package script

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/builtin"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
)

// ExprEngine compiles expressions with expr-lang. Programs are compiled
// without a typed environment so any globals map can be supplied at
// evaluation time; undefined variables evaluate to nil.
type ExprEngine struct {
	options []expr.Option
}

// NewExprEngine returns an expr-lang engine. Additional options are passed
// to expr.Compile.
func NewExprEngine(options ...expr.Option) *ExprEngine {
	return &ExprEngine{options: options}
}

// Compile compiles code. A bare identifier that names a builtin, such as
// count or len, refers to the variable of that name instead.
func (e *ExprEngine) Compile(ctx context.Context, code string) (Script, error) {
	tree, err := parser.Parse(code)
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", err)
	}
	refs := builtinRefs{}
	ast.Walk(&tree.Node, refs)

	options := []expr.Option{expr.AllowUndefinedVariables()}
	for name := range refs {
		options = append(options, expr.DisableBuiltin(name))
	}
	options = append(options, e.options...)
	program, err := expr.Compile(code, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", err)
	}
	return &ExprScript{program: program}, nil
}

// builtinRefs collects identifiers that are not calls but share a name with
// a builtin function.
type builtinRefs map[string]bool

func (r builtinRefs) Visit(node *ast.Node) {
	if ident, ok := (*node).(*ast.IdentifierNode); ok {
		if _, isBuiltin := builtin.Index[ident.Value]; isBuiltin {
			r[ident.Value] = true
		}
	}
}

type ExprScript struct {
	program *vm.Program
}

func (s *ExprScript) Evaluate(ctx context.Context, globals map[string]any) (Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if globals == nil {
		globals = map[string]any{}
	}
	result, err := expr.Run(s.program, globals)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression: %w", err)
	}
	return &ExprValue{value: result}, nil
}

// ExprValue wraps a plain Go value produced by expr-lang.
type ExprValue struct {
	value any
}

// NewValue wraps a Go value as a script Value.
func NewValue(v any) *ExprValue {
	return &ExprValue{value: v}
}

func (v *ExprValue) Value() any {
	return v.value
}

func (v *ExprValue) Items() ([]any, error) {
	return ConvertEachValue(v.value)
}

func (v *ExprValue) String() string {
	switch val := v.value.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	switch reflect.ValueOf(v.value).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		data, err := json.Marshal(v.value)
		if err == nil {
			return string(data)
		}
	}
	return fmt.Sprintf("%v", v.value)
}

func (v *ExprValue) IsTruthy() bool {
	if s, ok := v.value.(string); ok {
		return s != "" && strings.ToLower(s) != "false"
	}
	return ConvertValueToBool(v.value)
}
