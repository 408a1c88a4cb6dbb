package script

import (
	"context"
	"fmt"
	"sort"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/compiler"
	"github.com/risor-io/risor/modules/all"
	"github.com/risor-io/risor/object"
	"github.com/risor-io/risor/parser"
)

// VariableNames are the globals the workflow engine supplies to every
// expression. Risor resolves global names at compile time, so these are
// always declared.
var VariableNames = []string{"data", "input", "result", "context", "status", "executionId"}

type RisorScript struct {
	engine *RisorScriptingEngine
	code   *compiler.Code
}

// Evaluate runs the compiled code. Only globals declared to the engine are
// passed through; Risor rejects names it did not see at compile time.
func (s *RisorScript) Evaluate(ctx context.Context, globals map[string]any) (Value, error) {
	combinedGlobals := make(map[string]any, len(s.engine.globals))
	for name, value := range s.engine.globals {
		combinedGlobals[name] = value
	}
	for name, value := range globals {
		if _, declared := s.engine.globals[name]; declared {
			combinedGlobals[name] = value
		}
	}
	for name, value := range combinedGlobals {
		if value == nil {
			combinedGlobals[name] = object.Nil
		}
	}
	value, err := risor.EvalCode(ctx, s.code, risor.WithGlobals(combinedGlobals))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate risor script: %w", err)
	}
	return &RisorValue{obj: value}, nil
}

type RisorScriptingEngine struct {
	globals map[string]any
}

// NewRisorScriptingEngine returns a Risor engine with the given globals.
// The workflow variable names are always declared, defaulting to nil.
// Expressions reach data keys through data, e.g. data.count.
func NewRisorScriptingEngine(globals map[string]any) *RisorScriptingEngine {
	combined := make(map[string]any, len(globals)+len(VariableNames))
	for _, name := range VariableNames {
		combined[name] = nil
	}
	for name, value := range globals {
		combined[name] = value
	}
	return &RisorScriptingEngine{globals: combined}
}

func (e *RisorScriptingEngine) Compile(ctx context.Context, code string) (Script, error) {
	ast, err := parser.Parse(ctx, code)
	if err != nil {
		return nil, err
	}

	globalNames := make([]string, 0, len(e.globals))
	for name := range e.globals {
		globalNames = append(globalNames, name)
	}
	sort.Strings(globalNames)

	compiledCode, err := compiler.Compile(ast, compiler.WithGlobalNames(globalNames))
	if err != nil {
		return nil, err
	}
	return &RisorScript{engine: e, code: compiledCode}, nil
}

type RisorValue struct {
	obj object.Object
}

func (value *RisorValue) Value() any {
	return ConvertRisorValueToGo(value.obj)
}

func (value *RisorValue) IsTruthy() bool {
	switch obj := value.obj.(type) {
	case *object.String, *object.Int, *object.Float, *object.Bool,
		*object.List, *object.Map, *object.NilType:
		return ConvertValueToBool(obj)
	default:
		return obj.IsTruthy()
	}
}

func (value *RisorValue) Items() ([]any, error) {
	return ConvertEachValue(value.obj)
}

func (value *RisorValue) String() string {
	return NewValue(value.Value()).String()
}

// DefaultRisorGlobals returns the Risor builtins that are deterministic and
// free of side effects.
func DefaultRisorGlobals() map[string]any {
	safe := map[string]bool{
		"all": true, "any": true, "bool": true, "coalesce": true, "float": true,
		"int": true, "json": true, "keys": true, "len": true, "list": true,
		"map": true, "math": true, "regexp": true, "reversed": true, "set": true,
		"sorted": true, "string": true, "strings": true, "type": true,
	}
	globals := map[string]any{}
	for name, value := range all.Builtins() {
		if safe[name] {
			globals[name] = value
		}
	}
	return globals
}
