package workflow

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/intrafind/ihub-apps-sub010/script"
)

var rootedPrefix = regexp.MustCompile(`\$\.`)

// expressions compiles and caches expressions for one engine. Compiled
// scripts are reused across executions and loop iterations.
type expressions struct {
	compiler script.Compiler
	cache    sync.Map
}

func newExpressions(compiler script.Compiler) *expressions {
	return &expressions{compiler: compiler}
}

// rewriteExpression converts the path forms accepted in workflow documents
// into plain identifiers: "$.data.x" becomes "data.x" and "{{x}}" becomes
// "data.x" unless x already starts with a root name.
func rewriteExpression(code string) string {
	code = templateToken.ReplaceAllStringFunc(code, func(token string) string {
		path := strings.TrimSpace(templateToken.FindStringSubmatch(token)[1])
		if strings.HasPrefix(path, "$.") {
			return strings.TrimPrefix(path, "$.")
		}
		if i := strings.IndexAny(path, ".["); i > 0 && isRootName(path[:i]) {
			return path
		}
		return rootData + "." + path
	})
	return rootedPrefix.ReplaceAllString(code, "")
}

func isRootName(name string) bool {
	switch name {
	case rootData, rootInput, rootResult, rootContext, rootStatus, rootExecutionID:
		return true
	}
	return false
}

func (e *expressions) compile(ctx context.Context, code string) (script.Script, error) {
	if cached, ok := e.cache.Load(code); ok {
		return cached.(script.Script), nil
	}
	compiled, err := e.compiler.Compile(ctx, rewriteExpression(code))
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", code, err)
	}
	e.cache.Store(code, compiled)
	return compiled, nil
}

func (e *expressions) evaluate(ctx context.Context, code string, s *scope) (script.Value, error) {
	compiled, err := e.compile(ctx, code)
	if err != nil {
		return nil, err
	}
	value, err := compiled.Evaluate(ctx, s.globals())
	if err != nil {
		return nil, fmt.Errorf("expression %q: %w", code, err)
	}
	return value, nil
}

// truthy evaluates code and reports its truthiness.
func (e *expressions) truthy(ctx context.Context, code string, s *scope) (bool, error) {
	value, err := e.evaluate(ctx, code, s)
	if err != nil {
		return false, err
	}
	return value.IsTruthy(), nil
}
