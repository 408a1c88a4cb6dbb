package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"
)

// Confirm the interfaces are implemented correctly.
var (
	_ Tool        = (*ToolFunction)(nil)
	_ Tool        = (*typedTool[any, any])(nil)
	_ ToolInvoker = (*ToolRegistry)(nil)
)

// ToolInvoker executes named tools. It is used directly by tool nodes and by
// the agent tool loop.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, params map[string]any) (any, error)
}

// ToolDescriber is optionally implemented by a ToolInvoker to describe the
// tools offered to a model.
type ToolDescriber interface {
	Specs(names []string) ([]ToolSpec, error)
}

// ToolSpec describes a tool to a completion service.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Tool is a named function that can be invoked by a workflow.
type Tool interface {

	// Name returns the name of the Tool
	Name() string

	// Description returns a short description shown to models
	Description() string

	// Parameters returns the JSON schema of the parameters, if any
	Parameters() map[string]any

	// Invoke the Tool with the given parameters.
	Invoke(ctx context.Context, params map[string]any) (any, error)
}

// ToolFunc is the signature of a function backing a ToolFunction.
type ToolFunc func(ctx context.Context, params map[string]any) (any, error)

// ToolFunction wraps a function for use as a Tool.
type ToolFunction struct {
	name        string
	description string
	parameters  map[string]any
	fn          ToolFunc
}

// NewToolFunction returns a Tool for the given function.
func NewToolFunction(name, description string, fn ToolFunc) *ToolFunction {
	return &ToolFunction{name: name, description: description, fn: fn}
}

// WithParameters sets the parameter schema for the tool.
func (t *ToolFunction) WithParameters(schema map[string]any) *ToolFunction {
	t.parameters = schema
	return t
}

func (t *ToolFunction) Name() string { return t.name }

func (t *ToolFunction) Description() string { return t.description }

func (t *ToolFunction) Parameters() map[string]any { return t.parameters }

func (t *ToolFunction) Invoke(ctx context.Context, params map[string]any) (any, error) {
	return t.fn(ctx, params)
}

// TypedTool is a tool with typed parameters and result. Parameters are
// decoded from the params map using mapstructure tags.
type TypedTool[TParams, TResult any] interface {
	Name() string
	Description() string
	Execute(ctx context.Context, params TParams) (TResult, error)
}

// NewTypedTool adapts a TypedTool to the Tool interface. If the typed tool
// has a Parameters() method its schema is exposed.
func NewTypedTool[TParams, TResult any](tool TypedTool[TParams, TResult]) Tool {
	return &typedTool[TParams, TResult]{tool: tool}
}

// TypedToolFunction wraps a typed function for use as a Tool.
func TypedToolFunction[TParams, TResult any](name, description string, fn func(ctx context.Context, params TParams) (TResult, error)) Tool {
	return NewTypedTool[TParams, TResult](&typedToolFunction[TParams, TResult]{
		name:        name,
		description: description,
		fn:          fn,
	})
}

type typedTool[TParams, TResult any] struct {
	tool TypedTool[TParams, TResult]
}

func (t *typedTool[TParams, TResult]) Name() string { return t.tool.Name() }

func (t *typedTool[TParams, TResult]) Description() string { return t.tool.Description() }

func (t *typedTool[TParams, TResult]) Parameters() map[string]any {
	if p, ok := any(t.tool).(interface{ Parameters() map[string]any }); ok {
		return p.Parameters()
	}
	return nil
}

func (t *typedTool[TParams, TResult]) Invoke(ctx context.Context, params map[string]any) (any, error) {
	var typed TParams
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           &typed,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(params); err != nil {
		return nil, fmt.Errorf("invalid parameters for tool %q: %w", t.tool.Name(), err)
	}
	return t.tool.Execute(ctx, typed)
}

type typedToolFunction[TParams, TResult any] struct {
	name        string
	description string
	fn          func(ctx context.Context, params TParams) (TResult, error)
}

func (t *typedToolFunction[TParams, TResult]) Name() string { return t.name }

func (t *typedToolFunction[TParams, TResult]) Description() string { return t.description }

func (t *typedToolFunction[TParams, TResult]) Execute(ctx context.Context, params TParams) (TResult, error) {
	return t.fn(ctx, params)
}

// ErrToolNotFound is returned when a tool is not registered.
var ErrToolNotFound = errors.New("tool not found")

// ToolRegistry is a concurrency-safe set of named tools.
type ToolRegistry struct {
	mutex sync.RWMutex
	tools map[string]Tool
}

// NewToolRegistry returns a registry containing the given tools.
func NewToolRegistry(tools ...Tool) *ToolRegistry {
	r := &ToolRegistry{tools: make(map[string]Tool, len(tools))}
	for _, tool := range tools {
		r.Register(tool)
	}
	return r
}

// Register adds or replaces a tool.
func (r *ToolRegistry) Register(tool Tool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the sorted names of registered tools.
func (r *ToolRegistry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the named tool.
func (r *ToolRegistry) Invoke(ctx context.Context, name string, params map[string]any) (any, error) {
	tool, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}
	if params == nil {
		params = map[string]any{}
	}
	return tool.Invoke(ctx, params)
}

// Specs describes the named tools. All registered tools are described when
// names is empty.
func (r *ToolRegistry) Specs(names []string) ([]ToolSpec, error) {
	if len(names) == 0 {
		names = r.Names()
	}
	specs := make([]ToolSpec, 0, len(names))
	for _, name := range names {
		tool, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrToolNotFound, name)
		}
		specs = append(specs, ToolSpec{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	return specs, nil
}
