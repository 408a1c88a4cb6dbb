package script

import "context"

// Value is the outcome of evaluating a condition, decision or template
// expression.
type Value interface {
	// Value returns the plain Go value: nil, bool, a number, string,
	// []any or map[string]any.
	Value() any
	// Items returns the elements of a list value. Nil is empty, a scalar is
	// a single item and a map yields key/value pairs.
	Items() ([]any, error)
	String() string
	// IsTruthy reports whether the value selects the "true" branch of a
	// decision.
	IsTruthy() bool
}

// Script is a compiled expression. Evaluate may be called concurrently with
// different globals.
type Script interface {
	Evaluate(ctx context.Context, globals map[string]any) (Value, error)
}

// Compiler turns expression source into a Script. The engine caches the
// result per source string.
type Compiler interface {
	Compile(ctx context.Context, code string) (Script, error)
}
