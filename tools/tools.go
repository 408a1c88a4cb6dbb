// Package tools provides built-in tools for tool nodes and agents.
package tools

import (
	workflow "github.com/intrafind/ihub-apps-sub010"
)

// All returns one instance of each built-in tool.
func All() []workflow.Tool {
	return []workflow.Tool{
		NewHTTPTool(),
		NewJSONTool(),
		NewTimeTool(),
		NewPrintTool(nil),
		NewFailTool(),
		NewWaitTool(),
		NewRandomTool(),
	}
}

// NewRegistry returns a tool registry holding the built-in tools plus any
// extra tools given.
func NewRegistry(extra ...workflow.Tool) *workflow.ToolRegistry {
	return workflow.NewToolRegistry(append(All(), extra...)...)
}
