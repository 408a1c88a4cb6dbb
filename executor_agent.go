package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

type agentExecutor struct{}

// Execute runs the agent tool loop. The model is asked for a completion; any
// tool calls it requests are executed and their results sent back, up to
// maxIterations completions. Tool failures fail the node.
func (agentExecutor) Execute(ctx context.Context, node *Node, state *ExecutionState, svc *Services) (*NodeResult, error) {
	cfg, err := configFor[AgentConfig](svc, node)
	if err != nil {
		return nil, err
	}
	if svc.Completer == nil {
		return nil, externalError(node.ID, fmt.Errorf("no completer configured"))
	}
	s := newScope(state)
	req := CompletionRequest{
		System:       s.resolveTemplate(cfg.System),
		Prompt:       s.resolveTemplate(cfg.Prompt),
		ModelID:      s.resolveTemplate(cfg.ModelID),
		OutputSchema: cfg.OutputSchema,
	}
	if len(cfg.Tools) > 0 {
		if svc.Tools == nil {
			return nil, externalError(node.ID, fmt.Errorf("agent requests tools but no tool invoker is configured"))
		}
		req.Tools, err = toolSpecs(svc.Tools, cfg.Tools)
		if err != nil {
			return nil, externalError(node.ID, err)
		}
	}
	allowed := make(map[string]bool, len(cfg.Tools))
	for _, name := range cfg.Tools {
		allowed[name] = true
	}

	logger := svc.Logger
	var content string
	finished := false
	for i := 0; i < cfg.MaxIterations; i++ {
		resp, err := svc.Completer.Complete(ctx, req)
		if err != nil {
			return nil, externalError(node.ID, fmt.Errorf("completion failed: %w", err))
		}
		if resp == nil {
			return nil, externalError(node.ID, fmt.Errorf("completion returned no response"))
		}
		content = resp.Content
		if len(resp.ToolCalls) == 0 || len(cfg.Tools) == 0 {
			finished = true
			break
		}
		calls := make([]ToolCall, len(resp.ToolCalls))
		copy(calls, resp.ToolCalls)
		for j := range calls {
			if calls[j].ID == "" {
				calls[j].ID = uuid.NewString()
			}
		}
		req.Messages = append(req.Messages, Message{Role: RoleAssistant, Content: resp.Content, ToolCalls: calls})
		for _, call := range calls {
			if !allowed[call.Name] {
				return nil, externalError(node.ID, fmt.Errorf("model requested tool %q which is not enabled for this node", call.Name))
			}
			logger.Debug("invoking tool", "tool", call.Name, "tool_call_id", call.ID, "iteration", i+1)
			result, err := svc.Tools.Invoke(WithLogger(ctx, logger), call.Name, call.Arguments)
			if err != nil {
				return nil, externalError(node.ID, fmt.Errorf("tool %q failed: %w", call.Name, err))
			}
			req.Messages = append(req.Messages, Message{
				Role:       RoleTool,
				ToolCallID: call.ID,
				Name:       call.Name,
				Content:    stringify(result),
			})
		}
	}
	if !finished {
		logger.Warn("agent reached max iterations with pending tool calls",
			"max_iterations", cfg.MaxIterations)
	}

	var value any = content
	if cfg.OutputSchema != nil {
		value = parseStructuredOutput(content, cfg.OutputSchema, logger)
	}
	return &NodeResult{Output: map[string]any{cfg.OutputVariable: value}}, nil
}

func toolSpecs(tools ToolInvoker, names []string) ([]ToolSpec, error) {
	if describer, ok := tools.(ToolDescriber); ok {
		return describer.Specs(names)
	}
	specs := make([]ToolSpec, len(names))
	for i, name := range names {
		specs[i] = ToolSpec{Name: name}
	}
	return specs, nil
}

// parseStructuredOutput parses model output as JSON. Markdown code fences
// are stripped first. When the text is not valid JSON the raw string is
// kept and a warning logged.
func parseStructuredOutput(content string, schema map[string]any, logger *slog.Logger) any {
	text := stripCodeFence(content)
	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		logger.Warn("agent output is not valid json, keeping raw text", "error", err)
		return content
	}
	if obj, ok := parsed.(map[string]any); ok {
		if missing := missingRequired(obj, schema); len(missing) > 0 {
			logger.Warn("agent output is missing required fields", "missing", missing)
		}
	}
	return parsed
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func missingRequired(obj map[string]any, schema map[string]any) []string {
	required, err := toList(schema["required"])
	if err != nil {
		return nil
	}
	var missing []string
	for _, r := range required {
		name, ok := r.(string)
		if !ok {
			continue
		}
		if _, present := obj[name]; !present {
			missing = append(missing, name)
		}
	}
	return missing
}

func externalError(nodeID string, err error) *WorkflowError {
	return &WorkflowError{
		Type:    ErrorTypeExternalCall,
		Cause:   err.Error(),
		NodeID:  nodeID,
		Wrapped: fmt.Errorf("%w: %w", ErrExternalCall, err),
	}
}
