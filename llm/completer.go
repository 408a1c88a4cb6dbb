// Package llm adapts langchaingo models to the workflow Completer interface.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/llms"

	workflow "github.com/intrafind/ihub-apps-sub010"
	"github.com/intrafind/ihub-apps-sub010/retry"
)

var _ workflow.Completer = (*Completer)(nil)

// ErrEmptyResponse is returned when a model produces no choices.
var ErrEmptyResponse = errors.New("model returned no choices")

// Completer routes completion requests to langchaingo models by model id.
// Requests for an unregistered model id go to the default model with the
// id passed through as the provider model name.
type Completer struct {
	mutex        sync.RWMutex
	defaultModel llms.Model
	models       map[string]llms.Model
	retryOptions []retry.Option
	callOptions  []llms.CallOption
	logger       *slog.Logger
}

// Option configures a Completer.
type Option func(*Completer)

// WithModel registers a model under an id.
func WithModel(id string, model llms.Model) Option {
	return func(c *Completer) { c.models[id] = model }
}

// WithRetry sets the retry options used for recoverable provider errors.
func WithRetry(opts ...retry.Option) Option {
	return func(c *Completer) { c.retryOptions = opts }
}

// WithCallOptions adds options passed to every model call, e.g.
// llms.WithTemperature.
func WithCallOptions(opts ...llms.CallOption) Option {
	return func(c *Completer) { c.callOptions = append(c.callOptions, opts...) }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Completer) { c.logger = logger }
}

// New returns a Completer using defaultModel for requests without a
// registered model id. defaultModel may be nil when every request names a
// registered model.
func New(defaultModel llms.Model, opts ...Option) *Completer {
	c := &Completer{
		defaultModel: defaultModel,
		models:       map[string]llms.Model{},
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds or replaces a model.
func (c *Completer) Register(id string, model llms.Model) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.models[id] = model
}

func (c *Completer) model(id string) (llms.Model, []llms.CallOption, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if model, ok := c.models[id]; ok {
		return model, nil, nil
	}
	if c.defaultModel == nil {
		return nil, nil, errors.Errorf("no model registered for %q", id)
	}
	if id != "" {
		return c.defaultModel, []llms.CallOption{llms.WithModel(id)}, nil
	}
	return c.defaultModel, nil, nil
}

// Complete sends the request to the selected model, retrying recoverable
// provider errors.
func (c *Completer) Complete(ctx context.Context, req workflow.CompletionRequest) (*workflow.CompletionResponse, error) {
	model, routeOptions, err := c.model(req.ModelID)
	if err != nil {
		return nil, err
	}
	messages, err := toMessages(req)
	if err != nil {
		return nil, err
	}
	options := append(append([]llms.CallOption{}, c.callOptions...), routeOptions...)
	if len(req.Tools) > 0 {
		options = append(options, llms.WithTools(toTools(req.Tools)))
	}
	if req.OutputSchema != nil && len(req.Tools) == 0 {
		options = append(options, llms.WithJSONMode())
	}

	var resp *llms.ContentResponse
	attempt := 0
	err = retry.Do(ctx, func() error {
		attempt++
		if attempt > 1 {
			c.logger.Warn("retrying completion", "model", req.ModelID, "attempt", attempt)
		}
		var callErr error
		resp, callErr = model.GenerateContent(ctx, messages, options...)
		return callErr
	}, c.retryOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "completion failed")
	}
	return fromResponse(resp)
}

func toMessages(req workflow.CompletionRequest) ([]llms.MessageContent, error) {
	var messages []llms.MessageContent
	system := req.System
	if req.OutputSchema != nil {
		schema, err := json.Marshal(req.OutputSchema)
		if err != nil {
			return nil, errors.Wrap(err, "invalid output schema")
		}
		instruction := "Respond only with JSON matching this schema: " + string(schema)
		system = strings.TrimSpace(system + "\n\n" + instruction)
	}
	if system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	for _, msg := range req.Messages {
		switch msg.Role {
		case workflow.RoleUser:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, msg.Content))
		case workflow.RoleAssistant:
			content := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if msg.Content != "" {
				content.Parts = append(content.Parts, llms.TextContent{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				args, err := json.Marshal(call.Arguments)
				if err != nil {
					return nil, errors.Wrapf(err, "invalid arguments for tool call %s", call.ID)
				}
				content.Parts = append(content.Parts, llms.ToolCall{
					ID:   call.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      call.Name,
						Arguments: string(args),
					},
				})
			}
			messages = append(messages, content)
		case workflow.RoleTool:
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: msg.ToolCallID,
					Name:       msg.Name,
					Content:    msg.Content,
				}},
			})
		default:
			return nil, fmt.Errorf("unsupported message role %q", msg.Role)
		}
	}
	return messages, nil
}

func toTools(specs []workflow.ToolSpec) []llms.Tool {
	tools := make([]llms.Tool, 0, len(specs))
	for _, spec := range specs {
		parameters := spec.Parameters
		if parameters == nil {
			parameters = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		tools = append(tools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  parameters,
			},
		})
	}
	return tools
}

func fromResponse(resp *llms.ContentResponse) (*workflow.CompletionResponse, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	choice := resp.Choices[0]
	out := &workflow.CompletionResponse{Content: choice.Content}
	for _, call := range choice.ToolCalls {
		if call.FunctionCall == nil {
			continue
		}
		var args map[string]any
		if raw := strings.TrimSpace(call.FunctionCall.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return nil, errors.Wrapf(err, "invalid arguments for tool %s", call.FunctionCall.Name)
			}
		}
		out.ToolCalls = append(out.ToolCalls, workflow.ToolCall{
			ID:        call.ID,
			Name:      call.FunctionCall.Name,
			Arguments: args,
		})
	}
	return out, nil
}
