package workflow

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// NodeType identifies the kind of a node.
type NodeType string

const (
	NodeTypeStart     NodeType = "start"
	NodeTypeEnd       NodeType = "end"
	NodeTypeTransform NodeType = "transform"
	NodeTypeDecision  NodeType = "decision"
	NodeTypeAgent     NodeType = "agent"
	NodeTypeTool      NodeType = "tool"
	NodeTypeHuman     NodeType = "human"
)

// Valid reports whether t is one of the supported node types.
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeStart, NodeTypeEnd, NodeTypeTransform, NodeTypeDecision,
		NodeTypeAgent, NodeTypeTool, NodeTypeHuman:
		return true
	}
	return false
}

// Node is a single step in a workflow graph. Config is kept in its raw form
// for lossless round trips and decoded into the typed config for its node
// type when the workflow is built.
type Node struct {
	ID     string         `json:"id" yaml:"id"`
	Type   NodeType       `json:"type" yaml:"type"`
	Name   string         `json:"name,omitempty" yaml:"name,omitempty"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Error policies for agent and tool nodes
const (
	OnErrorFail     = "fail"
	OnErrorContinue = "continue"
)

// InputVariable declares an input accepted by a start node.
type InputVariable struct {
	Name        string `mapstructure:"name"`
	Type        string `mapstructure:"type"`
	Required    bool   `mapstructure:"required"`
	Default     any    `mapstructure:"default"`
	Description string `mapstructure:"description"`
}

// StartConfig configures a start node.
type StartConfig struct {
	InputVariables []InputVariable `mapstructure:"inputVariables"`
}

// EndConfig configures an end node. Status optionally names a terminal
// alias such as "approved" used instead of "completed".
type EndConfig struct {
	OutputVariables []string `mapstructure:"outputVariables"`
	Status          string   `mapstructure:"status"`
}

// Transform operation types
const (
	OpSet       = "set"
	OpIncrement = "increment"
	OpPush      = "push"
	OpLengthOf  = "lengthOf"
	OpArrayGet  = "arrayGet"
	OpDelete    = "delete"
	OpMerge     = "merge"
)

// Operation is a single transform step. Which fields apply depends on Type.
type Operation struct {
	Type       string `mapstructure:"type"`
	Field      string `mapstructure:"field"`
	Value      any    `mapstructure:"value"`
	Expression string `mapstructure:"expression"`
	By         any    `mapstructure:"by"`
	To         string `mapstructure:"to"`
	Target     string `mapstructure:"target"`
	Source     string `mapstructure:"source"`
	Index      any    `mapstructure:"index"`
}

// normalize folds the accepted aliases into Field (the written path) and
// Source (the read path) and checks the operation is complete.
func (op *Operation) normalize() error {
	if op.To == "" {
		op.To = op.Target
	}
	switch op.Type {
	case OpSet, OpIncrement, OpDelete, OpMerge:
		if op.Field == "" {
			op.Field = op.To
		}
		if op.Field == "" {
			return fmt.Errorf("%s operation requires a field", op.Type)
		}
		if op.Type == OpSet && op.Value == nil && op.Expression == "" {
			return fmt.Errorf("set operation on %q requires a value or expression", op.Field)
		}
		if op.Type == OpMerge && op.Value == nil {
			return fmt.Errorf("merge operation on %q requires a value", op.Field)
		}
	case OpPush:
		if op.To == "" {
			op.To = op.Field
		}
		if op.To == "" {
			return fmt.Errorf("push operation requires a target")
		}
		op.Field = op.To
	case OpLengthOf, OpArrayGet:
		if op.Source == "" {
			op.Source = op.Field
		}
		if op.Source == "" {
			return fmt.Errorf("%s operation requires a source", op.Type)
		}
		if op.To == "" {
			return fmt.Errorf("%s operation requires a target", op.Type)
		}
		op.Field = op.To
		if op.Type == OpArrayGet && op.Index == nil {
			op.Index = 0
		}
	default:
		return fmt.Errorf("unknown transform operation %q", op.Type)
	}
	return nil
}

// TransformConfig configures a transform node.
type TransformConfig struct {
	Operations []Operation `mapstructure:"operations"`
}

// DecisionConfig configures a decision node.
type DecisionConfig struct {
	Type       string `mapstructure:"type"`
	Expression string `mapstructure:"expression"`
}

// AgentConfig configures an agent node.
type AgentConfig struct {
	System         string         `mapstructure:"system"`
	Prompt         string         `mapstructure:"prompt"`
	ModelID        string         `mapstructure:"modelId"`
	Tools          []string       `mapstructure:"tools"`
	MaxIterations  int            `mapstructure:"maxIterations"`
	OutputVariable string         `mapstructure:"outputVariable"`
	OutputSchema   map[string]any `mapstructure:"outputSchema"`
	Timeout        string         `mapstructure:"timeout"`
	OnError        string         `mapstructure:"onError"`

	timeout time.Duration
}

// DefaultAgentMaxIterations bounds the tool loop of agent nodes that do not
// configure maxIterations.
const DefaultAgentMaxIterations = 10

// ToolConfig configures a tool node.
type ToolConfig struct {
	ToolName       string         `mapstructure:"toolName"`
	Params         map[string]any `mapstructure:"params"`
	OutputVariable string         `mapstructure:"outputVariable"`
	Timeout        string         `mapstructure:"timeout"`
	OnError        string         `mapstructure:"onError"`

	timeout time.Duration
}

// HumanOption is one choice offered at a human checkpoint.
type HumanOption struct {
	Value string `mapstructure:"value" json:"value"`
	Label string `mapstructure:"label" json:"label,omitempty"`
	Style string `mapstructure:"style" json:"style,omitempty"`
}

// HumanConfig configures a human node.
type HumanConfig struct {
	Message     string         `mapstructure:"message"`
	Options     []HumanOption  `mapstructure:"options"`
	InputSchema map[string]any `mapstructure:"inputSchema"`
	ShowData    []string       `mapstructure:"showData"`
}

func decodeNodeConfig(node *Node) (any, error) {
	switch node.Type {
	case NodeTypeStart:
		var cfg StartConfig
		if err := decodeConfig(node.Config, &cfg); err != nil {
			return nil, err
		}
		seen := map[string]bool{}
		for _, v := range cfg.InputVariables {
			if v.Name == "" {
				return nil, fmt.Errorf("input variable name required")
			}
			if seen[v.Name] {
				return nil, fmt.Errorf("duplicate input variable %q", v.Name)
			}
			seen[v.Name] = true
			if !knownInputType(v.Type) {
				return nil, fmt.Errorf("input variable %q has unknown type %q", v.Name, v.Type)
			}
		}
		return &cfg, nil
	case NodeTypeEnd:
		var cfg EndConfig
		if err := decodeConfig(node.Config, &cfg); err != nil {
			return nil, err
		}
		switch ExecutionStatus(cfg.Status) {
		case ExecutionStatusPending, ExecutionStatusRunning, ExecutionStatusPaused:
			return nil, fmt.Errorf("end status %q is not terminal", cfg.Status)
		}
		return &cfg, nil
	case NodeTypeTransform:
		var cfg TransformConfig
		if err := decodeConfig(node.Config, &cfg); err != nil {
			return nil, err
		}
		for i := range cfg.Operations {
			if err := cfg.Operations[i].normalize(); err != nil {
				return nil, fmt.Errorf("operation %d: %w", i, err)
			}
		}
		return &cfg, nil
	case NodeTypeDecision:
		var cfg DecisionConfig
		if err := decodeConfig(node.Config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Type != "" && cfg.Type != ConditionExpression {
			return nil, fmt.Errorf("unsupported decision type %q", cfg.Type)
		}
		if strings.TrimSpace(cfg.Expression) == "" {
			return nil, fmt.Errorf("decision expression required")
		}
		return &cfg, nil
	case NodeTypeAgent:
		var cfg AgentConfig
		if err := decodeConfig(node.Config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Prompt == "" && cfg.System == "" {
			return nil, fmt.Errorf("agent requires a prompt or system message")
		}
		if cfg.MaxIterations <= 0 {
			cfg.MaxIterations = DefaultAgentMaxIterations
		}
		if cfg.OutputVariable == "" {
			cfg.OutputVariable = node.ID
		}
		timeout, err := parseTimeout(cfg.Timeout)
		if err != nil {
			return nil, err
		}
		cfg.timeout = timeout
		if err := checkErrorPolicy(cfg.OnError); err != nil {
			return nil, err
		}
		return &cfg, nil
	case NodeTypeTool:
		var cfg ToolConfig
		if err := decodeConfig(node.Config, &cfg); err != nil {
			return nil, err
		}
		if cfg.ToolName == "" {
			return nil, fmt.Errorf("tool node requires toolName")
		}
		if cfg.OutputVariable == "" {
			cfg.OutputVariable = node.ID
		}
		timeout, err := parseTimeout(cfg.Timeout)
		if err != nil {
			return nil, err
		}
		cfg.timeout = timeout
		if err := checkErrorPolicy(cfg.OnError); err != nil {
			return nil, err
		}
		return &cfg, nil
	case NodeTypeHuman:
		var cfg HumanConfig
		if err := decodeConfig(node.Config, &cfg); err != nil {
			return nil, err
		}
		if len(cfg.Options) == 0 {
			return nil, fmt.Errorf("human node requires at least one option")
		}
		for _, opt := range cfg.Options {
			if opt.Value == "" {
				return nil, fmt.Errorf("human option value required")
			}
		}
		return &cfg, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, node.Type)
}

func decodeConfig(input map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("invalid node config: %w", err)
	}
	return nil
}

func knownInputType(t string) bool {
	switch t {
	case "", "any", "string", "number", "integer", "boolean", "object", "array":
		return true
	}
	return false
}

func checkErrorPolicy(policy string) error {
	switch policy {
	case "", OnErrorFail, OnErrorContinue:
		return nil
	}
	return fmt.Errorf("unknown onError policy %q", policy)
}

// parseTimeout accepts a Go duration string ("90s", "5m") or a plain number
// of seconds.
func parseTimeout(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		if seconds < 0 {
			return 0, fmt.Errorf("invalid timeout %q", value)
		}
		return time.Duration(seconds * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid timeout %q", value)
	}
	return d, nil
}
