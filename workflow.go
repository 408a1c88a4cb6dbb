package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultMaxIterations is the iteration cap applied when a workflow does not
// configure one.
const DefaultMaxIterations = 100

// Config holds workflow-wide execution settings.
type Config struct {
	MaxIterations int  `json:"maxIterations,omitempty" yaml:"maxIterations,omitempty"`
	AllowCycles   bool `json:"allowCycles,omitempty" yaml:"allowCycles,omitempty"`
}

// Condition guards an edge. Type is "equals" or "expression".
type Condition struct {
	Type       string `json:"type" yaml:"type"`
	Field      string `json:"field,omitempty" yaml:"field,omitempty"`
	Value      any    `json:"value,omitempty" yaml:"value,omitempty"`
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// Condition types
const (
	ConditionEquals     = "equals"
	ConditionExpression = "expression"
)

// Edge is a directed transition between two nodes. An edge without a
// condition is the default transition out of its source.
type Edge struct {
	ID        string     `json:"id" yaml:"id"`
	Source    string     `json:"source" yaml:"source"`
	Target    string     `json:"target" yaml:"target"`
	Condition *Condition `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Options are used to configure a workflow. This is also the wire format of
// authored and persisted workflow definitions.
type Options struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Config      *Config `json:"config,omitempty" yaml:"config,omitempty"`
	Nodes       []*Node `json:"nodes" yaml:"nodes"`
	Edges       []*Edge `json:"edges" yaml:"edges"`
}

// Workflow is an immutable, validated workflow definition: a graph of typed
// nodes connected by optionally guarded edges.
type Workflow struct {
	opts      Options
	config    Config
	nodes     []*Node
	nodesByID map[string]*Node
	outgoing  map[string][]*Edge
	configs   map[string]any
	start     *Node
}

// New returns a new Workflow configured with the given options. The options
// are copied; later changes to them do not affect the workflow.
func New(opts Options) (*Workflow, error) {
	opts = copyOptions(opts)
	if opts.ID == "" {
		opts.ID = opts.Name
	}
	if opts.ID == "" {
		return nil, validationError("workflow id or name required")
	}
	if len(opts.Nodes) == 0 {
		return nil, validationError("workflow %q: nodes required", opts.ID)
	}

	w := &Workflow{
		opts:      opts,
		nodes:     opts.Nodes,
		nodesByID: make(map[string]*Node, len(opts.Nodes)),
		outgoing:  make(map[string][]*Edge, len(opts.Nodes)),
		configs:   make(map[string]any, len(opts.Nodes)),
	}
	if opts.Config != nil {
		w.config = *opts.Config
	}
	if w.config.MaxIterations <= 0 {
		w.config.MaxIterations = DefaultMaxIterations
	}

	var ends int
	for _, node := range opts.Nodes {
		if node == nil || node.ID == "" {
			return nil, validationError("workflow %q: node id required", opts.ID)
		}
		if _, exists := w.nodesByID[node.ID]; exists {
			return nil, validationError("workflow %q: duplicate node id %q", opts.ID, node.ID)
		}
		if !node.Type.Valid() {
			return nil, &WorkflowError{
				Type:    ErrorTypeValidation,
				Cause:   fmt.Sprintf("node %q has unknown type %q", node.ID, node.Type),
				NodeID:  node.ID,
				Wrapped: fmt.Errorf("%w: %w: %q", ErrValidation, ErrUnknownNodeType, node.Type),
			}
		}
		cfg, err := decodeNodeConfig(node)
		if err != nil {
			return nil, &WorkflowError{
				Type:    ErrorTypeValidation,
				Cause:   err.Error(),
				NodeID:  node.ID,
				Wrapped: fmt.Errorf("%w: %w", ErrValidation, err),
			}
		}
		w.nodesByID[node.ID] = node
		w.configs[node.ID] = cfg
		switch node.Type {
		case NodeTypeStart:
			if w.start != nil {
				return nil, validationError("workflow %q: multiple start nodes (%q, %q)", opts.ID, w.start.ID, node.ID)
			}
			w.start = node
		case NodeTypeEnd:
			ends++
		}
	}
	if w.start == nil {
		return nil, validationError("workflow %q: start node required", opts.ID)
	}
	if ends == 0 {
		return nil, validationError("workflow %q: at least one end node required", opts.ID)
	}

	edgeIDs := make(map[string]bool, len(opts.Edges))
	for i, edge := range opts.Edges {
		if edge == nil {
			return nil, validationError("workflow %q: edge %d is empty", opts.ID, i)
		}
		if edge.ID != "" {
			if edgeIDs[edge.ID] {
				return nil, validationError("workflow %q: duplicate edge id %q", opts.ID, edge.ID)
			}
			edgeIDs[edge.ID] = true
		}
		for _, ref := range []string{edge.Source, edge.Target} {
			if _, ok := w.nodesByID[ref]; !ok {
				return nil, &WorkflowError{
					Type:    ErrorTypeValidation,
					Cause:   fmt.Sprintf("edge %q references unknown node %q", edge.ID, ref),
					Wrapped: fmt.Errorf("%w: %w: %q", ErrValidation, ErrDanglingEdge, ref),
				}
			}
		}
		if err := validateCondition(edge.Condition); err != nil {
			return nil, validationError("workflow %q: edge %q: %v", opts.ID, edge.ID, err)
		}
		w.outgoing[edge.Source] = append(w.outgoing[edge.Source], edge)
	}

	if !w.config.AllowCycles {
		if cycle := w.findCycle(); cycle != "" {
			return nil, &WorkflowError{
				Type:    ErrorTypeValidation,
				Cause:   fmt.Sprintf("workflow %q: cycle through node %q", opts.ID, cycle),
				NodeID:  cycle,
				Wrapped: fmt.Errorf("%w: %w", ErrValidation, ErrCycleDetected),
			}
		}
	}
	return w, nil
}

func validateCondition(c *Condition) error {
	if c == nil {
		return nil
	}
	switch c.Type {
	case ConditionEquals:
		return nil
	case ConditionExpression:
		if strings.TrimSpace(c.Expression) == "" {
			return fmt.Errorf("expression condition requires an expression")
		}
		return nil
	default:
		return fmt.Errorf("unknown condition type %q", c.Type)
	}
}

// findCycle runs Kahn's algorithm over the graph and returns a node that
// remains on a cycle, or "" when the graph is acyclic.
func (w *Workflow) findCycle() string {
	indegree := make(map[string]int, len(w.nodes))
	for _, node := range w.nodes {
		indegree[node.ID] += 0
		for _, edge := range w.outgoing[node.ID] {
			indegree[edge.Target]++
		}
	}
	var queue []string
	for _, node := range w.nodes {
		if indegree[node.ID] == 0 {
			queue = append(queue, node.ID)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, edge := range w.outgoing[id] {
			indegree[edge.Target]--
			if indegree[edge.Target] == 0 {
				queue = append(queue, edge.Target)
			}
		}
	}
	if visited == len(w.nodes) {
		return ""
	}
	for _, node := range w.nodes {
		if indegree[node.ID] > 0 {
			return node.ID
		}
	}
	return ""
}

// ID returns the workflow id
func (w *Workflow) ID() string {
	return w.opts.ID
}

// Name returns the workflow name
func (w *Workflow) Name() string {
	return w.opts.Name
}

// Description returns the workflow description
func (w *Workflow) Description() string {
	return w.opts.Description
}

// Config returns the effective configuration with defaults applied.
func (w *Workflow) Config() Config {
	return w.config
}

// Nodes returns the workflow nodes in declaration order
func (w *Workflow) Nodes() []*Node {
	return w.nodes
}

// Edges returns the workflow edges in declaration order
func (w *Workflow) Edges() []*Edge {
	return w.opts.Edges
}

// Start returns the workflow start node
func (w *Workflow) Start() *Node {
	return w.start
}

// GetNode returns a node by id
func (w *Workflow) GetNode(id string) (*Node, bool) {
	node, ok := w.nodesByID[id]
	return node, ok
}

// Outgoing returns the edges leaving the given node in declaration order.
func (w *Workflow) Outgoing(nodeID string) []*Edge {
	return w.outgoing[nodeID]
}

// NodeIDs returns the sorted ids of all nodes in the workflow
func (w *Workflow) NodeIDs() []string {
	ids := make([]string, 0, len(w.nodesByID))
	for id := range w.nodesByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Options returns a copy of the options the workflow was built from.
func (w *Workflow) Options() Options {
	return copyOptions(w.opts)
}

// nodeConfig returns the decoded, typed configuration for a node.
func (w *Workflow) nodeConfig(id string) any {
	return w.configs[id]
}

// MarshalJSON encodes the workflow in its wire format.
func (w *Workflow) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.opts)
}

// UnmarshalJSON decodes and validates a workflow from its wire format.
func (w *Workflow) UnmarshalJSON(data []byte) error {
	var opts Options
	if err := json.Unmarshal(data, &opts); err != nil {
		return err
	}
	wf, err := New(opts)
	if err != nil {
		return err
	}
	*w = *wf
	return nil
}

// LoadFile loads a workflow from a YAML or JSON file. The format is chosen
// by file extension; anything other than .json is parsed as YAML.
func LoadFile(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return LoadJSON(data)
	}
	return LoadString(string(data))
}

// LoadString loads a workflow from a YAML string.
func LoadString(data string) (*Workflow, error) {
	var opts Options
	if err := yaml.Unmarshal([]byte(data), &opts); err != nil {
		return nil, fmt.Errorf("failed to parse workflow yaml: %w", err)
	}
	return New(opts)
}

// LoadJSON loads a workflow from JSON.
func LoadJSON(data []byte) (*Workflow, error) {
	var opts Options
	if err := json.Unmarshal(data, &opts); err != nil {
		return nil, fmt.Errorf("failed to parse workflow json: %w", err)
	}
	return New(opts)
}

func copyOptions(opts Options) Options {
	out := opts
	if opts.Config != nil {
		cfg := *opts.Config
		out.Config = &cfg
	}
	out.Nodes = make([]*Node, 0, len(opts.Nodes))
	for _, node := range opts.Nodes {
		if node == nil {
			out.Nodes = append(out.Nodes, nil)
			continue
		}
		n := *node
		n.Config = copyMap(node.Config)
		out.Nodes = append(out.Nodes, &n)
	}
	out.Edges = make([]*Edge, 0, len(opts.Edges))
	for _, edge := range opts.Edges {
		if edge == nil {
			out.Edges = append(out.Edges, nil)
			continue
		}
		e := *edge
		if edge.Condition != nil {
			c := *edge.Condition
			e.Condition = &c
		}
		out.Edges = append(out.Edges, &e)
	}
	return out
}
