package workflow

import (
	"fmt"
	"sort"
	"sync"
)

// DefinitionRegistry manages a collection of workflow definitions. The
// engine uses it to find the definition of a paused execution when Resume
// is called without one.
type DefinitionRegistry interface {
	// Register adds a workflow to the registry
	Register(workflow *Workflow) error

	// Get retrieves a workflow by id
	Get(id string) (*Workflow, bool)

	// List returns all registered workflow ids
	List() []string
}

var _ DefinitionRegistry = (*MemoryDefinitionRegistry)(nil)

// MemoryDefinitionRegistry implements DefinitionRegistry using in-memory storage
type MemoryDefinitionRegistry struct {
	mutex     sync.RWMutex
	workflows map[string]*Workflow
}

// NewMemoryDefinitionRegistry creates a new in-memory definition registry
func NewMemoryDefinitionRegistry(workflows ...*Workflow) *MemoryDefinitionRegistry {
	r := &MemoryDefinitionRegistry{workflows: make(map[string]*Workflow, len(workflows))}
	for _, wf := range workflows {
		if wf != nil {
			r.workflows[wf.ID()] = wf
		}
	}
	return r
}

// Register adds a workflow to the registry, replacing one with the same id
func (r *MemoryDefinitionRegistry) Register(workflow *Workflow) error {
	if workflow == nil {
		return fmt.Errorf("workflow cannot be nil")
	}
	if workflow.ID() == "" {
		return fmt.Errorf("workflow id cannot be empty")
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.workflows[workflow.ID()] = workflow
	return nil
}

// Get retrieves a workflow by id
func (r *MemoryDefinitionRegistry) Get(id string) (*Workflow, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	workflow, exists := r.workflows[id]
	return workflow, exists
}

// List returns all registered workflow ids, sorted
func (r *MemoryDefinitionRegistry) List() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	ids := make([]string, 0, len(r.workflows))
	for id := range r.workflows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
