package workflow

import (
	"context"
	"sort"
	"sync"
)

// Registry tracks live executions by id. Each engine owns one; entries stay
// until Remove is called, so callers decide when an execution is archived.
type Registry struct {
	mutex   sync.RWMutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	workflow *Workflow
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: map[string]*registryEntry{}}
}

// Add registers an execution and the workflow it runs.
func (r *Registry) Add(executionID string, wf *Workflow) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if entry, ok := r.entries[executionID]; ok {
		entry.workflow = wf
		return
	}
	r.entries[executionID] = &registryEntry{workflow: wf}
}

// Get returns the workflow registered for an execution.
func (r *Registry) Get(executionID string) (*Workflow, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	entry, ok := r.entries[executionID]
	if !ok {
		return nil, false
	}
	return entry.workflow, true
}

// Running reports whether a goroutine is currently driving the execution.
func (r *Registry) Running(executionID string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	entry, ok := r.entries[executionID]
	return ok && entry.done != nil
}

// Remove forgets an execution. A running execution is cancelled first.
func (r *Registry) Remove(executionID string) {
	r.mutex.Lock()
	entry, ok := r.entries[executionID]
	delete(r.entries, executionID)
	r.mutex.Unlock()
	if ok && entry.cancel != nil {
		entry.cancel()
	}
}

// IDs returns the sorted ids of registered executions.
func (r *Registry) IDs() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// begin marks an execution as running and returns a context cancelled by
// cancel(executionID), plus a function that marks it idle again. If another
// run of the same execution is still finishing, begin waits for it.
func (r *Registry) begin(ctx context.Context, executionID string, wf *Workflow) (context.Context, func()) {
	for {
		r.mutex.Lock()
		entry, ok := r.entries[executionID]
		if !ok {
			entry = &registryEntry{workflow: wf}
			r.entries[executionID] = entry
		}
		if entry.done != nil {
			done := entry.done
			r.mutex.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				runCtx, cancel := context.WithCancel(ctx)
				cancel()
				return runCtx, func() {}
			}
		}
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		entry.workflow = wf
		entry.cancel = cancel
		entry.done = done
		r.mutex.Unlock()

		return runCtx, func() {
			r.mutex.Lock()
			if current, ok := r.entries[executionID]; ok && current.done == done {
				current.done = nil
				current.cancel = nil
			}
			r.mutex.Unlock()
			cancel()
			close(done)
		}
	}
}

// cancel cancels the in-flight context of a running execution.
func (r *Registry) cancel(executionID string) {
	r.mutex.RLock()
	entry, ok := r.entries[executionID]
	var cancel context.CancelFunc
	if ok {
		cancel = entry.cancel
	}
	r.mutex.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// wait blocks until the execution is not running or ctx is done.
func (r *Registry) wait(ctx context.Context, executionID string) error {
	r.mutex.RLock()
	var done chan struct{}
	if entry, ok := r.entries[executionID]; ok {
		done = entry.done
	}
	r.mutex.RUnlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
