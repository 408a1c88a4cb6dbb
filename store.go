package workflow

import (
	"context"
	"sort"
	"sync"
)

// Store persists execution state. Load returns (nil, nil) when no state
// exists for the id.
type Store interface {
	// Save persists the state for an execution, replacing any previous state
	Save(ctx context.Context, executionID string, state *ExecutionState) error

	// Load returns the latest state for an execution
	Load(ctx context.Context, executionID string) (*ExecutionState, error)

	// Delete removes all state for an execution
	Delete(ctx context.Context, executionID string) error
}

// Lister is optionally implemented by a Store to enumerate executions.
type Lister interface {
	List(ctx context.Context) ([]*ExecutionSummary, error)
}

var (
	_ Store  = (*MemoryStore)(nil)
	_ Lister = (*MemoryStore)(nil)
)

// MemoryStore keeps execution state in memory. States are copied on the way
// in and out.
type MemoryStore struct {
	mutex  sync.RWMutex
	states map[string]*ExecutionState
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: map[string]*ExecutionState{}}
}

func (s *MemoryStore) Save(ctx context.Context, executionID string, state *ExecutionState) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.states[executionID] = state.Copy()
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, executionID string) (*ExecutionState, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	state, ok := s.states[executionID]
	if !ok {
		return nil, nil
	}
	return state.Copy(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, executionID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.states, executionID)
	return nil
}

// List returns summaries of all executions, newest first.
func (s *MemoryStore) List(ctx context.Context) ([]*ExecutionSummary, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	summaries := make([]*ExecutionSummary, 0, len(s.states))
	for _, state := range s.states {
		summaries = append(summaries, state.Summary())
	}
	sortSummaries(summaries)
	return summaries, nil
}

func sortSummaries(summaries []*ExecutionSummary) {
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].ExecutionID > summaries[j].ExecutionID
		}
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
}
