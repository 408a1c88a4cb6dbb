package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// errHalt aborts an Update without saving and without reporting an error
// to the caller.
var errHalt = errors.New("halt")

// StateManager owns the canonical execution state records. Mutations of one
// execution are serialized with a per-execution lock that is held only for
// the load-mutate-save cycle, never while a node runs.
type StateManager struct {
	store Store
	mutex sync.Mutex
	locks map[string]*executionLock
}

// executionLock is dropped from the lock table once no caller holds or
// waits for it.
type executionLock struct {
	sync.Mutex
	refs int
}

// NewStateManager returns a state manager backed by store.
func NewStateManager(store Store) *StateManager {
	return &StateManager{store: store, locks: map[string]*executionLock{}}
}

// Store returns the backing store.
func (m *StateManager) Store() Store {
	return m.store
}

func (m *StateManager) lock(executionID string) func() {
	m.mutex.Lock()
	l, ok := m.locks[executionID]
	if !ok {
		l = &executionLock{}
		m.locks[executionID] = l
	}
	l.refs++
	m.mutex.Unlock()
	l.Lock()
	return func() {
		l.Unlock()
		m.mutex.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, executionID)
		}
		m.mutex.Unlock()
	}
}

// Create persists a new state record.
func (m *StateManager) Create(ctx context.Context, state *ExecutionState) error {
	unlock := m.lock(state.ExecutionID)
	defer unlock()
	existing, err := m.store.Load(ctx, state.ExecutionID)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("execution %q already exists", state.ExecutionID)
	}
	if err := m.store.Save(ctx, state.ExecutionID, state); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// Get returns a copy of the current state, or nil if it does not exist.
func (m *StateManager) Get(ctx context.Context, executionID string) (*ExecutionState, error) {
	state, err := m.store.Load(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	return state, nil
}

// Update atomically loads the state, applies fn to a copy and saves it. If
// fn returns an error nothing is saved and the error is returned, except
// errHalt which returns the unchanged state.
func (m *StateManager) Update(ctx context.Context, executionID string, fn func(*ExecutionState) error) (*ExecutionState, error) {
	unlock := m.lock(executionID)
	defer unlock()

	current, err := m.store.Load(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	if current == nil {
		return nil, fmt.Errorf("%w: %q", ErrExecutionNotFound, executionID)
	}
	next := current.Copy()
	if err := fn(next); err != nil {
		if errors.Is(err, errHalt) {
			return current, nil
		}
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()
	if err := m.store.Save(ctx, executionID, next); err != nil {
		return nil, fmt.Errorf("failed to save state: %w", err)
	}
	return next.Copy(), nil
}

// Delete removes the state record.
func (m *StateManager) Delete(ctx context.Context, executionID string) error {
	unlock := m.lock(executionID)
	defer unlock()
	return m.store.Delete(ctx, executionID)
}
