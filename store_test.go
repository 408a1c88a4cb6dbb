package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState(id string, created time.Time) *ExecutionState {
	state := newExecutionState(id, "wf", map[string]any{"name": "Ada", "tags": []any{"a"}}, ExecutionContext{User: "u1"})
	state.CreatedAt = created
	state.UpdatedAt = created
	state.Status = ExecutionStatusPaused
	state.CurrentNode = "review"
	state.CompletedNodes = []string{"start", "review"}
	state.PendingCheckpoint = &Checkpoint{
		ID:      "ckpt_1",
		NodeID:  "review",
		Message: "ok?",
		Options: []HumanOption{{Value: "yes"}},
	}
	return state
}

func testStoreContract(t *testing.T, store Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	missing, err := store.Load(ctx, "exec_missing")
	require.NoError(t, err)
	require.Nil(t, missing)

	state := sampleState("exec_a", now)
	require.NoError(t, store.Save(ctx, state.ExecutionID, state))

	loaded, err := store.Load(ctx, state.ExecutionID)
	require.NoError(t, err)
	require.Equal(t, state.ExecutionID, loaded.ExecutionID)
	require.Equal(t, ExecutionStatusPaused, loaded.Status)
	require.Equal(t, "Ada", loaded.Data["name"])
	require.Equal(t, []string{"start", "review"}, loaded.CompletedNodes)
	require.Equal(t, "ckpt_1", loaded.PendingCheckpoint.ID)
	require.True(t, now.Equal(loaded.CreatedAt))

	// Saved states are not aliased.
	state.Data["name"] = "Grace"
	loaded.Data["name"] = "Linus"
	again, err := store.Load(ctx, state.ExecutionID)
	require.NoError(t, err)
	require.Equal(t, "Ada", again.Data["name"])

	loaded.Status = ExecutionStatusCompleted
	loaded.PendingCheckpoint = nil
	require.NoError(t, store.Save(ctx, loaded.ExecutionID, loaded))
	again, err = store.Load(ctx, state.ExecutionID)
	require.NoError(t, err)
	require.Equal(t, ExecutionStatusCompleted, again.Status)
	require.Nil(t, again.PendingCheckpoint)

	if lister, ok := store.(Lister); ok {
		require.NoError(t, store.Save(ctx, "exec_b", sampleState("exec_b", now.Add(time.Second))))
		summaries, err := lister.List(ctx)
		require.NoError(t, err)
		require.Len(t, summaries, 2)
		require.Equal(t, "exec_b", summaries[0].ExecutionID)
		require.Equal(t, "exec_a", summaries[1].ExecutionID)
		require.Equal(t, ExecutionStatusCompleted, summaries[1].Status)
	}

	require.NoError(t, store.Delete(ctx, state.ExecutionID))
	gone, err := store.Load(ctx, state.ExecutionID)
	require.NoError(t, err)
	require.Nil(t, gone)
	require.NoError(t, store.Delete(ctx, state.ExecutionID))
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	testStoreContract(t, store)

	ctx := context.Background()
	state := sampleState("exec_h", time.Now().UTC())
	for i := 0; i < 3; i++ {
		state.Iterations = i
		require.NoError(t, store.Save(ctx, state.ExecutionID, state))
	}
	history, err := store.History(ctx, state.ExecutionID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	latest, err := store.Load(ctx, state.ExecutionID)
	require.NoError(t, err)
	require.Equal(t, 2, latest.Iterations)

	t.Run("latest is never missing during saves", func(t *testing.T) {
		state := sampleState("exec_race", time.Now().UTC())
		require.NoError(t, store.Save(ctx, state.ExecutionID, state))

		done := make(chan struct{})
		go func() {
			defer close(done)
			next := state.Copy()
			for i := 1; i <= 200; i++ {
				next.Iterations = i
				assert.NoError(t, store.Save(ctx, next.ExecutionID, next))
			}
		}()

		last := 0
		for {
			select {
			case <-done:
				final, err := store.Load(ctx, state.ExecutionID)
				require.NoError(t, err)
				require.Equal(t, 200, final.Iterations)
				return
			default:
			}
			loaded, err := store.Load(ctx, state.ExecutionID)
			require.NoError(t, err)
			require.NotNil(t, loaded)
			require.GreaterOrEqual(t, loaded.Iterations, last)
			last = loaded.Iterations
		}
	})

	t.Run("ids that escape the directory are rejected", func(t *testing.T) {
		state := sampleState("../escape", time.Now().UTC())
		require.Error(t, store.Save(ctx, state.ExecutionID, state))
		_, err := store.Load(ctx, "../escape")
		require.Error(t, err)
		_, err = store.History(ctx, "a/b")
		require.Error(t, err)
		require.Error(t, store.Delete(ctx, ".."))
	})
}

func TestStateManager(t *testing.T) {
	ctx := context.Background()
	manager := NewStateManager(NewMemoryStore())
	state := sampleState("exec_sm", time.Now().UTC())
	state.Status = ExecutionStatusRunning
	state.PendingCheckpoint = nil
	require.NoError(t, manager.Create(ctx, state))
	require.Error(t, manager.Create(ctx, state), "duplicate ids are rejected")

	t.Run("update applies and saves", func(t *testing.T) {
		updated, err := manager.Update(ctx, state.ExecutionID, func(s *ExecutionState) error {
			s.Iterations++
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 1, updated.Iterations)
		require.False(t, updated.UpdatedAt.Before(state.UpdatedAt))
	})

	t.Run("failed update saves nothing", func(t *testing.T) {
		_, err := manager.Update(ctx, state.ExecutionID, func(s *ExecutionState) error {
			s.Iterations = 99
			return ErrStaleCheckpoint
		})
		require.ErrorIs(t, err, ErrStaleCheckpoint)
		current, err := manager.Get(ctx, state.ExecutionID)
		require.NoError(t, err)
		require.Equal(t, 1, current.Iterations)
	})

	t.Run("halt returns current state", func(t *testing.T) {
		current, err := manager.Update(ctx, state.ExecutionID, func(s *ExecutionState) error {
			s.Iterations = 50
			return errHalt
		})
		require.NoError(t, err)
		require.Equal(t, 1, current.Iterations)
	})

	t.Run("unknown execution", func(t *testing.T) {
		_, err := manager.Update(ctx, "exec_nope", func(s *ExecutionState) error { return nil })
		require.ErrorIs(t, err, ErrExecutionNotFound)
	})

	t.Run("updates are serialized", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := manager.Update(ctx, state.ExecutionID, func(s *ExecutionState) error {
					s.CompletedNodes = append(s.CompletedNodes, "n")
					s.Iterations++
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		current, err := manager.Get(ctx, state.ExecutionID)
		require.NoError(t, err)
		require.Equal(t, 51, current.Iterations)
		require.Len(t, current.CompletedNodes, 52)
	})

	require.NoError(t, manager.Delete(ctx, state.ExecutionID))
	gone, err := manager.Get(ctx, state.ExecutionID)
	require.NoError(t, err)
	require.Nil(t, gone)
}

// blockingDeleteStore holds Delete until release is closed.
type blockingDeleteStore struct {
	Store
	entered chan struct{}
	release chan struct{}
}

func (s *blockingDeleteStore) Delete(ctx context.Context, executionID string) error {
	close(s.entered)
	<-s.release
	return s.Store.Delete(ctx, executionID)
}

func TestStateManagerDeleteKeepsLockWhileWaited(t *testing.T) {
	ctx := context.Background()
	store := &blockingDeleteStore{Store: NewMemoryStore(), entered: make(chan struct{}), release: make(chan struct{})}
	manager := NewStateManager(store)

	deleted := make(chan error, 1)
	go func() { deleted <- manager.Delete(ctx, "exec_del") }()
	<-store.entered

	// A waits on the lock Delete holds.
	aHolds := make(chan func(), 1)
	go func() { aHolds <- manager.lock("exec_del") }()
	time.Sleep(20 * time.Millisecond)

	close(store.release)
	require.NoError(t, <-deleted)
	unlockA := <-aHolds

	bHolds := make(chan func(), 1)
	go func() { bHolds <- manager.lock("exec_del") }()
	select {
	case <-bHolds:
		t.Fatal("second holder acquired the lock while the first still held it")
	case <-time.After(50 * time.Millisecond):
	}
	unlockA()
	unlockB := <-bHolds
	unlockB()

	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	require.Empty(t, manager.locks)
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	wf := &Workflow{opts: Options{ID: "wf"}}
	registry.Add("exec_1", wf)

	got, ok := registry.Get("exec_1")
	require.True(t, ok)
	require.Same(t, wf, got)
	require.False(t, registry.Running("exec_1"))
	require.Equal(t, []string{"exec_1"}, registry.IDs())

	ctx, done := registry.begin(context.Background(), "exec_1", wf)
	require.True(t, registry.Running("exec_1"))

	waited := make(chan struct{})
	go func() {
		assert.NoError(t, registry.wait(context.Background(), "exec_1"))
		close(waited)
	}()

	registry.cancel("exec_1")
	require.ErrorIs(t, ctx.Err(), context.Canceled)
	done()
	<-waited
	require.False(t, registry.Running("exec_1"))

	t.Run("begin waits for the previous run", func(t *testing.T) {
		_, first := registry.begin(context.Background(), "exec_1", wf)
		started := make(chan struct{})
		go func() {
			_, second := registry.begin(context.Background(), "exec_1", wf)
			close(started)
			second()
		}()
		select {
		case <-started:
			t.Fatal("second run started while the first was active")
		case <-time.After(50 * time.Millisecond):
		}
		first()
		<-started
	})

	registry.Remove("exec_1")
	_, ok = registry.Get("exec_1")
	require.False(t, ok)
	require.NoError(t, registry.wait(context.Background(), "exec_1"))
}

func TestMemoryDefinitionRegistry(t *testing.T) {
	registry := NewMemoryDefinitionRegistry(linearWorkflow(t))
	require.NoError(t, registry.Register(decisionWorkflow(t)))
	require.Error(t, registry.Register(nil))
	require.Equal(t, []string{"decision", "linear"}, registry.List())

	wf, ok := registry.Get("linear")
	require.True(t, ok)
	require.Equal(t, "linear", wf.ID())
	_, ok = registry.Get("missing")
	require.False(t, ok)
}

func TestFileDefinitionRegistry(t *testing.T) {
	dir := t.TempDir()
	registry, err := NewFileDefinitionRegistry(dir)
	require.NoError(t, err)
	require.NoError(t, registry.Register(linearWorkflow(t)))
	require.NoError(t, registry.Register(decisionWorkflow(t)))
	require.Error(t, registry.Register(nil))

	// A second registry over the same directory sees the definitions.
	reopened, err := NewFileDefinitionRegistry(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"decision", "linear"}, reopened.List())

	wf, ok := reopened.Get("decision")
	require.True(t, ok)
	require.Equal(t, decisionWorkflow(t).NodeIDs(), wf.NodeIDs())
	_, ok = reopened.Get("missing")
	require.False(t, ok)

	escaping := linearWorkflow(t)
	escaping.opts.ID = "../escape"
	require.Error(t, registry.Register(escaping))
	_, ok = reopened.Get("../decision")
	require.False(t, ok)
}

func TestFileNodeLogger(t *testing.T) {
	ctx := context.Background()
	logger := NewFileNodeLogger(t.TempDir())

	entries, err := logger.GetNodeHistory(ctx, "exec_1")
	require.NoError(t, err)
	require.Empty(t, entries)

	require.NoError(t, logger.LogNode(ctx, &NodeLogEntry{ID: "1", ExecutionID: "exec_1", NodeID: "start", NodeType: NodeTypeStart, Iteration: 1}))
	require.NoError(t, logger.LogNode(ctx, &NodeLogEntry{ID: "2", ExecutionID: "exec_1", NodeID: "check", Branch: "true", Iteration: 2}))
	require.NoError(t, logger.LogNode(ctx, &NodeLogEntry{ID: "3", ExecutionID: "exec_2", NodeID: "start"}))

	entries, err = logger.GetNodeHistory(ctx, "exec_1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "start", entries[0].NodeID)
	require.Equal(t, NodeTypeStart, entries[0].NodeType)
	require.Equal(t, "true", entries[1].Branch)
}
