package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

var (
	_ Store  = (*FileStore)(nil)
	_ Lister = (*FileStore)(nil)
)

// FileStore is a file-based store. Each execution gets a directory holding
// one JSON file per save and a latest.json link to the most recent one.
type FileStore struct {
	dataDir string
	seq     atomic.Uint64
}

// NewFileStore creates a new file-based store. An empty dataDir defaults to
// ~/.workflows/executions.
func NewFileStore(dataDir string) (*FileStore, error) {
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".workflows", "executions")
	}

	// Ensure the data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}

	return &FileStore{dataDir: dataDir}, nil
}

// Dir returns the directory executions are stored in.
func (s *FileStore) Dir() string {
	return s.dataDir
}

// Save writes the state to a new file and points latest.json at it.
func (s *FileStore) Save(ctx context.Context, executionID string, state *ExecutionState) error {
	if err := checkFileID("execution", executionID); err != nil {
		return err
	}
	executionDir := filepath.Join(s.dataDir, executionID)
	if err := os.MkdirAll(executionDir, 0755); err != nil {
		return fmt.Errorf("failed to create execution directory: %w", err)
	}

	name := fmt.Sprintf("state-%d-%04d.json", time.Now().UnixNano(), s.seq.Add(1)%10000)
	statePath := filepath.Join(executionDir, name)
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := os.WriteFile(statePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	latestPath := filepath.Join(executionDir, "latest.json")
	if err := s.updateLatest(statePath, latestPath); err != nil {
		return fmt.Errorf("failed to update latest state: %w", err)
	}
	return nil
}

// Load reads the latest state for an execution
func (s *FileStore) Load(ctx context.Context, executionID string) (*ExecutionState, error) {
	if err := checkFileID("execution", executionID); err != nil {
		return nil, err
	}
	latestPath := filepath.Join(s.dataDir, executionID, "latest.json")
	data, err := os.ReadFile(latestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	var state ExecutionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

// Delete removes all state files for an execution
func (s *FileStore) Delete(ctx context.Context, executionID string) error {
	if err := checkFileID("execution", executionID); err != nil {
		return err
	}
	executionDir := filepath.Join(s.dataDir, executionID)
	if err := os.RemoveAll(executionDir); err != nil {
		return fmt.Errorf("failed to delete execution directory: %w", err)
	}
	return nil
}

// History returns every saved state file name for an execution, oldest first.
func (s *FileStore) History(ctx context.Context, executionID string) ([]string, error) {
	if err := checkFileID("execution", executionID); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.dataDir, executionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read execution directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "state-") && strings.HasSuffix(entry.Name(), ".json") {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// List returns summaries of all stored executions, newest first.
func (s *FileStore) List(ctx context.Context) ([]*ExecutionSummary, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*ExecutionSummary{}, nil // No executions directory yet
		}
		return nil, fmt.Errorf("failed to read executions directory: %w", err)
	}

	summaries := []*ExecutionSummary{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		state, err := s.Load(ctx, entry.Name())
		if err != nil || state == nil {
			// Skip executions we can't read
			continue
		}
		summaries = append(summaries, state.Summary())
	}
	sortSummaries(summaries)
	return summaries, nil
}

// updateLatest points latestPath at statePath. The new link (or copy) is
// built under a temporary name and renamed over latest.json, so readers
// always see either the previous or the new state.
func (s *FileStore) updateLatest(statePath, latestPath string) error {
	tmp := fmt.Sprintf("%s.tmp-%d", latestPath, s.seq.Add(1))

	// On Windows, copy the file instead of creating a symlink
	if strings.Contains(os.Getenv("OS"), "Windows") {
		data, err := os.ReadFile(statePath)
		if err != nil {
			return fmt.Errorf("failed to read state for copy: %w", err)
		}
		if err := os.WriteFile(tmp, data, 0644); err != nil {
			return err
		}
	} else {
		rel, err := filepath.Rel(filepath.Dir(latestPath), statePath)
		if err != nil {
			return fmt.Errorf("failed to create relative path: %w", err)
		}
		if err := os.Symlink(rel, tmp); err != nil {
			return err
		}
	}
	if err := os.Rename(tmp, latestPath); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// checkFileID rejects ids that would not name a single entry inside the
// store directory.
func checkFileID(kind, id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return fmt.Errorf("invalid %s id %q", kind, id)
	}
	return nil
}
