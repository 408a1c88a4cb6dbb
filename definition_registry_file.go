package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var _ DefinitionRegistry = (*FileDefinitionRegistry)(nil)

// FileDefinitionRegistry stores each workflow as <id>.json in a directory so
// definitions outlive the process that registered them.
type FileDefinitionRegistry struct {
	directory string
	mutex     sync.Mutex
}

// NewFileDefinitionRegistry creates the directory if needed.
func NewFileDefinitionRegistry(directory string) (*FileDefinitionRegistry, error) {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create definitions directory: %w", err)
	}
	return &FileDefinitionRegistry{directory: directory}, nil
}

func (r *FileDefinitionRegistry) path(id string) string {
	return filepath.Join(r.directory, id+".json")
}

func (r *FileDefinitionRegistry) Register(workflow *Workflow) error {
	if workflow == nil {
		return fmt.Errorf("workflow cannot be nil")
	}
	if err := checkFileID("workflow", workflow.ID()); err != nil {
		return err
	}
	data, err := json.MarshalIndent(workflow, "", "  ")
	if err != nil {
		return err
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()

	tmp := r.path(workflow.ID()) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, r.path(workflow.ID()))
}

// Get returns false when the file is missing or no longer a valid workflow.
func (r *FileDefinitionRegistry) Get(id string) (*Workflow, bool) {
	if checkFileID("workflow", id) != nil {
		return nil, false
	}
	data, err := os.ReadFile(r.path(id))
	if err != nil {
		return nil, false
	}
	wf, err := LoadJSON(data)
	if err != nil {
		return nil, false
	}
	return wf, true
}

func (r *FileDefinitionRegistry) List() []string {
	entries, err := os.ReadDir(r.directory)
	if err != nil {
		return nil
	}
	var ids []string
	for _, entry := range entries {
		if name := entry.Name(); !entry.IsDir() && strings.HasSuffix(name, ".json") {
			ids = append(ids, strings.TrimSuffix(name, ".json"))
		}
	}
	sort.Strings(ids)
	return ids
}
