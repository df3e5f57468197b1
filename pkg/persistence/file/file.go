// Package file provides a file-system persistence implementation. Workflow definitions are
// read from root/workflows as YAML or JSON documents, executions live in root/executions.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/persistence"
	"gopkg.in/yaml.v3"
)

const (
	workflowsDir  = "workflows"
	executionsDir = "executions"
)

// Persistence implements persistence.Persistence on top of the file system.
type Persistence struct {
	root string
	mu   sync.RWMutex
}

// NewPersistence creates the store rooted at root, accepting a file:// prefix.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	for _, dir := range []string{workflowsDir, executionsDir} {
		err := os.MkdirAll(filepath.Join(cleanRoot, dir), 0o750)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	return &Persistence{root: cleanRoot}, nil
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// validateID validates that the ID is safe for file operations.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", persistence.ErrInvalidID)
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q contains invalid characters", persistence.ErrInvalidID, id)
	}

	return nil
}

// LoadWorkflowFile decodes one workflow definition, choosing the decoder by extension.
func LoadWorkflowFile(path string) (*models.Workflow, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- callers pass paths from the workflows directory or the CLI
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file %s: %w", path, err)
	}

	workflow := &models.Workflow{}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, workflow)
	case ".json":
		err = persistence.Decode(data, workflow)
	default:
		return nil, fmt.Errorf("unsupported workflow file extension %q", filepath.Ext(path))
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse workflow file %s: %w", path, err)
	}

	return workflow, nil
}

func (p *Persistence) workflowFiles() ([]string, error) {
	root := os.DirFS(filepath.Join(p.root, workflowsDir))
	files := make([]string, 0)

	for _, pattern := range []string{"*.yaml", "*.yml", "*.json"} {
		matches, err := fs.Glob(root, pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to list workflow files: %w", err)
		}

		files = append(files, matches...)
	}

	sort.Strings(files)

	return files, nil
}

func (p *Persistence) Workflows(_ context.Context) ([]*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.loadWorkflows()
}

func (p *Persistence) loadWorkflows() ([]*models.Workflow, error) {
	files, err := p.workflowFiles()
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0, len(files))
	seen := make(map[string]bool, len(files))

	for _, file := range files {
		workflow, err := LoadWorkflowFile(filepath.Join(p.root, workflowsDir, file))
		if err != nil {
			return nil, err
		}

		if workflow.ID == "" {
			workflow.ID = strings.TrimSuffix(file, filepath.Ext(file))
		}

		if seen[workflow.ID] {
			return nil, fmt.Errorf("workflow %s is defined more than once", workflow.ID)
		}

		seen[workflow.ID] = true
		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (p *Persistence) GetWorkflow(_ context.Context, id string) (*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workflows, err := p.loadWorkflows()
	if err != nil {
		return nil, persistence.NewWorkflowError("GetWorkflow", id, err)
	}

	for _, workflow := range workflows {
		if workflow.ID == id {
			return workflow, nil
		}
	}

	return nil, persistence.NewWorkflowError("GetWorkflow", id, persistence.ErrWorkflowNotFound)
}

// SaveWorkflow writes root/workflows/<id>.yaml, removing JSON or .yml copies of the same id.
func (p *Persistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	err := validateID(workflow.ID)
	if err != nil {
		return persistence.NewWorkflowError("SaveWorkflow", workflow.ID, err)
	}

	persistence.Stamp(workflow)

	data, err := yaml.Marshal(workflow)
	if err != nil {
		return persistence.NewWorkflowError("SaveWorkflow", workflow.ID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	dir := filepath.Join(p.root, workflowsDir)

	err = writeAtomic(filepath.Join(dir, workflow.ID+".yaml"), data)
	if err != nil {
		return persistence.NewWorkflowError("SaveWorkflow", workflow.ID, err)
	}

	for _, ext := range []string{".yml", ".json"} {
		err = os.Remove(filepath.Join(dir, workflow.ID+ext))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return persistence.NewWorkflowError("SaveWorkflow", workflow.ID, err)
		}
	}

	return nil
}

func (p *Persistence) DeleteWorkflow(_ context.Context, id string) error {
	err := validateID(id)
	if err != nil {
		return persistence.NewWorkflowError("DeleteWorkflow", id, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	removed := false

	for _, ext := range []string{".yaml", ".yml", ".json"} {
		err = os.Remove(filepath.Join(p.root, workflowsDir, id+ext))
		if err == nil {
			removed = true

			continue
		}

		if !errors.Is(err, fs.ErrNotExist) {
			return persistence.NewWorkflowError("DeleteWorkflow", id, err)
		}
	}

	if !removed {
		return persistence.NewWorkflowError("DeleteWorkflow", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = tmp.Write(data)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	err = tmp.Close()
	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	return os.Rename(tmp.Name(), path)
}
