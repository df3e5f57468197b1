package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/persistence"
	"github.com/dukex/orchestra/pkg/persistence/file"
)

// LoadWorkflows reads the definition at path, or every definition file in it when path is
// a directory, and saves them into registry.
func LoadWorkflows(ctx context.Context, registry persistence.WorkflowRegistry, path string) ([]*models.Workflow, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflows path: %w", err)
	}

	paths := []string{path}

	if info.IsDir() {
		paths = paths[:0]

		for _, pattern := range []string{"*.yaml", "*.yml", "*.json"} {
			matches, err := filepath.Glob(filepath.Join(path, pattern))
			if err != nil {
				return nil, err
			}

			paths = append(paths, matches...)
		}
	}

	workflows := make([]*models.Workflow, 0, len(paths))

	for _, p := range paths {
		workflow, err := file.LoadWorkflowFile(p)
		if err != nil {
			return nil, err
		}

		if workflow.ID == "" {
			workflow.ID = strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		}

		err = workflow.Validate()
		if err != nil {
			return nil, fmt.Errorf("invalid workflow in %s: %w", p, err)
		}

		err = registry.SaveWorkflow(ctx, workflow)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}
