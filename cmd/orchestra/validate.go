package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/orchestra/pkg/barrier"
	"github.com/dukex/orchestra/pkg/cmd"
	"github.com/dukex/orchestra/pkg/log"
	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/persistence/file"
	"github.com/dukex/orchestra/pkg/protocol"
	"github.com/dukex/orchestra/pkg/registry"
	"github.com/go-playground/validator/v10"
	cli "github.com/urfave/cli/v3"
)

var errMissingFile = errors.New("a workflow definition file is required")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check a workflow definition and the configuration of its components",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing component plugins",
				Sources: cli.EnvVars("PLUGINS_PATH"),
			},
		},
		Action: func(_ context.Context, command *cli.Command) error {
			path := command.Args().First()
			if path == "" {
				return errMissingFile
			}

			workflow, err := file.LoadWorkflowFile(path)
			if err != nil {
				return err
			}

			reg := cmd.NewRegistry(log.WithModule("validate"), barrier.NewMemoryStore(), command.String("plugins-path"))

			err = validateWorkflow(workflow, reg)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(command.Root().Writer, "workflow %q is valid: %d nodes\n", workflow.ID, len(workflow.Nodes))

			return nil
		},
	}
}

func validateWorkflow(workflow *models.Workflow, reg *registry.Registry) error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(workflow)
	if err != nil {
		return err
	}

	err = workflow.Validate()
	if err != nil {
		return err
	}

	var errs []error

	for _, node := range workflow.Nodes {
		key := node.Component
		if key == "" {
			key = protocol.DefaultComponent
		}

		definition, ok := reg.Definition(key)
		if !ok {
			errs = append(errs, fmt.Errorf("node %s: component %s is not registered", node.ID, key))

			continue
		}

		if !definition.Supports(node.Type) {
			errs = append(errs, fmt.Errorf("node %s: component %s does not support %s nodes", node.ID, key, node.Type))

			continue
		}

		_, _, err := reg.Get(key, node.Config)
		if err != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", node.ID, err))
		}
	}

	return errors.Join(errs...)
}
