// Package main provides the orchestra command: the orchestrator, the component runtime
// engine and the REST API, together or as separate processes.
package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	err := newApp().Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  "orchestra",
		EnableShellCompletion: true,
		Usage:                 "Event-driven workflow orchestration",
		Commands: []*cli.Command{
			NewRunCommand(),
			NewOrchestratorCommand(),
			NewRuntimeCommand(),
			NewValidateCommand(),
		},
	}
}
