package main

import (
	"time"

	cli "github.com/urfave/cli/v3"
)

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka). Kafka brokers come from KAFKA_BROKERS",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "ledger-url",
			Usage:   "Processed event ledger (memory://, redis://...). Empty disables deduplication",
			Value:   "memory://",
			Sources: cli.EnvVars("LEDGER_URL"),
		},
		&cli.DurationFlag{
			Name:    "ledger-ttl",
			Usage:   "How long handled event ids are remembered",
			Value:   24 * time.Hour,
			Sources: cli.EnvVars("LEDGER_TTL"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
	}
}

func orchestratorFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Persistence URL (memory://, file://dir, postgres://..., badger://dir)",
			Value:   "memory://",
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "workflows-path",
			Usage:   "Workflow definition file, or directory of YAML/JSON definitions, loaded at start",
			Sources: cli.EnvVars("WORKFLOWS_PATH"),
		},
		&cli.BoolFlag{
			Name:    "orchestrate",
			Usage:   "Start an execution for every workflow loaded from the workflows path",
			Value:   true,
			Sources: cli.EnvVars("ORCHESTRATE_ON_START"),
		},
		&cli.DurationFlag{
			Name:    "state-timeout",
			Usage:   "Fail node executions left WORKING or WAITING longer than this (0 disables)",
			Sources: cli.EnvVars("STATE_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    "failure-policy",
			Usage:   "Reaction to failed non-START nodes (halt-branch, fail-execution)",
			Value:   "halt-branch",
			Sources: cli.EnvVars("FAILURE_POLICY"),
		},
		&cli.BoolFlag{
			Name:    "api",
			Usage:   "Serve the REST API",
			Value:   true,
			Sources: cli.EnvVars("API_ENABLED"),
		},
		&cli.IntFlag{
			Name:    "port",
			Usage:   "Port to run the API server on",
			Value:   9091,
			Sources: cli.EnvVars("PORT"),
		},
	}
}

func runtimeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "barrier-url",
			Usage:   "Join barrier store (memory://, redis://...)",
			Value:   "memory://",
			Sources: cli.EnvVars("BARRIER_URL"),
		},
		&cli.DurationFlag{
			Name:    "barrier-max-age",
			Usage:   "Drop join barriers that received no arrival for this long",
			Value:   time.Hour,
			Sources: cli.EnvVars("BARRIER_MAX_AGE"),
		},
		&cli.IntFlag{
			Name:    "workers",
			Usage:   "Size of the component worker pool",
			Value:   64,
			Sources: cli.EnvVars("WORKERS"),
		},
		&cli.StringFlag{
			Name:    "plugins-path",
			Usage:   "Path to the directory containing component plugins",
			Sources: cli.EnvVars("PLUGINS_PATH"),
		},
	}
}

func flags(groups ...[]cli.Flag) []cli.Flag {
	all := make([]cli.Flag, 0)
	for _, group := range groups {
		all = append(all, group...)
	}

	return all
}
