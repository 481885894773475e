// Package main provides a terminal watcher that follows the execution change
// feed through a live monitor and logs the view as it evolves.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/flowrelay/flowrelay/pkg/cmd"
	"github.com/flowrelay/flowrelay/pkg/log"
	"github.com/flowrelay/flowrelay/pkg/monitor"
	"github.com/flowrelay/flowrelay/pkg/store"
)

func main() {
	command := &cli.Command{
		Name:                  "flowrelay-watch",
		Usage:                 "Follow recent workflow executions live",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for the execution store",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Change feed transport (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:  "workflow-id",
				Usage: "Restrict the view to one workflow",
			},
			&cli.IntFlag{
				Name:  "max-items",
				Usage: "Maximum executions kept in view",
				Value: monitor.DefaultMaxItems,
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "How often to print the current view",
				Value: 2 * time.Second,
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("watch")

	persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	changeFeed := cmd.NewFeed(command.String("event-bus"), "flowrelay-watch", logger)
	defer func() {
		if err := changeFeed.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close change feed", "error", err)
		}
	}()

	m, err := monitor.Open(ctx, monitor.OpenOptions{
		Store:    persistence.Executions(),
		Feed:     changeFeed,
		Filter:   store.Filter{WorkflowID: command.String("workflow-id")},
		Logger:   logger,
		MaxItems: int(command.Int("max-items")),
	})
	if err != nil {
		return err
	}
	defer m.Close()

	logger.InfoContext(ctx, "Watching executions",
		"workflow_id", command.String("workflow-id"),
		"max_items", command.Int("max-items"),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(command.Duration("interval"))
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			logger.InfoContext(ctx, "Shutting down watcher")

			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			printView(ctx, logger, m)
		}
	}
}

func printView(ctx context.Context, logger *slog.Logger, m *monitor.Monitor) {
	for _, execution := range m.Snapshot() {
		logger.InfoContext(ctx, "execution",
			"id", execution.ID,
			"workflow_id", execution.WorkflowID,
			"status", execution.Status,
			"started_at", execution.StartedAt.Format(time.RFC3339),
			"duration_seconds", execution.DurationSeconds,
		)
	}

	logger.InfoContext(ctx, "view",
		"size", m.Len(),
		"connected", m.Connected(),
		"dropped", m.Dropped(),
	)
}
