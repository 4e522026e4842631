// Package main provides the Flowline scheduler: timer resumes, event-wait
// timeouts, and schedule triggers.
package main

import (
	"context"
	"os"
	"time"

	"github.com/flowlinehq/flowline/pkg/cmd"
	"github.com/flowlinehq/flowline/pkg/log"
	"github.com/flowlinehq/flowline/pkg/notify"
	"github.com/flowlinehq/flowline/pkg/retry"
	"github.com/flowlinehq/flowline/pkg/scheduler"
	"github.com/flowlinehq/flowline/pkg/trigger"
	cli "github.com/urfave/cli/v3"
)

const defaultPollInterval = 10 * time.Second

func main() {
	logger := log.WithModule("flowline-scheduler")

	command := &cli.Command{
		Name:                  "flowline-scheduler",
		Usage:                 "Wake parked executions and fire schedule triggers",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "How often to sweep for due executions",
				Value:   defaultPollInterval,
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Flowline Scheduler")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "flowline-scheduler", logger)
			if err != nil {
				return err
			}

			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			notifier := notify.NewBusNotifier(eventBus, logger)
			retryManager := retry.NewManager(persistence, eventBus, notifier, logger)

			poller := scheduler.NewPoller(persistence, eventBus, retryManager, logger).
				WithInterval(command.Duration("poll-interval"))

			cronSource := trigger.NewCronSource(persistence, eventBus, logger)

			errCh := make(chan error, 2)

			go func() {
				errCh <- poller.Run(ctx)
			}()

			go func() {
				errCh <- cronSource.Run(ctx)
			}()

			return <-errCh
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
