// Package main provides the Flowline dispatcher: the trigger adapter and the
// event subscription matcher.
package main

import (
	"context"
	"os"

	"github.com/flowlinehq/flowline/pkg/cmd"
	"github.com/flowlinehq/flowline/pkg/log"
	"github.com/flowlinehq/flowline/pkg/subscription"
	"github.com/flowlinehq/flowline/pkg/trigger"
	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("flowline-dispatcher")

	command := &cli.Command{
		Name:                  "flowline-dispatcher",
		Usage:                 "Turn platform events into executions and resume event waits",
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
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for monthly run cap counters (optional)",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
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

			logger.InfoContext(ctx, "Initializing Flowline Dispatcher")

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

			var caps *trigger.CapCounter

			if redisURL := command.String("redis-url"); redisURL != "" {
				options, err := redis.ParseURL(redisURL)
				if err != nil {
					return err
				}

				caps = trigger.NewCapCounter(redis.NewClient(options))
			}

			// The adapter and the matcher each get their own bus connection
			// so they land in separate consumer groups and both see the full
			// event stream.
			triggerBus, err := cmd.NewEventBus(command.String("event-bus"), "flowline-trigger", logger)
			if err != nil {
				return err
			}

			defer func() {
				err := triggerBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close trigger bus", "error", err)
				}
			}()

			matcherBus, err := cmd.NewEventBus(command.String("event-bus"), "flowline-matcher", logger)
			if err != nil {
				return err
			}

			defer func() {
				err := matcherBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close matcher bus", "error", err)
				}
			}()

			adapter := trigger.NewAdapter(persistence, triggerBus, caps, logger)
			matcher := subscription.NewMatcher(persistence, matcherBus, logger)

			errCh := make(chan error, 2)

			go func() {
				errCh <- adapter.Run(ctx)
			}()

			go func() {
				errCh <- matcher.Run(ctx)
			}()

			return <-errCh
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
