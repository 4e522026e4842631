package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flowlinehq/flowline/pkg/eventbus"
	"github.com/flowlinehq/flowline/pkg/events"
)

// Worker binds an executor to the event bus. It consumes start and resume
// requests; claim losses are acked, not retried, because some other worker
// already owns the execution.
type Worker struct {
	executor *Executor
	eventBus eventbus.EventBus
	logger   *slog.Logger
}

// NewWorker creates a new worker.
func NewWorker(executor *Executor, eventBus eventbus.EventBus, logger *slog.Logger) *Worker {
	return &Worker{
		executor: executor,
		eventBus: eventBus,
		logger:   logger.With("module", "worker"),
	}
}

// Run registers the bus handlers and blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	err := w.eventBus.Handle(events.ExecutionRequestedEvent, w.handleRequested)
	if err != nil {
		return fmt.Errorf("failed to register start handler: %w", err)
	}

	err = w.eventBus.Handle(events.ExecutionResumeRequestedEvent, w.handleResumeRequested)
	if err != nil {
		return fmt.Errorf("failed to register resume handler: %w", err)
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	w.logger.InfoContext(ctx, "Worker started")

	<-ctx.Done()

	return nil
}

func (w *Worker) handleRequested(ctx context.Context, event any) error {
	requested, ok := event.(*events.ExecutionRequested)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	err := w.executor.Start(ctx, requested.ExecutionID)
	if errors.Is(err, ErrNotClaimed) {
		return nil
	}

	return err
}

func (w *Worker) handleResumeRequested(ctx context.Context, event any) error {
	requested, ok := event.(*events.ExecutionResumeRequested)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	err := w.executor.Resume(ctx, requested.ExecutionID)
	if errors.Is(err, ErrNotClaimed) {
		return nil
	}

	return err
}
