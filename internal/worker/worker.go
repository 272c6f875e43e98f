package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fincore/backoffice/internal/cob"
	"github.com/fincore/backoffice/internal/domain"
	"github.com/jackc/pgx/v5"
)

// ItemQueue is the slice of the work-item repository the worker needs.
type ItemQueue interface {
	ClaimOne(ctx context.Context, reclaimAfter time.Duration) (*domain.WorkItem, error)
	MarkDone(ctx context.Context, item *domain.WorkItem) error
	MarkFailed(ctx context.Context, item *domain.WorkItem, stepName string, order int64, maxAttempts int) error
}

type Deps struct {
	Queue        ItemQueue
	Registry     *cob.Registry
	Executor     *cob.Executor
	Logger       *slog.Logger
	ReclaimAfter time.Duration
	MaxAttempts  int
}

// Worker drives close-of-business runs: it claims one pending work
// item at a time, resolves the ordered step map for the item's job,
// and hands both to the COB engine. A failing item aborts only its own
// run; sibling items and other jobs are untouched.
type Worker struct {
	queue        ItemQueue
	registry     *cob.Registry
	executor     *cob.Executor
	logger       *slog.Logger
	reclaimAfter time.Duration
	maxAttempts  int
}

func New(deps Deps) *Worker {
	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}

	reclaim := deps.ReclaimAfter
	if reclaim <= 0 {
		reclaim = 5 * time.Minute
	}

	maxAtt := deps.MaxAttempts
	if maxAtt <= 0 {
		maxAtt = 3
	}

	return &Worker{
		queue:        deps.Queue,
		registry:     deps.Registry,
		executor:     deps.Executor,
		logger:       l,
		reclaimAfter: reclaim,
		maxAttempts:  maxAtt,
	}
}

// Run polls the queue until ctx is canceled. Failures are logged and
// the loop keeps going; one poisoned item never stops the worker.
func (w *Worker) Run(ctx context.Context, pollInterval time.Duration) {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
				w.logger.Warn("work item processing failed", "error", err)
			}
		}
	}
}

func (w *Worker) ProcessOnce(ctx context.Context) error {
	item, err := w.queue.ClaimOne(ctx, w.reclaimAfter)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		w.logger.Error("claim work item failed", "error", err)
		return err
	}

	w.logger.Info("work item claimed",
		"item_id", item.ID,
		"job", item.JobName,
		"attempt", item.Attempts,
	)

	executionMap, err := w.registry.StepsForJob(ctx, item.JobName)
	if err != nil {
		w.logger.Error("resolve job steps failed",
			"item_id", item.ID,
			"job", item.JobName,
			"error", err,
		)
		if markErr := w.queue.MarkFailed(ctx, item, "", 0, w.maxAttempts); markErr != nil {
			return markErr
		}
		return err
	}

	out, runErr := w.executor.Run(ctx, executionMap, item)
	if runErr != nil {
		var stepErr *domain.StepExecutionError
		if errors.As(runErr, &stepErr) {
			w.logger.Error("work item run failed",
				"item_id", item.ID,
				"job", item.JobName,
				"step", stepErr.StepName,
				"order", stepErr.Order,
				"error", stepErr.Err,
			)
			if markErr := w.queue.MarkFailed(ctx, item, stepErr.StepName, stepErr.Order, w.maxAttempts); markErr != nil {
				return markErr
			}
			return runErr
		}

		w.logger.Error("work item run failed",
			"item_id", item.ID,
			"job", item.JobName,
			"error", runErr,
		)
		if markErr := w.queue.MarkFailed(ctx, item, "", 0, w.maxAttempts); markErr != nil {
			return markErr
		}
		return runErr
	}

	if err := w.queue.MarkDone(ctx, out); err != nil {
		w.logger.Error("mark work item done failed", "item_id", item.ID, "error", err)
		return err
	}

	w.logger.Info("work item completed",
		"item_id", item.ID,
		"job", item.JobName,
		"steps", len(executionMap),
	)

	return nil
}
