// SPDX-License-Identifier: Apache-2.0

package cob

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/fincore/backoffice/internal/domain"
	"github.com/fincore/backoffice/internal/events"
	"github.com/fincore/backoffice/internal/execution"
	"github.com/fincore/backoffice/internal/metrics"
	"github.com/fincore/backoffice/internal/sampling"
)

type ExecutorDeps struct {
	Registry *Registry
	Reloader ItemReloader
	Notifier events.Notifier
	Sampler  sampling.Service
	Logger   *slog.Logger
}

// Executor runs an ordered sequence of business steps against one
// work item with fail-fast, attributable error propagation.
type Executor struct {
	registry *Registry
	reloader ItemReloader
	notifier events.Notifier
	sampler  sampling.Service
	logger   *slog.Logger
}

func NewExecutor(deps ExecutorDeps) *Executor {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sampler := deps.Sampler
	if sampler == nil {
		sampler = sampling.Noop{}
	}

	return &Executor{
		registry: deps.Registry,
		reloader: deps.Reloader,
		notifier: deps.Notifier,
		sampler:  sampler,
		logger:   logger,
	}
}

// Run executes the steps of executionMap in ascending order against
// item and returns the final item instance.
//
// A nil or empty map is a valid no-op: the item is returned unchanged.
// A non-empty map naming an unregistered step is a configuration error
// and propagates before any step runs. The COB action context and the
// run-scoped event recorder live only on the derived run context, so
// the caller's ambient state is restored on every exit path. Buffered
// business events are flushed in aggregate after the last step and
// discarded if any step fails.
func (e *Executor) Run(ctx context.Context, executionMap map[int64]string, item *domain.WorkItem) (*domain.WorkItem, error) {
	if len(executionMap) == 0 {
		return item, nil
	}

	orders := make([]int64, 0, len(executionMap))
	for order := range executionMap {
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i] < orders[j] })

	// resolve everything up front so configuration drift fails the run
	// before any step mutates state
	steps := make(map[int64]Step, len(orders))
	for _, order := range orders {
		step, err := e.registry.Resolve(executionMap[order])
		if err != nil {
			return nil, err
		}
		steps[order] = step
	}

	recorder := events.NewRecorder(e.notifier, e.logger)
	recorder.StartBuffering()
	defer recorder.StopBuffering()

	runCtx := execution.WithActionContext(ctx, execution.ActionContextCOB)
	runCtx = events.WithRecorder(runCtx, recorder)

	current := item
	for _, order := range orders {
		step := steps[order]

		out, err := e.runStep(runCtx, step, current)
		if err != nil {
			metrics.IncCOBStep("failure")
			recorder.Reset()

			e.logger.Error("business step failed",
				"step", step.Name(),
				"order", order,
				"error", err,
			)

			return nil, &domain.StepExecutionError{
				StepName: step.Name(),
				Order:    order,
				Err:      err,
			}
		}

		metrics.IncCOBStep("success")
		current = out
	}

	if err := recorder.Flush(runCtx); err != nil {
		return nil, err
	}

	return current, nil
}

func (e *Executor) runStep(ctx context.Context, step Step, item *domain.WorkItem) (*domain.WorkItem, error) {
	if e.reloader != nil && item != nil {
		reloaded, err := e.reloader.Reload(ctx, item)
		if err != nil {
			return nil, err
		}
		item = reloaded
	}

	var out *domain.WorkItem
	err := e.sampler.Sample("cob."+step.Name(), func() error {
		started := time.Now()
		var stepErr error
		out, stepErr = step.Execute(ctx, item)
		metrics.ObserveCOBStepDuration(time.Since(started))
		return stepErr
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}
