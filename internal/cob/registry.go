// SPDX-License-Identifier: Apache-2.0

package cob

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/fincore/backoffice/internal/domain"
)

// StepConfigStore reads the persisted step descriptors for a job.
type StepConfigStore interface {
	ListEnabledSteps(ctx context.Context, jobName string) ([]domain.StepConfig, error)
}

// Registry maps stable step names to their registered implementations.
// Steps are registered explicitly at startup; resolving a configured
// name with no registered implementation is a fatal configuration
// error, which keeps job configuration and deployed code from
// drifting apart silently.
type Registry struct {
	logger *slog.Logger
	store  StepConfigStore

	mu    sync.RWMutex
	steps map[string]Step
	order []string
}

func NewRegistry(store StepConfigStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		logger: logger,
		store:  store,
		steps:  make(map[string]Step),
	}
}

// Register adds a step implementation under its stable name.
func (r *Registry) Register(step Step) error {
	name := strings.TrimSpace(step.Name())
	if name == "" {
		return fmt.Errorf("register step: empty step name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.steps[name]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateStepName, name)
	}

	r.steps[name] = step
	r.order = append(r.order, name)

	r.logger.Debug("business step registered", "step", name)
	return nil
}

// Resolve returns the live implementation for a step name.
func (r *Registry) Resolve(name string) (Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	step, ok := r.steps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrStepNotRegistered, name)
	}
	return step, nil
}

// StepsForJob resolves the ordered, enabled execution map for a named
// job: persisted descriptors win; a job with no persisted
// configuration falls back to every registered step in registration
// order; an empty job name or empty registry yields an empty map.
func (r *Registry) StepsForJob(ctx context.Context, jobName string) (map[int64]string, error) {
	executionMap := make(map[int64]string)

	if strings.TrimSpace(jobName) == "" {
		return executionMap, nil
	}

	r.mu.RLock()
	registered := len(r.steps)
	r.mu.RUnlock()
	if registered == 0 {
		return executionMap, nil
	}

	var configs []domain.StepConfig
	if r.store != nil {
		var err error
		configs, err = r.store.ListEnabledSteps(ctx, jobName)
		if err != nil {
			return nil, fmt.Errorf("load step configuration for job %q: %w", jobName, err)
		}
	}

	if len(configs) == 0 {
		// no persisted configuration: every registered step, default order
		r.mu.RLock()
		for i, name := range r.order {
			executionMap[int64(i+1)] = name
		}
		r.mu.RUnlock()
		return executionMap, nil
	}

	sort.Slice(configs, func(i, j int) bool { return configs[i].Order < configs[j].Order })

	for _, cfg := range configs {
		if _, err := r.Resolve(cfg.StepName); err != nil {
			// configured step with no deployed implementation is fatal
			return nil, fmt.Errorf("job %q: %w", jobName, err)
		}
		executionMap[cfg.Order] = cfg.StepName
	}

	return executionMap, nil
}
