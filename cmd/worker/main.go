// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fincore/backoffice/internal/cob"
	"github.com/fincore/backoffice/internal/cob/steps"
	"github.com/fincore/backoffice/internal/config"
	"github.com/fincore/backoffice/internal/logging"
	"github.com/fincore/backoffice/internal/persistence/postgres"
	"github.com/fincore/backoffice/internal/repository"
	"github.com/fincore/backoffice/internal/sampling"
	"github.com/fincore/backoffice/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Env)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
			log.Fatalf("schema bootstrap failed: %v", err)
		}
	}

	stepConfigRepo := repository.NewStepConfigRepository(pool, logger)
	workItemRepo := repository.NewWorkItemRepository(pool, logger)
	eventRepo := repository.NewEventRepository(pool, logger)

	registry := cob.NewRegistry(stepConfigRepo, logger)
	for _, step := range []cob.Step{
		steps.StampBusinessDate{},
		steps.EmitItemProcessed{},
	} {
		if err := registry.Register(step); err != nil {
			log.Fatalf("register business step failed: %v", err)
		}
	}

	executor := cob.NewExecutor(cob.ExecutorDeps{
		Registry: registry,
		Reloader: workItemRepo,
		Notifier: eventRepo,
		Sampler:  sampling.New(int64(cfg.SamplingRate), logger),
		Logger:   logger,
	})

	w := worker.New(worker.Deps{
		Queue:        workItemRepo,
		Registry:     registry,
		Executor:     executor,
		Logger:       logger,
		ReclaimAfter: cfg.COBReclaimAfter,
		MaxAttempts:  cfg.COBMaxAttempts,
	})

	logger.Info("cob worker started",
		"poll_interval", cfg.COBPollInterval,
		"reclaim_after", cfg.COBReclaimAfter,
		"max_attempts", cfg.COBMaxAttempts,
	)

	w.Run(ctx, cfg.COBPollInterval)

	logger.Info("cob worker stopped")
}
