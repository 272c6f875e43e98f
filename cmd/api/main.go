// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fincore/backoffice/internal/commands"
	"github.com/fincore/backoffice/internal/config"
	"github.com/fincore/backoffice/internal/logging"
	"github.com/fincore/backoffice/internal/persistence/postgres"
	"github.com/fincore/backoffice/internal/repository"
	"github.com/fincore/backoffice/internal/sampling"
	httptransport "github.com/fincore/backoffice/internal/transport/http"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
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

	commandRepo := repository.NewCommandRepository(pool, logger)
	permissionRepo := repository.NewPermissionRepository(pool, logger)
	stepConfigRepo := repository.NewStepConfigRepository(pool, logger)
	workItemRepo := repository.NewWorkItemRepository(pool, logger)
	eventRepo := repository.NewEventRepository(pool, logger)

	handlers := commands.NewHandlerRegistry()
	if err := registerHandlers(handlers, workItemRepo, logger); err != nil {
		log.Fatalf("register command handlers failed: %v", err)
	}

	pipeline := commands.NewPipeline(commands.PipelineDeps{
		Store:    commandRepo,
		Handlers: handlers,
		Policy:   permissionRepo,
		Sampler:  sampling.New(int64(cfg.SamplingRate), logger),
		Logger:   logger,
	})

	handler := httptransport.NewRouter(httptransport.Deps{
		Commands:    pipeline,
		StepAdmin:   stepConfigRepo,
		Events:      eventRepo,
		Permissions: permissionRepo,
		Health:      postgres.NewSchemaHealthChecker(pool),
		Logger:      logger,
		AdminToken:  cfg.AdminToken,
		Version:     Version,
		Commit:      Commit,
		BuildDate:   BuildDate,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api listening",
			"addr", cfg.HTTPAddr,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
		)

		if err := srv.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
}
