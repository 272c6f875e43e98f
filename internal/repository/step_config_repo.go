// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"log/slog"

	"github.com/fincore/backoffice/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StepConfigRepository reads and writes the persisted business-step
// descriptors per job. The (job_name, step_name) and
// (job_name, step_order) uniqueness is enforced by the schema; other
// tooling reads this table directly, so its shape is a contract.
type StepConfigRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewStepConfigRepository(pool *pgxpool.Pool, logger *slog.Logger) *StepConfigRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &StepConfigRepository{
		pool:   pool,
		logger: logger,
	}
}

func (r *StepConfigRepository) ListEnabledSteps(ctx context.Context, jobName string) ([]domain.StepConfig, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT job_name, step_name, step_order, enabled
		FROM business_step_configs
		WHERE job_name=$1
		  AND enabled=TRUE
		ORDER BY step_order ASC
	`, jobName)
	if err != nil {
		r.logger.Error("list step configs failed", "job", jobName, "error", err)
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.StepConfig, 0, 8)
	for rows.Next() {
		var cfg domain.StepConfig
		if err := rows.Scan(&cfg.JobName, &cfg.StepName, &cfg.Order, &cfg.Enabled); err != nil {
			r.logger.Error("scan step config row failed", "job", jobName, "error", err)
			return nil, err
		}
		out = append(out, cfg)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("step config rows iteration failed", "job", jobName, "error", err)
		return nil, err
	}

	return out, nil
}

// ReplaceSteps swaps the full descriptor set of a job in one
// transaction, so a reordering is never observed half-applied.
func (r *StepConfigRepository) ReplaceSteps(ctx context.Context, jobName string, configs []domain.StepConfig) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error("begin tx failed", "job", jobName, "error", err)
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM business_step_configs WHERE job_name=$1`,
		jobName,
	); err != nil {
		r.logger.Error("clear step configs failed", "job", jobName, "error", err)
		return err
	}

	for _, cfg := range configs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO business_step_configs (job_name, step_name, step_order, enabled)
			VALUES ($1, $2, $3, $4)
		`,
			jobName, cfg.StepName, cfg.Order, cfg.Enabled,
		); err != nil {
			r.logger.Error("insert step config failed",
				"job", jobName,
				"step", cfg.StepName,
				"error", err,
			)
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("commit step configs failed", "job", jobName, "error", err)
		return err
	}

	r.logger.Info("step configuration replaced", "job", jobName, "steps", len(configs))
	return nil
}
