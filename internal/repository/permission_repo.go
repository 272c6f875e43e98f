// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PermissionRepository is the persisted maker-checker approval policy:
// which action/entity pairs are gated behind checker approval. It
// implements commands.ApprovalPolicy.
type PermissionRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPermissionRepository(pool *pgxpool.Pool, logger *slog.Logger) *PermissionRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PermissionRepository{
		pool:   pool,
		logger: logger,
	}
}

func (r *PermissionRepository) RequiresApproval(ctx context.Context, actionName, entityName string) (bool, error) {
	var enabled bool
	err := r.pool.QueryRow(ctx, `
		SELECT enabled
		FROM maker_checker_permissions
		WHERE action_name=$1
		  AND entity_name=$2
	`, actionName, entityName).Scan(&enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// unconfigured pairs execute directly
			return false, nil
		}
		r.logger.Error("maker-checker lookup failed",
			"action", actionName,
			"entity", entityName,
			"error", err,
		)
		return false, err
	}

	return enabled, nil
}

// SetApproval upserts the maker-checker flag for one pair.
func (r *PermissionRepository) SetApproval(ctx context.Context, actionName, entityName string, enabled bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO maker_checker_permissions (action_name, entity_name, enabled)
		VALUES ($1, $2, $3)
		ON CONFLICT (action_name, entity_name)
		DO UPDATE SET enabled = EXCLUDED.enabled
	`, actionName, entityName, enabled)
	if err != nil {
		r.logger.Error("set maker-checker flag failed",
			"action", actionName,
			"entity", entityName,
			"error", err,
		)
		return err
	}

	return nil
}
