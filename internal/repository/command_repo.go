// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fincore/backoffice/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const commandColumns = `
	id, action_name, entity_name, resource_id, subresource_id,
	office_id, group_id, client_id, loan_id, savings_id, product_id,
	href, payload, maker, made_on_date, checker, checked_on_date,
	status, idempotency_key, result, result_status`

// CommandRepository persists command audit records. Records are never
// deleted; the unique idempotency index is the source of truth for the
// at-most-once execution guarantee.
type CommandRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewCommandRepository(pool *pgxpool.Pool, logger *slog.Logger) *CommandRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &CommandRepository{
		pool:   pool,
		logger: logger,
	}
}

func (r *CommandRepository) Insert(ctx context.Context, cmd *domain.CommandSource) error {
	var key *string
	if cmd.IdempotencyKey != "" {
		key = &cmd.IdempotencyKey
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO command_sources (
			id, action_name, entity_name, resource_id, subresource_id,
			office_id, group_id, client_id, loan_id, savings_id, product_id,
			href, payload, maker, made_on_date, checker, checked_on_date,
			status, idempotency_key, result, result_status
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`,
		cmd.ID, cmd.ActionName, cmd.EntityName, cmd.ResourceID, cmd.SubResourceID,
		cmd.OfficeID, cmd.GroupID, cmd.ClientID, cmd.LoanID, cmd.SavingsID, cmd.ProductID,
		cmd.Href, cmd.Payload, cmd.Maker, cmd.MadeOnDate, cmd.Checker, cmd.CheckedOnDate,
		cmd.Status, key, cmd.Result, cmd.ResultStatus,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrIdempotencyKeyConflict
		}
		r.logger.Error("insert command failed", "command_id", cmd.ID, "error", err)
		return err
	}

	return nil
}

func (r *CommandRepository) Update(ctx context.Context, cmd *domain.CommandSource) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE command_sources
		SET resource_id=$2,
		    subresource_id=$3,
		    office_id=$4,
		    group_id=$5,
		    client_id=$6,
		    loan_id=$7,
		    savings_id=$8,
		    product_id=$9,
		    checker=$10,
		    checked_on_date=$11,
		    status=$12,
		    result=$13,
		    result_status=$14
		WHERE id=$1
	`,
		cmd.ID, cmd.ResourceID, cmd.SubResourceID,
		cmd.OfficeID, cmd.GroupID, cmd.ClientID, cmd.LoanID, cmd.SavingsID, cmd.ProductID,
		cmd.Checker, cmd.CheckedOnDate, cmd.Status, cmd.Result, cmd.ResultStatus,
	)
	if err != nil {
		r.logger.Error("update command failed", "command_id", cmd.ID, "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCommandNotFound
	}

	return nil
}

func (r *CommandRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.CommandSource, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+commandColumns+`
		FROM command_sources
		WHERE id=$1
	`, id)

	cmd, err := scanCommand(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCommandNotFound
		}
		r.logger.Error("find command failed", "command_id", id, "error", err)
		return nil, err
	}

	return cmd, nil
}

func (r *CommandRepository) FindByIdempotencyKey(ctx context.Context, actionName, entityName, key string) (*domain.CommandSource, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+commandColumns+`
		FROM command_sources
		WHERE action_name=$1
		  AND entity_name=$2
		  AND idempotency_key=$3
	`, actionName, entityName, key)

	cmd, err := scanCommand(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCommandNotFound
		}
		r.logger.Error("find command by idempotency key failed",
			"action", actionName,
			"entity", entityName,
			"error", err,
		)
		return nil, err
	}

	return cmd, nil
}

func (r *CommandRepository) ListByStatus(ctx context.Context, status domain.CommandStatus, limit int) ([]domain.CommandSource, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+commandColumns+`
		FROM command_sources
		WHERE status=$1
		ORDER BY made_on_date ASC
		LIMIT $2
	`, status, limit)
	if err != nil {
		r.logger.Error("list commands failed", "status", status.String(), "error", err)
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.CommandSource, 0, 8)
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			r.logger.Error("scan command row failed", "error", err)
			return nil, err
		}
		out = append(out, *cmd)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("command rows iteration failed", "error", err)
		return nil, err
	}

	return out, nil
}

func scanCommand(row pgx.Row) (*domain.CommandSource, error) {
	var cmd domain.CommandSource
	var key *string

	if err := row.Scan(
		&cmd.ID, &cmd.ActionName, &cmd.EntityName, &cmd.ResourceID, &cmd.SubResourceID,
		&cmd.OfficeID, &cmd.GroupID, &cmd.ClientID, &cmd.LoanID, &cmd.SavingsID, &cmd.ProductID,
		&cmd.Href, &cmd.Payload, &cmd.Maker, &cmd.MadeOnDate, &cmd.Checker, &cmd.CheckedOnDate,
		&cmd.Status, &key, &cmd.Result, &cmd.ResultStatus,
	); err != nil {
		return nil, err
	}

	if key != nil {
		cmd.IdempotencyKey = *key
	}

	return &cmd, nil
}
