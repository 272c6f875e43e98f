// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/fincore/backoffice/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WorkItemRepository manages the close-of-business work queue. Items
// are claimed one at a time with FOR UPDATE SKIP LOCKED so concurrent
// workers never double-process, and stuck RUNNING items are reclaimed
// after a grace window.
type WorkItemRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewWorkItemRepository(pool *pgxpool.Pool, logger *slog.Logger) *WorkItemRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &WorkItemRepository{
		pool:   pool,
		logger: logger,
	}
}

// ClaimOne claims the oldest runnable work item, marking it RUNNING
// and counting the attempt. Returns pgx.ErrNoRows via the underlying
// query when nothing is claimable.
func (r *WorkItemRepository) ClaimOne(ctx context.Context, reclaimAfter time.Duration) (*domain.WorkItem, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error("begin tx failed", "error", err)
		return nil, err
	}
	defer tx.Rollback(ctx)

	reclaimBefore := time.Now().Add(-reclaimAfter)

	var item domain.WorkItem
	err = tx.QueryRow(ctx, `
		SELECT id, job_name, status, business_date, payload, attempts
		FROM cob_work_items
		WHERE status = $1
		   OR (status = $2 AND started_at IS NOT NULL AND started_at < $3)
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`,
		domain.WorkItemPending,
		domain.WorkItemRunning,
		reclaimBefore,
	).Scan(&item.ID, &item.JobName, &item.Status, &item.BusinessDate, &item.Payload, &item.Attempts)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE cob_work_items
		SET status=$2,
		    started_at=COALESCE(started_at, NOW()),
		    attempts = attempts + 1
		WHERE id=$1
	`,
		item.ID,
		domain.WorkItemRunning,
	); err != nil {
		return nil, err
	}

	item.Status = domain.WorkItemRunning
	item.Attempts++

	return &item, tx.Commit(ctx)
}

// Reload refreshes a work item from storage. The COB engine calls this
// before every step so no step observes state staled by a previous
// step's commit.
func (r *WorkItemRepository) Reload(ctx context.Context, item *domain.WorkItem) (*domain.WorkItem, error) {
	var fresh domain.WorkItem
	err := r.pool.QueryRow(ctx, `
		SELECT id, job_name, status, business_date, payload, attempts, failed_step, failed_order
		FROM cob_work_items
		WHERE id=$1
	`, item.ID).Scan(
		&fresh.ID, &fresh.JobName, &fresh.Status, &fresh.BusinessDate,
		&fresh.Payload, &fresh.Attempts, &fresh.FailedStep, &fresh.FailedOrder,
	)
	if err != nil {
		r.logger.Error("reload work item failed", "item_id", item.ID, "error", err)
		return nil, err
	}

	return &fresh, nil
}

func (r *WorkItemRepository) MarkDone(ctx context.Context, item *domain.WorkItem) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE cob_work_items
		SET status=$2,
		    payload=$3,
		    failed_step=NULL,
		    failed_order=NULL,
		    finished_at=NOW()
		WHERE id=$1
	`,
		item.ID,
		domain.WorkItemDone,
		item.Payload,
	)
	if err != nil {
		r.logger.Error("mark work item done failed", "item_id", item.ID, "error", err)
		return err
	}

	return nil
}

// MarkFailed records the failure with its step attribution. Items with
// attempts left go back to PENDING for a later run.
func (r *WorkItemRepository) MarkFailed(ctx context.Context, item *domain.WorkItem, stepName string, order int64, maxAttempts int) error {
	status := domain.WorkItemPending
	if item.Attempts >= maxAttempts {
		status = domain.WorkItemFailed
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE cob_work_items
		SET status=$2,
		    failed_step=$3,
		    failed_order=$4,
		    finished_at=NOW()
		WHERE id=$1
	`,
		item.ID,
		status,
		stepName,
		order,
	)
	if err != nil {
		r.logger.Error("mark work item failed failed", "item_id", item.ID, "error", err)
		return err
	}

	return nil
}

// Enqueue inserts one pending work item for a job.
func (r *WorkItemRepository) Enqueue(ctx context.Context, item *domain.WorkItem) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO cob_work_items (id, job_name, status, business_date, payload)
		VALUES ($1, $2, $3, $4, $5)
	`,
		item.ID, item.JobName, domain.WorkItemPending, item.BusinessDate, item.Payload,
	)
	if err != nil {
		r.logger.Error("enqueue work item failed", "item_id", item.ID, "job", item.JobName, "error", err)
		return err
	}

	return nil
}
