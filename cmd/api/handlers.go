// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fincore/backoffice/internal/commands"
	"github.com/fincore/backoffice/internal/domain"
	"github.com/fincore/backoffice/internal/repository"
	"github.com/google/uuid"
)

// registerHandlers wires the built-in platform commands. Business
// modules add their own handlers here as they are ported onto the
// command pipeline.
func registerHandlers(registry *commands.HandlerRegistry, workItems *repository.WorkItemRepository, logger *slog.Logger) error {
	if err := registry.Register("EXECUTE", "COBJOB", newCOBJobHandler(workItems, logger)); err != nil {
		return fmt.Errorf("register EXECUTE_COBJOB: %w", err)
	}
	return nil
}

type cobJobPayload struct {
	JobName      string          `json:"jobName"`
	BusinessDate *time.Time      `json:"businessDate,omitempty"`
	Parameters   json.RawMessage `json:"parameters,omitempty"`
}

// newCOBJobHandler enqueues one close-of-business work item. The run
// itself happens asynchronously in the worker; the command records who
// requested it and when.
func newCOBJobHandler(workItems *repository.WorkItemRepository, logger *slog.Logger) commands.Handler {
	return commands.HandlerFunc(func(ctx context.Context, cmd domain.CommandWrapper) (domain.CommandResult, error) {
		var payload cobJobPayload
		if len(cmd.JSON) > 0 {
			if err := json.Unmarshal(cmd.JSON, &payload); err != nil {
				return domain.CommandResult{}, &domain.ValidationError{Errors: []domain.ParameterError{{
					Field:   "json",
					Code:    "validation.msg.cobjob.json.invalid",
					Message: err.Error(),
				}}}
			}
		}

		if strings.TrimSpace(payload.JobName) == "" {
			return domain.CommandResult{}, &domain.ValidationError{Errors: []domain.ParameterError{{
				Field:   "jobName",
				Code:    "validation.msg.cobjob.jobName.cannot.be.blank",
				Message: "job name must be provided",
			}}}
		}

		businessDate := time.Now()
		if payload.BusinessDate != nil {
			businessDate = *payload.BusinessDate
		}

		item := &domain.WorkItem{
			ID:           uuid.New(),
			JobName:      payload.JobName,
			BusinessDate: businessDate,
			Payload:      payload.Parameters,
		}
		if err := workItems.Enqueue(ctx, item); err != nil {
			return domain.CommandResult{}, &domain.InfrastructureError{Err: err}
		}

		logger.Info("cob job enqueued",
			"work_item_id", item.ID,
			"job", item.JobName,
			"business_date", businessDate,
		)

		return domain.CommandResult{
			Changes: map[string]any{
				"workItemId":   item.ID.String(),
				"jobName":      item.JobName,
				"businessDate": businessDate,
			},
		}, nil
	})
}
