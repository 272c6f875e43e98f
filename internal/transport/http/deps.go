// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"

	"github.com/fincore/backoffice/internal/commands"
	"github.com/fincore/backoffice/internal/domain"
	"github.com/google/uuid"
)

// CommandService is the command pipeline surface the router needs.
type CommandService interface {
	Submit(ctx context.Context, w domain.CommandWrapper, maker string) (commands.Response, error)
	Approve(ctx context.Context, commandID uuid.UUID, checker string) (commands.Response, error)
	Reject(ctx context.Context, commandID uuid.UUID, checker string) (commands.Response, error)
	AuditEntry(ctx context.Context, commandID uuid.UUID) (*domain.CommandSource, error)
	PendingCommands(ctx context.Context, limit int) ([]domain.CommandSource, error)
	CommandsByStatus(ctx context.Context, status domain.CommandStatus, limit int) ([]domain.CommandSource, error)
}

// StepConfigAdmin manages the persisted per-job step configuration.
type StepConfigAdmin interface {
	ListEnabledSteps(ctx context.Context, jobName string) ([]domain.StepConfig, error)
	ReplaceSteps(ctx context.Context, jobName string, configs []domain.StepConfig) error
}

// EventStream tails the durable business-event log by sequence number.
type EventStream interface {
	ListAfter(ctx context.Context, afterSeq int64, limit int) ([]domain.BusinessEvent, error)
}

// PermissionAdmin manages which action/entity pairs require checker
// approval.
type PermissionAdmin interface {
	SetApproval(ctx context.Context, actionName, entityName string, enabled bool) error
}

type HealthChecker interface {
	Check(ctx context.Context) error
}
