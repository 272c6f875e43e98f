// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fincore/backoffice/internal/domain"
	"github.com/fincore/backoffice/internal/errorhandling"
	"github.com/fincore/backoffice/internal/execution"
	"github.com/fincore/backoffice/internal/metrics"
	"github.com/fincore/backoffice/internal/sampling"
	"github.com/google/uuid"
)

// CommandStore persists command audit records. Insert must return
// domain.ErrIdempotencyKeyConflict when the unique idempotency key is
// already recorded; the storage constraint is the source of truth for
// the at-most-once guarantee.
type CommandStore interface {
	Insert(ctx context.Context, cmd *domain.CommandSource) error
	Update(ctx context.Context, cmd *domain.CommandSource) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.CommandSource, error)
	FindByIdempotencyKey(ctx context.Context, actionName, entityName, key string) (*domain.CommandSource, error)
	ListByStatus(ctx context.Context, status domain.CommandStatus, limit int) ([]domain.CommandSource, error)
}

// Response is the command submission contract returned to API and
// batch callers.
type Response struct {
	CommandID    uuid.UUID       `json:"commandId"`
	Status       string          `json:"status"`
	ResourceID   *int64          `json:"resourceId,omitempty"`
	OfficeID     *int64          `json:"officeId,omitempty"`
	ClientID     *int64          `json:"clientId,omitempty"`
	GroupID      *int64          `json:"groupId,omitempty"`
	LoanID       *int64          `json:"loanId,omitempty"`
	SavingsID    *int64          `json:"savingsId,omitempty"`
	Changes      map[string]any  `json:"changes,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	ResultStatus *int            `json:"resultStatusCode,omitempty"`
	Replayed     bool            `json:"replayed,omitempty"`
}

type PipelineDeps struct {
	Store    CommandStore
	Handlers *HandlerRegistry
	Policy   ApprovalPolicy
	Sampler  sampling.Service
	Logger   *slog.Logger
	Now      func() time.Time
}

// Pipeline turns one inbound change request into a durably recorded,
// idempotent, optionally maker-checker gated state mutation.
type Pipeline struct {
	store    CommandStore
	handlers *HandlerRegistry
	policy   ApprovalPolicy
	sampler  sampling.Service
	logger   *slog.Logger
	now      func() time.Time
}

func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	policy := deps.Policy
	if policy == nil {
		policy = StaticApprovalPolicy{}
	}

	sampler := deps.Sampler
	if sampler == nil {
		sampler = sampling.Noop{}
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Pipeline{
		store:    deps.Store,
		handlers: deps.Handlers,
		policy:   policy,
		sampler:  sampler,
		logger:   logger,
		now:      now,
	}
}

// Submit records and dispatches one command.
//
// The idempotency check runs before any side-effecting work: a stored
// record with the same key answers the call with its recorded result
// and never re-invokes the handler. A losing racer on the unique key
// constraint observes the winner's stored result the same way.
func (p *Pipeline) Submit(ctx context.Context, w domain.CommandWrapper, maker string) (Response, error) {
	if err := validateWrapper(w); err != nil {
		return Response{}, err
	}

	if w.IdempotencyKey == "" {
		if key, ok := execution.IdempotencyKeyFrom(ctx); ok {
			w.IdempotencyKey = key
		}
	}

	if w.IdempotencyKey != "" {
		existing, err := p.store.FindByIdempotencyKey(ctx, w.ActionName, w.EntityName, w.IdempotencyKey)
		switch {
		case err == nil:
			metrics.IncIdempotentReplay()
			p.logger.Info("command replayed from stored result",
				"command_id", existing.ID,
				"task", w.TaskPermission(),
				"idempotency_key", w.IdempotencyKey,
			)
			return recordResponse(existing, true), nil
		case errors.Is(err, domain.ErrCommandNotFound):
			// first submission for this key
		default:
			return Response{}, fmt.Errorf("idempotency lookup: %w", err)
		}
	}

	requiresApproval, err := p.policy.RequiresApproval(ctx, w.ActionName, w.EntityName)
	if err != nil {
		return Response{}, fmt.Errorf("approval policy: %w", err)
	}

	cmd := domain.NewCommandSource(w, maker, p.now())

	if err := p.store.Insert(ctx, cmd); err != nil {
		if errors.Is(err, domain.ErrIdempotencyKeyConflict) {
			return p.replayWinner(ctx, w)
		}
		return Response{}, fmt.Errorf("persist command: %w", err)
	}

	if requiresApproval {
		metrics.IncCommandStatus(domain.StatusAwaitingApproval.String())
		p.logger.Info("command awaiting approval",
			"command_id", cmd.ID,
			"task", cmd.TaskPermission(),
			"maker", maker,
		)
		return recordResponse(cmd, false), nil
	}

	res, dispatchErr := p.dispatch(ctx, cmd.Wrapper())
	if dispatchErr != nil {
		p.recordFailure(ctx, cmd, dispatchErr)
		return Response{CommandID: cmd.ID, Status: cmd.Status.String()}, dispatchErr
	}

	return p.recordSuccess(ctx, cmd, res)
}

// Approve invokes the deferred handler of an AWAITING_APPROVAL record
// and moves it to its terminal state. Checker identity and timestamp
// are written atomically with the status.
func (p *Pipeline) Approve(ctx context.Context, commandID uuid.UUID, checker string) (Response, error) {
	cmd, err := p.load(ctx, commandID)
	if err != nil {
		return Response{}, err
	}

	if cmd.Status != domain.StatusAwaitingApproval {
		return Response{}, &domain.StateTransitionError{
			Entity: "commandSource",
			From:   cmd.Status.String(),
			To:     domain.StatusProcessed.String(),
		}
	}

	res, dispatchErr := p.dispatch(ctx, cmd.Wrapper())
	if dispatchErr != nil {
		info := errorhandling.Translate(dispatchErr)
		body, _ := json.Marshal(info)
		if err := cmd.MarkChecked(checker, p.now(), domain.StatusRejected, body, info.StatusCode); err != nil {
			return Response{}, err
		}
		p.persistOutcome(ctx, cmd)
		metrics.IncCommandStatus(domain.StatusRejected.String())
		return Response{CommandID: cmd.ID, Status: cmd.Status.String()}, dispatchErr
	}

	cmd.UpdateReferences(res)
	body, err := json.Marshal(res)
	if err != nil {
		return Response{}, fmt.Errorf("serialize result: %w", err)
	}
	if err := cmd.MarkChecked(checker, p.now(), domain.StatusProcessed, body, 200); err != nil {
		return Response{}, err
	}
	p.persistOutcome(ctx, cmd)
	metrics.IncCommandStatus(domain.StatusProcessed.String())

	p.logger.Info("command approved",
		"command_id", cmd.ID,
		"task", cmd.TaskPermission(),
		"checker", checker,
	)

	return resultResponse(cmd, res), nil
}

// Reject moves an AWAITING_APPROVAL record to REJECTED without
// invoking the deferred handler.
func (p *Pipeline) Reject(ctx context.Context, commandID uuid.UUID, checker string) (Response, error) {
	cmd, err := p.load(ctx, commandID)
	if err != nil {
		return Response{}, err
	}

	if cmd.Status != domain.StatusAwaitingApproval {
		return Response{}, &domain.StateTransitionError{
			Entity: "commandSource",
			From:   cmd.Status.String(),
			To:     domain.StatusRejected.String(),
		}
	}

	if err := cmd.MarkChecked(checker, p.now(), domain.StatusRejected, nil, 0); err != nil {
		return Response{}, err
	}
	if err := p.store.Update(ctx, cmd); err != nil {
		return Response{}, fmt.Errorf("persist rejection: %w", err)
	}
	metrics.IncCommandStatus(domain.StatusRejected.String())

	p.logger.Info("command rejected",
		"command_id", cmd.ID,
		"task", cmd.TaskPermission(),
		"checker", checker,
	)

	return recordResponse(cmd, false), nil
}

// AuditEntry returns one audit record by id.
func (p *Pipeline) AuditEntry(ctx context.Context, commandID uuid.UUID) (*domain.CommandSource, error) {
	return p.load(ctx, commandID)
}

// PendingCommands lists records awaiting checker approval.
func (p *Pipeline) PendingCommands(ctx context.Context, limit int) ([]domain.CommandSource, error) {
	return p.store.ListByStatus(ctx, domain.StatusAwaitingApproval, limit)
}

// CommandsByStatus lists audit records in one lifecycle status, oldest
// first.
func (p *Pipeline) CommandsByStatus(ctx context.Context, status domain.CommandStatus, limit int) ([]domain.CommandSource, error) {
	return p.store.ListByStatus(ctx, status, limit)
}

func (p *Pipeline) load(ctx context.Context, commandID uuid.UUID) (*domain.CommandSource, error) {
	cmd, err := p.store.FindByID(ctx, commandID)
	if err != nil {
		if errors.Is(err, domain.ErrCommandNotFound) {
			return nil, &domain.NotFoundError{Entity: "commandSource", ID: commandID.String()}
		}
		return nil, fmt.Errorf("load command: %w", err)
	}
	return cmd, nil
}

func (p *Pipeline) dispatch(ctx context.Context, w domain.CommandWrapper) (domain.CommandResult, error) {
	handler, err := p.handlers.Resolve(w.ActionName, w.EntityName)
	if err != nil {
		return domain.CommandResult{}, err
	}

	var res domain.CommandResult
	err = p.sampler.Sample("command."+w.TaskPermission(), func() error {
		started := time.Now()
		var handleErr error
		res, handleErr = handler.Handle(ctx, w)
		metrics.ObserveDispatchDuration(time.Since(started))
		return handleErr
	})
	return res, err
}

func (p *Pipeline) recordSuccess(ctx context.Context, cmd *domain.CommandSource, res domain.CommandResult) (Response, error) {
	cmd.UpdateReferences(res)

	body, err := json.Marshal(res)
	if err != nil {
		return Response{}, fmt.Errorf("serialize result: %w", err)
	}
	if err := cmd.MarkProcessed(body, 200); err != nil {
		return Response{}, err
	}
	p.persistOutcome(ctx, cmd)
	metrics.IncCommandStatus(domain.StatusProcessed.String())

	p.logger.Info("command processed",
		"command_id", cmd.ID,
		"task", cmd.TaskPermission(),
		"maker", cmd.Maker,
	)

	return resultResponse(cmd, res), nil
}

// recordFailure keeps the failed command audit-visible: the triggering
// error is translated and stored as the record's result.
func (p *Pipeline) recordFailure(ctx context.Context, cmd *domain.CommandSource, dispatchErr error) {
	info := errorhandling.Translate(dispatchErr)
	body, _ := json.Marshal(info)

	if err := cmd.MarkRejected(body, info.StatusCode); err != nil {
		p.logger.Error("mark command rejected failed", "command_id", cmd.ID, "error", err)
		return
	}
	p.persistOutcome(ctx, cmd)
	metrics.IncCommandStatus(domain.StatusRejected.String())

	if errorhandling.IsServerError(info) {
		p.logger.Error("command dispatch failed",
			"command_id", cmd.ID,
			"task", cmd.TaskPermission(),
			"error", dispatchErr,
		)
	}
}

func (p *Pipeline) persistOutcome(ctx context.Context, cmd *domain.CommandSource) {
	if err := p.store.Update(ctx, cmd); err != nil {
		// the audit record exists; losing the outcome update is an
		// operator-facing fault, not a caller error
		p.logger.Error("persist command outcome failed", "command_id", cmd.ID, "error", err)
	}
}

// replayWinner answers a submission that lost the unique-key race with
// the stored result of the submission that won it.
func (p *Pipeline) replayWinner(ctx context.Context, w domain.CommandWrapper) (Response, error) {
	winner, err := p.store.FindByIdempotencyKey(ctx, w.ActionName, w.EntityName, w.IdempotencyKey)
	if err != nil {
		return Response{}, fmt.Errorf("load racing command: %w", err)
	}

	metrics.IncIdempotentReplay()
	return recordResponse(winner, true), nil
}

func validateWrapper(w domain.CommandWrapper) error {
	var errs []domain.ParameterError

	if strings.TrimSpace(w.ActionName) == "" {
		errs = append(errs, domain.ParameterError{
			Field:   "actionName",
			Code:    "validation.msg.command.actionName.cannot.be.blank",
			Message: "action name must be provided",
		})
	}
	if strings.TrimSpace(w.EntityName) == "" {
		errs = append(errs, domain.ParameterError{
			Field:   "entityName",
			Code:    "validation.msg.command.entityName.cannot.be.blank",
			Message: "entity name must be provided",
		})
	}
	if len(w.JSON) > domain.MaxCommandPayloadBytes {
		errs = append(errs, domain.ParameterError{
			Field:   "json",
			Code:    "validation.msg.command.json.exceeds.max.length",
			Message: "command payload exceeds the maximum allowed size",
		})
	}
	if len(w.JSON) > 0 && !json.Valid(w.JSON) {
		errs = append(errs, domain.ParameterError{
			Field:   "json",
			Code:    "validation.msg.command.json.invalid",
			Message: "command payload is not valid JSON",
		})
	}

	if len(errs) > 0 {
		return &domain.ValidationError{Errors: errs}
	}
	return nil
}

func recordResponse(cmd *domain.CommandSource, replayed bool) Response {
	return Response{
		CommandID:    cmd.ID,
		Status:       cmd.Status.String(),
		ResourceID:   cmd.ResourceID,
		OfficeID:     cmd.OfficeID,
		ClientID:     cmd.ClientID,
		GroupID:      cmd.GroupID,
		LoanID:       cmd.LoanID,
		SavingsID:    cmd.SavingsID,
		Result:       cmd.Result,
		ResultStatus: cmd.ResultStatus,
		Replayed:     replayed,
	}
}

func resultResponse(cmd *domain.CommandSource, res domain.CommandResult) Response {
	out := recordResponse(cmd, false)
	out.Changes = res.Changes
	return out
}
