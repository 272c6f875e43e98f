// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CommandStatus is the persisted approval status of a command source.
// Transitions are one-directional: AWAITING_APPROVAL is the only
// non-terminal state.
type CommandStatus int

const (
	StatusProcessed        CommandStatus = 1
	StatusAwaitingApproval CommandStatus = 2
	StatusRejected         CommandStatus = 3
)

func (s CommandStatus) String() string {
	switch s {
	case StatusProcessed:
		return "PROCESSED"
	case StatusAwaitingApproval:
		return "AWAITING_APPROVAL"
	case StatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

func (s CommandStatus) Terminal() bool {
	return s == StatusProcessed || s == StatusRejected
}

// ParseCommandStatus maps the wire name of a status back to its value.
func ParseCommandStatus(raw string) (CommandStatus, bool) {
	switch raw {
	case "PROCESSED":
		return StatusProcessed, true
	case "AWAITING_APPROVAL":
		return StatusAwaitingApproval, true
	case "REJECTED":
		return StatusRejected, true
	default:
		return 0, false
	}
}

// MaxCommandPayloadBytes bounds the inbound JSON payload size.
const MaxCommandPayloadBytes = 64 * 1024

// CommandWrapper is the structured submission of one state change:
// what to do (action+entity), against which resource, with what body.
type CommandWrapper struct {
	ActionName     string          `json:"actionName"`
	EntityName     string          `json:"entityName"`
	ResourceID     *int64          `json:"resourceId,omitempty"`
	SubResourceID  *int64          `json:"subResourceId,omitempty"`
	OfficeID       *int64          `json:"officeId,omitempty"`
	GroupID        *int64          `json:"groupId,omitempty"`
	ClientID       *int64          `json:"clientId,omitempty"`
	LoanID         *int64          `json:"loanId,omitempty"`
	SavingsID      *int64          `json:"savingsId,omitempty"`
	ProductID      *int64          `json:"productId,omitempty"`
	Href           string          `json:"href,omitempty"`
	JSON           json.RawMessage `json:"json,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
}

// TaskPermission is the stable handler/permission key for the wrapper,
// e.g. "CREATE_NOTE".
func (w CommandWrapper) TaskPermission() string {
	return w.ActionName + "_" + w.EntityName
}

// CommandResult is what a business handler returns after executing a
// validated command. The reference ids are back-filled onto the audit
// record so audit queries can resolve by any dimension.
type CommandResult struct {
	ResourceID         *int64         `json:"resourceId,omitempty"`
	SubResourceID      *int64         `json:"subResourceId,omitempty"`
	OfficeID           *int64         `json:"officeId,omitempty"`
	GroupID            *int64         `json:"groupId,omitempty"`
	ClientID           *int64         `json:"clientId,omitempty"`
	LoanID             *int64         `json:"loanId,omitempty"`
	SavingsID          *int64         `json:"savingsId,omitempty"`
	ProductID          *int64         `json:"productId,omitempty"`
	ResourceExternalID string         `json:"resourceExternalId,omitempty"`
	Changes            map[string]any `json:"changes,omitempty"`
}

// CommandSource is the durable audit record of one submitted change.
// Records are never deleted.
type CommandSource struct {
	ID             uuid.UUID
	ActionName     string
	EntityName     string
	ResourceID     *int64
	SubResourceID  *int64
	OfficeID       *int64
	GroupID        *int64
	ClientID       *int64
	LoanID         *int64
	SavingsID      *int64
	ProductID      *int64
	Href           string
	Payload        json.RawMessage
	Maker          string
	MadeOnDate     time.Time
	Checker        *string
	CheckedOnDate  *time.Time
	Status         CommandStatus
	IdempotencyKey string
	Result         json.RawMessage
	ResultStatus   *int
}

// NewCommandSource builds a pending record from a submission. madeOn is
// set once here and never mutated afterwards.
func NewCommandSource(w CommandWrapper, maker string, madeOn time.Time) *CommandSource {
	return &CommandSource{
		ID:             uuid.New(),
		ActionName:     w.ActionName,
		EntityName:     w.EntityName,
		ResourceID:     w.ResourceID,
		SubResourceID:  w.SubResourceID,
		OfficeID:       w.OfficeID,
		GroupID:        w.GroupID,
		ClientID:       w.ClientID,
		LoanID:         w.LoanID,
		SavingsID:      w.SavingsID,
		ProductID:      w.ProductID,
		Href:           w.Href,
		Payload:        w.JSON,
		Maker:          maker,
		MadeOnDate:     madeOn,
		Status:         StatusAwaitingApproval,
		IdempotencyKey: w.IdempotencyKey,
	}
}

// Wrapper rebuilds the submission input for deferred (maker-checker)
// dispatch of an already persisted record.
func (c *CommandSource) Wrapper() CommandWrapper {
	return CommandWrapper{
		ActionName:     c.ActionName,
		EntityName:     c.EntityName,
		ResourceID:     c.ResourceID,
		SubResourceID:  c.SubResourceID,
		OfficeID:       c.OfficeID,
		GroupID:        c.GroupID,
		ClientID:       c.ClientID,
		LoanID:         c.LoanID,
		SavingsID:      c.SavingsID,
		ProductID:      c.ProductID,
		Href:           c.Href,
		JSON:           c.Payload,
		IdempotencyKey: c.IdempotencyKey,
	}
}

func (c *CommandSource) TaskPermission() string {
	return c.ActionName + "_" + c.EntityName
}

// MarkProcessed moves a pending record to its PROCESSED terminal state.
func (c *CommandSource) MarkProcessed(result json.RawMessage, resultStatus int) error {
	if c.Status.Terminal() {
		return &StateTransitionError{
			Entity: "commandSource",
			From:   c.Status.String(),
			To:     StatusProcessed.String(),
		}
	}
	c.Status = StatusProcessed
	c.Result = result
	c.ResultStatus = &resultStatus
	return nil
}

// MarkRejected moves a pending record to its REJECTED terminal state.
func (c *CommandSource) MarkRejected(result json.RawMessage, resultStatus int) error {
	if c.Status.Terminal() {
		return &StateTransitionError{
			Entity: "commandSource",
			From:   c.Status.String(),
			To:     StatusRejected.String(),
		}
	}
	c.Status = StatusRejected
	c.Result = result
	c.ResultStatus = &resultStatus
	return nil
}

// MarkChecked records the checker decision. Checker identity and
// timestamp are set exactly once, atomically with the terminal status.
func (c *CommandSource) MarkChecked(checker string, at time.Time, status CommandStatus, result json.RawMessage, resultStatus int) error {
	if c.Status != StatusAwaitingApproval {
		return &StateTransitionError{
			Entity: "commandSource",
			From:   c.Status.String(),
			To:     status.String(),
		}
	}
	if !status.Terminal() {
		return &StateTransitionError{
			Entity: "commandSource",
			From:   c.Status.String(),
			To:     status.String(),
		}
	}

	c.Checker = &checker
	c.CheckedOnDate = &at
	c.Status = status
	c.Result = result
	c.ResultStatus = &resultStatus
	return nil
}

// UpdateReferences back-fills cross-reference ids from a handler
// result onto the audit record.
func (c *CommandSource) UpdateReferences(res CommandResult) {
	if res.ResourceID != nil {
		c.ResourceID = res.ResourceID
	}
	if res.SubResourceID != nil {
		c.SubResourceID = res.SubResourceID
	}
	if res.OfficeID != nil {
		c.OfficeID = res.OfficeID
	}
	if res.GroupID != nil {
		c.GroupID = res.GroupID
	}
	if res.ClientID != nil {
		c.ClientID = res.ClientID
	}
	if res.LoanID != nil {
		c.LoanID = res.LoanID
	}
	if res.SavingsID != nil {
		c.SavingsID = res.SavingsID
	}
	if res.ProductID != nil {
		c.ProductID = res.ProductID
	}
}
