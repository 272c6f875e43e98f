// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrCommandNotFound = errors.New("command not found")
var ErrIdempotencyKeyConflict = errors.New("idempotency key already recorded")
var ErrStepNotRegistered = errors.New("business step not registered")
var ErrDuplicateStepName = errors.New("business step name already registered")

// ParameterError describes one invalid request parameter.
type ParameterError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError reports malformed or missing request fields. It is a
// caller error, recoverable by fixing the request.
type ValidationError struct {
	Errors []ParameterError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation errors exist"
	}
	fields := make([]string, 0, len(e.Errors))
	for _, pe := range e.Errors {
		fields = append(fields, pe.Field)
	}
	return "validation errors exist: " + strings.Join(fields, ", ")
}

// NotFoundError reports that a referenced entity id does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with identifier %s does not exist", e.Entity, e.ID)
}

// UnsupportedParameterError reports a request parameter or command the
// platform does not support.
type UnsupportedParameterError struct {
	Parameters []string
}

func (e *UnsupportedParameterError) Error() string {
	return "unsupported parameters: " + strings.Join(e.Parameters, ", ")
}

// RuleViolationError is a generic business-invariant breach.
type RuleViolationError struct {
	Code    string
	Message string
}

func (e *RuleViolationError) Error() string {
	return e.Message
}

// StateTransitionError is the domain-rule subtype raised on a
// disallowed lifecycle transition (e.g. approving an already
// processed command).
type StateTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("%s cannot transition from %s to %s", e.Entity, e.From, e.To)
}

// PreconditionError is the domain-rule subtype raised when a required
// related resource or condition is absent.
type PreconditionError struct {
	Message string
}

func (e *PreconditionError) Error() string {
	return e.Message
}

// DataIntegrityError reports a storage constraint breach, e.g. a
// duplicate unique key.
type DataIntegrityError struct {
	Constraint string
	Message    string
}

func (e *DataIntegrityError) Error() string {
	return e.Message
}

// InfrastructureError reports a transaction or connection failure.
type InfrastructureError struct {
	Err error
}

func (e *InfrastructureError) Error() string {
	return "infrastructure failure: " + e.Err.Error()
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

// StepExecutionError attributes a failed batch run to the specific
// business step that raised, for operator triage.
type StepExecutionError struct {
	StepName string
	Order    int64
	Err      error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("business step %q (order %d) failed: %v", e.StepName, e.Order, e.Err)
}

func (e *StepExecutionError) Unwrap() error {
	return e.Err
}
