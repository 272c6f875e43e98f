// SPDX-License-Identifier: Apache-2.0

package errorhandling

import (
	"context"
	"errors"

	"github.com/fincore/backoffice/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorInfo is the stable triple returned to API and batch consumers.
type ErrorInfo struct {
	StatusCode int    `json:"statusCode"`
	ErrorCode  int    `json:"errorCode"`
	Message    string `json:"message"`
}

// Application error codes. These are relied upon by batch consumers
// and must not change.
const (
	CodeNotFound             = 1001
	CodeUnsupportedParameter = 2001
	CodeValidation           = 2002
	CodeDataIntegrity        = 3001
	CodeStateTransition      = 3002
	CodePrecondition         = 3003
	CodeInfrastructure       = 4001
	CodeInternal             = 9999
)

// Translate classifies any error into a fixed (statusCode, errorCode)
// pair. It is total: unrecognized errors fall through to the internal
// classification rather than propagating, and a nil error translates
// to the internal kind as well (callers should not translate nil).
//
// Messages are fixed per kind, except the infrastructure and internal
// kinds which echo the original message for diagnosability.
func Translate(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{StatusCode: 500, ErrorCode: CodeInternal, Message: "unknown error"}
	}

	var notFound *domain.NotFoundError
	if errors.As(err, &notFound) {
		return ErrorInfo{StatusCode: 404, ErrorCode: CodeNotFound, Message: "the requested resource is not available"}
	}

	var unsupported *domain.UnsupportedParameterError
	if errors.As(err, &unsupported) {
		return ErrorInfo{StatusCode: 400, ErrorCode: CodeUnsupportedParameter, Message: "the request contains unsupported parameters"}
	}

	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		return ErrorInfo{StatusCode: 400, ErrorCode: CodeValidation, Message: "validation errors exist"}
	}

	var integrity *domain.DataIntegrityError
	if errors.As(err, &integrity) {
		return ErrorInfo{StatusCode: 403, ErrorCode: CodeDataIntegrity, Message: "the request would breach data integrity"}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 && pgErr.Code[:2] == "23" {
		// integrity constraint violation class
		return ErrorInfo{StatusCode: 403, ErrorCode: CodeDataIntegrity, Message: "the request would breach data integrity"}
	}

	var transition *domain.StateTransitionError
	if errors.As(err, &transition) {
		return ErrorInfo{StatusCode: 403, ErrorCode: CodeStateTransition, Message: "the requested state transition is not allowed"}
	}

	var precondition *domain.PreconditionError
	if errors.As(err, &precondition) {
		return ErrorInfo{StatusCode: 403, ErrorCode: CodePrecondition, Message: "a required related resource or condition is missing"}
	}

	var infra *domain.InfrastructureError
	if errors.As(err, &infra) {
		return ErrorInfo{StatusCode: 400, ErrorCode: CodeInfrastructure, Message: err.Error()}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorInfo{StatusCode: 400, ErrorCode: CodeInfrastructure, Message: err.Error()}
	}

	var rule *domain.RuleViolationError
	if errors.As(err, &rule) {
		return ErrorInfo{StatusCode: 500, ErrorCode: CodeInternal, Message: err.Error()}
	}

	return ErrorInfo{StatusCode: 500, ErrorCode: CodeInternal, Message: err.Error()}
}

// IsServerError reports whether the translated error should be logged
// at error severity. The 4xx kinds are expected caller errors; the
// infrastructure and internal kinds are operator-facing.
func IsServerError(info ErrorInfo) bool {
	return info.StatusCode >= 500 || info.ErrorCode == CodeInfrastructure
}
