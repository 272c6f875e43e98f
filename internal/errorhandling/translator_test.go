// SPDX-License-Identifier: Apache-2.0

package errorhandling

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/fincore/backoffice/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestTranslateKinds(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   int
	}{
		{
			name:       "not found",
			err:        &domain.NotFoundError{Entity: "loan", ID: "9"},
			wantStatus: 404,
			wantCode:   1001,
		},
		{
			name:       "unsupported parameter",
			err:        &domain.UnsupportedParameterError{Parameters: []string{"frobnicate"}},
			wantStatus: 400,
			wantCode:   2001,
		},
		{
			name:       "validation",
			err:        &domain.ValidationError{Errors: []domain.ParameterError{{Field: "name"}}},
			wantStatus: 400,
			wantCode:   2002,
		},
		{
			name:       "data integrity",
			err:        &domain.DataIntegrityError{Constraint: "uq_key", Message: "duplicate"},
			wantStatus: 403,
			wantCode:   3001,
		},
		{
			name:       "postgres unique violation",
			err:        &pgconn.PgError{Code: "23505", ConstraintName: "uq_command_sources_idempotency"},
			wantStatus: 403,
			wantCode:   3001,
		},
		{
			name:       "state transition subtype",
			err:        &domain.StateTransitionError{Entity: "commandSource", From: "PROCESSED", To: "REJECTED"},
			wantStatus: 403,
			wantCode:   3002,
		},
		{
			name:       "precondition subtype",
			err:        &domain.PreconditionError{Message: "linked account required"},
			wantStatus: 403,
			wantCode:   3003,
		},
		{
			name:       "infrastructure",
			err:        &domain.InfrastructureError{Err: errors.New("connection reset")},
			wantStatus: 400,
			wantCode:   4001,
		},
		{
			name:       "context deadline as infrastructure",
			err:        fmt.Errorf("query: %w", context.DeadlineExceeded),
			wantStatus: 400,
			wantCode:   4001,
		},
		{
			name:       "generic rule violation",
			err:        &domain.RuleViolationError{Code: "error.msg.loan.overpaid", Message: "loan overpaid"},
			wantStatus: 500,
			wantCode:   9999,
		},
		{
			name:       "unclassified",
			err:        errors.New("boom"),
			wantStatus: 500,
			wantCode:   9999,
		},
		{
			name:       "wrapped domain error",
			err:        fmt.Errorf("submit: %w", &domain.NotFoundError{Entity: "client", ID: "1"}),
			wantStatus: 404,
			wantCode:   1001,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := Translate(tc.err)
			if info.StatusCode != tc.wantStatus {
				t.Fatalf("expected status %d got %d", tc.wantStatus, info.StatusCode)
			}
			if info.ErrorCode != tc.wantCode {
				t.Fatalf("expected code %d got %d", tc.wantCode, info.ErrorCode)
			}
			if info.Message == "" {
				t.Fatal("expected non-empty message")
			}
		})
	}
}

func TestTranslateEchoesInternalMessages(t *testing.T) {
	info := Translate(errors.New("very specific failure"))
	if info.Message != "very specific failure" {
		t.Fatalf("expected original message echoed, got %q", info.Message)
	}

	info = Translate(&domain.InfrastructureError{Err: errors.New("tx aborted")})
	if info.Message != "infrastructure failure: tx aborted" {
		t.Fatalf("expected original message echoed, got %q", info.Message)
	}

	// expected caller errors carry fixed messages, not the raw error text
	info = Translate(&domain.NotFoundError{Entity: "loan", ID: "9"})
	if info.Message != "the requested resource is not available" {
		t.Fatalf("expected fixed message, got %q", info.Message)
	}
}

func TestTranslateNilNeverPanics(t *testing.T) {
	info := Translate(nil)
	if info.StatusCode != 500 || info.ErrorCode != 9999 {
		t.Fatalf("expected internal classification, got %+v", info)
	}
}

func TestIsServerError(t *testing.T) {
	if IsServerError(Translate(&domain.ValidationError{})) {
		t.Fatal("validation must not be a server error")
	}
	if !IsServerError(Translate(errors.New("boom"))) {
		t.Fatal("unclassified must be a server error")
	}
	if !IsServerError(Translate(&domain.InfrastructureError{Err: errors.New("down")})) {
		t.Fatal("infrastructure must be a server error")
	}
}
