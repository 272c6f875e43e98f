// SPDX-License-Identifier: Apache-2.0

package validation

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fincore/backoffice/internal/domain"
)

func bind(t *testing.T, body string) error {
	t.Helper()
	r := httptest.NewRequest("POST", "/commands", strings.NewReader(body))
	var req SubmitCommandRequest
	return Bind(r, &req, New())
}

func TestBindValidRequest(t *testing.T) {
	body := `{"actionName":"CREATE","entityName":"CLIENT","officeId":1,"json":"{\"firstname\":\"Ada\"}"}`
	r := httptest.NewRequest("POST", "/commands", strings.NewReader(body))

	var req SubmitCommandRequest
	if err := Bind(r, &req, New()); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if req.ActionName != "CREATE" || req.EntityName != "CLIENT" {
		t.Fatalf("unexpected decode: %+v", req)
	}
	if req.OfficeID == nil || *req.OfficeID != 1 {
		t.Fatalf("officeId not decoded: %+v", req.OfficeID)
	}
}

func TestBindMissingRequiredFields(t *testing.T) {
	err := bind(t, `{"officeId":1}`)

	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if len(verr.Errors) != 2 {
		t.Fatalf("got %d parameter errors, want 2: %+v", len(verr.Errors), verr.Errors)
	}

	fields := map[string]bool{}
	for _, pe := range verr.Errors {
		fields[pe.Field] = true
	}
	if !fields["actionName"] || !fields["entityName"] {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestBindRejectsUnknownFields(t *testing.T) {
	err := bind(t, `{"actionName":"CREATE","entityName":"CLIENT","bogus":true}`)

	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
}

func TestBindRejectsTrailingContent(t *testing.T) {
	err := bind(t, `{"actionName":"CREATE","entityName":"CLIENT"}{"again":true}`)

	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
}

func TestBindRejectsEmptyBody(t *testing.T) {
	err := bind(t, "")

	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
}

func TestBindRejectsNonPositiveIDs(t *testing.T) {
	err := bind(t, `{"actionName":"CREATE","entityName":"CLIENT","loanId":0}`)

	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if verr.Errors[0].Field != "loanId" {
		t.Fatalf("field = %q, want loanId", verr.Errors[0].Field)
	}
}
