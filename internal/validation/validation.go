// SPDX-License-Identifier: Apache-2.0

package validation

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/fincore/backoffice/internal/domain"
	validatorv10 "github.com/go-playground/validator/v10"
)

// SubmitCommandRequest is the wire shape of a command submission.
type SubmitCommandRequest struct {
	ActionName     string          `json:"actionName" validate:"required"`
	EntityName     string          `json:"entityName" validate:"required"`
	ResourceID     *int64          `json:"resourceId,omitempty" validate:"omitempty,gt=0"`
	SubResourceID  *int64          `json:"subResourceId,omitempty" validate:"omitempty,gt=0"`
	OfficeID       *int64          `json:"officeId,omitempty" validate:"omitempty,gt=0"`
	GroupID        *int64          `json:"groupId,omitempty" validate:"omitempty,gt=0"`
	ClientID       *int64          `json:"clientId,omitempty" validate:"omitempty,gt=0"`
	LoanID         *int64          `json:"loanId,omitempty" validate:"omitempty,gt=0"`
	SavingsID      *int64          `json:"savingsId,omitempty" validate:"omitempty,gt=0"`
	ProductID      *int64          `json:"productId,omitempty" validate:"omitempty,gt=0"`
	Href           string          `json:"href,omitempty"`
	JSON           json.RawMessage `json:"json,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
}

// New returns the configured request validator. Shared by the router
// and reused across requests; validator instances cache struct
// metadata. Field errors report the json tag name, matching what the
// caller actually sent.
func New() *validatorv10.Validate {
	v := validatorv10.New(validatorv10.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Bind decodes one JSON object from the request body into out and runs
// struct validation. Unknown fields and trailing content are rejected.
// All failures surface as *domain.ValidationError so the error
// translator renders them uniformly.
func Bind(r *http.Request, out any, v *validatorv10.Validate) error {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return bodyError("request body is required")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return bodyError("request body is required")
		}
		return bodyError(err.Error())
	}

	// Ensure there is only one JSON object.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return bodyError("request body must contain exactly one JSON object")
	}

	if err := v.Struct(out); err != nil {
		return toValidationError(err)
	}

	return nil
}

func bodyError(message string) *domain.ValidationError {
	return &domain.ValidationError{Errors: []domain.ParameterError{{
		Field:   "body",
		Code:    "validation.msg.invalid.request.body",
		Message: message,
	}}}
}

func toValidationError(err error) error {
	var fieldErrs validatorv10.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return bodyError(err.Error())
	}

	params := make([]domain.ParameterError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := fe.Field()
		params = append(params, domain.ParameterError{
			Field:   field,
			Code:    "validation.msg." + field + "." + fe.Tag(),
			Message: fe.Error(),
		})
	}

	return &domain.ValidationError{Errors: params}
}
