// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fincore/backoffice/internal/commands"
	"github.com/fincore/backoffice/internal/domain"
	"github.com/fincore/backoffice/internal/execution"
	"github.com/google/uuid"
)

type fakeCommandService struct {
	submitResp commands.Response
	submitErr  error

	lastWrapper domain.CommandWrapper
	lastMaker   string
	lastChecker string
	lastCtxKey  string

	audit   *domain.CommandSource
	pending []domain.CommandSource
}

func (f *fakeCommandService) Submit(ctx context.Context, w domain.CommandWrapper, maker string) (commands.Response, error) {
	f.lastWrapper = w
	f.lastMaker = maker
	if key, ok := execution.IdempotencyKeyFrom(ctx); ok {
		f.lastCtxKey = key
	}
	return f.submitResp, f.submitErr
}

func (f *fakeCommandService) Approve(ctx context.Context, commandID uuid.UUID, checker string) (commands.Response, error) {
	f.lastChecker = checker
	return commands.Response{CommandID: commandID, Status: "PROCESSED"}, nil
}

func (f *fakeCommandService) Reject(ctx context.Context, commandID uuid.UUID, checker string) (commands.Response, error) {
	f.lastChecker = checker
	return commands.Response{CommandID: commandID, Status: "REJECTED"}, nil
}

func (f *fakeCommandService) AuditEntry(ctx context.Context, commandID uuid.UUID) (*domain.CommandSource, error) {
	if f.audit == nil {
		return nil, &domain.NotFoundError{Entity: "commandSource", ID: commandID.String()}
	}
	return f.audit, nil
}

func (f *fakeCommandService) PendingCommands(ctx context.Context, limit int) ([]domain.CommandSource, error) {
	return f.pending, nil
}

func (f *fakeCommandService) CommandsByStatus(ctx context.Context, status domain.CommandStatus, limit int) ([]domain.CommandSource, error) {
	out := make([]domain.CommandSource, 0, len(f.pending))
	for _, cmd := range f.pending {
		if cmd.Status == status {
			out = append(out, cmd)
		}
	}
	return out, nil
}

type fakeStepAdmin struct {
	configs  []domain.StepConfig
	replaced []domain.StepConfig
}

func (f *fakeStepAdmin) ListEnabledSteps(ctx context.Context, jobName string) ([]domain.StepConfig, error) {
	return f.configs, nil
}

func (f *fakeStepAdmin) ReplaceSteps(ctx context.Context, jobName string, configs []domain.StepConfig) error {
	f.replaced = configs
	return nil
}

type fakeEventStream struct {
	events    []domain.BusinessEvent
	lastAfter int64
	lastLimit int
}

func (f *fakeEventStream) ListAfter(ctx context.Context, afterSeq int64, limit int) ([]domain.BusinessEvent, error) {
	f.lastAfter = afterSeq
	f.lastLimit = limit
	out := make([]domain.BusinessEvent, 0, len(f.events))
	for _, ev := range f.events {
		if ev.Seq > afterSeq {
			out = append(out, ev)
		}
	}
	return out, nil
}

type fakePermissionAdmin struct {
	action  string
	entity  string
	enabled bool
	calls   int
}

func (f *fakePermissionAdmin) SetApproval(ctx context.Context, actionName, entityName string, enabled bool) error {
	f.action = actionName
	f.entity = entityName
	f.enabled = enabled
	f.calls++
	return nil
}

func newTestRouter(svc *fakeCommandService, admin *fakeStepAdmin) http.Handler {
	return NewRouter(Deps{
		Commands:   svc,
		StepAdmin:  admin,
		AdminToken: "secret-admin-token",
	})
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(&fakeCommandService{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestSubmitCommand(t *testing.T) {
	commandID := uuid.New()
	svc := &fakeCommandService{
		submitResp: commands.Response{CommandID: commandID, Status: "PROCESSED"},
	}
	router := newTestRouter(svc, nil)

	body := `{"actionName":"CREATE","entityName":"CLIENT","officeId":1,"json":"{}"}`
	req := httptest.NewRequest("POST", "/commands", strings.NewReader(body))
	req.Header.Set(headerIdempotencyKey, "key-42")
	req.Header.Set(headerUsername, "maker1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if svc.lastWrapper.TaskPermission() != "CREATE_CLIENT" {
		t.Fatalf("task = %q, want CREATE_CLIENT", svc.lastWrapper.TaskPermission())
	}
	if svc.lastMaker != "maker1" {
		t.Fatalf("maker = %q, want maker1", svc.lastMaker)
	}
	if svc.lastCtxKey != "key-42" {
		t.Fatalf("idempotency key = %q, want key-42", svc.lastCtxKey)
	}

	var resp commands.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CommandID != commandID {
		t.Fatalf("commandId = %s, want %s", resp.CommandID, commandID)
	}
}

func TestSubmitCommandAwaitingApprovalReturns202(t *testing.T) {
	svc := &fakeCommandService{
		submitResp: commands.Response{CommandID: uuid.New(), Status: "AWAITING_APPROVAL"},
	}
	router := newTestRouter(svc, nil)

	body := `{"actionName":"DELETE","entityName":"LOAN","loanId":7}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/commands", strings.NewReader(body)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
}

func TestSubmitCommandValidationFailure(t *testing.T) {
	router := newTestRouter(&fakeCommandService{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/commands", strings.NewReader(`{"officeId":1}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var info struct {
		ErrorCode int `json:"errorCode"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if info.ErrorCode != 2002 {
		t.Fatalf("errorCode = %d, want 2002", info.ErrorCode)
	}
}

func TestSubmitCommandDefaultsRequester(t *testing.T) {
	svc := &fakeCommandService{
		submitResp: commands.Response{CommandID: uuid.New(), Status: "PROCESSED"},
	}
	router := newTestRouter(svc, nil)

	body := `{"actionName":"CREATE","entityName":"CLIENT"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/commands", strings.NewReader(body)))

	if svc.lastMaker != "system" {
		t.Fatalf("maker = %q, want system", svc.lastMaker)
	}
}

func TestApproveCommand(t *testing.T) {
	svc := &fakeCommandService{}
	router := newTestRouter(svc, nil)

	commandID := uuid.New()
	req := httptest.NewRequest("POST", "/commands/"+commandID.String()+"/approve", nil)
	req.Header.Set(headerUsername, "checker1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if svc.lastChecker != "checker1" {
		t.Fatalf("checker = %q, want checker1", svc.lastChecker)
	}
}

func TestApproveCommandInvalidID(t *testing.T) {
	router := newTestRouter(&fakeCommandService{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/commands/not-a-uuid/approve", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetAuditEntry(t *testing.T) {
	commandID := uuid.New()
	svc := &fakeCommandService{
		audit: &domain.CommandSource{
			ID:         commandID,
			ActionName: "CREATE",
			EntityName: "CLIENT",
			Maker:      "maker1",
			MadeOnDate: time.Now(),
			Status:     domain.StatusProcessed,
		},
	}
	router := newTestRouter(svc, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/commands/"+commandID.String(), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp auditResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode audit response: %v", err)
	}
	if resp.Status != "PROCESSED" || resp.Maker != "maker1" {
		t.Fatalf("unexpected audit response: %+v", resp)
	}
}

func TestGetAuditEntryNotFound(t *testing.T) {
	router := newTestRouter(&fakeCommandService{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/commands/"+uuid.NewString(), nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var info struct {
		ErrorCode int `json:"errorCode"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if info.ErrorCode != 1001 {
		t.Fatalf("errorCode = %d, want 1001", info.ErrorCode)
	}
}

func TestListCommandsByStatus(t *testing.T) {
	svc := &fakeCommandService{
		pending: []domain.CommandSource{
			{ID: uuid.New(), ActionName: "CREATE", EntityName: "CLIENT", Status: domain.StatusProcessed},
			{ID: uuid.New(), ActionName: "DELETE", EntityName: "LOAN", Status: domain.StatusRejected},
		},
	}
	router := newTestRouter(svc, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/commands?status=REJECTED", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Commands []auditResponse `json:"commands"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Commands) != 1 || resp.Commands[0].Status != "REJECTED" {
		t.Fatalf("unexpected listing: %+v", resp.Commands)
	}
}

func TestListCommandsRejectsUnknownStatus(t *testing.T) {
	router := newTestRouter(&fakeCommandService{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/commands?status=BOGUS", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStepAdminRequiresToken(t *testing.T) {
	admin := &fakeStepAdmin{}
	router := newTestRouter(&fakeCommandService{}, admin)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/jobs/LOAN_CLOSE_OF_BUSINESS/steps", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestReplaceSteps(t *testing.T) {
	admin := &fakeStepAdmin{}
	router := newTestRouter(&fakeCommandService{}, admin)

	body := `{"steps":[{"stepName":"APPLY_CHARGE","order":1,"enabled":true},{"stepName":"ACCRUAL","order":2,"enabled":true}]}`
	req := httptest.NewRequest("PUT", "/jobs/LOAN_CLOSE_OF_BUSINESS/steps", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret-admin-token")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(admin.replaced) != 2 {
		t.Fatalf("replaced %d steps, want 2", len(admin.replaced))
	}
	if admin.replaced[0].JobName != "LOAN_CLOSE_OF_BUSINESS" {
		t.Fatalf("jobName = %q", admin.replaced[0].JobName)
	}
}

func TestEventTailRequiresToken(t *testing.T) {
	router := NewRouter(Deps{
		Commands:   &fakeCommandService{},
		Events:     &fakeEventStream{},
		AdminToken: "secret-admin-token",
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/events", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestEventTail(t *testing.T) {
	stream := &fakeEventStream{events: []domain.BusinessEvent{
		{ID: uuid.New(), Seq: 1, Type: "LoanApproved"},
		{ID: uuid.New(), Seq: 2, Type: "LoanDisbursed"},
		{ID: uuid.New(), Seq: 3, Type: "COB_ITEM_PROCESSED"},
	}}
	router := NewRouter(Deps{
		Commands:   &fakeCommandService{},
		Events:     stream,
		AdminToken: "secret-admin-token",
	})

	req := httptest.NewRequest("GET", "/events?after=1&limit=10", nil)
	req.Header.Set("Authorization", "Bearer secret-admin-token")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if stream.lastAfter != 1 || stream.lastLimit != 10 {
		t.Fatalf("after = %d limit = %d, want 1 and 10", stream.lastAfter, stream.lastLimit)
	}

	var resp struct {
		Events  []domain.BusinessEvent `json:"events"`
		LastSeq int64                  `json:"lastSeq"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(resp.Events))
	}
	if resp.LastSeq != 3 {
		t.Fatalf("lastSeq = %d, want 3", resp.LastSeq)
	}
}

func TestEventTailRejectsBadCursor(t *testing.T) {
	router := NewRouter(Deps{
		Commands:   &fakeCommandService{},
		Events:     &fakeEventStream{},
		AdminToken: "secret-admin-token",
	})

	req := httptest.NewRequest("GET", "/events?after=yesterday", nil)
	req.Header.Set("Authorization", "Bearer secret-admin-token")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSetMakerCheckerFlag(t *testing.T) {
	perms := &fakePermissionAdmin{}
	router := NewRouter(Deps{
		Commands:    &fakeCommandService{},
		Permissions: perms,
		AdminToken:  "secret-admin-token",
	})

	body := `{"actionName":"DELETE","entityName":"LOAN","enabled":true}`
	req := httptest.NewRequest("PUT", "/permissions", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret-admin-token")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if perms.calls != 1 || perms.action != "DELETE" || perms.entity != "LOAN" || !perms.enabled {
		t.Fatalf("unexpected upsert: %+v", perms)
	}
}

func TestSetMakerCheckerFlagValidation(t *testing.T) {
	perms := &fakePermissionAdmin{}
	router := NewRouter(Deps{
		Commands:    &fakeCommandService{},
		Permissions: perms,
		AdminToken:  "secret-admin-token",
	})

	req := httptest.NewRequest("PUT", "/permissions", strings.NewReader(`{"enabled":true}`))
	req.Header.Set("Authorization", "Bearer secret-admin-token")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	if perms.calls != 0 {
		t.Fatal("invalid request must not reach the repository")
	}
}

func TestReplaceStepsRejectsEmptySet(t *testing.T) {
	admin := &fakeStepAdmin{}
	router := newTestRouter(&fakeCommandService{}, admin)

	req := httptest.NewRequest("PUT", "/jobs/LOAN_CLOSE_OF_BUSINESS/steps", strings.NewReader(`{"steps":[]}`))
	req.Header.Set("Authorization", "Bearer secret-admin-token")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}
