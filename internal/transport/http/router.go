// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fincore/backoffice/internal/domain"
	"github.com/fincore/backoffice/internal/errorhandling"
	"github.com/fincore/backoffice/internal/execution"
	"github.com/fincore/backoffice/internal/metrics"
	"github.com/fincore/backoffice/internal/transport/middleware"
	"github.com/fincore/backoffice/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const headerIdempotencyKey = "Idempotency-Key"
const headerUsername = "X-Username"

type replaceStepsRequest struct {
	Steps []stepDescriptor `json:"steps" validate:"required,min=1,dive"`
}

type stepDescriptor struct {
	StepName string `json:"stepName" validate:"required"`
	Order    int64  `json:"order" validate:"required,gt=0"`
	Enabled  bool   `json:"enabled"`
}

type auditResponse struct {
	CommandID     uuid.UUID       `json:"commandId"`
	ActionName    string          `json:"actionName"`
	EntityName    string          `json:"entityName"`
	ResourceID    *int64          `json:"resourceId,omitempty"`
	OfficeID      *int64          `json:"officeId,omitempty"`
	ClientID      *int64          `json:"clientId,omitempty"`
	LoanID        *int64          `json:"loanId,omitempty"`
	SavingsID     *int64          `json:"savingsId,omitempty"`
	Payload       json.RawMessage `json:"commandAsJson,omitempty"`
	Maker         string          `json:"maker"`
	MadeOnDate    time.Time       `json:"madeOnDate"`
	Checker       *string         `json:"checker,omitempty"`
	CheckedOnDate *time.Time      `json:"checkedOnDate,omitempty"`
	Status        string          `json:"processingResult"`
	Result        json.RawMessage `json:"result,omitempty"`
	ResultStatus  *int            `json:"resultStatusCode,omitempty"`
}

type makerCheckerRequest struct {
	ActionName string `json:"actionName" validate:"required"`
	EntityName string `json:"entityName" validate:"required"`
	Enabled    bool   `json:"enabled"`
}

type Deps struct {
	Commands    CommandService
	StepAdmin   StepConfigAdmin
	Events      EventStream
	Permissions PermissionAdmin
	Health      HealthChecker
	Logger      *slog.Logger
	AdminToken  string
	Version     string
	Commit      string
	BuildDate   string
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	validate := validation.New()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(usernameMiddleware())
	r.Use(requestLoggingMiddleware(logger))

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("health check hit")
		if deps.Health != nil {
			if err := deps.Health.Check(r.Context()); err != nil {
				logger.Error("health check failed", "error", err)
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ---------------- METRICS ----------------

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// ---------------- VERSION ----------------

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	// ---------------- COMMANDS ----------------

	r.Post("/commands", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey)); key != "" {
			ctx = execution.WithIdempotencyKey(ctx, key)
		}

		var req validation.SubmitCommandRequest
		if err := validation.Bind(r, &req, validate); err != nil {
			writeError(w, err)
			return
		}

		resp, err := deps.Commands.Submit(ctx, domain.CommandWrapper{
			ActionName:     req.ActionName,
			EntityName:     req.EntityName,
			ResourceID:     req.ResourceID,
			SubResourceID:  req.SubResourceID,
			OfficeID:       req.OfficeID,
			GroupID:        req.GroupID,
			ClientID:       req.ClientID,
			LoanID:         req.LoanID,
			SavingsID:      req.SavingsID,
			ProductID:      req.ProductID,
			Href:           req.Href,
			JSON:           req.JSON,
			IdempotencyKey: req.IdempotencyKey,
		}, requester(r))
		if err != nil {
			writeError(w, err)
			return
		}

		status := http.StatusOK
		if resp.Status == domain.StatusAwaitingApproval.String() {
			status = http.StatusAccepted
		}
		writeJSON(w, status, resp)
	})

	r.Get("/commands", func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		var listing []domain.CommandSource
		var err error
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, ok := domain.ParseCommandStatus(raw)
			if !ok {
				http.Error(w, "invalid status", http.StatusBadRequest)
				return
			}
			listing, err = deps.Commands.CommandsByStatus(r.Context(), status, limit)
		} else {
			listing, err = deps.Commands.PendingCommands(r.Context(), limit)
		}
		if err != nil {
			writeError(w, err)
			return
		}

		out := make([]auditResponse, 0, len(listing))
		for i := range listing {
			out = append(out, toAuditResponse(&listing[i]))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"commands": out,
		})
	})

	r.Get("/commands/{id}", func(w http.ResponseWriter, r *http.Request) {
		commandID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid command ID", http.StatusBadRequest)
			return
		}

		cmd, err := deps.Commands.AuditEntry(r.Context(), commandID)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAuditResponse(cmd))
	})

	r.Post("/commands/{id}/approve", func(w http.ResponseWriter, r *http.Request) {
		commandID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid command ID", http.StatusBadRequest)
			return
		}

		resp, err := deps.Commands.Approve(r.Context(), commandID, requester(r))
		if err != nil {
			writeError(w, err)
			return
		}

		logger.Info("command approved via API", "command_id", commandID)
		writeJSON(w, http.StatusOK, resp)
	})

	r.Post("/commands/{id}/reject", func(w http.ResponseWriter, r *http.Request) {
		commandID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid command ID", http.StatusBadRequest)
			return
		}

		resp, err := deps.Commands.Reject(r.Context(), commandID, requester(r))
		if err != nil {
			writeError(w, err)
			return
		}

		logger.Info("command rejected via API", "command_id", commandID)
		writeJSON(w, http.StatusOK, resp)
	})

	// ---------------- EVENT STREAM (ADMIN) ----------------

	if deps.Events != nil {
		r.Route("/events", func(admin chi.Router) {
			admin.Use(middleware.AdminTokenAuth(deps.AdminToken, logger))

			admin.Get("/", func(w http.ResponseWriter, r *http.Request) {
				afterSeq := int64(0)
				if raw := strings.TrimSpace(r.URL.Query().Get("after")); raw != "" {
					parsed, err := strconv.ParseInt(raw, 10, 64)
					if err != nil || parsed < 0 {
						http.Error(w, "invalid after", http.StatusBadRequest)
						return
					}
					afterSeq = parsed
				}

				limit := 0
				if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
					parsed, err := strconv.Atoi(raw)
					if err != nil || parsed < 0 {
						http.Error(w, "invalid limit", http.StatusBadRequest)
						return
					}
					limit = parsed
				}

				events, err := deps.Events.ListAfter(r.Context(), afterSeq, limit)
				if err != nil {
					writeError(w, err)
					return
				}

				lastSeq := afterSeq
				if len(events) > 0 {
					lastSeq = events[len(events)-1].Seq
				}
				writeJSON(w, http.StatusOK, map[string]any{
					"events":  events,
					"lastSeq": lastSeq,
				})
			})
		})
	}

	// ---------------- MAKER-CHECKER PERMISSIONS (ADMIN) ----------------

	if deps.Permissions != nil {
		r.Route("/permissions", func(admin chi.Router) {
			admin.Use(middleware.AdminTokenAuth(deps.AdminToken, logger))

			admin.Put("/", func(w http.ResponseWriter, r *http.Request) {
				var req makerCheckerRequest
				if err := validation.Bind(r, &req, validate); err != nil {
					writeError(w, err)
					return
				}

				if err := deps.Permissions.SetApproval(r.Context(), req.ActionName, req.EntityName, req.Enabled); err != nil {
					writeError(w, err)
					return
				}

				logger.Info("maker-checker flag updated via API",
					"action", req.ActionName,
					"entity", req.EntityName,
					"enabled", req.Enabled,
				)
				writeJSON(w, http.StatusOK, req)
			})
		})
	}

	// ---------------- JOB STEP CONFIGURATION (ADMIN) ----------------

	if deps.StepAdmin != nil {
		r.Route("/jobs/{name}/steps", func(admin chi.Router) {
			admin.Use(middleware.AdminTokenAuth(deps.AdminToken, logger))

			admin.Get("/", func(w http.ResponseWriter, r *http.Request) {
				jobName := chi.URLParam(r, "name")

				configs, err := deps.StepAdmin.ListEnabledSteps(r.Context(), jobName)
				if err != nil {
					writeError(w, err)
					return
				}

				writeJSON(w, http.StatusOK, map[string]any{
					"jobName": jobName,
					"steps":   toStepDescriptors(configs),
				})
			})

			admin.Put("/", func(w http.ResponseWriter, r *http.Request) {
				jobName := chi.URLParam(r, "name")

				var req replaceStepsRequest
				if err := validation.Bind(r, &req, validate); err != nil {
					writeError(w, err)
					return
				}

				configs := make([]domain.StepConfig, 0, len(req.Steps))
				for _, step := range req.Steps {
					configs = append(configs, domain.StepConfig{
						JobName:  jobName,
						StepName: step.StepName,
						Order:    step.Order,
						Enabled:  step.Enabled,
					})
				}

				if err := deps.StepAdmin.ReplaceSteps(r.Context(), jobName, configs); err != nil {
					writeError(w, err)
					return
				}

				logger.Info("job step configuration replaced via API",
					"job", jobName,
					"steps", len(configs),
				)
				writeJSON(w, http.StatusOK, map[string]any{
					"jobName": jobName,
					"steps":   toStepDescriptors(configs),
				})
			})
		})
	}

	return r
}

// usernameMiddleware carries the caller identity header onto the
// request context for audit attribution and request logging.
func usernameMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if username := strings.TrimSpace(r.Header.Get(headerUsername)); username != "" {
				r = r.WithContext(execution.WithUsername(r.Context(), username))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requester(r *http.Request) string {
	if username, ok := execution.UsernameFrom(r.Context()); ok {
		return username
	}
	return "system"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders any pipeline error as the stable
// statusCode/errorCode/message triple.
func writeError(w http.ResponseWriter, err error) {
	info := errorhandling.Translate(err)
	writeJSON(w, info.StatusCode, info)
}

func toAuditResponse(cmd *domain.CommandSource) auditResponse {
	return auditResponse{
		CommandID:     cmd.ID,
		ActionName:    cmd.ActionName,
		EntityName:    cmd.EntityName,
		ResourceID:    cmd.ResourceID,
		OfficeID:      cmd.OfficeID,
		ClientID:      cmd.ClientID,
		LoanID:        cmd.LoanID,
		SavingsID:     cmd.SavingsID,
		Payload:       cmd.Payload,
		Maker:         cmd.Maker,
		MadeOnDate:    cmd.MadeOnDate,
		Checker:       cmd.Checker,
		CheckedOnDate: cmd.CheckedOnDate,
		Status:        cmd.Status.String(),
		Result:        cmd.Result,
		ResultStatus:  cmd.ResultStatus,
	}
}

func toStepDescriptors(configs []domain.StepConfig) []stepDescriptor {
	out := make([]stepDescriptor, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, stepDescriptor{
			StepName: cfg.StepName,
			Order:    cfg.Order,
			Enabled:  cfg.Enabled,
		})
	}
	return out
}

func valueOrDefault(value, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}
