// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fincore/backoffice/internal/domain"
)

// Handler executes one validated command and returns a result or an
// error. Domain side effects (loan, savings, accounting mutations)
// live behind this contract.
type Handler interface {
	Handle(ctx context.Context, cmd domain.CommandWrapper) (domain.CommandResult, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, cmd domain.CommandWrapper) (domain.CommandResult, error)

func (f HandlerFunc) Handle(ctx context.Context, cmd domain.CommandWrapper) (domain.CommandResult, error) {
	return f(ctx, cmd)
}

// HandlerRegistry maps ACTION_ENTITY task-permission keys to their
// business handlers. Handlers are registered explicitly at startup.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]Handler)}
}

func (r *HandlerRegistry) Register(actionName, entityName string, h Handler) error {
	key := taskPermissionKey(actionName, entityName)
	if key == "_" {
		return fmt.Errorf("register handler: empty action or entity name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[key]; exists {
		return fmt.Errorf("handler already registered for %s", key)
	}
	r.handlers[key] = h
	return nil
}

func (r *HandlerRegistry) Resolve(actionName, entityName string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[taskPermissionKey(actionName, entityName)]
	if !ok {
		return nil, &domain.UnsupportedParameterError{
			Parameters: []string{taskPermissionKey(actionName, entityName)},
		}
	}
	return h, nil
}

func taskPermissionKey(actionName, entityName string) string {
	return strings.ToUpper(strings.TrimSpace(actionName)) + "_" + strings.ToUpper(strings.TrimSpace(entityName))
}

// ApprovalPolicy decides which action/entity pairs are gated behind
// maker-checker approval. The policy is configuration data injected
// into the pipeline, never hard-coded dispatch logic.
type ApprovalPolicy interface {
	RequiresApproval(ctx context.Context, actionName, entityName string) (bool, error)
}

// StaticApprovalPolicy is an in-memory policy keyed by ACTION_ENTITY,
// used at boot and in tests. Missing keys mean no approval gate.
type StaticApprovalPolicy map[string]bool

func (p StaticApprovalPolicy) RequiresApproval(_ context.Context, actionName, entityName string) (bool, error) {
	return p[taskPermissionKey(actionName, entityName)], nil
}
