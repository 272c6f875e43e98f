// SPDX-License-Identifier: Apache-2.0

package cob

import (
	"context"

	"github.com/fincore/backoffice/internal/domain"
)

// Step is one named unit of close-of-business work. The name is the
// stable identifier referenced by persisted job configuration and is
// independent of the implementing type.
//
// Execute receives the current work item and returns the (possibly
// new) item instance the next step operates on. Any error aborts the
// remaining steps of the run.
type Step interface {
	Name() string
	Execute(ctx context.Context, item *domain.WorkItem) (*domain.WorkItem, error)
}

// ItemReloader refreshes a work item from its authoritative source.
// The executor reloads before every step so steps that commit
// independently never observe stale state.
type ItemReloader interface {
	Reload(ctx context.Context, item *domain.WorkItem) (*domain.WorkItem, error)
}
