// SPDX-License-Identifier: Apache-2.0

// Package steps holds the built-in business steps shipped with the
// platform. Domain teams contribute their own step implementations and
// register them alongside these at worker startup.
package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fincore/backoffice/internal/domain"
	"github.com/fincore/backoffice/internal/events"
)

// StampBusinessDate merges run bookkeeping into the work item payload,
// so downstream steps and operators can see when the item was last
// touched and by which job.
type StampBusinessDate struct{}

func (StampBusinessDate) Name() string { return "STAMP_BUSINESS_DATE" }

func (StampBusinessDate) Execute(ctx context.Context, item *domain.WorkItem) (*domain.WorkItem, error) {
	merged := map[string]any{}
	if len(item.Payload) > 0 {
		if err := json.Unmarshal(item.Payload, &merged); err != nil {
			return nil, fmt.Errorf("decode work item payload: %w", err)
		}
	}

	merged["lastProcessedJob"] = item.JobName
	merged["lastProcessedDate"] = item.BusinessDate.Format(time.RFC3339)

	payload, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode work item payload: %w", err)
	}

	out := *item
	out.Payload = payload
	return &out, nil
}

// EmitItemProcessed raises one business event for the item. During a
// COB run the event lands in the run buffer and is only delivered if
// the whole run succeeds.
type EmitItemProcessed struct{}

func (EmitItemProcessed) Name() string { return "EMIT_ITEM_PROCESSED" }

func (EmitItemProcessed) Execute(ctx context.Context, item *domain.WorkItem) (*domain.WorkItem, error) {
	recorder, ok := events.RecorderFrom(ctx)
	if !ok {
		return item, nil
	}

	payload, err := json.Marshal(map[string]any{
		"jobName":      item.JobName,
		"businessDate": item.BusinessDate.Format(time.RFC3339),
		"attempts":     item.Attempts,
	})
	if err != nil {
		return nil, fmt.Errorf("encode event payload: %w", err)
	}

	ev := domain.NewBusinessEvent("COB_ITEM_PROCESSED", "cobWorkItem", item.ID.String(), payload)
	if err := recorder.Record(ctx, ev); err != nil {
		return nil, err
	}

	return item, nil
}
