// SPDX-License-Identifier: Apache-2.0

package steps

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fincore/backoffice/internal/domain"
	"github.com/fincore/backoffice/internal/events"
	"github.com/google/uuid"
)

func testItem() *domain.WorkItem {
	return &domain.WorkItem{
		ID:           uuid.New(),
		JobName:      "LOAN_CLOSE_OF_BUSINESS",
		BusinessDate: time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
		Payload:      json.RawMessage(`{"loanId":42}`),
		Attempts:     1,
	}
}

func TestStampBusinessDateMergesPayload(t *testing.T) {
	item := testItem()

	out, err := StampBusinessDate{}.Execute(context.Background(), item)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(out.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["loanId"] != float64(42) {
		t.Fatalf("existing payload keys must survive: %v", payload)
	}
	if payload["lastProcessedJob"] != "LOAN_CLOSE_OF_BUSINESS" {
		t.Fatalf("lastProcessedJob = %v", payload["lastProcessedJob"])
	}
	if payload["lastProcessedDate"] != "2026-08-30T00:00:00Z" {
		t.Fatalf("lastProcessedDate = %v", payload["lastProcessedDate"])
	}

	// input item is not mutated
	if string(item.Payload) != `{"loanId":42}` {
		t.Fatalf("input payload mutated: %s", item.Payload)
	}
}

func TestStampBusinessDateRejectsMalformedPayload(t *testing.T) {
	item := testItem()
	item.Payload = json.RawMessage(`not-json`)

	if _, err := (StampBusinessDate{}).Execute(context.Background(), item); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestEmitItemProcessedRecordsEvent(t *testing.T) {
	recorder := events.NewRecorder(nil, nil)
	recorder.StartBuffering()
	ctx := events.WithRecorder(context.Background(), recorder)

	item := testItem()
	out, err := EmitItemProcessed{}.Execute(ctx, item)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != item {
		t.Fatal("item should pass through unchanged")
	}
	if recorder.Buffered() != 1 {
		t.Fatalf("buffered = %d, want 1", recorder.Buffered())
	}
}

func TestEmitItemProcessedWithoutRecorderIsNoop(t *testing.T) {
	item := testItem()

	out, err := EmitItemProcessed{}.Execute(context.Background(), item)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != item {
		t.Fatal("item should pass through unchanged")
	}
}
