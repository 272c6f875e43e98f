// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// BusinessEvent is one domain occurrence raised during command or
// batch processing. During COB runs events are buffered and emitted in
// aggregate rather than one-by-one.
type BusinessEvent struct {
	ID            uuid.UUID       `json:"id"`
	Seq           int64           `json:"seq"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func NewBusinessEvent(eventType, aggregateType, aggregateID string, payload json.RawMessage) BusinessEvent {
	return BusinessEvent{
		ID:            uuid.New(),
		Type:          eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}
