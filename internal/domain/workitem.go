package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type WorkItemStatus string

const (
	WorkItemPending WorkItemStatus = "PENDING"
	WorkItemRunning WorkItemStatus = "RUNNING"
	WorkItemDone    WorkItemStatus = "DONE"
	WorkItemFailed  WorkItemStatus = "FAILED"
)

// WorkItem is one unit of close-of-business work: the record a job's
// ordered business steps mutate in sequence.
type WorkItem struct {
	ID           uuid.UUID       `json:"id"`
	JobName      string          `json:"job_name"`
	Status       WorkItemStatus  `json:"status"`
	BusinessDate time.Time       `json:"business_date"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Attempts     int             `json:"attempts"`
	FailedStep   *string         `json:"failed_step,omitempty"`
	FailedOrder  *int64          `json:"failed_order,omitempty"`
}

// StepConfig is one persisted business-step descriptor: a stable step
// name with its execution order within a named job.
type StepConfig struct {
	JobName  string `json:"job_name"`
	StepName string `json:"step_name"`
	Order    int64  `json:"order"`
	Enabled  bool   `json:"enabled"`
}
