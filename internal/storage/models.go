package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ItemsRecordKey is the record holding the serialized action item collection.
const ItemsRecordKey = "action_items"

type BatchRunStatus string

const (
	BatchRunning   BatchRunStatus = "running"
	BatchCompleted BatchRunStatus = "completed"
	BatchPartial   BatchRunStatus = "partial"
	BatchCancelled BatchRunStatus = "cancelled"
)

// BatchRun is one invocation of the batch orchestrator.
type BatchRun struct {
	ID           string            `json:"id"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
	ChatIDs      []string          `json:"chat_ids"`
	LookbackHrs  int               `json:"lookback_hours"`
	CreatedCount int               `json:"created_count"`
	Errors       map[string]string `json:"errors"`
	Status       BatchRunStatus    `json:"status"`
}
