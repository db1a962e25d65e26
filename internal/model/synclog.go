package model

import "time"

// SyncOperation is the kind of change a sync attempt applies.
type SyncOperation string

const (
	SyncOpCreate SyncOperation = "create"
	SyncOpUpdate SyncOperation = "update"
	SyncOpDelete SyncOperation = "delete"
)

// SyncDirection records which side of the sync is the writer.
type SyncDirection string

const (
	SyncStoreToSource SyncDirection = "store_to_source"
	SyncSourceToStore SyncDirection = "source_to_store"
)

// SyncLogStatus is the lifecycle state of a sync-log entry. Every entry
// starts pending and is terminal-updated exactly once.
type SyncLogStatus string

const (
	SyncLogPending SyncLogStatus = "pending"
	SyncLogSuccess SyncLogStatus = "success"
	SyncLogFailed  SyncLogStatus = "failed"
)

// SyncLog records a single sync attempt between a skill's source of truth
// and its persisted copy.
type SyncLog struct {
	ID          string        `json:"id"`
	TargetID    string        `json:"target_id"`
	Operation   SyncOperation `json:"operation"`
	Direction   SyncDirection `json:"direction"`
	Status      SyncLogStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	CommitRef   string        `json:"commit_ref,omitempty"`
	Error       string        `json:"error,omitempty"`
}
