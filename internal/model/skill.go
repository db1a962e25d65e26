package model

import "time"

// Tier buckets skills by retrieval priority. Progressive retrieval loads
// core first and widens to extended and library only when needed.
type Tier string

const (
	TierCore     Tier = "core"
	TierExtended Tier = "extended"
	TierLibrary  Tier = "library"
)

// ValidTier reports whether t is a known tier value.
func ValidTier(t Tier) bool {
	switch t {
	case TierCore, TierExtended, TierLibrary:
		return true
	}
	return false
}

// SyncState describes whether a skill's persisted copy matches its
// source of truth.
type SyncState string

const (
	SyncStateSynced  SyncState = "synced"
	SyncStatePending SyncState = "pending"
	SyncStateFailed  SyncState = "failed"
	SyncStateUnknown SyncState = "unknown"
)

// Skill is a knowledge-base entry used to answer questionnaire rows.
type Skill struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Tier       Tier      `json:"tier"`
	Categories []string  `json:"categories,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Content    string    `json:"content"`
	Active     bool      `json:"active"`
	SyncState  SyncState `json:"sync_state"`
	SourceID   string    `json:"source_id,omitempty"` // Notion page ID
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
