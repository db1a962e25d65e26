// Package store persists skills, questionnaire rows, settings, usage
// records, and the sync log behind a single interface with SQLite and
// Postgres implementations.
package store

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/sells-group/qna-cli/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// SkillFilter restricts which skills a listing returns. The search path
// applies tier/category/exclusion filtering here, before ranking, so the
// ranker only ever sees eligible candidates.
type SkillFilter struct {
	Tiers      []model.Tier
	Categories []string
	ExcludeIDs []string
	ActiveOnly bool
}

// Store defines the persistence interface for the answering pipeline.
type Store interface {
	// Skills
	ListSkills(ctx context.Context, filter SkillFilter) ([]model.Skill, error)
	GetSkillBySource(ctx context.Context, sourceID string) (*model.Skill, error)
	UpsertSkill(ctx context.Context, skill *model.Skill) (created bool, err error)
	SetSkillSyncState(ctx context.Context, skillID string, state model.SyncState) error
	SkillSyncCounts(ctx context.Context) (map[model.SyncState]int, error)

	// Questionnaire rows
	CreateRow(ctx context.Context, row *model.Row) error
	UpdateRow(ctx context.Context, row *model.Row) error
	GetRow(ctx context.Context, rowID string) (*model.Row, error)
	ListRows(ctx context.Context, projectID string) ([]model.Row, error)

	// Settings (string key/value; typed parsing happens in the caller)
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// Usage accounting (append-only)
	RecordUsage(ctx context.Context, rec model.UsageRecord) error

	// Sync log
	CreateSyncLog(ctx context.Context, entry *model.SyncLog) error
	CompleteSyncLog(ctx context.Context, logID string, status model.SyncLogStatus, commitRef, errMsg string) error
	CountSyncFailuresSince(ctx context.Context, since time.Time) (int, error)
	ListSyncLogs(ctx context.Context, limit int) ([]model.SyncLog, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// matchesCategories reports whether the skill carries at least one of the
// requested categories. An empty request matches everything. Category
// matching happens in Go because both backends store categories as JSON.
func matchesCategories(skill model.Skill, categories []string) bool {
	if len(categories) == 0 {
		return true
	}
	for _, want := range categories {
		if slices.Contains(skill.Categories, want) {
			return true
		}
	}
	return false
}

// filterCategories applies matchesCategories over a listing.
func filterCategories(skills []model.Skill, categories []string) []model.Skill {
	if len(categories) == 0 {
		return skills
	}
	out := skills[:0]
	for _, s := range skills {
		if matchesCategories(s, categories) {
			out = append(out, s)
		}
	}
	return out
}
