package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/qna-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedSkill(t *testing.T, s *SQLiteStore, skill model.Skill) model.Skill {
	t.Helper()
	created, err := s.UpsertSkill(context.Background(), &skill)
	require.NoError(t, err)
	require.True(t, created)
	return skill
}

func TestSQLiteUpsertSkill(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	skill := seedSkill(t, s, model.Skill{
		Name:       "SSO Setup",
		Tier:       model.TierCore,
		Categories: []string{"security"},
		Tags:       []string{"sso", "saml"},
		Content:    "How to configure SSO.",
		Active:     true,
		SyncState:  model.SyncStateSynced,
		SourceID:   "page-1",
	})

	got, err := s.GetSkillBySource(ctx, "page-1")
	require.NoError(t, err)
	assert.Equal(t, skill.ID, got.ID)
	assert.Equal(t, model.TierCore, got.Tier)
	assert.Equal(t, []string{"sso", "saml"}, got.Tags)

	// second upsert with the same ID updates in place
	skill.Content = "Updated content."
	created, err := s.UpsertSkill(ctx, &skill)
	require.NoError(t, err)
	assert.False(t, created)

	got, err = s.GetSkillBySource(ctx, "page-1")
	require.NoError(t, err)
	assert.Equal(t, "Updated content.", got.Content)
}

func TestSQLiteGetSkillBySourceNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSkillBySource(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteListSkillsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	core := seedSkill(t, s, model.Skill{Name: "Core A", Tier: model.TierCore, Categories: []string{"security"}, Content: "a", Active: true})
	seedSkill(t, s, model.Skill{Name: "Extended B", Tier: model.TierExtended, Categories: []string{"billing"}, Content: "b", Active: true})
	seedSkill(t, s, model.Skill{Name: "Inactive C", Tier: model.TierCore, Content: "c", Active: false})

	all, err := s.ListSkills(ctx, SkillFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	active, err := s.ListSkills(ctx, SkillFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	coreOnly, err := s.ListSkills(ctx, SkillFilter{Tiers: []model.Tier{model.TierCore}, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, coreOnly, 1)
	assert.Equal(t, "Core A", coreOnly[0].Name)

	byCategory, err := s.ListSkills(ctx, SkillFilter{Categories: []string{"billing"}})
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, "Extended B", byCategory[0].Name)

	excluded, err := s.ListSkills(ctx, SkillFilter{ExcludeIDs: []string{core.ID}, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, excluded, 1)
	assert.Equal(t, "Extended B", excluded[0].Name)
}

func TestSQLiteSetSkillSyncState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	skill := seedSkill(t, s, model.Skill{Name: "A", Tier: model.TierCore, Content: "a", Active: true, SyncState: model.SyncStateUnknown, SourceID: "page-a"})

	require.NoError(t, s.SetSkillSyncState(ctx, skill.ID, model.SyncStateSynced))
	got, err := s.GetSkillBySource(ctx, "page-a")
	require.NoError(t, err)
	assert.Equal(t, model.SyncStateSynced, got.SyncState)

	counts, err := s.SkillSyncCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.SyncStateSynced])

	assert.ErrorIs(t, s.SetSkillSyncState(ctx, "missing", model.SyncStateFailed), ErrNotFound)
}

func TestSQLiteRowLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row := &model.Row{ProjectID: "proj-1", Question: "What is your uptime SLA?"}
	require.NoError(t, s.CreateRow(ctx, row))
	assert.NotEmpty(t, row.ID)
	assert.Equal(t, model.RowStatusPending, row.Status)

	row.Status = model.RowStatusCompleted
	row.Response = "99.95% monthly."
	row.UsedSkills = []string{"sk-1"}
	row.History = []model.Message{
		{Role: "user", Content: "What is your uptime SLA?"},
		{Role: "assistant", Content: "99.95% monthly."},
	}
	require.NoError(t, s.UpdateRow(ctx, row))

	got, err := s.GetRow(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RowStatusCompleted, got.Status)
	assert.Equal(t, []string{"sk-1"}, got.UsedSkills)
	require.Len(t, got.History, 2)
	assert.Equal(t, "assistant", got.History[1].Role)
}

func TestSQLiteListRowsOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, q := range []string{"first", "second", "third"} {
		require.NoError(t, s.CreateRow(ctx, &model.Row{ProjectID: "proj-1", Question: q}))
	}
	require.NoError(t, s.CreateRow(ctx, &model.Row{ProjectID: "other", Question: "elsewhere"}))

	rows, err := s.ListRows(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "first", rows[0].Question)
	assert.Equal(t, "third", rows[2].Question)
}

func TestSQLiteRowNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetRow(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateRow(ctx, &model.Row{ID: "missing"}), ErrNotFound)
}

func TestSQLiteSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetSetting(ctx, "rate_limit.batch_size")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetSetting(ctx, "rate_limit.batch_size", "10"))
	v, err := s.GetSetting(ctx, "rate_limit.batch_size")
	require.NoError(t, err)
	assert.Equal(t, "10", v)

	require.NoError(t, s.SetSetting(ctx, "rate_limit.batch_size", "20"))
	v, err = s.GetSetting(ctx, "rate_limit.batch_size")
	require.NoError(t, err)
	assert.Equal(t, "20", v)
}

func TestSQLiteSyncLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := &model.SyncLog{
		TargetID:  "sk-1",
		Operation: model.SyncOpUpdate,
		Direction: model.SyncSourceToStore,
	}
	require.NoError(t, s.CreateSyncLog(ctx, entry))
	assert.Equal(t, model.SyncLogPending, entry.Status)

	require.NoError(t, s.CompleteSyncLog(ctx, entry.ID, model.SyncLogSuccess, "abc123", ""))

	// entries are terminal-updated exactly once
	err := s.CompleteSyncLog(ctx, entry.ID, model.SyncLogFailed, "", "late")
	assert.ErrorIs(t, err, ErrNotFound)

	logs, err := s.ListSyncLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.SyncLogSuccess, logs[0].Status)
	assert.Equal(t, "abc123", logs[0].CommitRef)
	require.NotNil(t, logs[0].CompletedAt)
}

func TestSQLiteCountSyncFailuresSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		entry := &model.SyncLog{TargetID: "sk-1", Operation: model.SyncOpUpdate, Direction: model.SyncSourceToStore}
		require.NoError(t, s.CreateSyncLog(ctx, entry))
		require.NoError(t, s.CompleteSyncLog(ctx, entry.ID, model.SyncLogFailed, "", "boom"))
	}
	ok := &model.SyncLog{TargetID: "sk-2", Operation: model.SyncOpCreate, Direction: model.SyncSourceToStore}
	require.NoError(t, s.CreateSyncLog(ctx, ok))
	require.NoError(t, s.CompleteSyncLog(ctx, ok.ID, model.SyncLogSuccess, "", ""))

	n, err := s.CountSyncFailuresSince(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.CountSyncFailuresSince(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSQLiteRecordUsage(t *testing.T) {
	s := newTestStore(t)

	err := s.RecordUsage(context.Background(), model.UsageRecord{
		Feature:      "answer",
		Model:        "claude-sonnet-4-5-20250929",
		InputTokens:  812,
		OutputTokens: 240,
		Metadata:     map[string]string{"project_id": "proj-1"},
	})
	require.NoError(t, err)
}
