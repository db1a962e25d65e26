package kbsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/qna-cli/internal/model"
	"github.com/sells-group/qna-cli/internal/store"
	"github.com/sells-group/qna-cli/internal/synchealth"
)

type fakeNotion struct {
	pages     []notionapi.Page
	content   map[string]string
	queryErr  error
	blocksErr map[string]error
	updateErr error
	updated   []string
}

func (f *fakeNotion) QueryDatabase(_ context.Context, _ string, _ *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &notionapi.DatabaseQueryResponse{Results: f.pages, HasMore: false}, nil
}

func (f *fakeNotion) GetPageBlocks(_ context.Context, pageID string) (*notionapi.GetChildrenResponse, error) {
	if err := f.blocksErr[pageID]; err != nil {
		return nil, err
	}
	text, ok := f.content[pageID]
	if !ok {
		return &notionapi.GetChildrenResponse{}, nil
	}
	return &notionapi.GetChildrenResponse{
		Results: []notionapi.Block{
			&notionapi.ParagraphBlock{
				Paragraph: notionapi.Paragraph{
					RichText: []notionapi.RichText{{PlainText: text}},
				},
			},
		},
	}, nil
}

func (f *fakeNotion) UpdatePage(_ context.Context, pageID string, _ *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updated = append(f.updated, pageID)
	return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
}

func makePage(id, name, tier string, active bool) notionapi.Page {
	return notionapi.Page{
		ID:             notionapi.ObjectID(id),
		LastEditedTime: time.Now(),
		Properties: notionapi.Properties{
			"Name": &notionapi.TitleProperty{
				Title: []notionapi.RichText{{PlainText: name}},
			},
			"Tier": &notionapi.SelectProperty{
				Select: notionapi.Option{Name: tier},
			},
			"Active": &notionapi.CheckboxProperty{Checkbox: active},
		},
	}
}

func newSyncer(t *testing.T, client *fakeNotion) (*Syncer, *store.SQLiteStore, *synchealth.Tracker) {
	t.Helper()
	s, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))

	tracker := synchealth.NewTracker(s)
	return NewSyncer(s, client, tracker, "kb-db"), s, tracker
}

func TestRunCreatesNewSkills(t *testing.T) {
	ctx := context.Background()
	client := &fakeNotion{
		pages: []notionapi.Page{
			makePage("page-1", "SSO Setup", "Core", true),
			makePage("page-2", "Billing FAQ", "Extended", true),
		},
		content: map[string]string{
			"page-1": "How to configure SSO.",
			"page-2": "Invoices ship monthly.",
		},
	}
	syncer, s, tracker := newSyncer(t, client)

	report, err := syncer.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 0, report.Updated)
	assert.Equal(t, 0, report.Failed)

	skill, err := s.GetSkillBySource(ctx, "page-1")
	require.NoError(t, err)
	assert.Equal(t, "SSO Setup", skill.Name)
	assert.Equal(t, model.TierCore, skill.Tier)
	assert.Equal(t, "How to configure SSO.", skill.Content)
	assert.Equal(t, model.SyncStateSynced, skill.SyncState)

	h, err := tracker.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, h.Synced)
	assert.True(t, h.Healthy)
}

func TestRunUpdatesExistingSkills(t *testing.T) {
	ctx := context.Background()
	client := &fakeNotion{
		pages:   []notionapi.Page{makePage("page-1", "SSO Setup", "Core", true)},
		content: map[string]string{"page-1": "v1"},
	}
	syncer, s, _ := newSyncer(t, client)

	_, err := syncer.Run(ctx)
	require.NoError(t, err)

	client.content["page-1"] = "v2"
	report, err := syncer.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 1, report.Updated)

	skill, err := s.GetSkillBySource(ctx, "page-1")
	require.NoError(t, err)
	assert.Equal(t, "v2", skill.Content)

	logs, err := s.ListSyncLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 4, "each run journals one pull and one write-back")
	pulls, pushes := 0, 0
	for _, l := range logs {
		assert.Equal(t, model.SyncLogSuccess, l.Status)
		switch l.Direction {
		case model.SyncSourceToStore:
			pulls++
		case model.SyncStoreToSource:
			pushes++
		}
	}
	assert.Equal(t, 2, pulls)
	assert.Equal(t, 2, pushes)
}

func TestRunUnknownTierFallsBackToLibrary(t *testing.T) {
	ctx := context.Background()
	client := &fakeNotion{
		pages:   []notionapi.Page{makePage("page-1", "Misc", "Experimental", true)},
		content: map[string]string{"page-1": "misc"},
	}
	syncer, s, _ := newSyncer(t, client)

	_, err := syncer.Run(ctx)
	require.NoError(t, err)

	skill, err := s.GetSkillBySource(ctx, "page-1")
	require.NoError(t, err)
	assert.Equal(t, model.TierLibrary, skill.Tier)
}

func TestRunSourceUnreadable(t *testing.T) {
	client := &fakeNotion{queryErr: errors.New("notion down")}
	syncer, _, _ := newSyncer(t, client)

	_, err := syncer.Run(context.Background())
	assert.Error(t, err)
}

func TestRunSkipsArchivedPages(t *testing.T) {
	archived := makePage("page-1", "Old", "Core", true)
	archived.Archived = true
	client := &fakeNotion{pages: []notionapi.Page{archived}}
	syncer, s, _ := newSyncer(t, client)

	report, err := syncer.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)

	_, err = s.GetSkillBySource(context.Background(), "page-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunContentFetchFailureDoesNotStopPass(t *testing.T) {
	ctx := context.Background()
	client := &fakeNotion{
		pages: []notionapi.Page{
			makePage("page-1", "SSO Setup", "Core", true),
			makePage("page-2", "Billing FAQ", "Extended", true),
		},
		content:   map[string]string{"page-1": "How to configure SSO."},
		blocksErr: map[string]error{"page-2": errors.New("blocks unavailable")},
	}
	syncer, s, tracker := newSyncer(t, client)

	report, err := syncer.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Failed)

	skill, err := s.GetSkillBySource(ctx, "page-1")
	require.NoError(t, err)
	assert.Equal(t, "How to configure SSO.", skill.Content)

	_, err = s.GetSkillBySource(ctx, "page-2")
	assert.ErrorIs(t, err, store.ErrNotFound)

	h, err := tracker.Health(ctx)
	require.NoError(t, err)
	assert.False(t, h.Healthy)
	assert.GreaterOrEqual(t, h.RecentFailures, 1)
}

func TestRunWritesBackSyncTime(t *testing.T) {
	client := &fakeNotion{
		pages:   []notionapi.Page{makePage("page-1", "SSO Setup", "Core", true)},
		content: map[string]string{"page-1": "How to configure SSO."},
	}
	syncer, s, _ := newSyncer(t, client)

	report, err := syncer.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, []string{"page-1"}, client.updated)

	logs, err := s.ListSyncLogs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
}

func TestRunWriteBackFailureKeepsStoreCopy(t *testing.T) {
	ctx := context.Background()
	client := &fakeNotion{
		pages:     []notionapi.Page{makePage("page-1", "SSO Setup", "Core", true)},
		content:   map[string]string{"page-1": "How to configure SSO."},
		updateErr: errors.New("notion rejected the update"),
	}
	syncer, s, tracker := newSyncer(t, client)

	report, err := syncer.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 0, report.Failed, "write-back failure does not fail the page")

	skill, err := s.GetSkillBySource(ctx, "page-1")
	require.NoError(t, err)
	assert.Equal(t, "How to configure SSO.", skill.Content)
	assert.Equal(t, model.SyncStateFailed, skill.SyncState)

	h, err := tracker.Health(ctx)
	require.NoError(t, err)
	assert.False(t, h.Healthy)
}
