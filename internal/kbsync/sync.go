// Package kbsync pulls knowledge entries from the Notion knowledge database
// into the local store. Every write is journaled through the sync-health
// tracker so a partial or failed pass is visible in the health aggregate.
package kbsync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/qna-cli/internal/model"
	"github.com/sells-group/qna-cli/internal/store"
	"github.com/sells-group/qna-cli/internal/synchealth"
	"github.com/sells-group/qna-cli/pkg/notion"
)

// lastSyncedProp is the Notion date property the syncer writes back to after
// a page lands in the store.
const lastSyncedProp = "Last Synced"

// Report summarizes one sync pass.
type Report struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// Syncer copies knowledge pages from Notion into the store.
type Syncer struct {
	store   store.Store
	client  notion.Client
	tracker *synchealth.Tracker
	dbID    string
	now     func() time.Time
}

// NewSyncer creates a Syncer for the given knowledge database.
func NewSyncer(st store.Store, client notion.Client, tracker *synchealth.Tracker, dbID string) *Syncer {
	return &Syncer{store: st, client: client, tracker: tracker, dbID: dbID, now: time.Now}
}

// Run fetches every knowledge page and upserts it. A per-page failure is
// journaled and counted but does not stop the pass; Run errors only when
// the source itself cannot be read.
func (s *Syncer) Run(ctx context.Context) (*Report, error) {
	pages, err := notion.QueryKnowledgePages(ctx, s.client, s.dbID)
	if err != nil {
		return nil, eris.Wrap(err, "kbsync: fetch knowledge pages")
	}

	report := &Report{}
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		created, err := s.syncPage(ctx, page)
		switch {
		case err != nil:
			report.Failed++
			zap.L().Warn("knowledge page sync failed",
				zap.String("page_id", page.PageID),
				zap.String("name", page.Name),
				zap.Error(err),
			)
		case created:
			report.Created++
		default:
			report.Updated++
		}
	}

	zap.L().Info("knowledge sync finished",
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// syncPage fetches one page's content and upserts it inside a journaled
// sync attempt.
func (s *Syncer) syncPage(ctx context.Context, page notion.KnowledgePage) (created bool, err error) {
	skill, op, err := s.resolveSkill(ctx, page)
	if err != nil {
		return false, err
	}

	logID, err := s.tracker.Begin(ctx, skill.ID, op, model.SyncSourceToStore)
	if err != nil {
		// The journal itself is unavailable; skip the write entirely.
		return false, err
	}

	content, err := notion.PageContent(ctx, s.client, page.PageID)
	if err != nil {
		err = eris.Wrapf(err, "kbsync: content for %s", page.PageID)
		if cerr := s.tracker.Complete(ctx, logID, skill.ID, model.SyncLogFailed, "", err.Error()); cerr != nil {
			zap.L().Error("failed to journal sync failure", zap.String("log_id", logID), zap.Error(cerr))
		}
		return false, err
	}
	skill.Content = content

	created, err = s.store.UpsertSkill(ctx, skill)
	if err != nil {
		if cerr := s.tracker.Complete(ctx, logID, skill.ID, model.SyncLogFailed, "", err.Error()); cerr != nil {
			zap.L().Error("failed to journal sync failure", zap.String("log_id", logID), zap.Error(cerr))
		}
		return false, err
	}

	if err := s.tracker.Complete(ctx, logID, skill.ID, model.SyncLogSuccess, page.PageID, ""); err != nil {
		return created, err
	}

	// The store copy is good even if the write-back cannot land; the
	// journal records the attempt either way.
	if err := s.writeBack(ctx, skill); err != nil {
		zap.L().Warn("sync-time write-back failed",
			zap.String("page_id", page.PageID),
			zap.Error(err),
		)
	}
	return created, nil
}

// writeBack stamps the source page with the sync time so editors can see
// when an entry last landed in the store. The write runs as its own
// journaled store-to-source attempt.
func (s *Syncer) writeBack(ctx context.Context, skill *model.Skill) error {
	logID, err := s.tracker.Begin(ctx, skill.ID, model.SyncOpUpdate, model.SyncStoreToSource)
	if err != nil {
		return err
	}

	syncedAt := notionapi.Date(s.now())
	_, err = s.client.UpdatePage(ctx, skill.SourceID, &notionapi.PageUpdateRequest{
		Properties: notionapi.Properties{
			lastSyncedProp: &notionapi.DateProperty{
				Date: &notionapi.DateObject{Start: &syncedAt},
			},
		},
	})
	if err != nil {
		err = eris.Wrapf(err, "kbsync: write back %s", skill.SourceID)
		if cerr := s.tracker.Complete(ctx, logID, skill.ID, model.SyncLogFailed, "", err.Error()); cerr != nil {
			zap.L().Error("failed to journal write-back failure", zap.String("log_id", logID), zap.Error(cerr))
		}
		return err
	}
	return s.tracker.Complete(ctx, logID, skill.ID, model.SyncLogSuccess, skill.SourceID, "")
}

// resolveSkill maps a page to the skill it updates, or a fresh skill when
// the page has never been synced.
func (s *Syncer) resolveSkill(ctx context.Context, page notion.KnowledgePage) (*model.Skill, model.SyncOperation, error) {
	tier := model.Tier(page.Tier)
	if !model.ValidTier(tier) {
		tier = model.TierLibrary
	}

	skill := &model.Skill{
		Name:       page.Name,
		Tier:       tier,
		Categories: page.Categories,
		Tags:       page.Tags,
		Active:     page.Active,
		SyncState:  model.SyncStatePending,
		SourceID:   page.PageID,
	}

	existing, err := s.store.GetSkillBySource(ctx, page.PageID)
	switch {
	case err == nil:
		skill.ID = existing.ID
		skill.CreatedAt = existing.CreatedAt
		return skill, model.SyncOpUpdate, nil
	case errors.Is(err, store.ErrNotFound):
		// Begin journals against the skill ID, so assign it before the
		// insert happens.
		skill.ID = uuid.New().String()
		return skill, model.SyncOpCreate, nil
	default:
		return nil, "", err
	}
}
