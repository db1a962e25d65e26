// Package synchealth tracks whether the knowledge store and its source of
// truth are in agreement. Every sync attempt is journaled begin/complete,
// and health is an aggregate over per-skill sync status plus the trailing
// 24 hours of the journal.
package synchealth

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/qna-cli/internal/model"
	"github.com/sells-group/qna-cli/internal/store"
)

// failureWindow is the trailing period over which sync failures count
// against health.
const failureWindow = 24 * time.Hour

// Health is the aggregate sync picture. Synced+Pending+Failed+Unknown
// always equals Total.
type Health struct {
	Total          int       `json:"total"`
	Synced         int       `json:"synced"`
	Pending        int       `json:"pending"`
	Failed         int       `json:"failed"`
	Unknown        int       `json:"unknown"`
	RecentFailures int       `json:"recentFailures"`
	Healthy        bool      `json:"healthy"`
	CheckedAt      time.Time `json:"checkedAt"`
}

// Tracker journals sync attempts and reports aggregate health. All state
// lives in the store, so concurrent readers and writers are safe.
type Tracker struct {
	store store.Store
	now   func() time.Time
}

// NewTracker creates a Tracker.
func NewTracker(st store.Store) *Tracker {
	return &Tracker{store: st, now: time.Now}
}

// Begin journals the start of one sync attempt and returns the entry ID to
// pass to Complete.
func (t *Tracker) Begin(ctx context.Context, targetID string, op model.SyncOperation, direction model.SyncDirection) (string, error) {
	entry := &model.SyncLog{
		TargetID:  targetID,
		Operation: op,
		Direction: direction,
	}
	if err := t.store.CreateSyncLog(ctx, entry); err != nil {
		return "", eris.Wrap(err, "synchealth: begin")
	}
	return entry.ID, nil
}

// Complete terminal-updates the journal entry and moves the target's sync
// status accordingly. A success marks the target synced; a failure marks it
// failed. Completing an already-completed entry returns store.ErrNotFound.
func (t *Tracker) Complete(ctx context.Context, logID, targetID string, status model.SyncLogStatus, commitRef, errMsg string) error {
	if err := t.store.CompleteSyncLog(ctx, logID, status, commitRef, errMsg); err != nil {
		return eris.Wrapf(err, "synchealth: complete %s", logID)
	}

	state := model.SyncStateSynced
	if status == model.SyncLogFailed {
		state = model.SyncStateFailed
	}
	if err := t.store.SetSkillSyncState(ctx, targetID, state); err != nil {
		return eris.Wrapf(err, "synchealth: set state %s", targetID)
	}
	return nil
}

// Health computes the aggregate. Healthy means no target is in a failed
// state and no journal failure landed within the trailing window.
func (t *Tracker) Health(ctx context.Context) (*Health, error) {
	counts, err := t.store.SkillSyncCounts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "synchealth: counts")
	}

	now := t.now().UTC()
	recent, err := t.store.CountSyncFailuresSince(ctx, now.Add(-failureWindow))
	if err != nil {
		return nil, eris.Wrap(err, "synchealth: recent failures")
	}

	h := &Health{
		Synced:         counts[model.SyncStateSynced],
		Pending:        counts[model.SyncStatePending],
		Failed:         counts[model.SyncStateFailed],
		Unknown:        counts[model.SyncStateUnknown],
		RecentFailures: recent,
		CheckedAt:      now,
	}
	h.Total = h.Synced + h.Pending + h.Failed + h.Unknown
	h.Healthy = h.Failed == 0 && recent == 0
	return h, nil
}
