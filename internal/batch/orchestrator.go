// Package batch processes questionnaire rows in fixed-size windows with a
// configurable pause between windows, keeping total provider throughput
// under the account's rate limits.
package batch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/qna-cli/internal/model"
	"github.com/sells-group/qna-cli/internal/store"
)

// Processor answers a single row in place. On success it fills the row's
// response fields; the orchestrator owns status transitions and persistence.
type Processor interface {
	Process(ctx context.Context, row *model.Row, settings model.RateLimitSettings) error
}

// DelayFunc waits between windows. Injected so tests can count pauses
// without real waits.
type DelayFunc func(ctx context.Context, d time.Duration) error

func realDelay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Report summarizes one orchestrator run.
type Report struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDelay overrides the inter-window delay function.
func WithDelay(delay DelayFunc) Option {
	return func(o *Orchestrator) {
		o.delay = delay
	}
}

// Orchestrator runs rows through a Processor in windows. Rows are handled
// strictly in order, each persisted before the next begins, so an
// interrupted run can resume without losing completed work.
type Orchestrator struct {
	store     store.Store
	processor Processor
	delay     DelayFunc
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(st store.Store, processor Processor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     st,
		processor: processor,
		delay:     realDelay,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run processes rows in windows of settings.BatchSize with settings.BatchDelay
// pauses between windows. Already-completed rows are skipped but still occupy
// their window slot, keeping window boundaries stable across resumed runs.
// A row failure marks only that row; the run continues. Run returns early
// only on context cancellation.
func (o *Orchestrator) Run(ctx context.Context, rows []model.Row, settings model.RateLimitSettings) (*Report, error) {
	report := &Report{Total: len(rows)}
	if len(rows) == 0 {
		return report, nil
	}

	batchSize := settings.BatchSize
	if batchSize <= 0 {
		batchSize = model.DefaultRateLimitSettings().BatchSize
	}

	for start := 0; start < len(rows); start += batchSize {
		if start > 0 {
			if err := o.delay(ctx, settings.BatchDelay()); err != nil {
				return report, err
			}
		}

		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}

		for i := start; i < end; i++ {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			o.processRow(ctx, &rows[i], settings, report)
		}
	}

	zap.L().Info("batch run finished",
		zap.Int("total", report.Total),
		zap.Int("completed", report.Completed),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}

func (o *Orchestrator) processRow(ctx context.Context, row *model.Row, settings model.RateLimitSettings, report *Report) {
	if row.Status == model.RowStatusCompleted {
		report.Skipped++
		return
	}

	// A retried row starts from a clean slate.
	row.ResetForRetry()

	row.Status = model.RowStatusGenerating
	if err := o.store.UpdateRow(ctx, row); err != nil {
		zap.L().Error("failed to mark row generating", zap.String("row_id", row.ID), zap.Error(err))
		report.Failed++
		return
	}

	if err := o.processor.Process(ctx, row, settings); err != nil {
		row.Status = model.RowStatusError
		row.Error = err.Error()
		report.Failed++
		zap.L().Warn("row failed", zap.String("row_id", row.ID), zap.Error(err))
	} else {
		row.Status = model.RowStatusCompleted
		row.Error = ""
		report.Completed++
	}

	if err := o.store.UpdateRow(ctx, row); err != nil {
		zap.L().Error("failed to persist row result", zap.String("row_id", row.ID), zap.Error(err))
	}
}
