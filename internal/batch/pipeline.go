package batch

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/qna-cli/internal/answer"
	"github.com/sells-group/qna-cli/internal/model"
	"github.com/sells-group/qna-cli/internal/prompt"
	"github.com/sells-group/qna-cli/internal/ranker"
	"github.com/sells-group/qna-cli/internal/store"
)

// Pipeline is the standard row processor: rank knowledge against the
// question, assemble the system prompt, generate the answer, and record
// token usage.
type Pipeline struct {
	store          store.Store
	ranker         ranker.Ranker
	generator      *answer.Generator
	sections       []prompt.Section
	fallbackText   string
	maxSkills      int
	knowledgeTiers []model.Tier
}

// PipelineConfig carries the knobs a Pipeline needs beyond its
// collaborators.
type PipelineConfig struct {
	// Sections are the ordered system-prompt sections.
	Sections []prompt.Section
	// FallbackText is injected when ranking surfaces no relevant knowledge.
	FallbackText string
	// MaxSkills caps how many ranked entries enter the prompt.
	MaxSkills int
	// Tiers restricts which knowledge tiers are candidates. Empty means all.
	Tiers []model.Tier
}

// NewPipeline creates a Pipeline.
func NewPipeline(st store.Store, rk ranker.Ranker, gen *answer.Generator, cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		store:          st,
		ranker:         rk,
		generator:      gen,
		sections:       cfg.Sections,
		fallbackText:   cfg.FallbackText,
		maxSkills:      cfg.MaxSkills,
		knowledgeTiers: cfg.Tiers,
	}
}

// Process answers one row in place. The row's history, used skills,
// fallback flag, and response are filled on success.
func (p *Pipeline) Process(ctx context.Context, row *model.Row, settings model.RateLimitSettings) error {
	skills, err := p.store.ListSkills(ctx, store.SkillFilter{
		Tiers:      p.knowledgeTiers,
		ActiveOnly: true,
	})
	if err != nil {
		return err
	}

	ranked := p.ranker.Rank(row.Question, skills)
	knowledge, usedIDs := prompt.KnowledgeBlock(ranked, p.maxSkills)

	fallback := ""
	usedFallback := false
	if knowledge == "" && p.fallbackText != "" {
		fallback = p.fallbackText
		usedFallback = true
	}

	result, err := p.generator.Answer(ctx, answer.Request{
		Question:     row.Question,
		SystemPrompt: prompt.Assemble(p.sections, knowledge, fallback),
		History:      row.History,
		UsedFallback: usedFallback,
	}, settings)
	if err != nil {
		return err
	}

	row.Response = result.Text
	row.UsedSkills = usedIDs
	row.UsedFallback = result.UsedFallback
	row.History = result.History

	if err := p.store.RecordUsage(ctx, model.UsageRecord{
		Feature:      "batch",
		Model:        result.Model,
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
		Metadata:     map[string]string{"project_id": row.ProjectID, "row_id": row.ID},
	}); err != nil {
		// Usage accounting must not fail the answered row.
		zap.L().Warn("failed to record usage", zap.String("row_id", row.ID), zap.Error(err))
	}
	result.Usage.LogCost(result.Model, "batch")

	return nil
}
