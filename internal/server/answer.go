package server

import (
	"encoding/json"
	"net/http"
	"slices"

	"go.uber.org/zap"

	"github.com/sells-group/qna-cli/internal/answer"
	"github.com/sells-group/qna-cli/internal/batch"
	"github.com/sells-group/qna-cli/internal/model"
	"github.com/sells-group/qna-cli/internal/prompt"
	"github.com/sells-group/qna-cli/internal/ranker"
	"github.com/sells-group/qna-cli/internal/store"
)

type answerRequest struct {
	Question string          `json:"question"`
	History  []model.Message `json:"conversationHistory"`
	// Prompt overrides the configured system-prompt sections.
	Prompt string `json:"prompt"`
	// Skills pins the knowledge entries by ID instead of ranking.
	Skills []string `json:"skills"`
	// FallbackContent overrides the configured fallback text.
	FallbackContent string `json:"fallbackContent"`
}

type answerResponse struct {
	Answer       string          `json:"answer"`
	History      []model.Message `json:"conversationHistory"`
	UsedFallback bool            `json:"usedFallback"`
}

func handleAnswer(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req answerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		ctx := r.Context()
		skills, err := deps.Store.ListSkills(ctx, store.SkillFilter{ActiveOnly: true})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to list skills")
			return
		}

		knowledge := buildKnowledge(deps, req, skills)

		fallbackText := deps.FallbackText
		if req.FallbackContent != "" {
			fallbackText = req.FallbackContent
		}
		fallback := ""
		usedFallback := false
		if knowledge == "" && fallbackText != "" {
			fallback = fallbackText
			usedFallback = true
		}

		sections := deps.Sections
		if req.Prompt != "" {
			sections = []prompt.Section{{ID: "custom", Enabled: true, Text: req.Prompt}}
		}

		settings := batch.LoadSettings(ctx, deps.Store)
		result, err := deps.Generator.Answer(ctx, answer.Request{
			Question:     req.Question,
			SystemPrompt: prompt.Assemble(sections, knowledge, fallback),
			History:      trimHistory(req.History, deps.HistoryMaxTurns),
			UsedFallback: usedFallback,
		}, settings)
		if err != nil {
			switch {
			case answer.IsValidation(err):
				httpError(w, http.StatusBadRequest, "%s", err.Error())
			case answer.IsRateLimited(err):
				httpError(w, http.StatusTooManyRequests, "provider rate limited: %s", err.Error())
			default:
				zap.L().Error("answer generation failed", zap.Error(err))
				httpError(w, http.StatusInternalServerError, "answer generation failed: %s", err.Error())
			}
			return
		}

		if err := deps.Store.RecordUsage(ctx, model.UsageRecord{
			Feature:      "answer",
			Model:        result.Model,
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
		}); err != nil {
			zap.L().Warn("failed to record usage", zap.Error(err))
		}

		writeJSON(w, http.StatusOK, answerResponse{
			Answer:       result.Text,
			History:      result.History,
			UsedFallback: result.UsedFallback,
		})
	}
}

// buildKnowledge renders the knowledge block, either from the caller's
// pinned skill IDs or by ranking against the question.
func buildKnowledge(deps Deps, req answerRequest, skills []model.Skill) string {
	if len(req.Skills) > 0 {
		pinned := make([]model.Skill, 0, len(req.Skills))
		for _, s := range skills {
			if slices.Contains(req.Skills, s.ID) {
				pinned = append(pinned, s)
			}
		}
		text, _ := prompt.KnowledgeBlock(pinnedScores(pinned), deps.MaxSkills)
		return text
	}

	ranked := deps.Ranker.Rank(req.Question, skills)
	text, _ := prompt.KnowledgeBlock(ranked, deps.MaxSkills)
	return text
}

// pinnedScores marks explicitly requested skills relevant so KnowledgeBlock
// keeps them regardless of keyword overlap.
func pinnedScores(skills []model.Skill) []ranker.ScoredSkill {
	out := make([]ranker.ScoredSkill, len(skills))
	for i, s := range skills {
		out[i] = ranker.ScoredSkill{Skill: s, Score: 1}
	}
	return out
}

// trimHistory keeps the most recent maxTurns user/assistant pairs.
func trimHistory(history []model.Message, maxTurns int) []model.Message {
	if maxTurns <= 0 {
		return history
	}
	maxMessages := maxTurns * 2
	if len(history) <= maxMessages {
		return history
	}
	return history[len(history)-maxMessages:]
}
