package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	answerpkg "github.com/sells-group/qna-cli/internal/answer"
	"github.com/sells-group/qna-cli/internal/batch"
	"github.com/sells-group/qna-cli/internal/model"
	"github.com/sells-group/qna-cli/internal/prompt"
	"github.com/sells-group/qna-cli/internal/store"
)

var answerCmd = &cobra.Command{
	Use:   "answer [question]",
	Short: "Answer a single question against the knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		question := args[0]

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		skills, err := env.Store.ListSkills(ctx, store.SkillFilter{ActiveOnly: true})
		if err != nil {
			return eris.Wrap(err, "list skills")
		}

		ranked := env.Ranker.Rank(question, skills)
		knowledge, usedIDs := prompt.KnowledgeBlock(ranked, cfg.Answer.MaxSkills)

		fallback := ""
		usedFallback := false
		if knowledge == "" && cfg.Answer.FallbackText != "" {
			fallback = cfg.Answer.FallbackText
			usedFallback = true
		}

		settings := batch.LoadSettings(ctx, env.Store)
		result, err := env.Generator.Answer(ctx, answerpkg.Request{
			Question:     question,
			SystemPrompt: prompt.Assemble(env.Sections, knowledge, fallback),
			UsedFallback: usedFallback,
		}, settings)
		if err != nil {
			return eris.Wrap(err, "generate answer")
		}

		if err := env.Store.RecordUsage(ctx, model.UsageRecord{
			Feature:      "answer",
			Model:        result.Model,
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
		}); err != nil {
			zap.L().Warn("failed to record usage", zap.Error(err))
		}
		result.Usage.LogCost(result.Model, "answer")

		fmt.Println(result.Text)
		if len(usedIDs) > 0 {
			zap.L().Info("answer generated",
				zap.Strings("used_skills", usedIDs),
				zap.Bool("used_fallback", result.UsedFallback),
			)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(answerCmd)
}
