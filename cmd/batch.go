package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/qna-cli/internal/batch"
)

var batchProject string

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Answer a project's questionnaire rows in rate-limited batches",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rows, err := env.Store.ListRows(ctx, batchProject)
		if err != nil {
			return eris.Wrap(err, "list rows")
		}
		if len(rows) == 0 {
			zap.L().Info("no rows to process", zap.String("project", batchProject))
			return nil
		}

		settings := batch.LoadSettings(ctx, env.Store)
		zap.L().Info("starting batch run",
			zap.String("project", batchProject),
			zap.Int("rows", len(rows)),
			zap.Int("batch_size", settings.BatchSize),
			zap.Int("batch_delay_ms", settings.BatchDelayMs),
		)

		orchestrator := batch.NewOrchestrator(env.Store, newPipeline(env))
		report, err := orchestrator.Run(ctx, rows, settings)
		if err != nil {
			return eris.Wrap(err, "batch run")
		}

		zap.L().Info("batch complete",
			zap.Int("total", report.Total),
			zap.Int("completed", report.Completed),
			zap.Int("failed", report.Failed),
			zap.Int("skipped", report.Skipped),
		)
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchProject, "project", "", "project ID to process (required)")
	_ = batchCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(batchCmd)
}
