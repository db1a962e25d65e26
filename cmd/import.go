package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/qna-cli/internal/qimport"
)

var (
	importPath     string
	importProject  string
	importSheet    string
	importSkipRows int
	importQuestCol int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import questionnaire rows from an XLSX workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		created, err := qimport.Import(ctx, st, importProject, importPath, qimport.Options{
			SheetName:      importSheet,
			SkipRows:       importSkipRows,
			QuestionColumn: importQuestCol,
		})
		if err != nil {
			return eris.Wrap(err, "import questionnaire")
		}

		zap.L().Info("import complete",
			zap.Int("created", created),
			zap.String("workbook", importPath),
			zap.String("project", importProject),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importPath, "file", "", "path to XLSX workbook (required)")
	importCmd.Flags().StringVar(&importProject, "project", "", "project ID to import into (required)")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "sheet name (default: first sheet)")
	importCmd.Flags().IntVar(&importSkipRows, "skip-rows", 1, "header rows to skip")
	importCmd.Flags().IntVar(&importQuestCol, "question-col", 0, "zero-based question column")
	_ = importCmd.MarkFlagRequired("file")
	_ = importCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(importCmd)
}
