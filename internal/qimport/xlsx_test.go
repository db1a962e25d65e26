package qimport

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/qna-cli/internal/model"
	"github.com/sells-group/qna-cli/internal/store"
)

func writeWorkbook(t *testing.T, sheetName string, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	require.NoError(t, err)
	for _, cells := range rows {
		row := sheet.AddRow()
		for _, c := range cells {
			row.AddCell().SetString(c)
		}
	}
	path := filepath.Join(t.TempDir(), "questionnaire.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadQuestions(t *testing.T) {
	path := writeWorkbook(t, "Questions", [][]string{
		{"#", "Question"},
		{"1", "What is your uptime SLA?"},
		{"2", ""},
		{"3", "Do you support SSO?"},
	})

	questions, err := ReadQuestions(path, Options{SkipRows: 1, QuestionColumn: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"What is your uptime SLA?", "Do you support SSO?"}, questions)
}

func TestReadQuestionsSheetByName(t *testing.T) {
	path := writeWorkbook(t, "Security", [][]string{{"Do you encrypt at rest?"}})

	questions, err := ReadQuestions(path, Options{SheetName: "Security"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Do you encrypt at rest?"}, questions)

	_, err = ReadQuestions(path, Options{SheetName: "Missing"})
	assert.Error(t, err)
}

func TestImportCreatesPendingRows(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(ctx))

	path := writeWorkbook(t, "Questions", [][]string{
		{"Question"},
		{"What is your uptime SLA?"},
		{"Do you support SSO?"},
	})

	created, err := Import(ctx, s, "proj-1", path, Options{SkipRows: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	rows, err := s.ListRows(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, model.RowStatusPending, r.Status)
	}
}
