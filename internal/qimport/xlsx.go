// Package qimport loads questionnaire workbooks into the store as pending
// rows.
package qimport

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/qna-cli/internal/model"
	"github.com/sells-group/qna-cli/internal/store"
)

// Options configures the workbook parser.
type Options struct {
	SheetIndex     int    // default 0
	SheetName      string // if set, overrides SheetIndex
	SkipRows       int    // number of header rows to skip
	QuestionColumn int    // zero-based column holding the question text
}

// ReadQuestions reads a questionnaire workbook and returns its question
// cells in sheet order. Blank question cells are skipped.
func ReadQuestions(path string, opts Options) ([]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "qimport: open workbook")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	var questions []string
	for i, row := range sheet.Rows {
		if i < opts.SkipRows {
			continue
		}
		if opts.QuestionColumn >= len(row.Cells) {
			continue
		}
		q := strings.TrimSpace(row.Cells[opts.QuestionColumn].String())
		if q == "" {
			continue
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// Import reads the workbook and creates one pending row per question under
// projectID. Returns the number of rows created.
func Import(ctx context.Context, st store.Store, projectID, path string, opts Options) (int, error) {
	questions, err := ReadQuestions(path, opts)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, q := range questions {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		row := &model.Row{ProjectID: projectID, Question: q}
		if err := st.CreateRow(ctx, row); err != nil {
			return created, eris.Wrapf(err, "qimport: create row for %q", q)
		}
		created++
	}

	zap.L().Info("questionnaire imported",
		zap.String("project_id", projectID),
		zap.String("workbook", path),
		zap.Int("rows", created),
	)
	return created, nil
}

func getSheet(f *xlsx.File, opts Options) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("qimport: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("qimport: sheet index %d out of range (workbook has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}
