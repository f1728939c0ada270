// Package report exports a session's score history as a spreadsheet.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-study/internal/study"
)

const (
	historySheet  = "History"
	progressSheet = "Progress"
	timeLayout    = "2006-01-02 15:04"
)

var historyHeader = []any{"Attempt", "Submitted", "Topic", "Difficulty", "Score", "Total", "Percentage"}

// WriteHistory writes an XLSX workbook with one row per quiz attempt and a
// "Progress" sheet charting completed against remaining checklist items.
func WriteHistory(w io.Writer, view study.SessionView, history []study.QuizResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	if err := f.SetSheetRow(historySheet, "A1", &historyHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetRowStyle(historySheet, 1, 1, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, r := range history {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			i + 1,
			r.SubmittedAt.UTC().Format(timeLayout),
			r.Topic,
			string(r.Difficulty),
			r.Score,
			r.Total,
			r.Percentage,
		}
		if err := f.SetSheetRow(historySheet, cell, &row); err != nil {
			return fmt.Errorf("write attempt %d: %w", i+1, err)
		}
	}
	if err := f.SetColWidth(historySheet, "B", "C", 22); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if err := writeProgress(f, view, bold); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeProgress(f *excelize.File, view study.SessionView, bold int) error {
	if _, err := f.NewSheet(progressSheet); err != nil {
		return fmt.Errorf("create progress sheet: %w", err)
	}

	rows := [][]any{
		{"Status", "Items"},
		{"Completed", view.Checklist.Completed},
		{"Remaining", view.Checklist.Remaining},
		{"Topic", view.Topic},
		{"Best %", view.Scores.BestPercentage},
		{"Average %", view.Scores.AveragePercentage},
	}
	for i, row := range rows {
		if err := f.SetSheetRow(progressSheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return fmt.Errorf("write progress row: %w", err)
		}
	}
	if err := f.SetRowStyle(progressSheet, 1, 1, bold); err != nil {
		return fmt.Errorf("style progress header: %w", err)
	}

	if view.Checklist.Total == 0 {
		return nil
	}
	return f.AddChart(progressSheet, "D1", &excelize.Chart{
		Type: excelize.Pie,
		Series: []excelize.ChartSeries{{
			Name:       progressSheet + "!$B$1",
			Categories: progressSheet + "!$A$2:$A$3",
			Values:     progressSheet + "!$B$2:$B$3",
		}},
		Title: []excelize.RichTextRun{{Text: "Checklist progress"}},
	})
}
