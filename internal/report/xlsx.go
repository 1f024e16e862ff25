package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/TabarBaptiste/masseuse/internal/usecase/conflict"
)

const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// sheetWriter appends rows to the sheets of one workbook.
type sheetWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

func newSheetWriter() *sheetWriter {
	return &sheetWriter{file: excelize.NewFile()}
}

func (w *sheetWriter) addSheet(name string) error {
	if len(name) > 31 {
		name = name[:31]
	}

	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

func (w *sheetWriter) writeHeader(columns []string) error {
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	if err := w.writeRow(row); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		start, _ := excelize.CoordinatesToCellName(1, w.currentRow-1)
		end, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow-1)
		_ = w.file.SetCellStyle(w.currentSheet, start, end, style)
	}
	return nil
}

func (w *sheetWriter) writeRow(row []any) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	cell, err := excelize.CoordinatesToCellName(1, w.currentRow)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.currentSheet, cell, &row); err != nil {
		return err
	}
	w.currentRow++
	return nil
}

// WriteConflicts renders r as a workbook with a detail sheet and a summary
// sheet.
func WriteConflicts(out io.Writer, r *conflict.Report) error {
	w := newSheetWriter()
	defer w.file.Close()

	if err := w.addSheet("Conflicts"); err != nil {
		return err
	}
	if err := w.writeHeader([]string{
		"Severity", "Type", "Date", "Start", "End", "Bookings", "Blocked slots", "Description",
	}); err != nil {
		return err
	}
	for _, c := range r.Conflicts {
		blocked := make([]string, 0, len(c.BlockedSlotIDs))
		for _, id := range c.BlockedSlotIDs {
			blocked = append(blocked, fmt.Sprint(id))
		}
		if err := w.writeRow([]any{
			string(c.Severity),
			string(c.Type),
			c.Date,
			c.StartTime,
			c.EndTime,
			strings.Join(c.BookingIDs, ", "),
			strings.Join(blocked, ", "),
			c.Description,
		}); err != nil {
			return err
		}
	}
	_ = w.file.SetColWidth("Conflicts", "H", "H", 80)

	s := conflict.Summarize(r)
	if err := w.addSheet("Summary"); err != nil {
		return err
	}
	if err := w.writeHeader([]string{"Key", "Count"}); err != nil {
		return err
	}
	rows := [][]any{
		{"From", r.From},
		{"To", r.To},
		{"Total", s.Total},
	}
	for _, sev := range conflict.Severities {
		rows = append(rows, []any{string(sev), s.BySeverity[sev]})
	}
	for _, t := range conflict.Types {
		rows = append(rows, []any{string(t), s.ByType[t]})
	}
	for _, row := range rows {
		if err := w.writeRow(row); err != nil {
			return err
		}
	}

	return w.file.Write(out)
}

// FileName is the object name of a report for the given range.
func FileName(r *conflict.Report) string {
	from, to := r.From, r.To
	if from == "" {
		from = "start"
	}
	if to == "" {
		to = "end"
	}
	return fmt.Sprintf("conflicts_%s_%s.xlsx", from, to)
}
