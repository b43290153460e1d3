/*
report.go - Human-readable and payroll hand-off renderings of sheets

PURPOSE:
  Turns computed sheets into output for people: aligned terminal tables for
  the CLI and an .xlsx workbook for the payroll team.

OUTPUTS:
  RenderTable      One row per sheet, one column per hour category
  RenderBreakdown  One row per classified day, then excluded records
  ExportWorkbook   "Sheets" worksheet plus an "Excluded" worksheet

Hours are written as numbers in the workbook so payroll formulas work on
them directly. Category columns follow attendance.Categories order.

SEE ALSO:
  - cmd/server/main.go: sheet, breakdown and export commands
*/
package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/xuri/excelize/v2"

	"github.com/warp/attendance-engine/attendance"
)

const (
	SheetsWorksheet   = "Sheets"
	ExcludedWorksheet = "Excluded"
)

func categoryHeader() table.Row {
	row := make(table.Row, 0, len(attendance.Categories))
	for _, c := range attendance.Categories {
		row = append(row, c.String())
	}
	return row
}

// =============================================================================
// TERMINAL TABLES
// =============================================================================

// RenderTable writes the sheets as a table.
func RenderTable(w io.Writer, sheets []attendance.Sheet) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)

	header := table.Row{"Employee", "Month"}
	header = append(header, categoryHeader()...)
	header = append(header, "Total", "Days", "Excluded")
	tw.AppendHeader(header)

	for _, s := range sheets {
		row := table.Row{s.EmployeeID, fmt.Sprintf("%04d-%02d", s.Year, int(s.Month))}
		for _, c := range attendance.Categories {
			row = append(row, s.Hours(c).String())
		}
		row = append(row, s.TotalWorkHours.String(), s.TotalWorkDays.String(), len(s.Excluded))
		tw.AppendRow(row)
	}
	tw.SetColumnConfigs(numericColumns(2, len(header)))
	tw.Render()
}

// RenderBreakdown writes the per-day classification of one month.
func RenderBreakdown(w io.Writer, res attendance.AggregateResult) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.SetTitle("%s", res.Sheet.Key())

	header := table.Row{"Date", "Status"}
	header = append(header, categoryHeader()...)
	header = append(header, "Days", "Leave")
	tw.AppendHeader(header)

	for _, d := range res.Days {
		row := table.Row{d.Key.Date.String(), d.Status}
		for _, c := range attendance.Categories {
			row = append(row, attendance.MinutesToHours(d.Minutes[c]).String())
		}
		leave := ""
		if d.Leave != nil {
			leave = fmt.Sprintf("%s %s", d.Leave.Kind, d.Leave.Days)
		}
		row = append(row, d.WorkDays.String(), leave)
		tw.AppendRow(row)
	}

	footer := table.Row{"Total", ""}
	for _, c := range attendance.Categories {
		footer = append(footer, res.Sheet.Hours(c).String())
	}
	footer = append(footer, res.Sheet.TotalWorkDays.String(), "")
	tw.AppendFooter(footer)
	tw.SetColumnConfigs(numericColumns(2, len(header)-1))
	tw.Render()

	if len(res.Excluded) == 0 {
		return
	}
	ex := table.NewWriter()
	ex.SetOutputMirror(w)
	ex.SetStyle(table.StyleLight)
	ex.SetTitle("Excluded")
	ex.AppendHeader(table.Row{"Date", "Reason"})
	for _, ve := range res.Excluded {
		ex.AppendRow(table.Row{ve.Key.Date.String(), ve.Reason})
	}
	ex.Render()
}

// numericColumns right-aligns columns from (0-based) first up to, not including, end.
func numericColumns(first, end int) []table.ColumnConfig {
	var cfgs []table.ColumnConfig
	for i := first; i < end; i++ {
		cfgs = append(cfgs, table.ColumnConfig{Number: i + 1, Align: text.AlignRight})
	}
	return cfgs
}

// =============================================================================
// WORKBOOK EXPORT
// =============================================================================

// ExportWorkbook writes the sheets to w as an .xlsx workbook.
func ExportWorkbook(w io.Writer, sheets []attendance.Sheet) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetsWorksheet); err != nil {
		return fmt.Errorf("rename worksheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	header := []any{"employee_id", "year", "month"}
	for _, c := range attendance.Categories {
		header = append(header, c.String())
	}
	header = append(header, "total_work_hours", "total_work_days", "last_calculated_at")
	if err := f.SetSheetRow(SheetsWorksheet, "A1", &header); err != nil {
		return err
	}
	if err := f.SetRowStyle(SheetsWorksheet, 1, 1, bold); err != nil {
		return err
	}

	var excluded [][]any
	for i, s := range sheets {
		row := []any{s.EmployeeID, s.Year, int(s.Month)}
		for _, c := range attendance.Categories {
			row = append(row, s.Hours(c).InexactFloat64())
		}
		row = append(row, s.TotalWorkHours.InexactFloat64(), s.TotalWorkDays.InexactFloat64(), s.LastCalculatedAt.UTC().Format("2006-01-02 15:04:05"))
		if err := setRow(f, SheetsWorksheet, i+2, row); err != nil {
			return err
		}
		for _, date := range s.Excluded {
			excluded = append(excluded, []any{s.EmployeeID, date})
		}
	}

	if _, err := f.NewSheet(ExcludedWorksheet); err != nil {
		return fmt.Errorf("create worksheet: %w", err)
	}
	if err := setRow(f, ExcludedWorksheet, 1, []any{"employee_id", "date"}); err != nil {
		return err
	}
	if err := f.SetRowStyle(ExcludedWorksheet, 1, 1, bold); err != nil {
		return err
	}
	for i, row := range excluded {
		if err := setRow(f, ExcludedWorksheet, i+2, row); err != nil {
			return err
		}
	}

	return f.Write(w)
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
