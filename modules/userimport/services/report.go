package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

const ResultColumn = "Result"

// reportLines returns one line per data row of file, defaulting to NotProcessed.
func reportLines(file *ParsedFile, outcomes map[int]string) []ReportLine {
	if file == nil {
		return nil
	}
	lines := make([]ReportLine, 0, len(file.Rows))
	for _, row := range file.Rows {
		text, ok := outcomes[row.Line]
		if !ok || text == "" {
			text = string(OutcomeNotProcessed)
		}
		lines = append(lines, ReportLine{Line: row.Line, Outcome: text})
	}
	return lines
}

// BuildReport renders the input again with a trailing Result column, using
// the input delimiter and a UTF-8 BOM so spreadsheets pick the right encoding.
func BuildReport(file *ParsedFile, lines []ReportLine) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(utf8BOM)

	w := csv.NewWriter(&buf)
	w.Comma = file.Delimiter
	w.UseCRLF = true

	if err := w.Write(appendCell(file.Header.Cells, ResultColumn)); err != nil {
		return nil, fmt.Errorf("write report header: %w", err)
	}
	byLine := make(map[int]string, len(lines))
	for _, l := range lines {
		byLine[l.Line] = l.Outcome
	}
	for _, row := range file.Rows {
		outcome, ok := byLine[row.Line]
		if !ok {
			outcome = string(OutcomeNotProcessed)
		}
		if err := w.Write(appendCell(row.Cells, outcome)); err != nil {
			return nil, fmt.Errorf("write report line %d: %w", row.Line, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildXLSXReport renders the same table as a single-sheet workbook.
func BuildXLSXReport(file *ParsedFile, lines []ReportLine) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "Report"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, err
	}

	byLine := make(map[int]string, len(lines))
	for _, l := range lines {
		byLine[l.Line] = l.Outcome
	}

	writeRow := func(idx int, cells []string) error {
		cell, err := excelize.CoordinatesToCellName(1, idx)
		if err != nil {
			return err
		}
		values := make([]any, len(cells))
		for i, c := range cells {
			values[i] = c
		}
		return f.SetSheetRow(sheet, cell, &values)
	}

	if err := writeRow(1, appendCell(file.Header.Cells, ResultColumn)); err != nil {
		return nil, err
	}
	for i, row := range file.Rows {
		outcome, ok := byLine[row.Line]
		if !ok {
			outcome = string(OutcomeNotProcessed)
		}
		if err := writeRow(i+2, appendCell(row.Cells, outcome)); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReportFileName returns Rapport_<name>.csv for an uploaded file name.
func ReportFileName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "import"
	}
	return "Rapport_" + base + ".csv"
}

func appendCell(cells []string, last string) []string {
	out := make([]string, 0, len(cells)+1)
	out = append(out, cells...)
	return append(out, last)
}
