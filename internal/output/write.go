package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/zombor/invoice-extract/internal/invoice"
)

// DefaultDir is where results are written unless told otherwise
const DefaultDir = "jsons"

// BaseName is the file name of path without its extension
func BaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Encode writes result as JSON indented with four spaces
func Encode(w io.Writer, result *invoice.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	return enc.Encode(result)
}

// WriteJSON validates result and writes it to dir/<name>.json, creating dir
// if needed. It returns the written path.
func WriteJSON(dir, name string, result *invoice.Result) (string, error) {
	if err := Validate(result); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	path := filepath.Join(dir, name+".json")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	if err := Encode(f, result); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return path, nil
}

const detailsSheet = "Invoice Details"

// XLSX renders result as a workbook. The first sheet lists the header fields
// and each table gets its own "Table N" sheet with its rows as written.
func XLSX(result *invoice.Result) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", detailsSheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}
	write := func(sheet string, col, row int, v any) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return fmt.Errorf("sheet %q: %w", sheet, err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("writing cell %s!%s: %w", sheet, cell, err)
		}
		return nil
	}

	if err := write(detailsSheet, 1, 1, "Field"); err != nil {
		return nil, err
	}
	if err := write(detailsSheet, 2, 1, "Value"); err != nil {
		return nil, err
	}
	for i, name := range invoice.AllFields {
		if err := write(detailsSheet, 1, i+2, string(name)); err != nil {
			return nil, err
		}
		if err := write(detailsSheet, 2, i+2, result.Fields[name]); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(detailsSheet, "A", "A", 18); err != nil {
		return nil, fmt.Errorf("sizing columns: %w", err)
	}
	if err := f.SetColWidth(detailsSheet, "B", "B", 40); err != nil {
		return nil, fmt.Errorf("sizing columns: %w", err)
	}

	for t, table := range result.Tables {
		sheet := fmt.Sprintf("Table %d", t+1)
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("adding sheet %q: %w", sheet, err)
		}
		for r, row := range table {
			for c, cell := range row {
				if err := write(sheet, c+1, r+1, cell); err != nil {
					return nil, err
				}
			}
		}
	}

	index, _ := f.GetSheetIndex(detailsSheet)
	f.SetActiveSheet(index)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteXLSX writes the workbook for result to dir/<name>.xlsx
func WriteXLSX(dir, name string, result *invoice.Result) (string, error) {
	data, err := XLSX(result)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	path := filepath.Join(dir, name+".xlsx")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return path, nil
}
