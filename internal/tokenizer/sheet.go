package tokenizer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet reads the first worksheet of an .xlsx workbook. Cells are trimmed
// and empty rows skipped, matching Tokenize.
func Sheet(content []byte, opts Options) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	raw, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}

	var rows [][]string
	for _, r := range raw {
		blank := true
		row := make([]string, len(r))
		for i, cell := range r {
			row[i] = strings.TrimSpace(cell)
			if row[i] != "" {
				blank = false
			}
		}
		if !blank {
			rows = append(rows, row)
		}
	}
	return window(rows, opts), nil
}
