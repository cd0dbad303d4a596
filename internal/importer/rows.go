package importer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/tally/internal/model"
	"github.com/cleared-dev/tally/internal/tokenizer"
)

// Date layouts seen across exports. "1/2/2006" also accepts zero-padded values.
var (
	usDateLayouts  = []string{"1/2/2006", "2006-01-02"}
	isoDateLayouts = []string{"2006-01-02", "1/2/2006"}
)

// rowFunc converts one data row. Returning an error skips the row.
type rowFunc func(rec []string) (model.Transaction, error)

// eachRow tokenizes content with layout and applies fn to every data row
// with at least layout.MinFields fields. Rows that fail are reported, not
// fatal.
func eachRow(content []byte, filename string, layout Layout, fn rowFunc) ([]model.Transaction, []model.SkippedRow, error) {
	rows, err := tokenizer.Rows(filename, content, layout.options())
	if err != nil {
		return nil, nil, err
	}

	var (
		txns    []model.Transaction
		skipped []model.SkippedRow
	)
	for i, rec := range rows {
		rowNum := layout.HeaderRows + i + 1
		if len(rec) < layout.MinFields {
			skipped = append(skipped, model.SkippedRow{
				Row:    rowNum,
				Reason: fmt.Sprintf("expected at least %d fields, got %d", layout.MinFields, len(rec)),
			})
			continue
		}
		txn, err := fn(rec)
		if err != nil {
			skipped = append(skipped, model.SkippedRow{Row: rowNum, Reason: err.Error()})
			continue
		}
		txns = append(txns, txn)
	}
	return txns, skipped, nil
}

// parseMoney reads an export amount. It accepts currency symbols, thousands
// separators, a leading "+", signed values ("$-1088.00", "- $1,088.00"),
// parenthesized negatives ("(1088.00)", "$(1088.00)") and a trailing minus
// ("1088.00-").
func parseMoney(s string) (decimal.Decimal, error) {
	v := strings.Map(func(r rune) rune {
		switch r {
		case '$', ',', ' ', '+':
			return -1
		}
		return r
	}, s)
	neg := false
	switch {
	case strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")"):
		neg = true
		v = v[1 : len(v)-1]
	case strings.HasPrefix(v, "-(") && strings.HasSuffix(v, ")"):
		neg = true
		v = v[2 : len(v)-1]
	case len(v) > 1 && strings.HasSuffix(v, "-") && !strings.HasPrefix(v, "-"):
		neg = true
		v = v[:len(v)-1]
	}
	if v == "" {
		return decimal.Zero, fmt.Errorf("parsing amount %q: %w", s, errors.New("empty value"))
	}

	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

// parseDate returns the calendar date of s using the first layout that fits.
func parseDate(s string, layouts []string) (time.Time, error) {
	v := strings.TrimSpace(s)
	var firstErr error
	for _, l := range layouts {
		t, err := time.Parse(l, v)
		if err == nil {
			return model.CalendarDate(t), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, fmt.Errorf("parsing date %q: %w", s, firstErr)
}
