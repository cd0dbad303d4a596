// Package tokenizer turns raw export bytes into rows of string fields.
package tokenizer

import (
	"path/filepath"
	"strings"
)

// Options selects which rows of a file are data rows.
type Options struct {
	HeaderRows int // non-blank rows dropped from the top
	FooterRows int // non-blank rows dropped from the bottom
}

// Rows tokenizes content according to the file's extension: .xlsx
// workbooks are read with Sheet, everything else with Tokenize.
func Rows(filename string, content []byte, opts Options) ([][]string, error) {
	if strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		return Sheet(content, opts)
	}
	return Tokenize(content, opts), nil
}

// Tokenize splits comma-separated content into rows. Quoted fields may
// contain commas, doubled quotes and newlines. Unquoted fields are trimmed.
// Blank lines are skipped and do not count as header or footer rows.
//
// Malformed quoting never fails: a quote in the middle of an unquoted field
// is literal, and a quote that is never closed is re-read as a literal
// character so the rest of the file still splits into rows.
func Tokenize(content []byte, opts Options) [][]string {
	text := strings.ReplaceAll(Decode(content), "\r\n", "\n")

	s := &scanner{text: text, literal: make(map[int]bool)}
	for {
		rows, open := s.scan()
		if open < 0 {
			return window(rows, opts)
		}
		s.literal[open] = true
	}
}

// window drops header and footer rows.
func window(rows [][]string, opts Options) [][]string {
	start := opts.HeaderRows
	end := len(rows) - opts.FooterRows
	if start < 0 {
		start = 0
	}
	if end <= start {
		return nil
	}
	return rows[start:end]
}

type scanner struct {
	text    string
	literal map[int]bool // offsets of quotes to treat as plain characters
}

// scan tokenizes the whole text. If a quoted field is still open at the
// end of input it returns the offset of its opening quote instead.
func (s *scanner) scan() ([][]string, int) {
	var (
		rows      [][]string
		fields    []string
		field     strings.Builder
		quoted    bool // current field started with a quote
		inQuotes  bool
		closed    bool // closing quote seen for the current field
		openAt    = -1
		anyQuoted bool
	)

	endField := func() {
		v := field.String()
		if !quoted {
			v = strings.TrimSpace(v)
		}
		fields = append(fields, v)
		field.Reset()
		anyQuoted = anyQuoted || quoted
		quoted, closed = false, false
	}
	endRow := func() {
		endField()
		if anyQuoted || len(fields) > 1 || fields[0] != "" {
			rows = append(rows, fields)
		}
		fields = nil
		anyQuoted = false
	}

	text := s.text
	for i := 0; i < len(text); i++ {
		c := text[i]

		if inQuotes {
			if c != '"' {
				field.WriteByte(c)
				continue
			}
			if i+1 < len(text) && text[i+1] == '"' {
				field.WriteByte('"')
				i++
				continue
			}
			inQuotes, closed = false, true
			continue
		}

		switch c {
		case ',':
			endField()
		case '\n', '\r':
			endRow()
		case '"':
			if !quoted && !s.literal[i] && strings.TrimSpace(field.String()) == "" {
				field.Reset()
				quoted, inQuotes, openAt = true, true, i
				continue
			}
			field.WriteByte(c)
		case ' ', '\t':
			if closed {
				continue
			}
			field.WriteByte(c)
		default:
			field.WriteByte(c)
		}
	}

	if inQuotes {
		return nil, openAt
	}
	if field.Len() > 0 || quoted || len(fields) > 0 {
		endRow()
	}
	return rows, -1
}
