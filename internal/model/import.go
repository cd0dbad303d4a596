package model

import "time"

// ImportRecord is written once per accepted file. (Filename, Checksum) is
// unique. A record stays incomplete until every transaction in the file has
// been merged; an incomplete record lets the same file be imported again.
type ImportRecord struct {
	ID         string
	Filename   string
	Checksum   string
	AccountID  string
	ImportedAt time.Time
	Completed  bool
}

// SkippedRow describes a data row a parser could not use.
type SkippedRow struct {
	Row    int // 1-based position among the file's non-blank rows
	Reason string
}

// ParseOutcome is what a parser produces for one file.
type ParseOutcome struct {
	Transactions []Transaction
	AccountName  string
	AccountType  AccountType
	Skipped      []SkippedRow
	Warnings     []string // file-level problems that did not stop the parse
}
