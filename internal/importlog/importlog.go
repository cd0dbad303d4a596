// Package importlog keeps the append-only audit trail of import attempts in
// logs/import-log.csv.
package importlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cleared-dev/tally/internal/ingest"
)

// Status is the outcome of one import attempt.
type Status string

const (
	StatusImported  Status = "imported"
	StatusDuplicate Status = "duplicate"
	StatusFailed    Status = "failed"
)

// Entry is one row in the import log.
type Entry struct {
	Timestamp  time.Time
	Source     string // "cli", "sweep" or "http"
	File       string
	Account    string
	Status     Status
	Imported   int
	Duplicates int
	Skipped    int
	ImportID   string
	Message    string
}

// Header is the CSV header for import-log.csv.
const Header = "timestamp,source,file,account,status,imported,duplicates,skipped,import_id,message"

const (
	numFields     = 10
	logDir        = "logs"
	logFile       = "logs/import-log.csv"
	colTimestamp  = 0
	colSource     = 1
	colFile       = 2
	colAccount    = 3
	colStatus     = 4
	colImported   = 5
	colDuplicates = 6
	colSkipped    = 7
	colImportID   = 8
	colMessage    = 9
)

// NewEntry records the outcome of one ImportFile call.
func NewEntry(at time.Time, source, file string, res ingest.Result, err error) Entry {
	status := StatusImported
	switch {
	case ingest.KindOf(err) == ingest.KindDuplicateFile:
		status = StatusDuplicate
	case err != nil:
		status = StatusFailed
	}
	return Entry{
		Timestamp:  at.UTC(),
		Source:     source,
		File:       file,
		Account:    res.Account,
		Status:     status,
		Imported:   res.ImportedCount,
		Duplicates: res.DuplicateCount,
		Skipped:    res.SkippedCount,
		ImportID:   res.ImportID,
		Message:    res.Message,
	}
}

// mu serializes appends from the sweeper and the HTTP server.
var mu sync.Mutex

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.Format(time.RFC3339)
	row[colSource] = e.Source
	row[colFile] = e.File
	row[colAccount] = e.Account
	row[colStatus] = string(e.Status)
	row[colImported] = strconv.Itoa(e.Imported)
	row[colDuplicates] = strconv.Itoa(e.Duplicates)
	row[colSkipped] = strconv.Itoa(e.Skipped)
	row[colImportID] = e.ImportID
	row[colMessage] = e.Message
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}

	var counts [3]int
	for i, col := range []int{colImported, colDuplicates, colSkipped} {
		n, err := strconv.Atoi(record[col])
		if err != nil {
			return Entry{}, fmt.Errorf("parsing count %q: %w", record[col], err)
		}
		counts[i] = n
	}

	return Entry{
		Timestamp:  ts,
		Source:     record[colSource],
		File:       record[colFile],
		Account:    record[colAccount],
		Status:     Status(record[colStatus]),
		Imported:   counts[0],
		Duplicates: counts[1],
		Skipped:    counts[2],
		ImportID:   record[colImportID],
		Message:    record[colMessage],
	}, nil
}

// Append writes entries to <repoRoot>/logs/import-log.csv, creating the file and header if needed.
func Append(repoRoot string, entries []Entry) error {
	mu.Lock()
	defer mu.Unlock()

	dir := filepath.Join(repoRoot, logDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	path := filepath.Join(repoRoot, logFile)
	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening import log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}

	return cw.Error()
}

// Read returns all entries from <repoRoot>/logs/import-log.csv.
// Returns an empty slice if the file does not exist.
func Read(repoRoot string) ([]Entry, error) {
	path := filepath.Join(repoRoot, logFile)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening import log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading import log CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var entries []Entry
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
