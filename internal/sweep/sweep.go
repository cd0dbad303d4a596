// Package sweep imports every export waiting in the import directory.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cleared-dev/tally/internal/importer"
	"github.com/cleared-dev/tally/internal/importlog"
	"github.com/cleared-dev/tally/internal/ingest"
)

// Importer imports one file. *ingest.Coordinator satisfies it.
type Importer interface {
	ImportFile(ctx context.Context, filename string, content []byte) (ingest.Result, error)
}

// Summary totals one sweep.
type Summary struct {
	Files        int
	Imported     int // files imported
	Duplicates   int // files already imported
	Failed       int // files left in place
	Transactions int // new transactions across all files
}

// Sweeper imports the files in one import directory and records each
// attempt in the repo's import log.
type Sweeper struct {
	repoRoot  string
	importDir string
	importer  Importer
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Sweeper. importDir is usually <repoRoot>/import.
func New(repoRoot, importDir string, imp Importer, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		repoRoot:  repoRoot,
		importDir: importDir,
		importer:  imp,
		logger:    logger,
		now:       time.Now,
	}
}

// Run imports every supported file in the import directory once. Files
// that import or turn out to be duplicates move to processed/; failures
// stay where they are for the next sweep. The returned error covers the
// scan itself and bookkeeping failures, not individual import failures.
func (s *Sweeper) Run(ctx context.Context) (Summary, error) {
	files, err := importer.Scan(s.importDir)
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	var errs []error
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		sum.Files++

		entry := s.importOne(ctx, f)
		switch entry.Status {
		case importlog.StatusImported:
			sum.Imported++
			sum.Transactions += entry.Imported
		case importlog.StatusDuplicate:
			sum.Duplicates++
		default:
			sum.Failed++
		}

		if entry.Status != importlog.StatusFailed {
			if err := importer.MarkProcessed(s.importDir, f.Name); err != nil {
				errs = append(errs, err)
			}
		}
		if err := importlog.Append(s.repoRoot, []importlog.Entry{entry}); err != nil {
			errs = append(errs, err)
		}
	}

	s.logger.Info("sweep complete",
		"files", sum.Files,
		"imported", sum.Imported,
		"duplicates", sum.Duplicates,
		"failed", sum.Failed,
		"transactions", sum.Transactions)
	return sum, errors.Join(errs...)
}

func (s *Sweeper) importOne(ctx context.Context, f importer.FileInfo) importlog.Entry {
	content, err := os.ReadFile(f.Path)
	if err != nil {
		s.logger.Error("reading export", "file", f.Name, "error", err)
		return importlog.Entry{
			Timestamp: s.now().UTC(),
			Source:    "sweep",
			File:      f.Name,
			Status:    importlog.StatusFailed,
			Message:   "Import failed: could not read file.",
		}
	}

	res, err := s.importer.ImportFile(ctx, f.Name, content)
	return importlog.NewEntry(s.now(), "sweep", f.Name, res, err)
}

// Schedule runs a sweep on the cron spec, in loc, until ctx is cancelled.
// A sweep still running when the next one is due is skipped.
func (s *Sweeper) Schedule(ctx context.Context, spec string, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	clog := cronLogger{s.logger}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)

	_, err := c.AddFunc(spec, func() {
		if _, err := s.Run(ctx); err != nil {
			s.logger.Error("scheduled sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("unable to schedule sweep %q: %w", spec, err)
	}

	c.Start()
	s.logger.Info("sweep scheduler started", "schedule", spec, "timezone", loc.String())

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("sweep scheduler stopped")
	return nil
}

// cronLogger adapts slog to cron's logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
