// Package ingest runs one export file through detection, parsing and the
// merge into the store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cleared-dev/tally/internal/id"
	"github.com/cleared-dev/tally/internal/importer"
	"github.com/cleared-dev/tally/internal/model"
	"github.com/cleared-dev/tally/internal/store"
)

// Stage is a step of a single import.
type Stage string

const (
	StageIdle             Stage = "idle"
	StageDetecting        Stage = "detecting"
	StageParsing          Stage = "parsing"
	StageResolvingAccount Stage = "resolving_account"
	StageMerging          Stage = "merging"
	StageDone             Stage = "done"
	StageFailed           Stage = "failed"
)

// User-facing messages.
const (
	msgDuplicateFile = "This file has already been imported."
	msgNoParser      = "No parser available for account: %s"
	msgUnsupported   = "Unsupported institution for file: %s"
	msgParseFailed   = "Import failed: could not read file."
	msgSaveFailed    = "Import failed: could not save transactions."
	msgSuccess       = "Successfully imported %d transactions. %d duplicates skipped."
)

// Result is what callers of ImportFile see. It never carries internal
// error detail.
type Result struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	ImportedCount  int    `json:"imported_count"`
	DuplicateCount int    `json:"duplicate_count"`
	SkippedCount   int    `json:"skipped_count"`
	ImportID       string `json:"import_id,omitempty"`
	Account        string `json:"account,omitempty"`
}

// Coordinator imports files. It holds no per-import state, so one
// Coordinator may serve concurrent imports.
type Coordinator struct {
	store    store.Store
	registry *importer.Registry
	logger   *slog.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(s store.Store, registry *importer.Registry, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{store: s, registry: registry, logger: logger}
}

// run tracks one ImportFile call.
type run struct {
	stage  Stage
	result Result
	logger *slog.Logger
}

func (r *run) enter(stage Stage) {
	r.logger.Debug("import stage", "from", r.stage, "to", stage)
	r.stage = stage
}

// fail moves the run to StageFailed and returns the result and error.
func (r *run) fail(kind Kind, message string, cause error) (Result, error) {
	err := &Error{Kind: kind, Stage: r.stage, Message: message, Cause: cause}
	r.stage = StageFailed
	r.result.Success = false
	r.result.Message = message

	if cause != nil {
		r.logger.Error("import failed", "kind", kind, "stage", err.Stage, "error", cause)
	} else {
		r.logger.Info("import rejected", "kind", kind, "stage", err.Stage)
	}
	return r.result, err
}

// ImportFile imports one export file. filename is the file's base name;
// it selects the institution. The returned error is an *Error whenever
// Result.Success is false.
func (c *Coordinator) ImportFile(ctx context.Context, filename string, content []byte) (Result, error) {
	r := &run{stage: StageIdle, logger: c.logger.With("file", filename)}

	r.enter(StageDetecting)
	inst := importer.Detect(filename)
	if inst == importer.InstitutionUnknown {
		return r.fail(KindUnsupportedInstitution, fmt.Sprintf(msgUnsupported, filename), nil)
	}
	parser := c.registry.Get(inst)
	if parser == nil {
		return r.fail(KindNoParser, fmt.Sprintf(msgNoParser, inst), nil)
	}

	checksum := id.Checksum(content)
	existing, err := c.store.FindImport(ctx, filename, checksum)
	if err != nil {
		return r.fail(KindPersistence, msgSaveFailed, fmt.Errorf("checking previous imports: %w", err))
	}
	if existing != nil && existing.Completed {
		return r.fail(KindDuplicateFile, msgDuplicateFile, nil)
	}

	r.enter(StageParsing)
	outcome, err := parser.Parse(content, filename)
	if err != nil {
		return r.fail(KindParseFailed, msgParseFailed, err)
	}
	for _, w := range outcome.Warnings {
		r.logger.Warn("parse warning", "warning", w)
	}
	for _, s := range outcome.Skipped {
		r.logger.Warn("skipped row", "row", s.Row, "reason", s.Reason)
	}
	r.result.SkippedCount = len(outcome.Skipped)
	r.result.Account = outcome.AccountName

	r.enter(StageResolvingAccount)
	acct, err := c.store.CreateAccount(ctx, outcome.AccountName, outcome.AccountType)
	if err != nil {
		return r.fail(KindPersistence, msgSaveFailed, fmt.Errorf("resolving account %q: %w", outcome.AccountName, err))
	}
	rec := existing
	if rec != nil {
		// An earlier attempt stopped part way; merging again fills the gaps.
		r.logger.Info("resuming incomplete import", "import_id", rec.ID)
	} else {
		rec, err = c.store.CreateImport(ctx, filename, checksum, acct.ID)
		if errors.Is(err, store.ErrImportExists) {
			return r.fail(KindDuplicateFile, msgDuplicateFile, nil)
		}
		if err != nil {
			return r.fail(KindPersistence, msgSaveFailed, fmt.Errorf("recording import: %w", err))
		}
	}
	r.result.ImportID = rec.ID

	r.enter(StageMerging)
	var mergeErr error
	err = c.batch(ctx, func(s store.Store) error {
		mergeErr = r.mergeAll(ctx, s, outcome.Transactions, acct.ID, rec.ID)
		return mergeErr
	})
	if err != nil {
		if mergeErr == nil || !errors.Is(err, mergeErr) {
			// The batch was not persisted, so nothing it counted was kept.
			r.result.ImportedCount, r.result.DuplicateCount = 0, 0
		}
		return r.fail(KindPersistence, msgSaveFailed, err)
	}

	r.enter(StageDone)
	r.result.Success = true
	r.result.Message = fmt.Sprintf(msgSuccess, r.result.ImportedCount, r.result.DuplicateCount)
	r.logger.Info("import complete",
		"account", outcome.AccountName,
		"imported", r.result.ImportedCount,
		"duplicates", r.result.DuplicateCount,
		"skipped", r.result.SkippedCount)
	return r.result, nil
}

// batch runs fn so that its writes are persisted together when the store
// supports it.
func (c *Coordinator) batch(ctx context.Context, fn func(store.Store) error) error {
	if b, ok := c.store.(store.Batcher); ok {
		return b.Batch(ctx, fn)
	}
	return fn(c.store)
}

// mergeAll merges every transaction, counting as it goes, and then marks
// the import complete.
func (r *run) mergeAll(ctx context.Context, s store.Store, txns []model.Transaction, accountID, importID string) error {
	for _, txn := range txns {
		created, err := merge(ctx, s, txn, accountID, importID)
		if err != nil {
			return fmt.Errorf("merging transaction %s: %w", txn.ID, err)
		}
		if created {
			r.result.ImportedCount++
		} else {
			r.result.DuplicateCount++
		}
	}
	if err := s.CompleteImport(ctx, importID); err != nil {
		return fmt.Errorf("completing import: %w", err)
	}
	return nil
}

// merge applies one parsed transaction. It reports true when a new row was
// created and false when the transaction was already stored.
func merge(ctx context.Context, s store.Store, txn model.Transaction, accountID, importID string) (bool, error) {
	found, err := s.FindTransaction(ctx, txn.ID)
	if err != nil {
		return false, err
	}

	if found == nil {
		err := s.CreateTransaction(ctx, txn, accountID, importID)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, store.ErrTransactionExists) {
			return false, err
		}
		// Another import created it first; merge into that row instead.
		if found, err = s.FindTransaction(ctx, txn.ID); err != nil {
			return false, err
		}
		if found == nil {
			return false, fmt.Errorf("transaction %s reported as existing but not found", txn.ID)
		}
	}

	if found.IsManual {
		return false, nil
	}
	err = s.UpdateTransaction(ctx, txn.ID, mergeUpdate(found.Transaction, txn))
	if err != nil && !errors.Is(err, store.ErrManualLock) {
		return false, err
	}
	return false, nil
}

// mergeUpdate refreshes the fields an export owns and fills the enrichment
// fields only where the stored row has none.
func mergeUpdate(existing, incoming model.Transaction) model.TransactionUpdate {
	return model.TransactionUpdate{
		Date:           incoming.Date,
		Amount:         incoming.Amount,
		Merchant:       incoming.Merchant,
		Category:       fillEmpty(existing.Category, incoming.Category),
		Note:           fillEmpty(existing.Note, incoming.Note),
		CustomCategory: fillEmpty(existing.CustomCategory, incoming.CustomCategory),
	}
}

func fillEmpty(current, incoming string) string {
	if current != "" {
		return current
	}
	return incoming
}
