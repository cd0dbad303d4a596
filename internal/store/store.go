// Package store persists accounts, import records and transactions.
package store

import (
	"context"
	"errors"

	"github.com/cleared-dev/tally/internal/model"
)

var (
	// ErrNotFound is returned when a row to update does not exist.
	ErrNotFound = errors.New("not found")
	// ErrImportExists is returned when (filename, checksum) is already recorded.
	ErrImportExists = errors.New("import already recorded")
	// ErrTransactionExists is returned when a transaction ID is already stored.
	ErrTransactionExists = errors.New("transaction already exists")
	// ErrManualLock is returned when an import tries to update a manually edited row.
	ErrManualLock = errors.New("transaction is manually edited")
)

//go:generate mockgen -source=store.go -destination=store_mock.go -package=store

// Store is the persistence boundary the import coordinator works against.
// Find methods return nil, nil when nothing matches.
type Store interface {
	// Account operations
	FindAccountByName(ctx context.Context, name string) (*model.Account, error)
	CreateAccount(ctx context.Context, name string, accountType model.AccountType) (*model.Account, error)

	// Import record operations. CreateImport stores an incomplete record;
	// CompleteImport marks it done once its transactions are merged.
	FindImport(ctx context.Context, filename, checksum string) (*model.ImportRecord, error)
	CreateImport(ctx context.Context, filename, checksum, accountID string) (*model.ImportRecord, error)
	CompleteImport(ctx context.Context, importID string) error

	// Transaction operations
	FindTransaction(ctx context.Context, id string) (*model.StoredTransaction, error)
	CreateTransaction(ctx context.Context, txn model.Transaction, accountID, importID string) error
	UpdateTransaction(ctx context.Context, id string, update model.TransactionUpdate) error
}

// Batcher is implemented by stores that can persist a group of writes at
// once. fn receives a Store whose writes reach durable storage together
// when fn returns, including those made before fn failed. If that final
// write fails, none of fn's changes are kept and the write error is
// returned instead of fn's.
type Batcher interface {
	Batch(ctx context.Context, fn func(Store) error) error
}
