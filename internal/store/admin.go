package store

import (
	"context"
	"sort"

	"github.com/cleared-dev/tally/internal/model"
)

// Admin is a Store that also serves the browse and manual-edit paths used
// by the CLI and HTTP server.
type Admin interface {
	Store

	// EditTransaction applies a manual correction and marks the row manual.
	EditTransaction(ctx context.Context, id string, edit model.TransactionEdit) (*model.StoredTransaction, error)
	// ListTransactions returns transactions newest first. An empty
	// accountID lists every account.
	ListTransactions(ctx context.Context, accountID string) ([]model.StoredTransaction, error)
	ListImports(ctx context.Context) ([]model.ImportRecord, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)
	Close() error
}

// sortTransactions orders newest first, then by ID.
func sortTransactions(txns []model.StoredTransaction) {
	sort.Slice(txns, func(i, j int) bool {
		if !txns[i].Date.Equal(txns[j].Date) {
			return txns[i].Date.After(txns[j].Date)
		}
		return txns[i].ID < txns[j].ID
	})
}
