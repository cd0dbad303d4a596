// Package postgres implements store.Admin on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/tally/internal/id"
	"github.com/cleared-dev/tally/internal/model"
	"github.com/cleared-dev/tally/internal/store"
)

// Store is a store.Admin backed by a pgx connection pool. Uniqueness and
// the manual lock are enforced by the SQL statements themselves.
type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger

	maxRetries uint64
	baseDelay  time.Duration
}

// Open connects to dsn and checks the connection.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return New(pool, logger), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: pool, logger: logger, maxRetries: 3, baseDelay: 50 * time.Millisecond}
}

// Close releases the pool.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

// withRetry runs fn, retrying errors pgx reports as safe to retry.
func (s *Store) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.baseDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && pgconn.SafeToRetry(err) {
			s.logger.Warn("retrying database operation", "op", op, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

const accountColumns = "id, name, type, created_at"

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	var typ string
	if err := row.Scan(&a.ID, &a.Name, &typ, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Type = model.AccountType(typ)
	return &a, nil
}

func (s *Store) FindAccountByName(ctx context.Context, name string) (*model.Account, error) {
	var acct *model.Account
	err := s.withRetry(ctx, "find account", func(ctx context.Context) error {
		var err error
		acct, err = scanAccount(s.db.QueryRow(ctx,
			"SELECT "+accountColumns+" FROM accounts WHERE name = $1", name))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return acct, nil
}

func (s *Store) CreateAccount(ctx context.Context, name string, accountType model.AccountType) (*model.Account, error) {
	var acct *model.Account
	err := s.withRetry(ctx, "create account", func(ctx context.Context) error {
		var err error
		acct, err = scanAccount(s.db.QueryRow(ctx, `
			INSERT INTO accounts (id, name, type)
			VALUES ($1, $2, $3)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING `+accountColumns,
			id.New(), name, string(accountType)))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create or get account: %w", err)
	}
	return acct, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]model.Account, error) {
	var out []model.Account
	err := s.withRetry(ctx, "list accounts", func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, "SELECT "+accountColumns+" FROM accounts ORDER BY name")
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			a, err := scanAccount(rows)
			if err != nil {
				return err
			}
			out = append(out, *a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return out, nil
}

const importColumns = "id, filename, checksum, account_id, imported_at, completed"

func scanImport(row pgx.Row) (*model.ImportRecord, error) {
	var r model.ImportRecord
	if err := row.Scan(&r.ID, &r.Filename, &r.Checksum, &r.AccountID, &r.ImportedAt, &r.Completed); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) FindImport(ctx context.Context, filename, checksum string) (*model.ImportRecord, error) {
	var rec *model.ImportRecord
	err := s.withRetry(ctx, "find import", func(ctx context.Context) error {
		var err error
		rec, err = scanImport(s.db.QueryRow(ctx,
			"SELECT "+importColumns+" FROM imports WHERE filename = $1 AND checksum = $2",
			filename, checksum))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find import: %w", err)
	}
	return rec, nil
}

func (s *Store) CreateImport(ctx context.Context, filename, checksum, accountID string) (*model.ImportRecord, error) {
	var rec *model.ImportRecord
	err := s.withRetry(ctx, "create import", func(ctx context.Context) error {
		var err error
		rec, err = scanImport(s.db.QueryRow(ctx, `
			INSERT INTO imports (id, filename, checksum, account_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (filename, checksum) DO NOTHING
			RETURNING `+importColumns,
			id.New(), filename, checksum, accountID))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrImportExists
		}
		return nil, fmt.Errorf("create import: %w", err)
	}
	return rec, nil
}

func (s *Store) CompleteImport(ctx context.Context, importID string) error {
	var updated int64
	err := s.withRetry(ctx, "complete import", func(ctx context.Context) error {
		tag, err := s.db.Exec(ctx, "UPDATE imports SET completed = true WHERE id = $1", importID)
		if err != nil {
			return err
		}
		updated = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("complete import: %w", err)
	}
	if updated == 0 {
		return fmt.Errorf("complete import %s: %w", importID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListImports(ctx context.Context) ([]model.ImportRecord, error) {
	var out []model.ImportRecord
	err := s.withRetry(ctx, "list imports", func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, "SELECT "+importColumns+" FROM imports ORDER BY imported_at, id")
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			r, err := scanImport(rows)
			if err != nil {
				return err
			}
			out = append(out, *r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	return out, nil
}

// amount is read as text so no numeric codec is needed for decimal.Decimal.
const transactionColumns = "id, date, amount::text, merchant, category, note, custom_category, account_id, import_id, is_manual, imported_at"

func scanTransaction(row pgx.Row) (*model.StoredTransaction, error) {
	var t model.StoredTransaction
	var amount string
	var importID *string
	if err := row.Scan(&t.ID, &t.Date, &amount, &t.Merchant, &t.Category, &t.Note,
		&t.CustomCategory, &t.AccountID, &importID, &t.IsManual, &t.ImportedAt); err != nil {
		return nil, err
	}
	if importID != nil {
		t.ImportID = *importID
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parsing amount %q: %w", amount, err)
	}
	t.Amount = d
	t.Date = model.CalendarDate(t.Date)
	return &t, nil
}

func (s *Store) FindTransaction(ctx context.Context, txnID string) (*model.StoredTransaction, error) {
	var txn *model.StoredTransaction
	err := s.withRetry(ctx, "find transaction", func(ctx context.Context) error {
		var err error
		txn, err = scanTransaction(s.db.QueryRow(ctx,
			"SELECT "+transactionColumns+" FROM transactions WHERE id = $1", txnID))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	return txn, nil
}

func (s *Store) CreateTransaction(ctx context.Context, txn model.Transaction, accountID, importID string) error {
	var inserted int64
	err := s.withRetry(ctx, "create transaction", func(ctx context.Context) error {
		tag, err := s.db.Exec(ctx, `
			INSERT INTO transactions
				(id, date, amount, merchant, category, note, custom_category, account_id, import_id)
			VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING`,
			txn.ID, txn.Date, txn.Amount.String(), txn.Merchant, txn.Category, txn.Note,
			txn.CustomCategory, accountID, nullIfEmpty(importID))
		if err != nil {
			return err
		}
		inserted = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	if inserted == 0 {
		return fmt.Errorf("create transaction %s: %w", txn.ID, store.ErrTransactionExists)
	}
	return nil
}

func (s *Store) UpdateTransaction(ctx context.Context, txnID string, update model.TransactionUpdate) error {
	var updated int64
	err := s.withRetry(ctx, "update transaction", func(ctx context.Context) error {
		tag, err := s.db.Exec(ctx, `
			UPDATE transactions
			SET date = $2, amount = $3::numeric, merchant = $4, category = $5, note = $6, custom_category = $7
			WHERE id = $1 AND NOT is_manual`,
			txnID, update.Date, update.Amount.String(), update.Merchant, update.Category,
			update.Note, update.CustomCategory)
		if err != nil {
			return err
		}
		updated = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if updated > 0 {
		return nil
	}

	existing, err := s.FindTransaction(ctx, txnID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("update transaction %s: %w", txnID, store.ErrNotFound)
	}
	return fmt.Errorf("update transaction %s: %w", txnID, store.ErrManualLock)
}

func (s *Store) EditTransaction(ctx context.Context, txnID string, edit model.TransactionEdit) (*model.StoredTransaction, error) {
	var txn *model.StoredTransaction
	err := s.withRetry(ctx, "edit transaction", func(ctx context.Context) error {
		var err error
		txn, err = scanTransaction(s.db.QueryRow(ctx, `
			UPDATE transactions
			SET merchant = COALESCE($2, merchant),
			    category = COALESCE($3, category),
			    note = COALESCE($4, note),
			    is_manual = true
			WHERE id = $1
			RETURNING `+transactionColumns,
			txnID, edit.Merchant, edit.Category, edit.Note))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("edit transaction %s: %w", txnID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("edit transaction: %w", err)
	}
	return txn, nil
}

func (s *Store) ListTransactions(ctx context.Context, accountID string) ([]model.StoredTransaction, error) {
	var out []model.StoredTransaction
	err := s.withRetry(ctx, "list transactions", func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, `
			SELECT `+transactionColumns+`
			FROM transactions
			WHERE $1 = '' OR account_id = $1
			ORDER BY date DESC, id`, accountID)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			t, err := scanTransaction(rows)
			if err != nil {
				return err
			}
			out = append(out, *t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

// nullIfEmpty maps an empty ID to SQL NULL.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ store.Admin = (*Store)(nil)
