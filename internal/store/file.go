package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/cleared-dev/tally/internal/model"
)

// File names inside a FileStore directory.
const (
	AccountsFile     = "accounts.csv"
	ImportsFile      = "imports.csv"
	TransactionsFile = "transactions.csv"
	LockFile         = ".tally.lock"
)

// Written in this order so a write that fails part way leaves transactions
// whose import is missing or incomplete, which a re-import repairs.
var storeFiles = [3]string{TransactionsFile, ImportsFile, AccountsFile}

const lockRetryDelay = 10 * time.Millisecond

// FileStore keeps its rows in CSV files in one directory. Several processes
// may open the same directory: every operation holds a lock file (shared
// for reads, exclusive for writes) and reloads the CSVs first if another
// process has replaced them. Each mutation rewrites the files; a mutation
// whose write fails is rolled back in memory.
type FileStore struct {
	mu   sync.Mutex // serializes this process; lock covers the others
	dir  string
	lock *flock.Flock
	mem  *MemoryStore

	loaded bool
	seen   [3]os.FileInfo // storeFiles as last read or written; nil if absent
}

// OpenFileStore loads the store in dir, creating dir if needed. Missing
// files are treated as empty.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}

	s := &FileStore{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, LockFile)),
		mem:  NewMemoryStore(),
	}
	if err := s.view(context.Background(), func() error { return nil }); err != nil {
		return nil, err
	}
	return s, nil
}

func readFile[T any](path string, read func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	rows, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return rows, nil
}

func readSnapshot(dir string) (snapshot, error) {
	var s snapshot
	var err error
	if s.accounts, err = readFile(filepath.Join(dir, AccountsFile), ReadAccounts); err != nil {
		return snapshot{}, err
	}
	if s.imports, err = readFile(filepath.Join(dir, ImportsFile), ReadImports); err != nil {
		return snapshot{}, err
	}
	if s.transactions, err = readFile(filepath.Join(dir, TransactionsFile), ReadTransactions); err != nil {
		return snapshot{}, err
	}
	return s, nil
}

// Dir returns the store directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) FindAccountByName(ctx context.Context, name string) (*model.Account, error) {
	var acct *model.Account
	err := s.view(ctx, func() error {
		var err error
		acct, err = s.mem.FindAccountByName(ctx, name)
		return err
	})
	return acct, err
}

func (s *FileStore) CreateAccount(ctx context.Context, name string, accountType model.AccountType) (*model.Account, error) {
	var acct *model.Account
	err := s.mutate(ctx, func() error {
		var err error
		acct, err = s.mem.CreateAccount(ctx, name, accountType)
		return err
	})
	return acct, err
}

func (s *FileStore) FindImport(ctx context.Context, filename, checksum string) (*model.ImportRecord, error) {
	var rec *model.ImportRecord
	err := s.view(ctx, func() error {
		var err error
		rec, err = s.mem.FindImport(ctx, filename, checksum)
		return err
	})
	return rec, err
}

func (s *FileStore) CreateImport(ctx context.Context, filename, checksum, accountID string) (*model.ImportRecord, error) {
	var rec *model.ImportRecord
	err := s.mutate(ctx, func() error {
		var err error
		rec, err = s.mem.CreateImport(ctx, filename, checksum, accountID)
		return err
	})
	return rec, err
}

func (s *FileStore) CompleteImport(ctx context.Context, importID string) error {
	return s.mutate(ctx, func() error {
		return s.mem.CompleteImport(ctx, importID)
	})
}

func (s *FileStore) FindTransaction(ctx context.Context, txnID string) (*model.StoredTransaction, error) {
	var txn *model.StoredTransaction
	err := s.view(ctx, func() error {
		var err error
		txn, err = s.mem.FindTransaction(ctx, txnID)
		return err
	})
	return txn, err
}

func (s *FileStore) CreateTransaction(ctx context.Context, txn model.Transaction, accountID, importID string) error {
	return s.mutate(ctx, func() error {
		return s.mem.CreateTransaction(ctx, txn, accountID, importID)
	})
}

func (s *FileStore) UpdateTransaction(ctx context.Context, txnID string, update model.TransactionUpdate) error {
	return s.mutate(ctx, func() error {
		return s.mem.UpdateTransaction(ctx, txnID, update)
	})
}

func (s *FileStore) EditTransaction(ctx context.Context, txnID string, edit model.TransactionEdit) (*model.StoredTransaction, error) {
	var txn *model.StoredTransaction
	err := s.mutate(ctx, func() error {
		var err error
		txn, err = s.mem.EditTransaction(ctx, txnID, edit)
		return err
	})
	return txn, err
}

func (s *FileStore) ListTransactions(ctx context.Context, accountID string) ([]model.StoredTransaction, error) {
	var txns []model.StoredTransaction
	err := s.view(ctx, func() error {
		var err error
		txns, err = s.mem.ListTransactions(ctx, accountID)
		return err
	})
	return txns, err
}

func (s *FileStore) ListImports(ctx context.Context) ([]model.ImportRecord, error) {
	var recs []model.ImportRecord
	err := s.view(ctx, func() error {
		var err error
		recs, err = s.mem.ListImports(ctx)
		return err
	})
	return recs, err
}

func (s *FileStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	var accts []model.Account
	err := s.view(ctx, func() error {
		var err error
		accts, err = s.mem.ListAccounts(ctx)
		return err
	})
	return accts, err
}

// Batch runs fn with the store held exclusively and writes the files once
// when fn returns. fn must only use the Store it is given.
func (s *FileStore) Batch(ctx context.Context, fn func(Store) error) error {
	return s.update(ctx, func() error { return fn(s.mem) }, true)
}

// Close releases the lock file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lock.Close()
}

// view runs fn on up-to-date rows under the shared lock.
func (s *FileStore) view(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.acquire(ctx, false); err != nil {
		return err
	}
	defer s.lock.Unlock()

	if err := s.refresh(); err != nil {
		return err
	}
	return fn()
}

// mutate runs one store operation and persists it. Operations change
// nothing when they fail, so a failed fn writes nothing.
func (s *FileStore) mutate(ctx context.Context, fn func() error) error {
	return s.update(ctx, fn, false)
}

// update runs fn on up-to-date rows under the exclusive lock and writes the
// result. With keepPartial the changes fn made before failing are written
// too. If the write fails the in-memory rows are restored and the files are
// reloaded on the next operation.
func (s *FileStore) update(ctx context.Context, fn func() error, keepPartial bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.acquire(ctx, true); err != nil {
		return err
	}
	defer s.lock.Unlock()

	if err := s.refresh(); err != nil {
		return err
	}

	before := s.mem.snapshot()
	fnErr := fn()
	if fnErr != nil && !keepPartial {
		return fnErr
	}
	if err := s.flush(s.mem.snapshot()); err != nil {
		s.mem.restore(before)
		s.loaded = false
		return err
	}
	return fnErr
}

func (s *FileStore) acquire(ctx context.Context, exclusive bool) error {
	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = s.lock.TryLockContext(ctx, lockRetryDelay)
	} else {
		ok, err = s.lock.TryRLockContext(ctx, lockRetryDelay)
	}
	if err == nil && !ok {
		err = errors.New("lock not acquired")
	}
	if err != nil {
		return fmt.Errorf("locking store %s: %w", s.dir, err)
	}
	return nil
}

// refresh reloads the CSVs if they were never read or another process has
// replaced any of them since this store last read or wrote them. The caller
// holds the lock.
func (s *FileStore) refresh() error {
	cur, err := s.stat()
	if err != nil {
		return err
	}
	if s.loaded && sameFiles(s.seen, cur) {
		return nil
	}

	snap, err := readSnapshot(s.dir)
	if err != nil {
		return err
	}
	s.mem.restore(snap)
	s.seen = cur
	s.loaded = true
	return nil
}

func (s *FileStore) stat() ([3]os.FileInfo, error) {
	var out [3]os.FileInfo
	for i, name := range storeFiles {
		fi, err := os.Stat(filepath.Join(s.dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return out, fmt.Errorf("checking %s: %w", name, err)
		}
		out[i] = fi
	}
	return out, nil
}

// sameFiles reports whether every file is unchanged. Writes always replace
// a file by rename, so a changed file has a new inode or modification time.
func sameFiles(a, b [3]os.FileInfo) bool {
	for i := range a {
		switch {
		case a[i] == nil && b[i] == nil:
		case a[i] == nil || b[i] == nil:
			return false
		case !os.SameFile(a[i], b[i]), !a[i].ModTime().Equal(b[i].ModTime()), a[i].Size() != b[i].Size():
			return false
		}
	}
	return true
}

func (s *FileStore) flush(snap snapshot) error {
	write := map[string]func(io.Writer) error{
		TransactionsFile: func(w io.Writer) error { return WriteTransactions(w, snap.transactions) },
		ImportsFile:      func(w io.Writer) error { return WriteImports(w, snap.imports) },
		AccountsFile:     func(w io.Writer) error { return WriteAccounts(w, snap.accounts) },
	}
	for _, name := range storeFiles {
		if err := writeFileAtomic(filepath.Join(s.dir, name), write[name]); err != nil {
			return err
		}
	}

	seen, err := s.stat()
	if err != nil {
		return err
	}
	s.seen = seen
	return nil
}

// writeFileAtomic writes to a temp file in the same directory and renames
// it over path.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

var (
	_ Admin   = (*FileStore)(nil)
	_ Batcher = (*FileStore)(nil)
)
