package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cleared-dev/tally/internal/id"
	"github.com/cleared-dev/tally/internal/model"
)

type importKey struct {
	filename string
	checksum string
}

// MemoryStore implements Store with in-memory maps. Every check-and-write
// happens inside one critical section.
type MemoryStore struct {
	mu sync.RWMutex

	accounts       map[string]model.Account // by ID
	accountsByName map[string]string
	imports        map[string]model.ImportRecord // by ID
	importsByKey   map[importKey]string
	transactions   map[string]model.StoredTransaction

	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{now: func() time.Time { return time.Now().UTC() }}
	m.reset()
	return m
}

func (m *MemoryStore) reset() {
	m.accounts = make(map[string]model.Account)
	m.accountsByName = make(map[string]string)
	m.imports = make(map[string]model.ImportRecord)
	m.importsByKey = make(map[importKey]string)
	m.transactions = make(map[string]model.StoredTransaction)
}

func (m *MemoryStore) FindAccountByName(ctx context.Context, name string) (*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	accountID, ok := m.accountsByName[name]
	if !ok {
		return nil, nil
	}
	acct := m.accounts[accountID]
	return &acct, nil
}

// CreateAccount returns the account named name, creating it if needed.
// An existing account keeps its original type.
func (m *MemoryStore) CreateAccount(ctx context.Context, name string, accountType model.AccountType) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if accountID, ok := m.accountsByName[name]; ok {
		acct := m.accounts[accountID]
		return &acct, nil
	}

	acct := model.Account{
		ID:        id.New(),
		Name:      name,
		Type:      accountType,
		CreatedAt: m.now(),
	}
	m.accounts[acct.ID] = acct
	m.accountsByName[name] = acct.ID
	return &acct, nil
}

func (m *MemoryStore) FindImport(ctx context.Context, filename, checksum string) (*model.ImportRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	importID, ok := m.importsByKey[importKey{filename, checksum}]
	if !ok {
		return nil, nil
	}
	rec := m.imports[importID]
	return &rec, nil
}

func (m *MemoryStore) CreateImport(ctx context.Context, filename, checksum, accountID string) (*model.ImportRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := importKey{filename, checksum}
	if _, ok := m.importsByKey[key]; ok {
		return nil, ErrImportExists
	}

	rec := model.ImportRecord{
		ID:         id.New(),
		Filename:   filename,
		Checksum:   checksum,
		AccountID:  accountID,
		ImportedAt: m.now(),
	}
	m.imports[rec.ID] = rec
	m.importsByKey[key] = rec.ID
	return &rec, nil
}

func (m *MemoryStore) CompleteImport(ctx context.Context, importID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.imports[importID]
	if !ok {
		return fmt.Errorf("completing import %s: %w", importID, ErrNotFound)
	}
	rec.Completed = true
	m.imports[importID] = rec
	return nil
}

func (m *MemoryStore) FindTransaction(ctx context.Context, txnID string) (*model.StoredTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	txn, ok := m.transactions[txnID]
	if !ok {
		return nil, nil
	}
	return &txn, nil
}

func (m *MemoryStore) CreateTransaction(ctx context.Context, txn model.Transaction, accountID, importID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.transactions[txn.ID]; ok {
		return fmt.Errorf("creating transaction %s: %w", txn.ID, ErrTransactionExists)
	}
	m.transactions[txn.ID] = model.StoredTransaction{
		Transaction: txn,
		AccountID:   accountID,
		ImportID:    importID,
		ImportedAt:  m.now(),
	}
	return nil
}

func (m *MemoryStore) UpdateTransaction(ctx context.Context, txnID string, update model.TransactionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.transactions[txnID]
	if !ok {
		return fmt.Errorf("updating transaction %s: %w", txnID, ErrNotFound)
	}
	if stored.IsManual {
		return fmt.Errorf("updating transaction %s: %w", txnID, ErrManualLock)
	}

	stored.Date = update.Date
	stored.Amount = update.Amount
	stored.Merchant = update.Merchant
	stored.Category = update.Category
	stored.Note = update.Note
	stored.CustomCategory = update.CustomCategory
	m.transactions[txnID] = stored
	return nil
}

func (m *MemoryStore) EditTransaction(ctx context.Context, txnID string, edit model.TransactionEdit) (*model.StoredTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.transactions[txnID]
	if !ok {
		return nil, fmt.Errorf("editing transaction %s: %w", txnID, ErrNotFound)
	}
	stored.Transaction = edit.Apply(stored.Transaction)
	stored.IsManual = true
	m.transactions[txnID] = stored
	return &stored, nil
}

func (m *MemoryStore) ListTransactions(ctx context.Context, accountID string) ([]model.StoredTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.StoredTransaction
	for _, txn := range m.transactions {
		if accountID != "" && txn.AccountID != accountID {
			continue
		}
		out = append(out, txn)
	}
	sortTransactions(out)
	return out, nil
}

// ListImports returns import records oldest first.
func (m *MemoryStore) ListImports(ctx context.Context) ([]model.ImportRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.ImportRecord, 0, len(m.imports))
	for _, rec := range m.imports {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ImportedAt.Equal(out[j].ImportedAt) {
			return out[i].ImportedAt.Before(out[j].ImportedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ListAccounts returns accounts sorted by name.
func (m *MemoryStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Account, 0, len(m.accounts))
	for _, acct := range m.accounts {
		out = append(out, acct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

// snapshot is a point-in-time copy of a MemoryStore's rows.
type snapshot struct {
	accounts     []model.Account
	imports      []model.ImportRecord
	transactions []model.StoredTransaction
}

func (m *MemoryStore) snapshot() snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s snapshot
	for _, a := range m.accounts {
		s.accounts = append(s.accounts, a)
	}
	for _, r := range m.imports {
		s.imports = append(s.imports, r)
	}
	for _, t := range m.transactions {
		s.transactions = append(s.transactions, t)
	}
	sort.Slice(s.accounts, func(i, j int) bool { return s.accounts[i].Name < s.accounts[j].Name })
	sort.Slice(s.imports, func(i, j int) bool {
		if !s.imports[i].ImportedAt.Equal(s.imports[j].ImportedAt) {
			return s.imports[i].ImportedAt.Before(s.imports[j].ImportedAt)
		}
		return s.imports[i].ID < s.imports[j].ID
	})
	sortTransactions(s.transactions)
	return s
}

// restore replaces every row with the contents of s.
func (m *MemoryStore) restore(s snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reset()
	for _, a := range s.accounts {
		m.accounts[a.ID] = a
		m.accountsByName[a.Name] = a.ID
	}
	for _, r := range s.imports {
		m.imports[r.ID] = r
		m.importsByKey[importKey{r.Filename, r.Checksum}] = r.ID
	}
	for _, t := range s.transactions {
		m.transactions[t.ID] = t
	}
}

var _ Admin = (*MemoryStore)(nil)
