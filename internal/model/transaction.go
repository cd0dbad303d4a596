package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is the institution-agnostic record a parser emits.
// Empty strings mean the optional field is absent.
type Transaction struct {
	ID             string          // native reference or derived hash
	Date           time.Time       // calendar date, UTC midnight
	Amount         decimal.Decimal // negative = outflow, positive = inflow
	Merchant       string
	Category       string
	Note           string
	CustomCategory string // institution-native category or auxiliary value
}

// StoredTransaction is a Transaction as held by a store.
type StoredTransaction struct {
	Transaction
	AccountID  string
	ImportID   string
	IsManual   bool // set by a user edit, never cleared by an import
	ImportedAt time.Time
}

// TransactionUpdate carries the content fields an import rewrites on an
// existing row.
type TransactionUpdate struct {
	Date           time.Time
	Amount         decimal.Decimal
	Merchant       string
	Category       string
	Note           string
	CustomCategory string
}

// TransactionEdit is a manual correction. Nil fields are left alone.
type TransactionEdit struct {
	Merchant *string
	Category *string
	Note     *string
}

// Apply returns t with the non-nil edit fields applied.
func (e TransactionEdit) Apply(t Transaction) Transaction {
	if e.Merchant != nil {
		t.Merchant = *e.Merchant
	}
	if e.Category != nil {
		t.Category = *e.Category
	}
	if e.Note != nil {
		t.Note = *e.Note
	}
	return t
}

// CalendarDate drops the time of day and zone, keeping year, month and day.
func CalendarDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
