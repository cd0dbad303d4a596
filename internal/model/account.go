package model

import "time"

// AccountType is the institution-native kind of account a file belongs to.
type AccountType string

const (
	AccountTypeCreditCard AccountType = "credit_card"
	AccountTypeBank       AccountType = "bank"
	AccountTypeVenmo      AccountType = "venmo"
	AccountTypeBrokerage  AccountType = "brokerage"
)

// Account is one institution account. Names are unique.
type Account struct {
	ID        string
	Name      string
	Type      AccountType
	CreatedAt time.Time
}
