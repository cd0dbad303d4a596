// Package id derives the identifiers used for deduplication.
package id

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const dateFormat = "2006-01-02"

// Derive returns a stable transaction ID built from the fields that identify
// a real-world transaction when an export carries no reference of its own.
// Amounts are compared at cent precision so "25.5" and "25.50" agree.
func Derive(date time.Time, amount decimal.Decimal, merchant string) string {
	key := strings.Join([]string{
		date.Format(dateFormat),
		amount.StringFixed(2),
		merchant,
	}, "|")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Resolve returns the native reference when the export supplied one,
// otherwise the derived ID.
func Resolve(native string, date time.Time, amount decimal.Decimal, merchant string) string {
	if native = strings.TrimSpace(native); native != "" {
		return native
	}
	return Derive(date, amount, merchant)
}

// Checksum returns the hex sha256 digest of a file's raw bytes.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// New returns a random ID for accounts and import records.
func New() string {
	return uuid.NewString()
}
