package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/tally/internal/model"
)

// Headers of the FileStore's CSV files.
const (
	AccountsHeader     = "account_id,name,type,created_at"
	ImportsHeader      = "import_id,filename,checksum,account_id,imported_at,completed"
	TransactionsHeader = "transaction_id,date,amount,merchant,category,note,custom_category,account_id,import_id,is_manual,imported_at"
)

const (
	dateFormat = "2006-01-02"
	timeFormat = time.RFC3339Nano

	acctNumFields  = 4
	acctColID      = 0
	acctColName    = 1
	acctColType    = 2
	acctColCreated = 3

	impNumFields    = 6
	impColID        = 0
	impColFilename  = 1
	impColChecksum  = 2
	impColAcctID    = 3
	impColAt        = 4
	impColCompleted = 5

	txnNumFields = 11
	txnColID     = 0
	txnColDate   = 1
	txnColAmount = 2
	txnColMerch  = 3
	txnColCat    = 4
	txnColNote   = 5
	txnColCustom = 6
	txnColAcctID = 7
	txnColImpID  = 8
	txnColManual = 9
	txnColAt     = 10
)

// readRecords reads a CSV with a header row and returns the data rows.
func readRecords(r io.Reader, numFields int) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[1:], nil
}

func writeRecords(w io.Writer, header string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(strings.Split(header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadAccounts reads accounts.csv.
func ReadAccounts(r io.Reader) ([]model.Account, error) {
	records, err := readRecords(r, acctNumFields)
	if err != nil {
		return nil, fmt.Errorf("reading accounts CSV: %w", err)
	}
	var accounts []model.Account
	for i, rec := range records {
		acct, err := UnmarshalAccount(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

// WriteAccounts writes accounts.csv, header included.
func WriteAccounts(w io.Writer, accounts []model.Account) error {
	rows := make([][]string, len(accounts))
	for i, a := range accounts {
		rows[i] = MarshalAccount(a)
	}
	return writeRecords(w, AccountsHeader, rows)
}

// MarshalAccount converts an Account to a CSV row.
func MarshalAccount(acct model.Account) []string {
	row := make([]string, acctNumFields)
	row[acctColID] = acct.ID
	row[acctColName] = acct.Name
	row[acctColType] = string(acct.Type)
	row[acctColCreated] = formatTime(acct.CreatedAt)
	return row
}

// UnmarshalAccount converts a CSV row to an Account.
func UnmarshalAccount(record []string) (model.Account, error) {
	if len(record) != acctNumFields {
		return model.Account{}, fmt.Errorf("expected %d fields, got %d", acctNumFields, len(record))
	}
	created, err := parseTime(record[acctColCreated])
	if err != nil {
		return model.Account{}, fmt.Errorf("parsing created_at %q: %w", record[acctColCreated], err)
	}
	return model.Account{
		ID:        record[acctColID],
		Name:      record[acctColName],
		Type:      model.AccountType(record[acctColType]),
		CreatedAt: created,
	}, nil
}

// ReadImports reads imports.csv.
func ReadImports(r io.Reader) ([]model.ImportRecord, error) {
	records, err := readRecords(r, impNumFields)
	if err != nil {
		return nil, fmt.Errorf("reading imports CSV: %w", err)
	}
	var imports []model.ImportRecord
	for i, rec := range records {
		imp, err := UnmarshalImport(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		imports = append(imports, imp)
	}
	return imports, nil
}

// WriteImports writes imports.csv, header included.
func WriteImports(w io.Writer, imports []model.ImportRecord) error {
	rows := make([][]string, len(imports))
	for i, r := range imports {
		rows[i] = MarshalImport(r)
	}
	return writeRecords(w, ImportsHeader, rows)
}

// MarshalImport converts an ImportRecord to a CSV row.
func MarshalImport(rec model.ImportRecord) []string {
	row := make([]string, impNumFields)
	row[impColID] = rec.ID
	row[impColFilename] = rec.Filename
	row[impColChecksum] = rec.Checksum
	row[impColAcctID] = rec.AccountID
	row[impColAt] = formatTime(rec.ImportedAt)
	row[impColCompleted] = strconv.FormatBool(rec.Completed)
	return row
}

// UnmarshalImport converts a CSV row to an ImportRecord.
func UnmarshalImport(record []string) (model.ImportRecord, error) {
	if len(record) != impNumFields {
		return model.ImportRecord{}, fmt.Errorf("expected %d fields, got %d", impNumFields, len(record))
	}
	at, err := parseTime(record[impColAt])
	if err != nil {
		return model.ImportRecord{}, fmt.Errorf("parsing imported_at %q: %w", record[impColAt], err)
	}
	completed, err := strconv.ParseBool(record[impColCompleted])
	if err != nil {
		return model.ImportRecord{}, fmt.Errorf("parsing completed %q: %w", record[impColCompleted], err)
	}
	return model.ImportRecord{
		ID:         record[impColID],
		Filename:   record[impColFilename],
		Checksum:   record[impColChecksum],
		AccountID:  record[impColAcctID],
		ImportedAt: at,
		Completed:  completed,
	}, nil
}

// ReadTransactions reads transactions.csv.
func ReadTransactions(r io.Reader) ([]model.StoredTransaction, error) {
	records, err := readRecords(r, txnNumFields)
	if err != nil {
		return nil, fmt.Errorf("reading transactions CSV: %w", err)
	}
	var txns []model.StoredTransaction
	for i, rec := range records {
		txn, err := UnmarshalTransaction(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

// WriteTransactions writes transactions.csv, header included.
func WriteTransactions(w io.Writer, txns []model.StoredTransaction) error {
	rows := make([][]string, len(txns))
	for i, t := range txns {
		rows[i] = MarshalTransaction(t)
	}
	return writeRecords(w, TransactionsHeader, rows)
}

// MarshalTransaction converts a StoredTransaction to a CSV row.
func MarshalTransaction(txn model.StoredTransaction) []string {
	row := make([]string, txnNumFields)
	row[txnColID] = txn.ID
	row[txnColDate] = txn.Date.Format(dateFormat)
	row[txnColAmount] = txn.Amount.String()
	row[txnColMerch] = txn.Merchant
	row[txnColCat] = txn.Category
	row[txnColNote] = txn.Note
	row[txnColCustom] = txn.CustomCategory
	row[txnColAcctID] = txn.AccountID
	row[txnColImpID] = txn.ImportID
	row[txnColManual] = strconv.FormatBool(txn.IsManual)
	row[txnColAt] = formatTime(txn.ImportedAt)
	return row
}

// UnmarshalTransaction converts a CSV row to a StoredTransaction.
func UnmarshalTransaction(record []string) (model.StoredTransaction, error) {
	if len(record) != txnNumFields {
		return model.StoredTransaction{}, fmt.Errorf("expected %d fields, got %d", txnNumFields, len(record))
	}

	date, err := time.Parse(dateFormat, record[txnColDate])
	if err != nil {
		return model.StoredTransaction{}, fmt.Errorf("parsing date %q: %w", record[txnColDate], err)
	}
	amount, err := decimal.NewFromString(record[txnColAmount])
	if err != nil {
		return model.StoredTransaction{}, fmt.Errorf("parsing amount %q: %w", record[txnColAmount], err)
	}
	manual, err := strconv.ParseBool(record[txnColManual])
	if err != nil {
		return model.StoredTransaction{}, fmt.Errorf("parsing is_manual %q: %w", record[txnColManual], err)
	}
	at, err := parseTime(record[txnColAt])
	if err != nil {
		return model.StoredTransaction{}, fmt.Errorf("parsing imported_at %q: %w", record[txnColAt], err)
	}

	return model.StoredTransaction{
		Transaction: model.Transaction{
			ID:             record[txnColID],
			Date:           date,
			Amount:         amount,
			Merchant:       record[txnColMerch],
			Category:       record[txnColCat],
			Note:           record[txnColNote],
			CustomCategory: record[txnColCustom],
		},
		AccountID:  record[txnColAcctID],
		ImportID:   record[txnColImpID],
		IsManual:   manual,
		ImportedAt: at,
	}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeFormat, s)
}
