package importer

import (
	"fmt"

	"github.com/cleared-dev/tally/internal/category"
	"github.com/cleared-dev/tally/internal/id"
	"github.com/cleared-dev/tally/internal/model"
)

// CITParser parses CIT Bank checking and savings exports. The sign comes
// from the transaction type column; the debit column has used both
// "(1088.00)" and "$-1088.00" over time.
type CITParser struct {
	matcher *category.Matcher
	notes   *category.NoteMatcher
}

const (
	citColDate   = 0
	citColType   = 2
	citColDesc   = 3
	citColDebit  = 4
	citColCredit = 5

	citTypeCredit = "CREDIT"
	citTypeDebit  = "DEBIT"
)

var citLayout = Layout{HeaderRows: 1, MinFields: 6}

// NewCITParser creates a CIT parser over the given tables.
func NewCITParser(tables category.Tables) *CITParser {
	return &CITParser{matcher: tables.Matcher(), notes: tables.NoteMatcher()}
}

// Institution returns CIT.
func (p *CITParser) Institution() Institution { return CIT }

// Parse reads a CIT export.
func (p *CITParser) Parse(content []byte, filename string) (*model.ParseOutcome, error) {
	txns, skipped, err := eachRow(content, filename, citLayout, p.parseRow)
	if err != nil {
		return nil, fmt.Errorf("reading cit export: %w", err)
	}
	return &model.ParseOutcome{
		Transactions: txns,
		AccountName:  CIT.String(),
		AccountType:  model.AccountTypeBank,
		Skipped:      skipped,
	}, nil
}

func (p *CITParser) parseRow(rec []string) (model.Transaction, error) {
	date, err := parseDate(rec[citColDate], usDateLayouts)
	if err != nil {
		return model.Transaction{}, err
	}

	var txn model.Transaction
	switch rec[citColType] {
	case citTypeCredit:
		amount, err := parseMoney(rec[citColCredit])
		if err != nil {
			return model.Transaction{}, err
		}
		txn.Amount = amount.Abs()
	case citTypeDebit:
		amount, err := parseMoney(rec[citColDebit])
		if err != nil {
			return model.Transaction{}, err
		}
		txn.Amount = amount.Abs().Neg()
	default:
		return model.Transaction{}, fmt.Errorf("unexpected transaction type %q", rec[citColType])
	}

	txn.Date = date
	txn.Merchant = rec[citColDesc]
	txn.Category, _ = p.matcher.Match(txn.Merchant)
	if rule, ok := p.notes.Match(txn.Merchant); ok {
		txn.Note = rule.Note
		if rule.Transfer {
			txn.Category = category.Transfer
		}
	}
	txn.ID = id.Derive(txn.Date, txn.Amount, txn.Merchant)
	return txn, nil
}
