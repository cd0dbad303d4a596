package importer

import (
	"fmt"

	"github.com/cleared-dev/tally/internal/category"
	"github.com/cleared-dev/tally/internal/id"
	"github.com/cleared-dev/tally/internal/model"
)

// TargetParser parses Target Circle Card exports. Amounts are unsigned; the
// type column says whether the card was charged.
type TargetParser struct {
	matcher *category.Matcher
}

const (
	targetColDate     = 2
	targetColType     = 3
	targetColMerchant = 5
	targetColCity     = 6
	targetColState    = 7
	targetColAmount   = 10
	targetColID       = 11

	targetTypeDebit    = "Debit"
	targetStoreName    = "TARGET"
	targetStoreDisplay = "Target - %s, %s"
)

var targetLayout = Layout{HeaderRows: 2, MinFields: 12}

// NewTargetParser creates a Target parser over the given tables.
func NewTargetParser(tables category.Tables) *TargetParser {
	return &TargetParser{matcher: tables.Matcher()}
}

// Institution returns Target.
func (p *TargetParser) Institution() Institution { return Target }

// Parse reads a Target export.
func (p *TargetParser) Parse(content []byte, filename string) (*model.ParseOutcome, error) {
	txns, skipped, err := eachRow(content, filename, targetLayout, p.parseRow)
	if err != nil {
		return nil, fmt.Errorf("reading target export: %w", err)
	}
	return &model.ParseOutcome{
		Transactions: txns,
		AccountName:  Target.String(),
		AccountType:  model.AccountTypeCreditCard,
		Skipped:      skipped,
	}, nil
}

func (p *TargetParser) parseRow(rec []string) (model.Transaction, error) {
	date, err := parseDate(rec[targetColDate], usDateLayouts)
	if err != nil {
		return model.Transaction{}, err
	}
	amount, err := parseMoney(rec[targetColAmount])
	if err != nil {
		return model.Transaction{}, err
	}
	amount = amount.Abs()
	if rec[targetColType] == targetTypeDebit {
		amount = amount.Neg()
	}

	merchant := rec[targetColMerchant]
	if merchant == targetStoreName {
		merchant = fmt.Sprintf(targetStoreDisplay, rec[targetColCity], rec[targetColState])
	}

	cat, _ := p.matcher.Match(merchant)
	return model.Transaction{
		ID:       id.Resolve(rec[targetColID], date, amount, merchant),
		Date:     date,
		Amount:   amount,
		Merchant: merchant,
		Category: cat,
	}, nil
}
