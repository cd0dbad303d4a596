package importer

import (
	"fmt"

	"github.com/cleared-dev/tally/internal/category"
	"github.com/cleared-dev/tally/internal/id"
	"github.com/cleared-dev/tally/internal/model"
)

// BiltParser parses Bilt Mastercard exports.
//
// The reference column repeats across statements, so IDs are always
// derived from date, amount and merchant.
type BiltParser struct {
	matcher *category.Matcher
}

const (
	biltColDate      = 0
	biltColAmount    = 1 // signed, negative = charge
	biltColType      = 2
	biltColReference = 3
	biltColMerchant  = 4
)

var biltLayout = Layout{HeaderRows: 1, MinFields: 5}

// NewBiltParser creates a Bilt parser over the given tables.
func NewBiltParser(tables category.Tables) *BiltParser {
	return &BiltParser{matcher: tables.Matcher()}
}

// Institution returns Bilt.
func (p *BiltParser) Institution() Institution { return Bilt }

// Parse reads a Bilt export.
func (p *BiltParser) Parse(content []byte, filename string) (*model.ParseOutcome, error) {
	txns, skipped, err := eachRow(content, filename, biltLayout, p.parseRow)
	if err != nil {
		return nil, fmt.Errorf("reading bilt export: %w", err)
	}
	return &model.ParseOutcome{
		Transactions: txns,
		AccountName:  Bilt.String(),
		AccountType:  model.AccountTypeCreditCard,
		Skipped:      skipped,
	}, nil
}

func (p *BiltParser) parseRow(rec []string) (model.Transaction, error) {
	date, err := parseDate(rec[biltColDate], usDateLayouts)
	if err != nil {
		return model.Transaction{}, err
	}
	amount, err := parseMoney(rec[biltColAmount])
	if err != nil {
		return model.Transaction{}, err
	}

	merchant := rec[biltColMerchant]
	cat, _ := p.matcher.Match(merchant)
	return model.Transaction{
		ID:       id.Derive(date, amount, merchant),
		Date:     date,
		Amount:   amount,
		Merchant: merchant,
		Category: cat,
	}, nil
}
