package importer

import (
	"fmt"

	"github.com/cleared-dev/tally/internal/category"
	"github.com/cleared-dev/tally/internal/id"
	"github.com/cleared-dev/tally/internal/model"
)

// WellsFargoParser parses Wells Fargo account activity downloads, which
// have no header row and a single signed amount column.
type WellsFargoParser struct {
	matcher *category.Matcher
}

const (
	wellsFargoColDate     = 0
	wellsFargoColAmount   = 1
	wellsFargoColMerchant = 4
)

var wellsFargoLayout = Layout{HeaderRows: 0, MinFields: 5}

// NewWellsFargoParser creates a Wells Fargo parser over the given tables.
func NewWellsFargoParser(tables category.Tables) *WellsFargoParser {
	return &WellsFargoParser{matcher: tables.Matcher()}
}

// Institution returns WellsFargo.
func (p *WellsFargoParser) Institution() Institution { return WellsFargo }

// Parse reads a Wells Fargo export.
func (p *WellsFargoParser) Parse(content []byte, filename string) (*model.ParseOutcome, error) {
	txns, skipped, err := eachRow(content, filename, wellsFargoLayout, p.parseRow)
	if err != nil {
		return nil, fmt.Errorf("reading wells fargo export: %w", err)
	}
	return &model.ParseOutcome{
		Transactions: txns,
		AccountName:  WellsFargo.String(),
		AccountType:  model.AccountTypeBank,
		Skipped:      skipped,
	}, nil
}

func (p *WellsFargoParser) parseRow(rec []string) (model.Transaction, error) {
	date, err := parseDate(rec[wellsFargoColDate], usDateLayouts)
	if err != nil {
		return model.Transaction{}, err
	}
	amount, err := parseMoney(rec[wellsFargoColAmount])
	if err != nil {
		return model.Transaction{}, err
	}

	merchant := rec[wellsFargoColMerchant]
	cat, _ := p.matcher.Match(merchant)
	return model.Transaction{
		ID:       id.Derive(date, amount, merchant),
		Date:     date,
		Amount:   amount,
		Merchant: merchant,
		Category: cat,
	}, nil
}
