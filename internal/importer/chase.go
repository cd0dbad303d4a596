package importer

import (
	"fmt"

	"github.com/cleared-dev/tally/internal/category"
	"github.com/cleared-dev/tally/internal/id"
	"github.com/cleared-dev/tally/internal/model"
)

// ChaseParser parses Chase bank checking CSV exports.
type ChaseParser struct {
	matcher *category.Matcher
}

const (
	chaseColDate   = 1
	chaseColDesc   = 2
	chaseColAmount = 3
	chaseColType   = 4 // ACH_DEBIT, DEBIT_CARD, ...
)

var chaseLayout = Layout{HeaderRows: 1, MinFields: 7}

// NewChaseParser creates a Chase parser over the given tables.
func NewChaseParser(tables category.Tables) *ChaseParser {
	return &ChaseParser{matcher: tables.Matcher()}
}

// Institution returns Chase.
func (p *ChaseParser) Institution() Institution { return Chase }

// Parse reads a Chase CSV.
func (p *ChaseParser) Parse(content []byte, filename string) (*model.ParseOutcome, error) {
	txns, skipped, err := eachRow(content, filename, chaseLayout, p.parseRow)
	if err != nil {
		return nil, fmt.Errorf("reading chase CSV: %w", err)
	}
	return &model.ParseOutcome{
		Transactions: txns,
		AccountName:  Chase.String(),
		AccountType:  model.AccountTypeBank,
		Skipped:      skipped,
	}, nil
}

func (p *ChaseParser) parseRow(rec []string) (model.Transaction, error) {
	date, err := parseDate(rec[chaseColDate], usDateLayouts)
	if err != nil {
		return model.Transaction{}, err
	}
	amount, err := parseMoney(rec[chaseColAmount])
	if err != nil {
		return model.Transaction{}, err
	}

	desc := rec[chaseColDesc]
	cat, _ := p.matcher.Match(desc)
	return model.Transaction{
		ID:             id.Derive(date, amount, desc),
		Date:           date,
		Amount:         amount,
		Merchant:       desc,
		Category:       cat,
		CustomCategory: rec[chaseColType],
	}, nil
}
