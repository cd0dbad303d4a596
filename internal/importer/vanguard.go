package importer

import (
	"bytes"
	"fmt"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/tally/internal/category"
	"github.com/cleared-dev/tally/internal/id"
	"github.com/cleared-dev/tally/internal/model"
)

// VanguardParser parses Vanguard OFX/QFX downloads. Cash activity in
// investment statements (dividends, sweeps, contributions) is emitted;
// trades are not ledger transactions and are left out. Bank and card
// statement responses in the same file are read too.
type VanguardParser struct {
	matcher *category.Matcher
}

// NewVanguardParser creates a Vanguard parser over the given tables.
func NewVanguardParser(tables category.Tables) *VanguardParser {
	return &VanguardParser{matcher: tables.Matcher()}
}

// Institution returns Vanguard.
func (p *VanguardParser) Institution() Institution { return Vanguard }

// Parse reads an OFX document. A document that is not valid OFX fails as a
// whole; individual statement transactions that cannot be read are skipped.
func (p *VanguardParser) Parse(content []byte, filename string) (*model.ParseOutcome, error) {
	resp, err := ofxgo.ParseResponse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parsing ofx: %w", err)
	}

	var stmts [][]ofxgo.Transaction
	for _, msg := range resp.Bank {
		if s, ok := msg.(*ofxgo.StatementResponse); ok && s.BankTranList != nil {
			stmts = append(stmts, s.BankTranList.Transactions)
		}
	}
	for _, msg := range resp.CreditCard {
		if s, ok := msg.(*ofxgo.CCStatementResponse); ok && s.BankTranList != nil {
			stmts = append(stmts, s.BankTranList.Transactions)
		}
	}
	for _, msg := range resp.InvStmt {
		s, ok := msg.(*ofxgo.InvStatementResponse)
		if !ok || s.InvTranList == nil {
			continue
		}
		for _, bt := range s.InvTranList.BankTransactions {
			stmts = append(stmts, bt.Transactions)
		}
	}

	out := &model.ParseOutcome{
		AccountName: Vanguard.String(),
		AccountType: model.AccountTypeBrokerage,
	}
	row := 0
	for _, txns := range stmts {
		for _, t := range txns {
			row++
			txn, err := p.convert(t)
			if err != nil {
				out.Skipped = append(out.Skipped, model.SkippedRow{Row: row, Reason: err.Error()})
				continue
			}
			out.Transactions = append(out.Transactions, txn)
		}
	}
	return out, nil
}

func (p *VanguardParser) convert(t ofxgo.Transaction) (model.Transaction, error) {
	if t.DtPosted.IsZero() {
		return model.Transaction{}, fmt.Errorf("transaction %q has no posted date", t.FiTID.String())
	}
	amount, err := decimal.NewFromString(t.TrnAmt.FloatString(2))
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing amount of %q: %w", t.FiTID.String(), err)
	}

	date := model.CalendarDate(t.DtPosted.Time)
	merchant := t.Name.String()
	if merchant == "" && t.Payee != nil {
		merchant = t.Payee.Name.String()
	}
	note := t.Memo.String()
	if merchant == "" {
		merchant, note = note, ""
	}

	cat, _ := p.matcher.Match(merchant)
	return model.Transaction{
		ID:       id.Resolve(t.FiTID.String(), date, amount, merchant),
		Date:     date,
		Amount:   amount,
		Merchant: merchant,
		Category: cat,
		Note:     note,
	}, nil
}
