package importer

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/tally/internal/category"
	"github.com/cleared-dev/tally/internal/id"
	"github.com/cleared-dev/tally/internal/model"
	"github.com/cleared-dev/tally/internal/tokenizer"
)

// VenmoParser parses Venmo account statements.
//
// Rows take one of four shapes:
//   - a plain payment or charge between the owner and someone else;
//   - a payment funded from, or paid out to, an outside bank or card: the
//     money never touched the Venmo balance, so the row is a Transfer with
//     a zero amount and the real amount kept in the note;
//   - a "Standard Transfer" from the balance to a linked bank: a Transfer
//     with the bank as merchant and the amount kept;
//   - an automatic split credit (all-caps note, non-negative amount): a
//     Transfer with the amount copied to CustomCategory.
type VenmoParser struct {
	matcher *category.Matcher
	owner   string
}

const (
	venmoColID          = 1
	venmoColDatetime    = 2
	venmoColType        = 3
	venmoColNote        = 5
	venmoColFrom        = 6
	venmoColTo          = 7
	venmoColAmount      = 8
	venmoColFunding     = 14
	venmoColDestination = 15

	venmoDatetimeLayout = "2006-01-02T15:04:05"
	venmoBalance        = "Venmo balance"
	venmoStdTransfer    = "Standard Transfer"
)

var venmoLayout = Layout{HeaderRows: 4, FooterRows: 1, MinFields: 16}

// NewVenmoParser creates a Venmo parser. owner is the statement holder's
// display name; when empty it is inferred from each statement.
func NewVenmoParser(tables category.Tables, owner string) *VenmoParser {
	return &VenmoParser{matcher: tables.Matcher(), owner: owner}
}

// Institution returns Venmo.
func (p *VenmoParser) Institution() Institution { return Venmo }

// Parse reads a Venmo statement.
func (p *VenmoParser) Parse(content []byte, filename string) (*model.ParseOutcome, error) {
	owner := p.owner
	var warnings []string
	if owner == "" {
		var err error
		if owner, err = inferVenmoOwner(content, filename); err != nil {
			return nil, fmt.Errorf("reading venmo statement: %w", err)
		}
		if owner == "" {
			warnings = append(warnings, "could not tell who owns this statement; set venmo.owner so payments name the other party")
		}
	}

	txns, skipped, err := eachRow(content, filename, venmoLayout, func(rec []string) (model.Transaction, error) {
		return p.parseRow(rec, owner)
	})
	if err != nil {
		return nil, fmt.Errorf("reading venmo statement: %w", err)
	}
	return &model.ParseOutcome{
		Transactions: txns,
		AccountName:  Venmo.String(),
		AccountType:  model.AccountTypeVenmo,
		Skipped:      skipped,
		Warnings:     warnings,
	}, nil
}

// inferVenmoOwner returns the one name that is a party to every row with
// both From and To set. When several names qualify, the "(@handle)" on the
// statement's title row picks between them. It returns "" when no single
// owner can be found.
func inferVenmoOwner(content []byte, filename string) (string, error) {
	rows, err := tokenizer.Rows(filename, content, venmoLayout.options())
	if err != nil {
		return "", err
	}

	counts := make(map[string]int)
	parties := 0
	for _, rec := range rows {
		if len(rec) < venmoLayout.MinFields {
			continue
		}
		from, to := rec[venmoColFrom], rec[venmoColTo]
		if from == "" || to == "" {
			continue
		}
		parties++
		counts[from]++
		if to != from {
			counts[to]++
		}
	}

	var candidates []string
	for name, n := range counts {
		if n == parties {
			candidates = append(candidates, name)
		}
	}
	switch len(candidates) {
	case 0:
		return "", nil
	case 1:
		return candidates[0], nil
	}

	all, err := tokenizer.Rows(filename, content, tokenizer.Options{})
	if err != nil || len(all) == 0 {
		return "", err
	}
	handle := venmoHandle(strings.Join(all[0], ","))
	for _, name := range candidates {
		if handle != "" && foldName(name) == handle {
			return name, nil
		}
	}
	return "", nil
}

// venmoHandle extracts "John-Doe" from "Account Statement - (@John-Doe)",
// folded for comparison with display names.
func venmoHandle(title string) string {
	start := strings.Index(title, "(@")
	if start < 0 {
		return ""
	}
	rest := title[start+2:]
	end := strings.Index(rest, ")")
	if end < 0 {
		return ""
	}
	return foldName(rest[:end])
}

// foldName lower-cases s and keeps only letters and digits, so "John Doe"
// and "John-Doe" compare equal.
func foldName(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, s)
}

func (p *VenmoParser) parseRow(rec []string, owner string) (model.Transaction, error) {
	date, err := parseDate(rec[venmoColDatetime], []string{venmoDatetimeLayout, "2006-01-02"})
	if err != nil {
		return model.Transaction{}, err
	}
	amount, err := parseMoney(rec[venmoColAmount])
	if err != nil {
		return model.Transaction{}, err
	}

	merchant := rec[venmoColFrom]
	if merchant == owner || merchant == "" {
		merchant = rec[venmoColTo]
	}

	note := rec[venmoColNote]
	txn := model.Transaction{
		ID:       id.Resolve(rec[venmoColID], date, amount, merchant),
		Date:     date,
		Amount:   amount,
		Merchant: merchant,
		Note:     note,
	}

	if isSplitNote(note) && !amount.IsNegative() {
		txn.CustomCategory = amount.StringFixed(2)
		txn.Category = category.Transfer
	} else {
		txn.Category, _ = p.matcher.Match(merchant)
	}

	funding, destination := rec[venmoColFunding], rec[venmoColDestination]
	if funding == venmoBalance || destination == venmoBalance {
		return txn, nil
	}

	txn.Category = category.Transfer
	if rec[venmoColType] == venmoStdTransfer {
		txn.Merchant = destination
		txn.Note = venmoStdTransfer
		return txn, nil
	}
	txn.Amount = decimal.Zero
	txn.Note = externalNote(amount, funding, destination, note)
	return txn, nil
}

// externalNote records what an outside-funded payment really moved, e.g.
// "[-232.18 from CIT BANK NA Personal Checking *2668] Move-in". A payout
// with no funding source names its destination instead.
func externalNote(amount decimal.Decimal, funding, destination, note string) string {
	if funding == "" && destination != "" {
		return strings.TrimSpace(fmt.Sprintf("[%s to %s] %s", amount.String(), destination, note))
	}
	return strings.TrimSpace(fmt.Sprintf("[%s from %s] %s", amount.String(), funding, note))
}

// isSplitNote reports whether note is the all-caps merchant name Amex
// writes on automatic split credits.
func isSplitNote(note string) bool {
	hasLetter := false
	for _, r := range note {
		if unicode.IsLetter(r) {
			hasLetter = true
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return hasLetter
}
