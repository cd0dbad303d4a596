package importer

import (
	"fmt"
	"strings"

	"github.com/cleared-dev/tally/internal/category"
	"github.com/cleared-dev/tally/internal/id"
	"github.com/cleared-dev/tally/internal/model"
)

// AmexParser parses American Express card activity exports.
type AmexParser struct {
	matcher *category.Matcher
	native  map[string]string
}

const (
	amexColDate      = 0
	amexColDesc      = 1
	amexColAmount    = 2 // positive = charge
	amexColDetails   = 3 // multi-line "extended details"
	amexColReference = 9 // wrapped in single quotes
	amexColCategory  = 10

	amexSplitPrefix = "Amex Split Credit: "
	amexPrefixLen   = 20
)

var amexLayout = Layout{HeaderRows: 1, MinFields: 11}

// NewAmexParser creates an Amex parser over the given tables.
func NewAmexParser(tables category.Tables) *AmexParser {
	native := make(map[string]string, len(tables.Native))
	for k, v := range tables.Native {
		native[k] = v
	}
	return &AmexParser{matcher: tables.Matcher(), native: native}
}

// Institution returns Amex.
func (p *AmexParser) Institution() Institution { return Amex }

// Parse reads an Amex export.
func (p *AmexParser) Parse(content []byte, filename string) (*model.ParseOutcome, error) {
	txns, skipped, err := eachRow(content, filename, amexLayout, p.parseRow)
	if err != nil {
		return nil, fmt.Errorf("reading amex export: %w", err)
	}
	return &model.ParseOutcome{
		Transactions: txns,
		AccountName:  Amex.String(),
		AccountType:  model.AccountTypeCreditCard,
		Skipped:      skipped,
	}, nil
}

func (p *AmexParser) parseRow(rec []string) (model.Transaction, error) {
	date, err := parseDate(rec[amexColDate], usDateLayouts)
	if err != nil {
		return model.Transaction{}, err
	}
	amount, err := parseMoney(rec[amexColAmount])
	if err != nil {
		return model.Transaction{}, err
	}
	amount = amount.Neg()

	merchant := amexMerchant(rec[amexColDesc], rec[amexColDetails])
	native := rec[amexColCategory]

	cat := p.native[native]
	if cat == "" {
		cat, _ = p.matcher.Match(merchant)
	}

	ref := strings.ReplaceAll(rec[amexColReference], "'", "")
	return model.Transaction{
		ID:             id.Resolve(ref, date, amount, merchant),
		Date:           date,
		Amount:         amount,
		Merchant:       merchant,
		Category:       cat,
		CustomCategory: native,
	}, nil
}

// amexMerchant recovers the real merchant from the description, which is
// often a truncated processor label, using the extended-details lines.
//
// Split credits ("Amex Split Credit: Venmo-Jane") name the original
// purchase on the second detail line. Otherwise a detail line with the same
// leading 20 characters wins; failing that, the line sharing the most
// leading words with the description, provided it continues past them. A
// line that only repeats the start of the description is never used.
func amexMerchant(desc, details string) string {
	lines := detailLines(details)

	if strings.HasPrefix(desc, amexSplitPrefix) {
		if len(lines) < 2 {
			return desc
		}
		return strings.Replace(desc, "Venmo-", "", 1) + ", " + lines[1]
	}

	key := strings.TrimSpace(truncate(desc, amexPrefixLen))
	for _, l := range lines {
		if strings.TrimSpace(truncate(l, amexPrefixLen)) == key {
			return l
		}
	}

	best, bestWords := desc, 0
	descWords := strings.Fields(desc)
	for _, l := range lines {
		if l == desc {
			continue
		}
		words := strings.Fields(l)
		if n := sharedLeadingWords(descWords, words); n > bestWords && n < len(words) {
			best, bestWords = l, n
		}
	}
	return best
}

func detailLines(details string) []string {
	var lines []string
	for _, l := range strings.Split(details, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// truncate returns the first n runes of s.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func sharedLeadingWords(a, b []string) int {
	n := 0
	for n < len(a) && n < len(b) && strings.EqualFold(a[n], b[n]) {
		n++
	}
	return n
}
