package category

// Tables is the lookup data injected into parsers.
type Tables struct {
	Rules []Rule
	Notes []NoteRule
	// Native maps an institution's own category label to a canonical
	// category. An empty value means the label carries no usable signal
	// and the merchant heuristic decides.
	Native map[string]string
}

// Matcher builds a Matcher over t.Rules.
func (t Tables) Matcher() *Matcher { return NewMatcher(t.Rules) }

// NoteMatcher builds a NoteMatcher over t.Notes.
func (t Tables) NoteMatcher() *NoteMatcher { return NewNoteMatcher(t.Notes) }

// Default returns a fresh copy of the built-in tables.
func Default() Tables {
	return Tables{
		Rules:  DefaultRules(),
		Notes:  DefaultNotes(),
		Native: DefaultNative(),
	}
}

// DefaultRules is the built-in category table. Order matters: the first
// category with a matching merchant wins.
func DefaultRules() []Rule {
	return []Rule{
		{Category: "Daily Transport", Patterns: []string{
			"NYCT PAYGO", "NYC-TAXI", "TFL CHARGE", "UBER", "LYFT", "CALTRAIN", "MTA*NYCT PAYGO NEW YORK NY",
		}},
		{Category: "Food", Patterns: []string{
			"GNOCCHI ON 9TH", "GRUBHUB", "SHAREBITE", "SAN MARZANO", "BLANK STREET", "BOND STREET",
			"CHIPOTLE", "ELECTRIC BURRITO", "LA COLOMBE", "POPUPBAGELS", "RUBYS", "SWEETGREEN",
			"TEMAKASE", "VAN LEEUWEN ICE CREAM",
		}},
		{Category: "Going Out", Patterns: []string{"ASTOR WINE", "ASTOR WINES & SPIRITS"}},
		{Category: "Groceries", Patterns: []string{"BOOTS", "SAINSBURY", "WEGMANS", "TRADER JOE"}},
		{Category: "Entertainment", Patterns: []string{"AMC"}},
		{Category: "LEGO", Patterns: []string{"LEGO"}},
		{Category: "Personal Care", Patterns: []string{"HOMESICKCANDLES"}},
		{Category: "Subscription", Patterns: []string{"Amazon Prime", "BARRON"}},
		{Category: "Technology", Patterns: []string{"APPLE.COM/BILL"}},
		{Category: Transfer, Patterns: []string{
			"AUTOPAY PAYMENT - THANK YOU", "AUTOMATIC PAYMENT - THANK YOU", "AUTO PAYMENT",
			"AMEX EPAYMENT ACH PMT", "BILTPYMTS RENT PMT", "WF Credit Card AUTO PAY",
		}},
	}
}

// DefaultNotes is the built-in bill-pay note table for bank exports.
func DefaultNotes() []NoteRule {
	return []NoteRule{
		{Pattern: "AMEX EPAYMENT ACH PMT", Note: "Amex credit card bill", Transfer: true},
		{Pattern: "BILTPYMTS RENT PMT", Note: "Bilt housing", Transfer: true},
		{Pattern: "FIVE RINGS", Note: "Five Rings pay check"},
		{Pattern: "INTEREST CREDIT", Note: "Interest"},
		{Pattern: "TARGET", Note: "Target credit card bill", Transfer: true},
		{Pattern: "VANGUARD", Note: "Vanguard", Transfer: true},
		{Pattern: "VENMO CASHOUT", Note: "Venmo", Transfer: true},
		{Pattern: "WF Credit Card AUTO PAY", Note: "WF credit card bill", Transfer: true},
	}
}

// DefaultNative maps American Express category labels.
func DefaultNative() map[string]string {
	return map[string]string{
		"Entertainment-Theatrical Events":          "Entertainment",
		"Merchandise & Supplies-Clothing Stores":   "Clothing",
		"Merchandise & Supplies-Department Stores": "",
		"Merchandise & Supplies-Florists & Garden": "",
		"Merchandise & Supplies-General Retail":    "",
		"Merchandise & Supplies-Groceries":         "Groceries",
		"Merchandise & Supplies-Pharmacies":        "Groceries",
		"Other-Miscellaneous":                      "",
		"Restaurant-Bar & Café":                    "",
		"Restaurant-Restaurant":                    "Food",
		"Transportation-Other Transportation":      "Daily Transport",
		"Travel-Airline":                           "Travel",
	}
}
