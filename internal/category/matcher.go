// Package category maps merchant strings to canonical spending categories.
package category

import "strings"

// Transfer is forced onto movements between the owner's own accounts.
const Transfer = "Transfer"

// Rule lists the merchant substrings that imply a category.
type Rule struct {
	Category string   `yaml:"name"`
	Patterns []string `yaml:"merchants"`
}

// Matcher resolves a merchant to the first rule, in declared order, with a
// pattern contained in the merchant. Matching ignores case.
type Matcher struct {
	rules []Rule
}

// NewMatcher copies rules so later changes by the caller have no effect.
func NewMatcher(rules []Rule) *Matcher {
	m := &Matcher{rules: make([]Rule, 0, len(rules))}
	for _, r := range rules {
		lowered := make([]string, 0, len(r.Patterns))
		for _, p := range r.Patterns {
			if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
				lowered = append(lowered, p)
			}
		}
		m.rules = append(m.rules, Rule{Category: r.Category, Patterns: lowered})
	}
	return m
}

// Match returns the category for merchant, or false if no rule applies.
func (m *Matcher) Match(merchant string) (string, bool) {
	if merchant == "" {
		return "", false
	}
	lower := strings.ToLower(merchant)
	for _, r := range m.rules {
		for _, p := range r.Patterns {
			if strings.Contains(lower, p) {
				return r.Category, true
			}
		}
	}
	return "", false
}

// NoteRule attaches a descriptive note to merchants containing Pattern.
// Transfer rules also force the Transfer category.
type NoteRule struct {
	Pattern  string `yaml:"pattern"`
	Note     string `yaml:"note"`
	Transfer bool   `yaml:"transfer,omitempty"`
}

// NoteMatcher finds the first NoteRule whose pattern occurs in a merchant.
// Unlike Matcher it is case-sensitive: bill-pay descriptors are fixed strings.
type NoteMatcher struct {
	rules []NoteRule
}

// NewNoteMatcher copies rules, dropping any with an empty pattern.
func NewNoteMatcher(rules []NoteRule) *NoteMatcher {
	m := &NoteMatcher{}
	for _, r := range rules {
		if r.Pattern != "" {
			m.rules = append(m.rules, r)
		}
	}
	return m
}

// Match returns the first rule matching merchant.
func (m *NoteMatcher) Match(merchant string) (NoteRule, bool) {
	for _, r := range m.rules {
		if strings.Contains(merchant, r.Pattern) {
			return r, true
		}
	}
	return NoteRule{}, false
}
