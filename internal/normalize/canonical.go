package normalize

import (
	"regexp"
	"strings"
)

// Rule maps a cleaned-label prefix to a canonical economic group. Rules are
// evaluated in declaration order; the first matching prefix wins.
type Rule struct {
	Prefix string
	Group  string
}

// DefaultRules returns the ordered prefix rule table for the known operator
// groups. Most specific prefixes come first; ties are broken by declaration
// order, never alphabetically.
func DefaultRules() []Rule {
	return []Rule{
		{Prefix: "EMBRATEL", Group: "EMBRATEL"},
		{Prefix: "TELEFONICA", Group: "VIVO"},
		{Prefix: "TELEFÔNICA", Group: "VIVO"},
		{Prefix: "SERCOMTEL", Group: "SERCOMTEL"},
		{Prefix: "NEXTEL", Group: "NEXTEL"},
		{Prefix: "CLARO", Group: "CLARO"},
		{Prefix: "ALGAR", Group: "ALGAR"},
		{Prefix: "CTBC", Group: "ALGAR"},
		{Prefix: "VIVO", Group: "VIVO"},
		{Prefix: "GVT", Group: "VIVO"},
		{Prefix: "TIM", Group: "TIM"},
		{Prefix: "SKY", Group: "SKY"},
		{Prefix: "NET", Group: "CLARO"},
		{Prefix: "OI", Group: "OI"},
	}
}

var parenthetical = regexp.MustCompile(`\([^)]*\)`)

// Canonicalizer collapses noisy raw entity labels into canonical group names.
// Canonicalize is a pure, deterministic and idempotent function of its input.
type Canonicalizer struct {
	rules []Rule
}

// NewCanonicalizer builds a canonicalizer over an ordered rule table. A nil
// table selects DefaultRules.
func NewCanonicalizer(rules []Rule) *Canonicalizer {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Canonicalizer{rules: rules}
}

// Canonicalize cleans the raw label and applies the first matching prefix
// rule. Labels matching no rule canonicalize to their cleaned form.
func (c *Canonicalizer) Canonicalize(raw string) string {
	label := Clean(raw)
	for _, r := range c.rules {
		if strings.HasPrefix(label, r.Prefix) {
			return r.Group
		}
	}
	return label
}

// Clean uppercases the label, strips parenthetical annotations and footnote
// asterisks, and collapses internal whitespace.
func Clean(raw string) string {
	s := strings.ToUpper(raw)
	s = parenthetical.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "*", " ")
	return strings.Join(strings.Fields(s), " ")
}
