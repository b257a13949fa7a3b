// Package canonical maps raw item names to canonical product names using a
// static rule table, with a rescue path that generates alternative search
// terms for names no rule claims.
package canonical

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hmurakami/dealcheck/internal/rules"
	"github.com/hmurakami/dealcheck/internal/textnorm"
)

// A pattern hit outranks any keyword hit; keyword hits score by keyword
// length so longer keywords win.
const patternScore = 10000

type compiledRule struct {
	canonical string
	keywords  []string
	patterns  []*regexp.Regexp
}

// Matcher resolves raw item names against the canonicalization rule table.
// It is a pure function of its rules: the same input always yields the same
// canonical name.
type Matcher struct {
	rules []compiledRule
}

// NewMatcher pre-compiles the rule table. Keywords are stored folded;
// patterns are compiled case-insensitive.
func NewMatcher(table []rules.CanonicalRule) (*Matcher, error) {
	compiled := make([]compiledRule, 0, len(table))

	for _, r := range table {
		cr := compiledRule{canonical: r.Canonical}
		for _, kw := range r.Keywords {
			if kw == "" {
				continue
			}
			cr.keywords = append(cr.keywords, textnorm.FoldKey(kw))
		}
		for _, p := range r.Patterns {
			if p == "" {
				continue
			}
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q in rule %q: %w", p, r.Canonical, err)
			}
			cr.patterns = append(cr.patterns, re)
		}
		compiled = append(compiled, cr)
	}

	return &Matcher{rules: compiled}, nil
}

// Guess returns the canonical product name for a raw item name, or "" when
// no rule matches. On equal scores the rule earlier in table order wins.
func (m *Matcher) Guess(rawName string) string {
	normalized := textnorm.Normalize(rawName)
	folded := textnorm.FoldKey(normalized)

	best := ""
	bestScore := -1

	for _, r := range m.rules {
		for _, re := range r.patterns {
			if re.MatchString(normalized) && patternScore > bestScore {
				best = r.canonical
				bestScore = patternScore
			}
		}

		for _, kw := range r.keywords {
			if kw == "" || !strings.Contains(folded, kw) {
				continue
			}
			if score := utf8.RuneCountInString(kw); score > bestScore {
				best = r.canonical
				bestScore = score
			}
		}
	}

	return best
}
