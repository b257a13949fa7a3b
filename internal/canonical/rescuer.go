package canonical

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hmurakami/dealcheck/internal/rules"
	"github.com/hmurakami/dealcheck/internal/textnorm"
)

// Rescuer generates ranked alternative search terms for an item name the
// canonical matcher could not place. Candidate order carries stage order,
// so downstream consumers may use it as a tie-break signal.
type Rescuer struct {
	normalize []rules.RescueNormalizeEntry
	rules     []compiledRescueRule
}

type compiledRescueRule struct {
	matchAny   []string
	matchAll   []string
	patterns   []*regexp.Regexp
	candidates []string
}

// quantity fragments like "300g" or "1.5 L" embedded in a name; the unit
// letter is optional so bare counts are stripped too.
var quantityRe = regexp.MustCompile(`\d+(\s*[gGmMlL])?`)

// NewRescuer pre-folds the rescue tables.
func NewRescuer(normalize []rules.RescueNormalizeEntry, table []rules.RescueRule) (*Rescuer, error) {
	r := &Rescuer{normalize: normalize}

	for _, rule := range table {
		cr := compiledRescueRule{candidates: rule.Candidates}
		for _, s := range rule.MatchAny {
			if s != "" {
				cr.matchAny = append(cr.matchAny, textnorm.FoldKey(s))
			}
		}
		for _, s := range rule.MatchAll {
			if s != "" {
				cr.matchAll = append(cr.matchAll, textnorm.FoldKey(s))
			}
		}
		for _, p := range rule.MatchPatterns {
			if p == "" {
				continue
			}
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q in rescue rule %q: %w", p, rule.ID, err)
			}
			cr.patterns = append(cr.patterns, re)
		}
		r.rules = append(r.rules, cr)
	}

	return r, nil
}

// CandidateTerms returns deduplicated alternative search terms for an
// unmatched raw name, in stage order: normalize-map hit first, then rescue
// rule candidates, then the name with embedded quantities stripped.
func (r *Rescuer) CandidateTerms(rawName string) []string {
	normalized := textnorm.Normalize(rawName)
	folded := textnorm.FoldKey(normalized)

	var out []string

	for _, e := range r.normalize {
		if strings.Contains(folded, textnorm.FoldKey(e.Match)) {
			out = append(out, e.Canonical)
			break
		}
	}

	for _, rule := range r.rules {
		if rule.matches(normalized, folded) {
			out = append(out, rule.candidates...)
		}
	}

	if stripped := strings.TrimSpace(quantityRe.ReplaceAllString(normalized, "")); stripped != "" && stripped != normalized {
		out = append(out, stripped)
	}

	return dedupe(out)
}

func (cr compiledRescueRule) matches(normalized, folded string) bool {
	for _, s := range cr.matchAny {
		if strings.Contains(folded, s) {
			return true
		}
	}

	if len(cr.matchAll) > 0 {
		all := true
		for _, s := range cr.matchAll {
			if !strings.Contains(folded, s) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}

	for _, re := range cr.patterns {
		if re.MatchString(normalized) {
			return true
		}
	}

	return false
}

// dedupe keeps the first occurrence per folded key.
func dedupe(terms []string) []string {
	var uniq []string
	seen := make(map[string]struct{}, len(terms))

	for _, t := range terms {
		if t == "" {
			continue
		}
		key := textnorm.FoldKey(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		uniq = append(uniq, t)
	}

	return uniq
}
