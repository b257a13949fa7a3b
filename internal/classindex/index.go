// Package classindex resolves canonical names and rescue candidates to
// concrete classification codes inside a table's classification maps.
package classindex

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hmurakami/dealcheck/internal/canonical"
	"github.com/hmurakami/dealcheck/internal/estat"
	"github.com/hmurakami/dealcheck/internal/textnorm"
)

// Hit is one classification entry matched by a query.
type Hit struct {
	GroupID string `json:"class_id"`
	Name    string `json:"name"`
	Code    string `json:"code"`
}

// TermDebug records how one rescue term fared, for diagnostics.
type TermDebug struct {
	Term    string `json:"term"`
	Hits    int    `json:"hits"`
	Samples []Hit  `json:"samples"`
}

// Resolution is the outcome of resolving a raw item name.
type Resolution struct {
	Canonical string
	GroupID   string
	Code      string
	Debug     []TermDebug
}

const (
	searchHitLimit = 80
	debugTermLimit = 3
	debugHitLimit  = 3
)

var digitRe = regexp.MustCompile(`\d`)

// Index searches classification maps using the configured category-group
// priority orders.
type Index struct {
	matcher       *canonical.Matcher
	rescuer       *canonical.Rescuer
	nameHints     map[string][]string
	searchOrder   []string
	classifyOrder []string
}

// New creates an index over the given matcher and rescuer. searchOrder
// drives free-text search; classifyOrder drives canonical-name
// classification (the two priorities differ).
func New(matcher *canonical.Matcher, rescuer *canonical.Rescuer, nameHints map[string][]string, searchOrder, classifyOrder []string) *Index {
	return &Index{
		matcher:       matcher,
		rescuer:       rescuer,
		nameHints:     nameHints,
		searchOrder:   searchOrder,
		classifyOrder: classifyOrder,
	}
}

// Search collects entries whose simplified name contains the simplified
// query, scanning category groups in priority order and short-circuiting at
// limit. Earlier groups are preferred by scan order, not post-hoc sorting.
func (ix *Index) Search(maps estat.ClassificationMaps, query string, limit int) []Hit {
	simplified := textnorm.SimplifyKey(query)
	if simplified == "" {
		return nil
	}

	var hits []Hit
	for _, groupID := range ix.searchOrder {
		group := maps[groupID]
		for _, name := range sortedNames(group) {
			if !strings.Contains(textnorm.SimplifyKey(name), simplified) {
				continue
			}
			hits = append(hits, Hit{GroupID: groupID, Name: name, Code: group[name]})
			if len(hits) >= limit {
				return hits
			}
		}
	}
	return hits
}

// PickBest orders hits by: shorter simplified name, absence of embedded
// digits, category-group priority, raw name length, then name. The head of
// that order is returned; nil when hits is empty.
func (ix *Index) PickBest(hits []Hit) *Hit {
	if len(hits) == 0 {
		return nil
	}

	sorted := make([]Hit, len(hits))
	copy(sorted, hits)
	sort.SliceStable(sorted, func(i, j int) bool {
		return ix.less(sorted[i], sorted[j])
	})

	best := sorted[0]
	return &best
}

func (ix *Index) less(a, b Hit) bool {
	al := utf8.RuneCountInString(textnorm.SimplifyKey(a.Name))
	bl := utf8.RuneCountInString(textnorm.SimplifyKey(b.Name))
	if al != bl {
		return al < bl
	}

	ad, bd := digitRe.MatchString(a.Name), digitRe.MatchString(b.Name)
	if ad != bd {
		return !ad
	}

	ap, bp := ix.groupPriority(a.GroupID), ix.groupPriority(b.GroupID)
	if ap != bp {
		return ap < bp
	}

	ar, br := utf8.RuneCountInString(a.Name), utf8.RuneCountInString(b.Name)
	if ar != br {
		return ar < br
	}

	return a.Name < b.Name
}

func (ix *Index) groupPriority(groupID string) int {
	for i, id := range ix.searchOrder {
		if id == groupID {
			return i
		}
	}
	return len(ix.searchOrder) + 1
}

// ResolveCanonical maps a raw item name to a canonical name. The rule
// matcher is tried first; when it fails, rescue candidate terms are
// searched in the classification maps and the best hit wins. The top terms
// by hit count are recorded for debugging in both outcomes.
func (ix *Index) ResolveCanonical(rawName string, maps estat.ClassificationMaps) Resolution {
	if name := ix.matcher.Guess(rawName); name != "" {
		return Resolution{Canonical: name}
	}

	var all []Hit
	var debug []TermDebug

	for _, term := range ix.rescuer.CandidateTerms(rawName) {
		hits := ix.Search(maps, term, searchHitLimit)
		all = append(all, hits...)

		samples := hits
		if len(samples) > debugHitLimit {
			samples = samples[:debugHitLimit]
		}
		debug = append(debug, TermDebug{Term: term, Hits: len(hits), Samples: samples})
	}

	sort.SliceStable(debug, func(i, j int) bool { return debug[i].Hits > debug[j].Hits })
	if len(debug) > debugTermLimit {
		debug = debug[:debugTermLimit]
	}

	picked := ix.PickBest(all)
	if picked == nil {
		return Resolution{Debug: debug}
	}

	return Resolution{
		Canonical: picked.Name,
		GroupID:   picked.GroupID,
		Code:      picked.Code,
		Debug:     debug,
	}
}

// Classify resolves a canonical name to a (category group, code) pair. Per
// group in classify priority order it tries: exact name, hint terms as
// substrings, canonical as substring, then simplified-key substring. The
// first group yielding any match wins.
func (ix *Index) Classify(maps estat.ClassificationMaps, canonicalName string) (string, string, bool) {
	hints, ok := ix.nameHints[canonicalName]
	if !ok {
		hints = []string{canonicalName}
	}
	simplified := textnorm.SimplifyKey(canonicalName)

	for _, groupID := range ix.classifyOrder {
		group := maps[groupID]
		if len(group) == 0 {
			continue
		}

		if code, ok := group[canonicalName]; ok {
			return groupID, code, true
		}

		names := sortedNames(group)

		for _, name := range names {
			for _, h := range hints {
				if h != "" && strings.Contains(name, h) {
					return groupID, group[name], true
				}
			}
		}

		for _, name := range names {
			if strings.Contains(name, canonicalName) {
				return groupID, group[name], true
			}
		}

		if simplified != "" {
			for _, name := range names {
				if strings.Contains(textnorm.SimplifyKey(name), simplified) {
					return groupID, group[name], true
				}
			}
		}
	}

	return "", "", false
}

// SuggestCandidates lists entries matching a canonical name's hint terms,
// used to annotate "item not in metadata" results.
func (ix *Index) SuggestCandidates(maps estat.ClassificationMaps, canonicalName string, limit int) []Hit {
	hints, ok := ix.nameHints[canonicalName]
	if !ok {
		hints = []string{canonicalName}
	}

	keys := make([]string, 0, len(hints))
	for _, h := range hints {
		if k := textnorm.SimplifyKey(h); k != "" {
			keys = append(keys, k)
		}
	}

	var hits []Hit
	for _, groupID := range ix.classifyOrder {
		group := maps[groupID]
		for _, name := range sortedNames(group) {
			simplified := textnorm.SimplifyKey(name)
			for _, k := range keys {
				if strings.Contains(simplified, k) {
					hits = append(hits, Hit{GroupID: groupID, Name: name, Code: group[name]})
					break
				}
			}
			if len(hits) >= limit {
				return hits
			}
		}
	}
	return hits
}

// sortedNames returns the group's names in a deterministic order.
func sortedNames(group map[string]string) []string {
	names := make([]string, 0, len(group))
	for name := range group {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
