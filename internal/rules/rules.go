// Package rules holds the static matching configuration: canonicalization
// rules, rescue rules, exclusion words, classification search priorities,
// and the table-selection scoring weights. Tables are loaded once at
// startup, validated, and immutable afterwards.
package rules

import (
	"fmt"
	"regexp"

	"github.com/hmurakami/dealcheck/internal/common"
)

// CanonicalRule maps raw item text to a canonical product name. A rule
// matches when any pattern matches the normalized name, or any keyword is a
// substring of the folded name.
type CanonicalRule struct {
	Canonical string   `mapstructure:"canonical"`
	Keywords  []string `mapstructure:"keywords"`
	Patterns  []string `mapstructure:"patterns"`
}

// RescueNormalizeEntry rewrites an informal spelling found inside an
// unmatched name to a canonical search term. Entries are checked in order
// and the first hit wins.
type RescueNormalizeEntry struct {
	Match     string `mapstructure:"match"`
	Canonical string `mapstructure:"canonical"`
}

// RescueRule contributes alternative search terms for names the canonical
// matcher could not place.
type RescueRule struct {
	ID            string   `mapstructure:"id"`
	MatchAny      []string `mapstructure:"match_any"`
	MatchAll      []string `mapstructure:"match_all"`
	MatchPatterns []string `mapstructure:"match_patterns"`
	Candidates    []string `mapstructure:"candidates"`
}

// ScoreWeight adds Weight to a statistical table's score when Keyword
// appears in its title.
type ScoreWeight struct {
	Keyword string `mapstructure:"keyword"`
	Weight  int    `mapstructure:"weight"`
}

// Table is the full immutable rule configuration.
type Table struct {
	ItemRules         []CanonicalRule        `mapstructure:"item_rules"`
	NameHints         map[string][]string    `mapstructure:"name_hints"`
	RescueNormalize   []RescueNormalizeEntry `mapstructure:"rescue_normalize"`
	RescueRules       []RescueRule           `mapstructure:"rescue_rules"`
	ExcludeWords      []string               `mapstructure:"exclude_words"`
	ClassSearchOrder  []string               `mapstructure:"class_search_order"`
	ClassifyOrder     []string               `mapstructure:"classify_order"`
	ProbeKeywords     []string               `mapstructure:"probe_keywords"`
	TableScoreWeights []ScoreWeight          `mapstructure:"table_score_weights"`
	SearchPhrase      string                 `mapstructure:"search_phrase"`
}

// Defaults returns the stock rule table.
func Defaults() Table {
	return Table{
		ItemRules: []CanonicalRule{
			{Canonical: "牛乳", Keywords: []string{"牛乳", "ミルク", "MILK"}},
			{Canonical: "食パン", Keywords: []string{"食パン", "食ﾊﾟﾝ"}},
			{Canonical: "鶏卵", Keywords: []string{"鶏卵", "卵", "たまご", "玉子", "EGG", "タマゴ"}},
			{Canonical: "米", Keywords: []string{"米", "コメ", "こしひかり", "あきたこまち"}},
			{Canonical: "バナナ", Keywords: []string{"バナナ", "BANANA"}},
			{Canonical: "キャベツ", Keywords: []string{"キャベツ"}},
			{Canonical: "たまねぎ", Keywords: []string{"たまねぎ", "玉ねぎ", "オニオン"}},
			{Canonical: "じゃがいも", Keywords: []string{"じゃがいも", "ジャガ", "ポテト"}},
			{Canonical: "トマト", Keywords: []string{"トマト"}},
			{Canonical: "りんご", Keywords: []string{"りんご", "リンゴ", "林檎", "APPLE"}},
			{Canonical: "アイスクリーム", Keywords: []string{"アイス", "アイスクリーム", "ICE"}},
			{
				Canonical: "即席めん",
				Keywords:  []string{"即席", "インスタント", "カップ麺", "カップラーメン", "カップうどん", "カップそば", "袋麺"},
				Patterns: []string{
					`(カップ|即席|インスタント)\s*(ラ-メン|ら-めん|うどん|そば|焼そば|焼きそば)`,
					`(ラ-メン|ら-めん|うどん|そば|焼そば|焼きそば)\s*(カップ|即席|インスタント)`,
				},
			},
			{
				Canonical: "さば缶詰",
				Keywords:  []string{"サバ水煮", "さば水煮", "鯖水煮", "サバミズニ", "さば缶", "サバ缶"},
				Patterns: []string{
					`(サバ|さば|鯖).*(水煮|みずに|ミズニ|味噌煮|みそ煮)`,
				},
			},
			{Canonical: "ティッシュ", Keywords: []string{"ティッシュ", "ﾃｨｯｼｭ", "TISSUE"}},
			{Canonical: "トイレットペーパー", Keywords: []string{"トイレット", "ﾄｲﾚｯﾄ", "ペーパー", "TP"}},
		},
		NameHints: map[string][]string{
			"食パン": {"食パン"},
			"鶏卵":  {"鶏卵", "卵"},
		},
		RescueNormalize: []RescueNormalizeEntry{
			{Match: "タマゴ", Canonical: "鶏卵"},
			{Match: "たまご", Canonical: "鶏卵"},
			{Match: "玉子", Canonical: "鶏卵"},
			{Match: "卵", Canonical: "鶏卵"},
		},
		RescueRules: []RescueRule{
			{
				ID:            "canned_foods",
				MatchAny:      []string{"缶詰", "CAN"},
				MatchPatterns: []string{`缶$`},
				Candidates:    []string{"さば水煮", "魚介缶詰", "さば缶", "まぐろ缶", "つな缶", "魚介加工品", "加工食品"},
			},
			{
				ID:         "kitsune_udon",
				MatchAny:   []string{"きつねうどん"},
				Candidates: []string{"うどん", "めん類", "即席めん", "ゆでうどん", "調理麺"},
			},
			{
				ID:         "udon",
				MatchAll:   []string{"うどん", "きつね"},
				Candidates: []string{"うどん", "めん類", "即席めん", "ゆでうどん", "調理麺"},
			},
		},
		ExcludeWords: []string{
			"合計", "小計", "消費税", "内税", "外税",
			"お預り", "預り", "お預かり",
			"お釣り", "釣り", "釣",
			"レジ", "TEL",
		},
		// cat01 holds item names, cat02/cat03 hold spec detail, tab the
		// survey section.
		ClassSearchOrder: []string{"cat01", "cat02", "cat03", "tab"},
		ClassifyOrder:    []string{"cat01", "tab", "cat02", "cat03"},
		ProbeKeywords:    []string{"鶏卵", "卵", "食パン", "牛乳"},
		TableScoreWeights: []ScoreWeight{
			{Keyword: "全国統一", Weight: 5},
			{Keyword: "月別", Weight: 3},
			{Keyword: "全国", Weight: 2},
			{Keyword: "価格", Weight: 1},
			{Keyword: "小売", Weight: 2},
			{Keyword: "物価", Weight: 2},
		},
		SearchPhrase: "小売物価統計調査 動向編 全国",
	}
}

// Validate checks the table once at load time so matchers can assume the
// rules are well-formed.
func (t Table) Validate() error {
	for i, r := range t.ItemRules {
		if r.Canonical == "" {
			return fmt.Errorf("%w: item rule %d has no canonical name", common.ErrInvalidConfig, i)
		}
		if len(r.Keywords) == 0 && len(r.Patterns) == 0 {
			return fmt.Errorf("%w: item rule %q has neither keywords nor patterns", common.ErrInvalidConfig, r.Canonical)
		}
		for _, p := range r.Patterns {
			if _, err := regexp.Compile("(?i)" + p); err != nil {
				return fmt.Errorf("%w: item rule %q pattern %q: %v", common.ErrInvalidConfig, r.Canonical, p, err)
			}
		}
	}

	for _, e := range t.RescueNormalize {
		if e.Match == "" || e.Canonical == "" {
			return fmt.Errorf("%w: rescue normalize entry must have both match and canonical", common.ErrInvalidConfig)
		}
	}

	for _, r := range t.RescueRules {
		if len(r.Candidates) == 0 {
			return fmt.Errorf("%w: rescue rule %q has no candidates", common.ErrInvalidConfig, r.ID)
		}
		if len(r.MatchAny) == 0 && len(r.MatchAll) == 0 && len(r.MatchPatterns) == 0 {
			return fmt.Errorf("%w: rescue rule %q has no match condition", common.ErrInvalidConfig, r.ID)
		}
		for _, p := range r.MatchPatterns {
			if _, err := regexp.Compile("(?i)" + p); err != nil {
				return fmt.Errorf("%w: rescue rule %q pattern %q: %v", common.ErrInvalidConfig, r.ID, p, err)
			}
		}
	}

	if len(t.ClassSearchOrder) == 0 || len(t.ClassifyOrder) == 0 {
		return fmt.Errorf("%w: classification search order must not be empty", common.ErrInvalidConfig)
	}
	if t.SearchPhrase == "" {
		return fmt.Errorf("%w: table search phrase must not be empty", common.ErrInvalidConfig)
	}

	return nil
}
