package classindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmurakami/dealcheck/internal/canonical"
	"github.com/hmurakami/dealcheck/internal/estat"
	"github.com/hmurakami/dealcheck/internal/rules"
)

func newStockIndex(t *testing.T) *Index {
	t.Helper()
	defaults := rules.Defaults()

	matcher, err := canonical.NewMatcher(defaults.ItemRules)
	require.NoError(t, err)
	rescuer, err := canonical.NewRescuer(defaults.RescueNormalize, defaults.RescueRules)
	require.NoError(t, err)

	return New(matcher, rescuer, defaults.NameHints, defaults.ClassSearchOrder, defaults.ClassifyOrder)
}

func stockMaps() estat.ClassificationMaps {
	return estat.ClassificationMaps{
		"cat01": {
			"1101 食パン":  "01101",
			"1341 鶏卵":   "01341",
			"1150 ゆでうどん": "01150",
			"9000 調査終了品目": "09000",
		},
		"cat02": {
			"うどん (袋入り)": "02010",
		},
		"tab": {
			"小売価格": "tab01",
		},
	}
}

func TestSearchGroupPriorityAndLimit(t *testing.T) {
	ix := newStockIndex(t)

	hits := ix.Search(stockMaps(), "うどん", 10)
	require.Len(t, hits, 2)
	assert.Equal(t, "cat01", hits[0].GroupID, "cat01 must be scanned before cat02")
	assert.Equal(t, "cat02", hits[1].GroupID)

	limited := ix.Search(stockMaps(), "うどん", 1)
	require.Len(t, limited, 1)
	assert.Equal(t, "cat01", limited[0].GroupID)
}

func TestSearchEmptyQuery(t *testing.T) {
	ix := newStockIndex(t)
	assert.Empty(t, ix.Search(stockMaps(), "  ", 10))
}

func TestPickBestShorterSimplifiedNameWins(t *testing.T) {
	ix := newStockIndex(t)

	best := ix.PickBest([]Hit{
		{GroupID: "cat01", Name: "鶏卵 (Lサイズ 10個入り)", Code: "A"},
		{GroupID: "cat01", Name: "鶏卵", Code: "B"},
	})
	require.NotNil(t, best)
	assert.Equal(t, "B", best.Code)
}

func TestPickBestPrefersNoDigits(t *testing.T) {
	ix := newStockIndex(t)

	// Equal simplified length; the digit-free name must win.
	best := ix.PickBest([]Hit{
		{GroupID: "cat01", Name: "卵1", Code: "digits"},
		{GroupID: "cat01", Name: "卵白", Code: "clean"},
	})
	require.NotNil(t, best)
	assert.Equal(t, "clean", best.Code)
}

func TestPickBestGroupPriorityBreaksTies(t *testing.T) {
	ix := newStockIndex(t)

	best := ix.PickBest([]Hit{
		{GroupID: "cat02", Name: "牛乳", Code: "secondary"},
		{GroupID: "cat01", Name: "牝牛", Code: "primary"},
	})
	require.NotNil(t, best)
	assert.Equal(t, "primary", best.Code)
}

func TestPickBestDeterministic(t *testing.T) {
	ix := newStockIndex(t)

	hits := []Hit{
		{GroupID: "cat01", Name: "ああ", Code: "1"},
		{GroupID: "cat01", Name: "あい", Code: "2"},
		{GroupID: "cat01", Name: "あう", Code: "3"},
	}

	first := ix.PickBest(hits)
	require.NotNil(t, first)
	for i := 0; i < 50; i++ {
		again := ix.PickBest(hits)
		require.NotNil(t, again)
		assert.Equal(t, *first, *again)
	}
	assert.Equal(t, "ああ", first.Name, "lexical order is the final tiebreak")
}

func TestPickBestEmpty(t *testing.T) {
	ix := newStockIndex(t)
	assert.Nil(t, ix.PickBest(nil))
}

func TestResolveCanonicalViaMatcher(t *testing.T) {
	ix := newStockIndex(t)

	res := ix.ResolveCanonical("たまご 1パック", stockMaps())
	assert.Equal(t, "鶏卵", res.Canonical)
	assert.Empty(t, res.Code, "matcher hits defer code resolution to Classify")
}

func TestResolveCanonicalViaRescue(t *testing.T) {
	ix := newStockIndex(t)

	// "うどん (袋入り)" has the shortest simplified name among the hits.
	res := ix.ResolveCanonical("きつねうどん 3食", stockMaps())
	assert.Equal(t, "うどん (袋入り)", res.Canonical)
	assert.Equal(t, "cat02", res.GroupID)
	assert.Equal(t, "02010", res.Code)
	assert.NotEmpty(t, res.Debug)
	assert.LessOrEqual(t, len(res.Debug), 3)
}

func TestResolveCanonicalNoMatchKeepsDebug(t *testing.T) {
	ix := newStockIndex(t)

	res := ix.ResolveCanonical("ツナフレーク缶", estat.ClassificationMaps{
		"cat01": {"1101 食パン": "01101"},
	})
	assert.Empty(t, res.Canonical)
	assert.NotEmpty(t, res.Debug, "rejected candidates stay visible for debugging")
	for _, d := range res.Debug {
		assert.Zero(t, d.Hits)
	}
}

func TestClassify(t *testing.T) {
	ix := newStockIndex(t)

	tests := []struct {
		name      string
		canonical string
		wantGroup string
		wantCode  string
		wantOK    bool
	}{
		{
			name:      "hint term match",
			canonical: "鶏卵",
			wantGroup: "cat01",
			wantCode:  "01341",
			wantOK:    true,
		},
		{
			name:      "canonical substring match",
			canonical: "食パン",
			wantGroup: "cat01",
			wantCode:  "01101",
			wantOK:    true,
		},
		{
			name:      "no match",
			canonical: "シャンプー",
			wantOK:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			group, code, ok := ix.Classify(stockMaps(), tt.canonical)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantGroup, group)
				assert.Equal(t, tt.wantCode, code)
			}
		})
	}
}

func TestClassifyExactNameWins(t *testing.T) {
	ix := newStockIndex(t)

	maps := estat.ClassificationMaps{
		"cat01": {
			"牛乳":        "exact",
			"牛乳 (1L紙パック)": "verbose",
		},
	}

	group, code, ok := ix.Classify(maps, "牛乳")
	require.True(t, ok)
	assert.Equal(t, "cat01", group)
	assert.Equal(t, "exact", code)
}

func TestSuggestCandidates(t *testing.T) {
	ix := newStockIndex(t)

	hits := ix.SuggestCandidates(stockMaps(), "鶏卵", 10)
	require.NotEmpty(t, hits)
	assert.Equal(t, "1341 鶏卵", hits[0].Name)

	assert.Empty(t, ix.SuggestCandidates(stockMaps(), "シャンプー", 10))
}
