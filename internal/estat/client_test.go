package estat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmurakami/dealcheck/internal/common"
	"github.com/hmurakami/dealcheck/internal/rules"
)

func dropConnection(w http.ResponseWriter) {
	if hj, ok := w.(http.Hijacker); ok {
		if conn, _, err := hj.Hijack(); err == nil {
			_ = conn.Close()
		}
	}
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	defaults := rules.Defaults()
	c := NewClient(Config{
		AppID:             "test-app-id",
		BaseURL:           baseURL,
		SearchPhrase:      defaults.SearchPhrase,
		ProbeKeywords:     defaults.ProbeKeywords,
		ScoreWeights:      defaults.TableScoreWeights,
		ClassSearchOrder:  defaults.ClassSearchOrder,
		RequestsPerSecond: 1000,
	}, nil)
	c.retryBase = time.Millisecond
	return c
}

const metaWithEggs = `{
	"GET_META_INFO": {
		"METADATA_INF": {
			"CLASS_INF": {
				"CLASS_OBJ": [
					{
						"@id": "cat01",
						"@name": "品目",
						"CLASS": [
							{"@code": "01101", "@name": "1101 食パン"},
							{"@code": "01341", "@name": "1341 鶏卵"}
						]
					},
					{
						"@id": "area",
						"@name": "地域",
						"CLASS": {"@code": "13100", "@name": "東京都区部"}
					}
				]
			}
		}
	}
}`

const metaWithoutProbeItems = `{
	"GET_META_INFO": {
		"METADATA_INF": {
			"CLASS_INF": {
				"CLASS_OBJ": {
					"@id": "cat01",
					"@name": "品目",
					"CLASS": {"@code": "90001", "@name": "ガソリン"}
				}
			}
		}
	}
}`

func TestGetRequiresAppID(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, "{}")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.cfg.AppID = ""

	_, err := c.GetMetadata(context.Background(), "0001")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrMissingConfig)
	assert.Equal(t, int32(0), calls.Load(), "no network call may happen without a credential")
}

func TestGetRetriesTransportFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			// Drop the connection to simulate a transient network failure.
			dropConnection(w)
			return
		}
		fmt.Fprint(w, metaWithEggs)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	meta, err := c.GetMetadata(context.Background(), "0001")
	require.NoError(t, err, "two transient failures then success must surface no error")
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, meta.Groups, 2)
	assert.Equal(t, "cat01", meta.Groups[0].ID)
}

func TestGetExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		dropConnection(w)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.GetMetadata(context.Background(), "0001")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUpstreamTimeout)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetErrorStatusIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.GetMetadata(context.Background(), "0001")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUpstreamHTTP)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetRejectsNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html>maintenance</html>")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.GetMetadata(context.Background(), "0001")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUpstreamFormat)
}

func TestGetMetadataIsCached(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, metaWithEggs)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	first, err := c.GetMetadata(context.Background(), "0001")
	require.NoError(t, err)
	second, err := c.GetMetadata(context.Background(), "0001")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetClassificationMaps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, metaWithEggs)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	maps, err := c.GetClassificationMaps(context.Background(), "0001")
	require.NoError(t, err)
	assert.Equal(t, "01341", maps["cat01"]["1341 鶏卵"])
	// Single CLASS object decodes as a one-entry group.
	assert.Equal(t, "13100", maps["area"]["東京都区部"])
}

func TestGetMetadataMissingStructure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"GET_META_INFO": {}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.GetMetadata(context.Background(), "0001")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrMetadataParse)
}

func TestScoreTitle(t *testing.T) {
	c := newTestClient(t, "http://unused")

	both := c.scoreTitle("小売物価統計調査 全国統一価格 物価")
	only := c.scoreTitle("消費者物価に関する調査")
	assert.Greater(t, both, only,
		"a title with 全国統一 and 物価 must outrank a title with 物価 alone")

	assert.Equal(t, 0, c.scoreTitle("無関係な統計"))
}

func TestSelectTableIDPrefersProbedTable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/getStatsList", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{
			"GET_STATS_LIST": {
				"DATALIST_INF": {
					"TABLE_INF": [
						{"@id": "T-HIGH", "TITLE": "小売物価統計調査 全国統一価格 月別 物価"},
						{"@id": "T-LOW", "TITLE": {"$": "小売物価統計調査 物価"}}
					]
				}
			}
		}`)
	})
	mux.HandleFunc("/getMetaInfo", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("statsDataId") == "T-HIGH" {
			fmt.Fprint(w, metaWithoutProbeItems)
			return
		}
		fmt.Fprint(w, metaWithEggs)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	// T-HIGH outranks T-LOW but carries no probe item, so T-LOW wins.
	id, err := c.SelectTableID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "T-LOW", id)
}

func TestSelectTableIDIsCached(t *testing.T) {
	var listCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/getStatsList", func(w http.ResponseWriter, _ *http.Request) {
		listCalls.Add(1)
		fmt.Fprint(w, `{
			"GET_STATS_LIST": {
				"DATALIST_INF": {
					"TABLE_INF": {"@id": "T-ONLY", "TITLE": "小売物価統計調査 全国"}
				}
			}
		}`)
	})
	mux.HandleFunc("/getMetaInfo", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, metaWithEggs)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	first, err := c.SelectTableID(context.Background())
	require.NoError(t, err)
	second, err := c.SelectTableID(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), listCalls.Load())

	c.ClearCache()
	_, err = c.SelectTableID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), listCalls.Load())
}

func TestSelectTableIDFallsBackToTopScore(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/getStatsList", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{
			"GET_STATS_LIST": {
				"DATALIST_INF": {
					"TABLE_INF": [
						{"@id": "T-A", "TITLE": "小売物価統計調査 全国統一価格"},
						{"@id": "T-B", "TITLE": "物価"}
					]
				}
			}
		}`)
	})
	mux.HandleFunc("/getMetaInfo", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, metaWithoutProbeItems)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	id, err := c.SelectTableID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "T-A", id, "blind fallback must pick the top-scored table")
}

func TestSelectTableIDNoTables(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"GET_STATS_LIST": {"DATALIST_INF": {"TABLE_INF": []}}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.SelectTableID(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestLookupPrice(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		fmt.Fprint(w, `{
			"GET_STATS_DATA": {
				"STATISTICAL_DATA": {
					"DATA_INF": {
						"VALUE": {"$": "280", "@unit": "円"}
					}
				}
			}
		}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	res, err := c.LookupPrice(context.Background(), "T-1", "2025000404", "13100", "cat01", "01341")
	require.NoError(t, err)
	require.NotNil(t, res.Price)
	assert.InDelta(t, 280.0, *res.Price, 0.001)
	assert.Equal(t, "円", res.Unit)
	assert.Empty(t, res.Note)

	q := gotQuery.Load().(url.Values)
	assert.Equal(t, []string{"01341"}, q["cdCat01"])
	assert.Equal(t, []string{"2025000404"}, q["cdTime"])
	assert.Equal(t, []string{"13100"}, q["cdArea"])
	assert.Equal(t, []string{"1"}, q["limit"])
}

func TestLookupPriceNoObservation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"GET_STATS_DATA": {"STATISTICAL_DATA": {"DATA_INF": {"VALUE": []}}}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	res, err := c.LookupPrice(context.Background(), "T-1", "", "", "cat01", "01341")
	require.NoError(t, err, "an empty result set is a normal outcome, not an error")
	assert.Nil(t, res.Price)
	assert.NotEmpty(t, res.Note)
}

func TestLookupPriceMalformedStructure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"GET_STATS_DATA": {}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	res, err := c.LookupPrice(context.Background(), "T-1", "", "", "tab", "01")
	require.NoError(t, err)
	assert.Nil(t, res.Price)
	assert.NotEmpty(t, res.Note)
}

func TestClassParam(t *testing.T) {
	assert.Equal(t, "cdCat01", classParam("cat01"))
	assert.Equal(t, "cdTab", classParam("tab"))
	assert.Equal(t, "cdCat02", classParam("cat02"))
}

func TestRetryableErrorUnwrap(t *testing.T) {
	inner := errors.New("connection reset")
	wrapped := &common.RetryableError{Err: inner, Retryable: true}
	assert.ErrorIs(t, wrapped, inner)
	assert.True(t, common.IsRetryable(wrapped))
}
