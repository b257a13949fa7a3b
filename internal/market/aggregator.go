// Package market maintains a periodically refreshed snapshot of
// statistical retail prices for every tracked food item, used as market
// context by the analysis layer.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hmurakami/dealcheck/internal/estat"
)

// Entry is one item in the market snapshot.
type Entry struct {
	ItemName string  `json:"item_name"`
	Price    float64 `json:"price"`
	Unit     string  `json:"unit"`
}

// Catalog is the slice of the statistical catalog client the aggregator
// needs.
type Catalog interface {
	SelectTableID(ctx context.Context) (string, error)
	GetClassificationMaps(ctx context.Context, tableID string) (estat.ClassificationMaps, error)
	LookupPrice(ctx context.Context, tableID, timeCode, areaCode, groupID, code string) (estat.PriceResult, error)
}

const (
	// DefaultTTL is how long a snapshot stays fresh.
	DefaultTTL = 24 * time.Hour

	// maxInFlight bounds concurrent price lookups to respect upstream
	// rate limits.
	maxInFlight = 10

	// The survey has no nationwide series for these tables, so the Tokyo
	// ward area stands in as the representative market.
	defaultAreaCode = "13100"

	// Item codes starting 01 (food) and 02 (beverages/alcohol) are kept.
	foodCodePrefix    = "01"
	alcoholCodePrefix = "02"

	// Entries whose name carries this marker are no longer surveyed.
	discontinuedMarker = "調査終了"
)

// Aggregator fetches and caches the market snapshot. Refresh never returns
// an error: on failure the previous snapshot (or an empty list) is served.
type Aggregator struct {
	catalog Catalog
	logger  *slog.Logger
	ttl     time.Duration
	now     func() time.Time

	mu        sync.RWMutex
	snapshot  []Entry
	fetchedAt time.Time
}

// New creates an aggregator with the default TTL.
func New(catalog Catalog, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		catalog: catalog,
		logger:  logger,
		ttl:     DefaultTTL,
		now:     time.Now,
	}
}

// Refresh returns the cached snapshot when it is younger than the TTL,
// otherwise fetches prices for every tracked item and atomically replaces
// the snapshot.
func (a *Aggregator) Refresh(ctx context.Context) []Entry {
	a.mu.RLock()
	snapshot, fetchedAt := a.snapshot, a.fetchedAt
	a.mu.RUnlock()

	if len(snapshot) > 0 && a.now().Sub(fetchedAt) < a.ttl {
		a.logger.Debug("serving market snapshot from cache", "items", len(snapshot))
		return snapshot
	}

	fresh, err := a.fetch(ctx)
	if err != nil {
		a.logger.Error("market data refresh failed", "error", err)
		if len(snapshot) > 0 {
			a.logger.Info("serving stale market snapshot after refresh failure")
			return snapshot
		}
		return []Entry{}
	}

	a.mu.Lock()
	a.snapshot = fresh
	a.fetchedAt = a.now()
	a.mu.Unlock()

	return fresh
}

// Cached returns the current snapshot without touching the upstream.
func (a *Aggregator) Cached() []Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot
}

// ClearCache drops the snapshot; the next Refresh fetches anew.
func (a *Aggregator) ClearCache() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshot = nil
	a.fetchedAt = time.Time{}
}

func (a *Aggregator) fetch(ctx context.Context) ([]Entry, error) {
	tableID, err := a.catalog.SelectTableID(ctx)
	if err != nil {
		return nil, fmt.Errorf("selecting statistical table: %w", err)
	}

	maps, err := a.catalog.GetClassificationMaps(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("loading classification maps: %w", err)
	}

	// Items usually live in cat01, but some tables keep only a
	// placeholder there and hold the item list in cat02.
	groupID := "cat01"
	items := maps[groupID]
	if len(items) <= 1 {
		groupID = "cat02"
		items = maps[groupID]
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("table %s has no item entries", tableID)
	}

	type target struct {
		name string
		code string
	}
	var targets []target
	for name, code := range items {
		if !strings.HasPrefix(code, foodCodePrefix) && !strings.HasPrefix(code, alcoholCodePrefix) {
			continue
		}
		if strings.Contains(name, discontinuedMarker) {
			continue
		}
		targets = append(targets, target{name: name, code: code})
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].code < targets[j].code })

	timeCode := lastCompleteMonthCode(a.now())
	a.logger.Info("refreshing market snapshot",
		"table_id", tableID,
		"group", groupID,
		"items", len(targets),
		"time_code", timeCode)

	results := make([]*Entry, len(targets))
	sem := make(chan struct{}, maxInFlight)
	var wg sync.WaitGroup

	for i, tgt := range targets {
		wg.Add(1)
		go func(idx int, tgt target) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			res, err := a.catalog.LookupPrice(ctx, tableID, timeCode, defaultAreaCode, groupID, tgt.code)
			if err != nil {
				a.logger.Warn("market price lookup failed", "item", tgt.name, "error", err)
				return
			}
			if res.Price == nil {
				a.logger.Debug("no market price", "item", tgt.name, "note", res.Note)
				return
			}

			results[idx] = &Entry{
				ItemName: displayName(tgt.name),
				Price:    *res.Price,
				Unit:     res.Unit,
			}
		}(i, tgt)
	}

	wg.Wait()

	entries := make([]Entry, 0, len(results))
	for _, e := range results {
		if e != nil {
			entries = append(entries, *e)
		}
	}

	a.logger.Info("market snapshot refreshed", "fetched", len(entries), "of", len(targets))
	return entries, nil
}

// lastCompleteMonthCode builds the time code for the previous month, the
// most recent period the survey has published, in the catalog's
// YYYY00MMMM form.
func lastCompleteMonthCode(t time.Time) string {
	year, month := t.Year(), int(t.Month())
	month--
	if month == 0 {
		month = 12
		year--
	}
	return fmt.Sprintf("%04d00%02d%02d", year, month, month)
}

// displayName strips the leading numeric series prefix from an item name,
// e.g. "1341 鶏卵" becomes "鶏卵".
func displayName(name string) string {
	prefix, rest, ok := strings.Cut(name, " ")
	if !ok || prefix == "" || rest == "" {
		return name
	}
	for _, r := range prefix {
		if r < '0' || r > '9' {
			return name
		}
	}
	return rest
}
