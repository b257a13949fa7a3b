package estat

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/hmurakami/dealcheck/internal/common"
	"github.com/hmurakami/dealcheck/internal/textnorm"
)

// Metadata is the parsed classification structure of one statistical table.
type Metadata struct {
	Groups []ClassGroup
}

// ClassGroup is one category group with its code entries.
type ClassGroup struct {
	ID      string
	Name    string
	Entries []ClassEntry
}

// ClassEntry is a single name-to-code classification entry.
type ClassEntry struct {
	Code string
	Name string
}

// How many of the highest-scoring tables get probed before falling back to
// the top-scored one unconditionally.
const probeCandidates = 25

const searchLimit = 80

// SelectTableID returns the cached statistical table id, or selects one:
// search the catalog for the configured domain phrase, score titles by the
// weighted keyword table, and accept the first of the top candidates whose
// classification maps contain a probe keyword. When no candidate passes the
// probe the top-scored table is accepted blind.
func (c *Client) SelectTableID(ctx context.Context) (string, error) {
	c.mu.RLock()
	cached := c.tableID
	c.mu.RUnlock()
	if cached != "" {
		return cached, nil
	}

	params := url.Values{}
	params.Set("searchWord", c.cfg.SearchPhrase)
	params.Set("limit", fmt.Sprint(searchLimit))

	var doc statsListDoc
	if err := c.get(ctx, "getStatsList", params, &doc); err != nil {
		return "", err
	}

	if doc.GetStatsList == nil || doc.GetStatsList.DatalistInf == nil {
		return "", common.NewUpstreamError(common.ErrMetadataParse, "stats list structure is missing DATALIST_INF", nil)
	}

	tables := doc.GetStatsList.DatalistInf.TableInf
	if len(tables) == 0 {
		return "", fmt.Errorf("%w: no statistical table matched %q", common.ErrNotFound, c.cfg.SearchPhrase)
	}

	ranked := make([]tableDescriptor, len(tables))
	copy(ranked, tables)
	sort.SliceStable(ranked, func(i, j int) bool {
		return c.scoreTitle(string(ranked[i].Title)) > c.scoreTitle(string(ranked[j].Title))
	})
	if len(ranked) > probeCandidates {
		ranked = ranked[:probeCandidates]
	}

	for _, t := range ranked {
		sid := t.id()
		if sid == "" {
			continue
		}

		maps, err := c.GetClassificationMaps(ctx, sid)
		if err != nil {
			c.logger.Debug("table probe failed", "table_id", sid, "error", err)
			continue
		}

		if c.hasAnyProbeItem(maps) {
			c.mu.Lock()
			c.tableID = sid
			c.mu.Unlock()
			c.logger.Info("statistical table selected", "table_id", sid, "title", string(t.Title))
			return sid, nil
		}
	}

	// None of the probed candidates carried a known item; fall back to the
	// highest-scoring table without content validation.
	sid := ranked[0].id()
	if sid == "" {
		return "", fmt.Errorf("%w: no usable statistical table id", common.ErrNotFound)
	}

	c.mu.Lock()
	c.tableID = sid
	c.mu.Unlock()
	c.logger.Warn("no probed table contained a probe keyword, using top-scored table",
		"table_id", sid, "title", string(ranked[0].Title))
	return sid, nil
}

// scoreTitle sums the weights of scoring keywords present in the title.
func (c *Client) scoreTitle(title string) int {
	score := 0
	for _, w := range c.cfg.ScoreWeights {
		if strings.Contains(title, w.Keyword) {
			score += w.Weight
		}
	}
	return score
}

// hasAnyProbeItem reports whether any category entry name contains a probe
// keyword, simplified-key substring matched across the configured group
// priority order.
func (c *Client) hasAnyProbeItem(maps ClassificationMaps) bool {
	for _, groupID := range c.cfg.ClassSearchOrder {
		for name := range maps[groupID] {
			simplified := textnorm.SimplifyKey(name)
			for _, kw := range c.cfg.ProbeKeywords {
				if strings.Contains(simplified, textnorm.SimplifyKey(kw)) {
					return true
				}
			}
		}
	}
	return false
}

// GetMetadata returns the parsed metadata for a table, fetching and caching
// it on first access.
func (c *Client) GetMetadata(ctx context.Context, tableID string) (*Metadata, error) {
	c.mu.RLock()
	cached, ok := c.metaCache[tableID]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	params := url.Values{}
	params.Set("statsDataId", tableID)

	var doc metaDoc
	if err := c.get(ctx, "getMetaInfo", params, &doc); err != nil {
		return nil, err
	}

	meta, err := parseMetadata(&doc)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.metaCache[tableID] = meta
	c.mu.Unlock()
	return meta, nil
}

// GetClassificationMaps returns the per-group name-to-code maps for a
// table, fetching and caching on first access.
func (c *Client) GetClassificationMaps(ctx context.Context, tableID string) (ClassificationMaps, error) {
	c.mu.RLock()
	cached, ok := c.classCache[tableID]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	meta, err := c.GetMetadata(ctx, tableID)
	if err != nil {
		return nil, err
	}

	maps := meta.classificationMaps()

	c.mu.Lock()
	c.classCache[tableID] = maps
	c.mu.Unlock()
	return maps, nil
}

// parseMetadata converts the wire document, surfacing missing layers as a
// metadata parse error rather than an empty result.
func parseMetadata(doc *metaDoc) (*Metadata, error) {
	if doc.GetMetaInfo == nil {
		return nil, common.NewUpstreamError(common.ErrMetadataParse, "response has no GET_META_INFO", nil)
	}
	if doc.GetMetaInfo.MetadataInf == nil {
		return nil, common.NewUpstreamError(common.ErrMetadataParse, "response has no METADATA_INF", nil)
	}
	if doc.GetMetaInfo.MetadataInf.ClassInf == nil {
		return nil, common.NewUpstreamError(common.ErrMetadataParse, "response has no CLASS_INF", nil)
	}

	meta := &Metadata{}
	for _, obj := range doc.GetMetaInfo.MetadataInf.ClassInf.ClassObj {
		if obj.ID == "" {
			continue
		}
		group := ClassGroup{ID: obj.ID, Name: obj.Name}
		for _, e := range obj.Class {
			code := string(e.Code)
			name := string(e.Name)
			if code == "" || name == "" {
				continue
			}
			group.Entries = append(group.Entries, ClassEntry{Code: code, Name: name})
		}
		meta.Groups = append(meta.Groups, group)
	}

	return meta, nil
}

func (m *Metadata) classificationMaps() ClassificationMaps {
	maps := make(ClassificationMaps, len(m.Groups))
	for _, g := range m.Groups {
		entries := make(map[string]string, len(g.Entries))
		for _, e := range g.Entries {
			entries[e.Name] = e.Code
		}
		maps[g.ID] = entries
	}
	return maps
}
