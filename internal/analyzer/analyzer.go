// Package analyzer ties receipt parsing, canonical resolution, statistical
// price lookup, and price judgment into a single analysis pipeline.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hmurakami/dealcheck/internal/classindex"
	"github.com/hmurakami/dealcheck/internal/estat"
	"github.com/hmurakami/dealcheck/internal/judge"
	"github.com/hmurakami/dealcheck/internal/receipt"
)

// maxItems caps how many receipt lines one analysis will price. Receipts
// longer than this are truncated rather than rejected.
const maxItems = 30

// Catalog is the statistical catalog surface the analyzer depends on.
type Catalog interface {
	SelectTableID(ctx context.Context) (string, error)
	GetClassificationMaps(ctx context.Context, tableID string) (estat.ClassificationMaps, error)
	LookupPrice(ctx context.Context, tableID, timeCode, areaCode, groupID, code string) (estat.PriceResult, error)
}

// TextExtractor produces receipt text from an image.
type TextExtractor interface {
	ExtractText(ctx context.Context, image []byte, mimeType string) (string, error)
}

// ItemResult is the analysis outcome for one receipt line.
type ItemResult struct {
	RawName        string                 `json:"raw_name"`
	Canonical      string                 `json:"canonical_name,omitempty"`
	ClassID        string                 `json:"class_id,omitempty"`
	Code           string                 `json:"code,omitempty"`
	PaidPrice      *float64               `json:"paid_price,omitempty"`
	ReferencePrice *float64               `json:"reference_price,omitempty"`
	Unit           string                 `json:"unit,omitempty"`
	Judgment       judge.Result           `json:"judgment"`
	Note           string                 `json:"note,omitempty"`
	Candidates     []classindex.Hit       `json:"candidates,omitempty"`
	Debug          []classindex.TermDebug `json:"debug,omitempty"`
}

// Summary aggregates verdicts across one analysis.
type Summary struct {
	Items    int     `json:"items"`
	Deals    int     `json:"deals"`
	Overpays int     `json:"overpays"`
	Unknown  int     `json:"unknown"`
	NetDiff  float64 `json:"net_diff_yen"`
}

// Response is a complete receipt analysis.
type Response struct {
	AnalysisID   string       `json:"analysis_id"`
	PurchaseDate string       `json:"purchase_date,omitempty"`
	Currency     string       `json:"currency"`
	Items        []ItemResult `json:"items"`
	Summary      Summary      `json:"summary"`
	Debug        DebugInfo    `json:"debug"`
}

// DebugInfo records which statistical coordinates the analysis resolved.
type DebugInfo struct {
	TableID  string `json:"table_id,omitempty"`
	TimeCode string `json:"time_code,omitempty"`
	AreaCode string `json:"area_code,omitempty"`
	Note     string `json:"note,omitempty"`
}

// Analyzer runs the analysis pipeline.
type Analyzer struct {
	parser    *receipt.Parser
	index     *classindex.Index
	catalog   Catalog
	engine    *judge.Engine
	extractor TextExtractor
	logger    *slog.Logger
}

// New creates an analyzer. The extractor may be nil when image analysis is
// not needed.
func New(parser *receipt.Parser, index *classindex.Index, catalog Catalog, engine *judge.Engine, extractor TextExtractor, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		parser:    parser,
		index:     index,
		catalog:   catalog,
		engine:    engine,
		extractor: extractor,
		logger:    logger,
	}
}

// AnalyzeImage extracts text from a receipt image and analyzes it.
func (a *Analyzer) AnalyzeImage(ctx context.Context, image []byte, mimeType, areaCode string) (*Response, error) {
	if a.extractor == nil {
		return nil, fmt.Errorf("no text extractor configured")
	}
	text, err := a.extractor.ExtractText(ctx, image, mimeType)
	if err != nil {
		return nil, fmt.Errorf("extracting receipt text: %w", err)
	}
	return a.AnalyzeText(ctx, text, areaCode)
}

// AnalyzeText parses receipt text and judges every priced line against the
// statistical catalog. Catalog unavailability degrades the analysis to
// UNKNOWN verdicts instead of failing it.
func (a *Analyzer) AnalyzeText(ctx context.Context, text, areaCode string) (*Response, error) {
	purchaseDate, parsed := a.parser.Parse(text)
	if len(parsed) > maxItems {
		a.logger.Warn("receipt truncated", "items", len(parsed), "cap", maxItems)
		parsed = parsed[:maxItems]
	}

	resp := &Response{
		AnalysisID:   uuid.NewString(),
		PurchaseDate: purchaseDate,
		Currency:     "JPY",
		Items:        make([]ItemResult, 0, len(parsed)),
	}

	catalogCtx, err := a.prepareCatalog(ctx, purchaseDate, areaCode)
	if err != nil {
		a.logger.Error("statistical catalog unavailable", "error", err)
		resp.Debug.Note = "statistical catalog unavailable"
		for _, item := range parsed {
			resp.Items = append(resp.Items, ItemResult{
				RawName:   item.RawName,
				PaidPrice: item.PaidUnitPrice,
				Judgment:  judge.Result{Verdict: judge.VerdictUnknown},
				Note:      "statistical catalog unavailable",
			})
		}
		a.summarize(resp)
		return resp, nil
	}

	resp.Debug = DebugInfo{
		TableID:  catalogCtx.tableID,
		TimeCode: catalogCtx.timeCode,
		AreaCode: catalogCtx.areaCode,
	}

	for _, item := range parsed {
		resp.Items = append(resp.Items, a.analyzeItem(ctx, catalogCtx, item))
	}
	a.summarize(resp)

	a.logger.Info("receipt analyzed",
		"analysis_id", resp.AnalysisID,
		"items", resp.Summary.Items,
		"deals", resp.Summary.Deals,
		"overpays", resp.Summary.Overpays,
		"unknown", resp.Summary.Unknown)

	return resp, nil
}

// catalogContext is the per-analysis statistical coordinate set.
type catalogContext struct {
	tableID  string
	maps     estat.ClassificationMaps
	timeCode string
	areaCode string
}

func (a *Analyzer) prepareCatalog(ctx context.Context, purchaseDate, areaCode string) (*catalogContext, error) {
	tableID, err := a.catalog.SelectTableID(ctx)
	if err != nil {
		return nil, err
	}
	maps, err := a.catalog.GetClassificationMaps(ctx, tableID)
	if err != nil {
		return nil, err
	}

	cc := &catalogContext{tableID: tableID, maps: maps}
	if purchaseDate != "" {
		if yyyymm, err := receipt.MonthOf(purchaseDate); err == nil {
			cc.timeCode = classindex.ResolveTimeCode(maps, yyyymm)
		}
	}
	cc.areaCode = classindex.ResolveAreaCode(maps, areaCode)
	return cc, nil
}

func (a *Analyzer) analyzeItem(ctx context.Context, cc *catalogContext, item receipt.ParsedItem) ItemResult {
	result := ItemResult{RawName: item.RawName, PaidPrice: item.PaidUnitPrice}

	res := a.index.ResolveCanonical(item.RawName, cc.maps)
	result.Canonical = res.Canonical
	result.Debug = res.Debug
	result.ClassID = res.GroupID
	result.Code = res.Code

	if result.Code == "" && result.Canonical != "" {
		if groupID, code, ok := a.index.Classify(cc.maps, result.Canonical); ok {
			result.ClassID = groupID
			result.Code = code
		}
	}

	if result.Code == "" {
		result.Judgment = judge.Result{Verdict: judge.VerdictUnknown}
		result.Note = "item not found in the statistical catalog"
		name := result.Canonical
		if name == "" {
			name = item.RawName
		}
		result.Candidates = a.index.SuggestCandidates(cc.maps, name, 5)
		return result
	}

	price, err := a.catalog.LookupPrice(ctx, cc.tableID, cc.timeCode, cc.areaCode, result.ClassID, result.Code)
	if err != nil {
		a.logger.Warn("price lookup failed", "item", item.RawName, "error", err)
		result.Judgment = judge.Result{Verdict: judge.VerdictUnknown}
		result.Note = "price lookup failed"
		return result
	}

	result.ReferencePrice = price.Price
	result.Unit = price.Unit
	if price.Note != "" {
		result.Note = price.Note
	}

	if item.PaidUnitPrice == nil {
		result.Judgment = judge.Result{Verdict: judge.VerdictUnknown, Note: "paid price not parsed"}
		return result
	}

	result.Judgment = a.engine.Judge(*item.PaidUnitPrice, price.Price)
	return result
}

func (a *Analyzer) summarize(resp *Response) {
	s := Summary{Items: len(resp.Items)}
	for _, item := range resp.Items {
		switch item.Judgment.Verdict {
		case judge.VerdictDeal:
			s.Deals++
		case judge.VerdictOverpay:
			s.Overpays++
		case judge.VerdictUnknown:
			s.Unknown++
		}
		if item.Judgment.Found {
			s.NetDiff += item.Judgment.Diff
		}
	}
	resp.Summary = s
}

// MetaSearch looks up classification entries matching a free-text query,
// for exploring what the statistical catalog can price.
func (a *Analyzer) MetaSearch(ctx context.Context, query string, limit int) ([]classindex.Hit, error) {
	tableID, err := a.catalog.SelectTableID(ctx)
	if err != nil {
		return nil, fmt.Errorf("selecting statistical table: %w", err)
	}
	maps, err := a.catalog.GetClassificationMaps(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("loading classification maps: %w", err)
	}
	return a.index.Search(maps, query, limit), nil
}
