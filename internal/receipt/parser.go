// Package receipt turns raw multi-line OCR text into a purchase date and an
// ordered list of parsed line items.
package receipt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hmurakami/dealcheck/internal/textnorm"
)

// ParsedItem is one purchased line: the raw name as printed and the unit
// price paid, when the amount could be parsed.
type ParsedItem struct {
	PaidUnitPrice *float64
	RawName       string
}

var (
	dateRe     = regexp.MustCompile(`(20\d{2})[/-](\d{1,2})[/-](\d{1,2})`)
	lineDateRe = regexp.MustCompile(`\b20\d{2}[/-]\d{1,2}[/-]\d{1,2}\b`)

	// name, optional currency glyph, 2-6 digit amount with optional
	// thousands separators, optional 円, optional trailing dash or star.
	itemLineRe = regexp.MustCompile(`^(.+?)\s*[¥]?\s*(\d{2,6}(?:,\d{3})*)(?:\s*円)?\s*[-‐*]?\s*$`)

	trailingCurrencyRe = regexp.MustCompile(`[¥\\]+$`)
	bracketRemnantRe   = regexp.MustCompile(`[|】\]\[]+`)
	hasWordCharRe      = regexp.MustCompile(`[A-Za-zぁ-んァ-ン一-龥]`)
)

// Parser extracts line items from receipt text. Malformed lines are
// skipped, never fatal.
type Parser struct {
	now          func() time.Time
	excludeWords []string
}

// NewParser creates a parser with the given payment-exclusion word list
// (totals, tax, change and similar non-item lines).
func NewParser(excludeWords []string) *Parser {
	return &Parser{
		excludeWords: excludeWords,
		now:          time.Now,
	}
}

// Parse returns the purchase date in YYYY-MM-DD form and the ordered line
// items. When no date is present in the text, today is used as a fallback.
func (p *Parser) Parse(text string) (string, []ParsedItem) {
	purchaseDate := p.extractDate(text)

	var items []ParsedItem
	for _, rawLine := range strings.Split(text, "\n") {
		line := textnorm.Normalize(rawLine)
		if line == "" {
			continue
		}

		// Standalone date lines are not items.
		if lineDateRe.MatchString(line) {
			continue
		}

		m := itemLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		name := cleanItemName(m[1])
		if name == "" || len([]rune(name)) <= 1 || p.IsExcluded(name) {
			continue
		}
		if !hasWordCharRe.MatchString(name) {
			continue
		}

		var price *float64
		amount := strings.ReplaceAll(m[2], ",", "")
		if v, err := strconv.ParseFloat(amount, 64); err == nil {
			price = &v
		}

		items = append(items, ParsedItem{RawName: name, PaidUnitPrice: price})
	}

	return purchaseDate, items
}

// IsExcluded reports whether the name contains a payment-exclusion word.
func (p *Parser) IsExcluded(name string) bool {
	for _, w := range p.excludeWords {
		if strings.Contains(name, w) {
			return true
		}
	}
	return false
}

func (p *Parser) extractDate(text string) string {
	m := dateRe.FindStringSubmatch(textnorm.Normalize(text))
	if m == nil {
		return p.now().Format("2006-01-02")
	}

	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

func cleanItemName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimSpace(trailingCurrencyRe.ReplaceAllString(name, ""))
	name = strings.TrimSpace(bracketRemnantRe.ReplaceAllString(name, ""))
	return name
}

// MonthOf converts a YYYY-MM-DD purchase date to the YYYYMM form used for
// statistical time-code resolution.
func MonthOf(purchaseDate string) (string, error) {
	t, err := time.Parse("2006-01-02", purchaseDate)
	if err != nil {
		return "", fmt.Errorf("invalid purchase date %q: %w", purchaseDate, err)
	}
	return t.Format("200601"), nil
}
