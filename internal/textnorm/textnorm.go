// Package textnorm canonicalizes raw OCR text into comparable keys.
//
// All functions are pure: the same input always yields the same output,
// and re-normalizing an already-normalized string is a no-op.
package textnorm

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// NFKC already folds full-width digits, latin letters and most
	// punctuation to their ASCII equivalents; the replacer covers the
	// characters it leaves alone.
	charReplacer = strings.NewReplacer(
		"ー", "-",
		"￥", "¥",
		"\\", "¥",
	)

	spaceRun   = regexp.MustCompile(`\s+`)
	whitespace = regexp.MustCompile(`[ \t\r\n]`)
	brackets   = regexp.MustCompile(`[()（）【】\[\]「」『』]`)
	separators = regexp.MustCompile(`[・,，.。/／\-－]`)
)

// Normalize applies Unicode compatibility normalization, maps full-width
// digits and punctuation to half-width ASCII, collapses whitespace runs to
// a single space, and trims.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = charReplacer.Replace(s)
	s = spaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// SimplifyKey normalizes and then strips all whitespace and a fixed set of
// bracket and separator characters. The result is used only for
// comparison, never displayed.
func SimplifyKey(s string) string {
	s = Normalize(s)
	s = whitespace.ReplaceAllString(s, "")
	s = brackets.ReplaceAllString(s, "")
	s = separators.ReplaceAllString(s, "")
	return s
}

// FoldKey applies SimplifyKey and case-folds the result.
func FoldKey(s string) string {
	return strings.ToLower(SimplifyKey(s))
}
