// Package text repairs text pasted from PDFs and other sources before it is
// sent for synthesis.
package text

import (
	"regexp"
	"strings"
)

// Regex patterns for text cleanup. A broken ligature is only repaired when
// it sits between two letters, so real punctuation such as "Hello!" survives.
const (
	suspectRegexPattern     = `[!®€¬™\x{FB00}-\x{FB04}]`
	brokenFFLBangPattern    = `(?i)([a-z])!fl`
	brokenFFLEuroPattern    = `(?i)([a-z])€l`
	brokenFFIPattern        = `(?i)([a-z])!([a-z])`
	brokenFIRegisterPattern = `(?i)([a-z])®([a-z])`
	brokenFITradePattern    = `(?i)([a-z])™([a-z])`
	brokenFFPattern         = `(?i)([a-z])€([a-z])`
	brokenFLPattern         = `(?i)([a-z])¬([a-z])`
	whitespaceRegexPattern  = `\s+`
)

// Punctuation and formatting constants.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
	softHyphen   = "\u00ad"
)

type repair struct {
	pattern     *regexp.Regexp
	replacement string
}

// Cleaner fixes ligatures and normalizes punctuation and whitespace.
// It is safe for concurrent use.
type Cleaner struct {
	suspectPattern    *regexp.Regexp
	whitespacePattern *regexp.Regexp
	repairs           []repair
	ligatureReplacer  *strings.Replacer
	punctuation       *strings.Replacer
}

// NewCleaner creates a Cleaner with precompiled patterns.
func NewCleaner() *Cleaner {
	return &Cleaner{
		suspectPattern:    regexp.MustCompile(suspectRegexPattern),
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		// ffl repairs run first: the general ffi and ff repairs would
		// otherwise consume their first letter.
		repairs: []repair{
			{pattern: regexp.MustCompile(brokenFFLBangPattern), replacement: "${1}ffl"},
			{pattern: regexp.MustCompile(brokenFFLEuroPattern), replacement: "${1}ffl"},
			{pattern: regexp.MustCompile(brokenFFIPattern), replacement: "${1}ffi${2}"},
			{pattern: regexp.MustCompile(brokenFIRegisterPattern), replacement: "${1}fi${2}"},
			{pattern: regexp.MustCompile(brokenFITradePattern), replacement: "${1}fi${2}"},
			{pattern: regexp.MustCompile(brokenFFPattern), replacement: "${1}ff${2}"},
			{pattern: regexp.MustCompile(brokenFLPattern), replacement: "${1}fl${2}"},
		},
		ligatureReplacer: strings.NewReplacer(
			"\ufb00", "ff",
			"\ufb01", "fi",
			"\ufb02", "fl",
			"\ufb03", "ffi",
			"\ufb04", "ffl",
		),
		punctuation: strings.NewReplacer(
			emDash, " - ",
			enDash, "-",
			figureDash, "-",
			ellipsisChar, ellipsis,
			softHyphen, "",
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// HasLigatureIssues reports whether text contains characters that PDF
// extraction commonly produces in place of ligatures.
func (c *Cleaner) HasLigatureIssues(text string) bool {
	return c.suspectPattern.MatchString(text)
}

// FixLigatures expands Unicode ligatures and repairs ligatures that a PDF
// extractor mapped to unrelated symbols ("tra!c" becomes "traffic").
func (c *Cleaner) FixLigatures(text string) string {
	if strings.TrimSpace(text) == "" || !c.HasLigatureIssues(text) {
		return text
	}

	text = c.ligatureReplacer.Replace(text)

	for _, fix := range c.repairs {
		text = fix.pattern.ReplaceAllString(text, fix.replacement)
	}

	return text
}

// NormalizePunctuation maps typographic quotes and dashes to plain ASCII and
// drops soft hyphens.
func (c *Cleaner) NormalizePunctuation(text string) string {
	return c.punctuation.Replace(text)
}

// NormalizeWhitespace collapses runs of whitespace, including line breaks
// from copied layout text, into single spaces.
func (c *Cleaner) NormalizeWhitespace(text string) string {
	return strings.TrimSpace(c.whitespacePattern.ReplaceAllString(text, " "))
}

// Clean applies every repair in order.
func (c *Cleaner) Clean(text string) string {
	text = c.FixLigatures(text)
	text = c.NormalizePunctuation(text)

	return c.NormalizeWhitespace(text)
}
