// Package extraction turns an ordered sequence of OCR text lines from a
// retail receipt into a confidence-scored structured record.
//
// The pipeline is classify -> locate total -> extract items -> reconcile, with
// the amount normalizer and date resolver used as leaf utilities. Every stage
// is a pure function of its input and the Extractor's read-only
// configuration. Input never causes an error: fields that cannot be read are
// left nil and explained in ExtractedReceipt.Warnings.
package extraction

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
)

// Extractor runs the extraction pipeline. It is immutable after New and safe
// for concurrent use.
type Extractor struct {
	cfg Config

	total      *regexp.Regexp
	grandTotal *regexp.Regexp
	subtotal   *regexp.Regexp
	tax        *regexp.Regexp
	ignore     *regexp.Regexp

	symbols []currencySymbol
	months  map[string]time.Month

	dayMonthName *regexp.Regexp
	monthNameDay *regexp.Regexp

	rules []rule
}

type currencySymbol struct {
	symbol string
	code   string
}

// New validates cfg and compiles its keyword and month tables.
func New(cfg Config) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid extraction config: %w", err)
	}

	e := &Extractor{
		cfg:        cfg,
		total:      keywordPattern(cfg.TotalKeywords),
		grandTotal: keywordPattern(cfg.GrandTotalKeywords),
		subtotal:   keywordPattern(cfg.SubtotalKeywords),
		tax:        keywordPattern(cfg.TaxKeywords),
		ignore:     keywordPattern(cfg.IgnoreKeywords),
		months:     make(map[string]time.Month, len(cfg.MonthNames)),
	}

	for sym, code := range cfg.CurrencySymbols {
		e.symbols = append(e.symbols, currencySymbol{symbol: strings.TrimSpace(sym), code: code})
	}
	sort.Slice(e.symbols, func(i, j int) bool {
		if len(e.symbols[i].symbol) != len(e.symbols[j].symbol) {
			return len(e.symbols[i].symbol) > len(e.symbols[j].symbol)
		}
		return e.symbols[i].symbol < e.symbols[j].symbol
	})

	names := make([]string, 0, len(cfg.MonthNames))
	for name, month := range cfg.MonthNames {
		name = strings.ToLower(strings.TrimSpace(name))
		e.months[name] = month
		names = append(names, name)
	}
	alternation := alternationOf(names)
	e.dayMonthName = regexp.MustCompile(`(?i)\b(\d{1,2})[\s\-./]*` + alternation + `\.?[\s\-./,]*(\d{4}|\d{2})\b`)
	e.monthNameDay = regexp.MustCompile(`(?i)\b` + alternation + `\.?\s+(\d{1,2}),?\s+(\d{4}|\d{2})\b`)

	e.rules = e.classificationRules()
	return e, nil
}

// Config returns a copy of the configuration the extractor was built with.
func (e *Extractor) Config() Config {
	return e.cfg
}

// Extract runs the whole pipeline over one document.
func (e *Extractor) Extract(lines []RawLine) ExtractedReceipt {
	lines = copyLines(lines)
	result := ExtractedReceipt{
		LineItems: []LineItemCandidate{},
		Warnings:  []string{},
		RawText:   joinText(lines),
	}

	if len(lines) == 0 {
		result.Warnings = append(result.Warnings, WarnNoInput, WarnMerchantMissing, WarnDateMissing, WarnTotalMissing, WarnNoItems)
		return result
	}

	classified := e.Classify(lines)
	result.Lines = classified

	if !anyDigit(lines) {
		result.Warnings = append(result.Warnings, WarnNoDigits, WarnMerchantMissing, WarnDateMissing, WarnTotalMissing, WarnNoItems)
		return result
	}

	if name, idx, ok := merchantName(classified); ok {
		result.MerchantName = &name
		result.Sources = append(result.Sources, FieldSource{Field: "merchant_name", LineIndex: classified[idx].Line.Index, Text: classified[idx].Line.Text})
	}

	if date, idx, ok := e.findDate(lines); ok {
		result.Date = &date
		result.Sources = append(result.Sources, FieldSource{Field: "date", LineIndex: lines[idx].Index, Text: lines[idx].Text})
	}

	totals := e.LocateTotal(classified)
	result.Total = totals.Total
	result.Subtotal = totals.Subtotal
	result.Tax = totals.Tax
	result.AmountCandidates = totals.Candidates
	if totals.Total != nil {
		result.Sources = append(result.Sources, FieldSource{Field: "total", LineIndex: totals.TotalLine.Index, Text: totals.TotalLine.Text})
	}

	result.LineItems = e.ExtractItems(classified, totals.Total)

	confidence, warnings := e.Reconcile(totals.Total, result.LineItems, classified)
	confidence, penalties := e.penalize(confidence, result.MerchantName != nil, result.Date != nil)
	result.Warnings = append(result.Warnings, penalties...)
	result.Warnings = append(result.Warnings, warnings...)
	result.Confidence = roundConfidence(confidence)

	return result
}

// SplitLines breaks raw OCR text into reading-ordered lines, collapsing tabs
// and runs of spaces. It returns nil for blank input.
func SplitLines(text string) []RawLine {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	text = reCRLF.ReplaceAllString(text, "\n")
	parts := strings.Split(text, "\n")
	lines := make([]RawLine, 0, len(parts))
	for i, part := range parts {
		part = reTabs.ReplaceAllString(part, " ")
		part = reMultiSpace.ReplaceAllString(part, " ")
		lines = append(lines, RawLine{Index: i, Text: strings.TrimSpace(part)})
	}
	for len(lines) > 0 && lines[len(lines)-1].Text == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTabs       = regexp.MustCompile(`\t+`)
	reMultiSpace = regexp.MustCompile(` {2,}`)
)

// keywordPattern builds a case-insensitive whole-word alternation. Spaces in
// a keyword match any run of whitespace. Returns nil for an empty list.
func keywordPattern(keywords []string) *regexp.Regexp {
	if len(keywords) == 0 {
		return nil
	}
	quoted := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		quoted = append(quoted, kw)
	}
	return regexp.MustCompile(`(?i)\b` + alternationOf(quoted) + `\b`)
}

// alternationOf returns a capturing group matching any of words, longest first
// so that "grand total" wins over "total" at the same position.
func alternationOf(words []string) string {
	sorted := append([]string(nil), words...)
	sort.Slice(sorted, func(i, j int) bool {
		if len(sorted[i]) != len(sorted[j]) {
			return len(sorted[i]) > len(sorted[j])
		}
		return sorted[i] < sorted[j]
	})
	escaped := make([]string, len(sorted))
	for i, w := range sorted {
		escaped[i] = strings.Join(strings.Fields(regexp.QuoteMeta(w)), `\s+`)
	}
	return "(" + strings.Join(escaped, "|") + ")"
}

func matches(re *regexp.Regexp, s string) bool {
	return re != nil && re.MatchString(s)
}

func copyLines(lines []RawLine) []RawLine {
	out := make([]RawLine, len(lines))
	for i, l := range lines {
		out[i] = l
		if l.Box != nil {
			box := *l.Box
			out[i].Box = &box
		}
	}
	return out
}

func joinText(lines []RawLine) string {
	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.Text
	}
	return strings.Join(texts, "\n")
}

func anyDigit(lines []RawLine) bool {
	for _, l := range lines {
		if strings.IndexFunc(l.Text, unicode.IsDigit) >= 0 {
			return true
		}
	}
	return false
}

func roundConfidence(c float64) float64 {
	c = math.Max(0, math.Min(1, c))
	return math.Round(c*10000) / 10000
}
