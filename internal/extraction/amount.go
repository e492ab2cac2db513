package extraction

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	reAmountBody  = regexp.MustCompile(`^\d[\d.,]*$`)
	reNumberToken = regexp.MustCompile(`\d[\d.,]*\d|\d`)
)

// ParseAmount reads a printed amount such as "Rp 10.500", "$12.99" or
// "1.250,00". It reports false when the token cannot be read with confidence,
// which callers treat as "not found" rather than as an error.
//
// Separator rules: when both '.' and ',' occur, the rightmost is the decimal
// separator. When only one kind occurs, it is a thousands separator if every
// group after it has exactly three digits, otherwise a decimal separator. A
// lone "0" before the separator is never a thousands group, so "0.500" is
// one half.
// This is a heuristic; "1.200" on a receipt printed with a decimal point is
// read as 1200.
func (e *Extractor) ParseAmount(token string) (Money, bool) {
	s := strings.TrimSpace(token)
	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = strings.TrimSpace(s[1:])
	}

	s, currency := e.stripCurrency(s)
	if !negative && strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}

	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	for _, suffix := range []string{",-", ".-", "-"} {
		s = strings.TrimSuffix(s, suffix)
	}
	s = strings.TrimRight(s, ".,")

	if !reAmountBody.MatchString(s) {
		return Money{}, false
	}

	normalized, ok := normalizeSeparators(s)
	if !ok {
		return Money{}, false
	}

	amount, err := decimal.NewFromString(normalized)
	if err != nil {
		return Money{}, false
	}
	if amount.Abs().GreaterThan(e.cfg.MaxAmount) {
		return Money{}, false
	}
	if negative {
		amount = amount.Neg()
	}
	if currency == "" {
		currency = e.cfg.DefaultCurrency
	}
	return Money{Amount: amount, Currency: currency}, true
}

// stripCurrency removes a leading or trailing currency symbol and returns the
// ISO code it maps to.
func (e *Extractor) stripCurrency(s string) (string, string) {
	for _, cs := range e.symbols {
		if len(s) >= len(cs.symbol) && strings.EqualFold(s[:len(cs.symbol)], cs.symbol) {
			rest := s[len(cs.symbol):]
			if isSymbolBoundary(cs.symbol, rest) {
				return strings.TrimLeft(rest, " .: "), cs.code
			}
		}
		if len(s) >= len(cs.symbol) && strings.EqualFold(s[len(s)-len(cs.symbol):], cs.symbol) {
			return strings.TrimSpace(s[:len(s)-len(cs.symbol)]), cs.code
		}
	}
	return s, ""
}

// isSymbolBoundary rejects alphabetic prefixes glued to more letters, so "Rpt"
// is not read as "Rp" + "t".
func isSymbolBoundary(symbol, rest string) bool {
	if rest == "" {
		return true
	}
	last := rune(symbol[len(symbol)-1])
	if !unicode.IsLetter(last) {
		return true
	}
	for _, r := range rest {
		return !unicode.IsLetter(r)
	}
	return true
}

// normalizeSeparators rewrites s into the canonical "1234.56" form.
func normalizeSeparators(s string) (string, bool) {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		decimalSep, thousandsSep := ".", ","
		if lastComma > lastDot {
			decimalSep, thousandsSep = ",", "."
		}
		if strings.Count(s, decimalSep) != 1 {
			return "", false
		}
		idx := strings.LastIndex(s, decimalSep)
		intPart, frac := s[:idx], s[idx+1:]
		if frac == "" || strings.Contains(frac, thousandsSep) {
			return "", false
		}
		groups := strings.Split(intPart, thousandsSep)
		if !validGrouping(groups) {
			return "", false
		}
		return strings.Join(groups, "") + "." + frac, true

	case lastDot >= 0 || lastComma >= 0:
		sep := "."
		if lastComma >= 0 {
			sep = ","
		}
		groups := strings.Split(s, sep)
		if len(groups) == 2 {
			head, tail := groups[0], groups[1]
			if head == "" || tail == "" {
				return "", false
			}
			if len(tail) == 3 && head != "0" {
				return head + tail, true
			}
			return head + "." + tail, true
		}
		if !validGrouping(groups) {
			return "", false
		}
		return strings.Join(groups, ""), true
	}
	return s, true
}

// validGrouping checks thousands grouping: a 1-3 digit head followed by
// 3-digit groups.
func validGrouping(groups []string) bool {
	if len(groups[0]) == 0 || len(groups[0]) > 3 {
		return len(groups) == 1 && groups[0] != ""
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}

// amountMatch is the trailing amount found at the end of a line.
type amountMatch struct {
	money Money
	// start is the byte offset where the amount (including any currency
	// prefix or sign) begins.
	start int
}

// trailingAmount finds the amount printed at the end of text. Only a
// currency code, whitespace, '.', '-' and '*' may follow it. Tokens glued to
// '/' or ':' belong to dates and times and are not amounts.
func (e *Extractor) trailingAmount(text string) (amountMatch, bool) {
	locs := reNumberToken.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return amountMatch{}, false
	}
	loc := locs[len(locs)-1]
	end := loc[1]
	if rest := text[end:]; strings.HasPrefix(rest, ",-") || strings.HasPrefix(rest, ".-") {
		end += 2
	}
	if tail := strings.TrimRight(text[end:], " \t-*."); tail != "" {
		rest, code := e.stripCurrency(strings.TrimSpace(tail))
		if code == "" || rest != "" {
			return amountMatch{}, false
		}
		end = len(strings.TrimRight(text, " \t-*."))
	}

	start := loc[0]
	if start > 0 {
		switch text[start-1] {
		case '/', ':':
			return amountMatch{}, false
		case '-':
			if start-1 > 0 && text[start-2] != ' ' {
				return amountMatch{}, false
			}
			start--
		}
	}
	start = e.currencyPrefixStart(text, start)

	money, ok := e.ParseAmount(text[start:end])
	if !ok {
		return amountMatch{}, false
	}
	return amountMatch{money: money, start: start}, true
}

// currencyPrefixStart widens start leftwards over a currency symbol that
// directly precedes the number.
func (e *Extractor) currencyPrefixStart(text string, start int) int {
	head := strings.TrimRight(text[:start], " .: ")
	for _, cs := range e.symbols {
		if len(head) < len(cs.symbol) {
			continue
		}
		candidate := head[len(head)-len(cs.symbol):]
		if !strings.EqualFold(candidate, cs.symbol) {
			continue
		}
		symStart := len(head) - len(cs.symbol)
		if symStart > 0 && unicode.IsLetter(rune(cs.symbol[0])) && unicode.IsLetter(rune(head[symStart-1])) {
			continue
		}
		return symStart
	}
	return start
}
