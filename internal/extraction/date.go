package extraction

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

var (
	// D{1,2}[/.-]D{1,2}[/.-]D{2,4}
	reNumericDate = regexp.MustCompile(`\b(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4}|\d{2})\b`)
	// YYYY-MM-DD and YYYY/MM/DD
	reISODate = regexp.MustCompile(`\b(\d{4})[/.\-](\d{1,2})[/.\-](\d{1,2})\b`)
)

// dateCandidate is one date-like match inside a line, before validation.
type dateCandidate struct {
	pos int
	// first and second hold the numeric day/month pair before ordering.
	first, second int
	day, month    int
	year          int
	twoDigitYear  bool
	ambiguous     bool
}

// FindDate returns the first valid calendar date in document order. All lines
// are scanned, not only those classified as dates. Invalid values such as
// month 13 are skipped and scanning continues.
func (e *Extractor) FindDate(lines []RawLine) (civil.Date, bool) {
	date, _, ok := e.findDate(lines)
	return date, ok
}

func (e *Extractor) findDate(lines []RawLine) (civil.Date, int, bool) {
	for i, line := range lines {
		if date, ok := e.dateInLine(line.Text); ok {
			return date, i, true
		}
	}
	return civil.Date{}, -1, false
}

// dateInLine returns the first valid date printed in text.
func (e *Extractor) dateInLine(text string) (civil.Date, bool) {
	candidates := e.dateCandidates(text)
	for _, c := range candidates {
		if date, ok := e.resolve(c); ok {
			return date, true
		}
	}
	return civil.Date{}, false
}

func (e *Extractor) dateCandidates(text string) []dateCandidate {
	var out []dateCandidate

	for _, m := range reNumericDate.FindAllStringSubmatchIndex(text, -1) {
		a, _ := strconv.Atoi(text[m[2]:m[3]])
		b, _ := strconv.Atoi(text[m[4]:m[5]])
		yearText := text[m[6]:m[7]]
		year, _ := strconv.Atoi(yearText)
		out = append(out, dateCandidate{
			pos:          m[0],
			first:        a,
			second:       b,
			year:         year,
			ambiguous:    true,
			twoDigitYear: len(yearText) == 2,
		})
	}

	for _, m := range reISODate.FindAllStringSubmatchIndex(text, -1) {
		year, _ := strconv.Atoi(text[m[2]:m[3]])
		month, _ := strconv.Atoi(text[m[4]:m[5]])
		day, _ := strconv.Atoi(text[m[6]:m[7]])
		out = append(out, dateCandidate{pos: m[0], day: day, month: month, year: year})
	}

	for _, m := range e.dayMonthName.FindAllStringSubmatchIndex(text, -1) {
		day, _ := strconv.Atoi(text[m[2]:m[3]])
		month := e.months[strings.ToLower(text[m[4]:m[5]])]
		yearText := text[m[6]:m[7]]
		year, _ := strconv.Atoi(yearText)
		out = append(out, dateCandidate{pos: m[0], day: day, month: int(month), year: year, twoDigitYear: len(yearText) == 2})
	}

	for _, m := range e.monthNameDay.FindAllStringSubmatchIndex(text, -1) {
		month := e.months[strings.ToLower(strings.Join(strings.Fields(text[m[2]:m[3]]), " "))]
		day, _ := strconv.Atoi(text[m[4]:m[5]])
		yearText := text[m[6]:m[7]]
		year, _ := strconv.Atoi(yearText)
		out = append(out, dateCandidate{pos: m[0], day: day, month: int(month), year: year, twoDigitYear: len(yearText) == 2})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].pos < out[j].pos })
	return out
}

// resolve orders day and month and validates the calendar value. A component
// greater than 12 is the day; otherwise the configured default applies.
func (e *Extractor) resolve(c dateCandidate) (civil.Date, bool) {
	day, month := c.day, c.month
	if c.ambiguous {
		switch {
		case c.first > 12 && c.second <= 12:
			day, month = c.first, c.second
		case c.second > 12 && c.first <= 12:
			day, month = c.second, c.first
		case e.cfg.MonthFirst:
			day, month = c.second, c.first
		default:
			day, month = c.first, c.second
		}
	}

	year := c.year
	if c.twoDigitYear {
		year += 2000
	}
	if year < 1000 {
		return civil.Date{}, false
	}

	date := civil.Date{Year: year, Month: time.Month(month), Day: day}
	if !date.IsValid() {
		return civil.Date{}, false
	}
	return date, true
}
