package extraction

import (
	"strings"
	"unicode"
)

// lineContext is what a classification rule sees for one line.
type lineContext struct {
	text string
	// contentRank is the 0-based position among lines carrying a letter or
	// digit, or -1 for lines without any.
	contentRank  int
	inFirstThird bool
}

// rule maps a predicate to the role it assigns. Rules are evaluated top to
// bottom and the first match wins.
type rule struct {
	role  LineRole
	match func(lineContext) bool
}

func (e *Extractor) classificationRules() []rule {
	return []rule{
		// Tender and change lines carry amounts that are neither items nor totals.
		{role: RoleFooter, match: func(c lineContext) bool {
			return matches(e.ignore, c.text)
		}},
		{role: RoleTotal, match: func(c lineContext) bool {
			return e.hasTotalKeyword(c.text)
		}},
		{role: RoleSubtotal, match: func(c lineContext) bool {
			return matches(e.subtotal, c.text)
		}},
		{role: RoleTax, match: func(c lineContext) bool {
			return matches(e.tax, c.text)
		}},
		// Transaction dates are printed near the top.
		{role: RoleDate, match: func(c lineContext) bool {
			if !c.inFirstThird {
				return false
			}
			_, ok := e.dateInLine(c.text)
			return ok
		}},
		// Merchant name candidates.
		{role: RoleHeader, match: func(c lineContext) bool {
			return c.contentRank >= 0 && c.contentRank < 2 &&
				strings.IndexFunc(c.text, unicode.IsDigit) < 0 &&
				strings.IndexFunc(c.text, unicode.IsLetter) >= 0
		}},
		{role: RoleItem, match: func(c lineContext) bool {
			m, ok := e.trailingAmount(c.text)
			return ok && m.money.Amount.IsPositive()
		}},
		{role: RoleNoise, match: func(c lineContext) bool {
			return isNoise(c.text)
		}},
	}
}

// Classify tags every line with exactly one role. Lines that match no rule
// are footers.
func (e *Extractor) Classify(lines []RawLine) []ClassifiedLine {
	firstThird := firstThirdMask(lines)
	out := make([]ClassifiedLine, 0, len(lines))
	rank := 0
	for i, line := range lines {
		ctx := lineContext{
			text:         strings.TrimSpace(line.Text),
			contentRank:  -1,
			inFirstThird: firstThird[i],
		}
		if hasContent(ctx.text) {
			ctx.contentRank = rank
			rank++
		}
		out = append(out, ClassifiedLine{Line: line, Role: e.roleOf(ctx)})
	}
	return out
}

func (e *Extractor) roleOf(c lineContext) LineRole {
	for _, r := range e.rules {
		if r.match(c) {
			return r.role
		}
	}
	return RoleFooter
}

// hasTotalKeyword matches total keywords after masking subtotal keywords, so
// "Subtotal" and "Sub Total" never read as a total.
func (e *Extractor) hasTotalKeyword(text string) bool {
	if e.subtotal != nil {
		text = e.subtotal.ReplaceAllString(text, " ")
	}
	return matches(e.total, text)
}

// firstThirdMask reports, per line, whether it sits in the first third of the
// document. Vertical geometry is used when every line carries a bounding box;
// otherwise the line index decides.
func firstThirdMask(lines []RawLine) []bool {
	mask := make([]bool, len(lines))
	if len(lines) == 0 {
		return mask
	}

	top, bottom, boxed := 0, 0, true
	for i, l := range lines {
		if l.Box == nil {
			boxed = false
			break
		}
		if i == 0 || l.Box.Y < top {
			top = l.Box.Y
		}
		if i == 0 || l.Box.Y+l.Box.Height > bottom {
			bottom = l.Box.Y + l.Box.Height
		}
	}

	if boxed && bottom > top {
		span := bottom - top
		for i, l := range lines {
			mask[i] = (l.Box.Y-top)*3 < span
		}
		return mask
	}

	for i := range lines {
		mask[i] = i*3 < len(lines)
	}
	return mask
}

func hasContent(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}

// isNoise reports empty lines and lines made only of punctuation or symbols.
func isNoise(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) && !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			return false
		}
	}
	return true
}

// merchantName returns the first header line, whitespace-collapsed.
func merchantName(classified []ClassifiedLine) (string, int, bool) {
	for i, cl := range classified {
		if cl.Role == RoleHeader {
			return strings.Join(strings.Fields(cl.Line.Text), " "), i, true
		}
	}
	return "", -1, false
}
