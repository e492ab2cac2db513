package extraction

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

var (
	// "2 x Indomie", "2x Indomie"
	reLeadingQty = regexp.MustCompile(`^(\d{1,3})\s*[xX×](?:\s+|$)`)
	// "2 x 3.500 Indomie" or "2 x 3.500": a unit price directly after a
	// leading quantity.
	reLeadingUnit = regexp.MustCompile(`^(\d[\d.,]*\d|\d)(?:\s+|$)`)
	// "Indomie 2 x" or "Indomie 2 @" directly before a printed unit price.
	reQtyBeforeUnit = regexp.MustCompile(`(?:^|\s)(\d{1,3})\s*[xX×@]\s*$`)
)

// parsedItem is an item line split into its parts before filtering.
type parsedItem struct {
	name      string
	quantity  int
	qtyFound  bool
	unitPrice *Money
	lineTotal Money
	// competing counts numeric tokens left in the name that could also have
	// been the price.
	competing int
}

// ExtractItems turns item lines into line item candidates. A candidate is
// rejected when its name has fewer than MinItemNameLength visible characters
// or no letter, when its amount is not positive, or when a total is known and
// the amount exceeds ItemTotalFactor times that total. Rejected lines are
// dropped; candidates whose unit price and quantity disagree with the line
// total are kept and flagged.
//
// A quantity line without a name ("2 x 3.500 7.000") takes its name from the
// line directly above when that line is plain text with no amount.
func (e *Extractor) ExtractItems(classified []ClassifiedLine, total *Money) []LineItemCandidate {
	items := []LineItemCandidate{}

	var ceiling *decimal.Decimal
	if total != nil && total.Amount.IsPositive() {
		c := total.Amount.Mul(e.cfg.ItemTotalFactor)
		ceiling = &c
	}

	for i, cl := range classified {
		if cl.Role != RoleItem {
			continue
		}
		p, ok := e.parseItem(cl.Line.Text)
		if !ok {
			continue
		}
		if p.name == "" && p.qtyFound && i > 0 {
			p.name = e.nameAbove(classified[i-1])
		}

		if visibleLength(p.name) < e.cfg.MinItemNameLength || !hasLetter(p.name) {
			continue
		}
		if !p.lineTotal.Amount.IsPositive() {
			continue
		}
		if ceiling != nil && p.lineTotal.Amount.GreaterThan(*ceiling) {
			continue
		}

		items = append(items, e.candidateFrom(cl.Line.Index, p))
	}
	return items
}

func (e *Extractor) candidateFrom(index int, p parsedItem) LineItemCandidate {
	qty := decimal.NewFromInt(int64(p.quantity))
	item := LineItemCandidate{
		SourceLineIndex: index,
		Name:            p.name,
		Quantity:        p.quantity,
		LineTotal:       p.lineTotal,
		Confidence:      1 / float64(1+p.competing),
	}

	switch {
	case p.unitPrice != nil:
		item.UnitPrice = Money{Amount: p.unitPrice.Amount, Currency: p.lineTotal.Currency}
		expected := p.unitPrice.Amount.Mul(qty)
		tolerance := p.lineTotal.Amount.Mul(e.cfg.LineTotalTolerance)
		if expected.Sub(p.lineTotal.Amount).Abs().GreaterThan(tolerance) {
			item.Flagged = true
			item.FlagReason = "unit price x quantity does not match line total"
		}
	case p.qtyFound:
		item.UnitPrice = Money{Amount: p.lineTotal.Amount.DivRound(qty, 2), Currency: p.lineTotal.Currency}
	default:
		item.UnitPrice = p.lineTotal
	}
	return item
}

// parseItem splits a line into a leading name and the greedy trailing
// amount, then looks for a quantity prefix and an explicit unit price.
func (e *Extractor) parseItem(text string) (parsedItem, bool) {
	text = strings.TrimSpace(text)
	m, ok := e.trailingAmount(text)
	if !ok {
		return parsedItem{}, false
	}

	p := parsedItem{quantity: 1, lineTotal: m.money}
	name := strings.TrimSpace(text[:m.start])

	if sm := reLeadingQty.FindStringSubmatch(name); sm != nil {
		if n, err := strconv.Atoi(sm[1]); err == nil && n > 0 {
			p.quantity, p.qtyFound = n, true
			name = name[len(sm[0]):]
			if um := reLeadingUnit.FindStringSubmatch(name); um != nil {
				if unit, ok := e.ParseAmount(um[1]); ok && unit.Amount.IsPositive() {
					p.unitPrice = &unit
					name = name[len(um[0]):]
				}
			}
		}
	} else if um, ok := e.trailingAmount(name); ok {
		before := name[:um.start]
		if qm := reQtyBeforeUnit.FindStringSubmatchIndex(before); qm != nil {
			if n, err := strconv.Atoi(before[qm[2]:qm[3]]); err == nil && n > 0 && um.money.Amount.IsPositive() {
				p.quantity, p.qtyFound = n, true
				unit := um.money
				p.unitPrice = &unit
				name = before[:qm[0]]
			}
		}
	}

	p.name = cleanName(name)
	p.competing = len(reNumberToken.FindAllString(p.name, -1))
	return p, true
}

// nameAbove returns the text of a plain name line preceding a nameless
// quantity line, or "" when the line above is anything else.
func (e *Extractor) nameAbove(above ClassifiedLine) string {
	if above.Role != RoleFooter || matches(e.ignore, above.Line.Text) {
		return ""
	}
	if _, ok := e.trailingAmount(above.Line.Text); ok {
		return ""
	}
	return cleanName(above.Line.Text)
}

func hasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}

func cleanName(name string) string {
	name = strings.Trim(name, " \t:@-*.")
	return strings.Join(strings.Fields(name), " ")
}

func visibleLength(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) && r != utf8.RuneError {
			n++
		}
	}
	return n
}
