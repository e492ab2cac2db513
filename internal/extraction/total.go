package extraction

// AmountCandidate is an amount read from a total, subtotal or tax line.
type AmountCandidate struct {
	Line   RawLine  `json:"line"`
	Role   LineRole `json:"role"`
	Amount Money    `json:"amount"`
	// Grand is set when the line carries a grand-total keyword.
	Grand bool `json:"grand,omitempty"`
}

// TotalResult is the outcome of LocateTotal.
type TotalResult struct {
	Total     *Money
	TotalLine RawLine

	Subtotal *Money
	Tax      *Money

	// Candidates lists every amount read from total, subtotal and tax
	// lines, in document order.
	Candidates []AmountCandidate
}

// LocateTotal picks the authoritative total. Among total lines with a
// readable amount, the last one carrying a grand-total keyword wins, then the
// last plain total. Without any, the largest subtotal or tax amount is used.
// When a total keyword line has no amount of its own, an amount-only line
// directly below it is read instead.
func (e *Extractor) LocateTotal(classified []ClassifiedLine) TotalResult {
	var result TotalResult

	for i, cl := range classified {
		switch cl.Role {
		case RoleTotal, RoleSubtotal, RoleTax:
		default:
			continue
		}

		m, ok := e.trailingAmount(cl.Line.Text)
		line := cl.Line
		if !ok && cl.Role == RoleTotal && i+1 < len(classified) {
			next := classified[i+1].Line
			if nm, nok := e.trailingAmount(next.Text); nok && nm.start == firstNonSpace(next.Text) {
				m, ok = nm, true
			}
		}
		if !ok {
			continue
		}

		result.Candidates = append(result.Candidates, AmountCandidate{
			Line:   line,
			Role:   cl.Role,
			Amount: m.money,
			Grand:  cl.Role == RoleTotal && matches(e.grandTotal, line.Text),
		})
	}

	var best *AmountCandidate
	for i := range result.Candidates {
		c := &result.Candidates[i]
		switch c.Role {
		case RoleTotal:
			if best == nil || c.Grand || !best.Grand {
				best = c
			}
		case RoleSubtotal:
			amount := c.Amount
			result.Subtotal = &amount
		case RoleTax:
			amount := c.Amount
			result.Tax = &amount
		}
	}

	if best == nil {
		for i := range result.Candidates {
			c := &result.Candidates[i]
			if best == nil || c.Amount.Amount.GreaterThan(best.Amount.Amount) {
				best = c
			}
		}
	}

	if best != nil {
		total := best.Amount
		result.Total = &total
		result.TotalLine = best.Line
	}
	return result
}

func firstNonSpace(s string) int {
	for i, r := range s {
		if r != ' ' && r != '\t' {
			return i
		}
	}
	return len(s)
}
