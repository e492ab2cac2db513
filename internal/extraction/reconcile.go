package extraction

import (
	"github.com/shopspring/decimal"
)

// Confidence bands for reconciliation against a located total.
const (
	highFloor   = 0.9
	mediumFloor = 0.5
	lowCeiling  = 0.45
)

// Reconcile compares the sum of item line totals with the located total and
// returns an overall confidence with any warnings. Deviation up to
// HighDeviation scores 0.9-1.0, up to MediumDeviation 0.5-0.9 with a
// warning, and beyond that below 0.5 with a warning. Without a total, the
// score is the fraction of lines classified as something other than noise or
// footer, where item lines count only when they produced an accepted item.
func (e *Extractor) Reconcile(total *Money, items []LineItemCandidate, classified []ClassifiedLine) (float64, []string) {
	var warnings []string
	if len(items) == 0 {
		warnings = append(warnings, WarnNoItems)
	}

	if total == nil {
		return coverage(classified, items), append([]string{WarnTotalMissing}, warnings...)
	}
	if total.Amount.IsZero() {
		return coverage(classified, items), append([]string{WarnTotalZero}, warnings...)
	}

	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.LineTotal.Amount)
	}
	deviation, _ := sum.Sub(total.Amount).Abs().Div(total.Amount.Abs()).Float64()

	high, medium := e.cfg.HighDeviation, e.cfg.MediumDeviation
	switch {
	case deviation <= high:
		return 1 - (1-highFloor)*(deviation/high), warnings
	case deviation <= medium:
		score := highFloor - (highFloor-mediumFloor)*((deviation-high)/(medium-high))
		return score, append(warnings, WarnItemSumMismatch)
	default:
		return lowCeiling * (medium / deviation), append(warnings, WarnItemSumMismatch)
	}
}

// coverage is the fraction of lines that were classified as receipt content.
// An item line that yielded no accepted item is not content.
func coverage(classified []ClassifiedLine, items []LineItemCandidate) float64 {
	if len(classified) == 0 {
		return 0
	}
	accepted := make(map[int]bool, len(items))
	for _, item := range items {
		accepted[item.SourceLineIndex] = true
	}
	useful := 0
	for _, cl := range classified {
		switch cl.Role {
		case RoleNoise, RoleFooter:
		case RoleItem:
			if accepted[cl.Line.Index] {
				useful++
			}
		default:
			useful++
		}
	}
	return float64(useful) / float64(len(classified))
}

// penalize lowers confidence for each missing merchant name or date.
func (e *Extractor) penalize(confidence float64, hasMerchant, hasDate bool) (float64, []string) {
	var warnings []string
	if !hasMerchant {
		confidence -= e.cfg.MissingFieldPenalty
		warnings = append(warnings, WarnMerchantMissing)
	}
	if !hasDate {
		confidence -= e.cfg.MissingFieldPenalty
		warnings = append(warnings, WarnDateMissing)
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence, warnings
}
