package extraction

import (
	"encoding/json"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// BoundingBox is a rectangle in image coordinates as reported by the OCR engine.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RawLine is one recognized text line. Index is its reading-order position.
type RawLine struct {
	Index int          `json:"index"`
	Text  string       `json:"text"`
	Box   *BoundingBox `json:"box,omitempty"`
}

// LineRole is the classifier's tag for a line.
type LineRole int

const (
	RoleNoise LineRole = iota
	RoleHeader
	RoleItem
	RoleSubtotal
	RoleTax
	RoleTotal
	RoleDate
	RoleFooter
)

var roleNames = map[LineRole]string{
	RoleNoise:    "noise",
	RoleHeader:   "header",
	RoleItem:     "item",
	RoleSubtotal: "subtotal",
	RoleTax:      "tax",
	RoleTotal:    "total",
	RoleDate:     "date",
	RoleFooter:   "footer",
}

func (r LineRole) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// MarshalJSON encodes the role by name.
func (r LineRole) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a role name.
func (r *LineRole) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for role, n := range roleNames {
		if n == name {
			*r = role
			return nil
		}
	}
	return fmt.Errorf("unknown line role %q", name)
}

// ClassifiedLine pairs an input line with the role assigned to it.
type ClassifiedLine struct {
	Line RawLine  `json:"line"`
	Role LineRole `json:"role"`
}

// Money is an exact decimal amount with an ISO currency code. Currency is
// empty when no symbol was printed and no default is configured.
//
// Separator disambiguation is heuristic: "1.200" is read as one thousand two
// hundred, "1.20" as one point two. A Money value is the engine's best reading
// of the printed token, not a guarantee.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty"`
}

func (m Money) String() string {
	if m.Currency == "" {
		return m.Amount.String()
	}
	return m.Currency + " " + m.Amount.String()
}

// LineItemCandidate is one purchased entry reconstructed from a single line.
type LineItemCandidate struct {
	SourceLineIndex int     `json:"source_line_index"`
	Name            string  `json:"name"`
	Quantity        int     `json:"quantity"`
	UnitPrice       Money   `json:"unit_price"`
	LineTotal       Money   `json:"line_total"`
	Confidence      float64 `json:"confidence"`
	Flagged         bool    `json:"flagged,omitempty"`
	FlagReason      string  `json:"flag_reason,omitempty"`
}

// FieldSource records which line a receipt-level field was read from.
type FieldSource struct {
	Field     string `json:"field"`
	LineIndex int    `json:"line_index"`
	Text      string `json:"text"`
}

// ExtractedReceipt is the engine's output. Optional fields are nil when not found.
type ExtractedReceipt struct {
	MerchantName *string             `json:"merchant_name"`
	Date         *civil.Date         `json:"date"`
	Total        *Money              `json:"total"`
	Subtotal     *Money              `json:"subtotal,omitempty"`
	Tax          *Money              `json:"tax,omitempty"`
	LineItems    []LineItemCandidate `json:"line_items"`
	Confidence   float64             `json:"confidence"`
	Warnings     []string            `json:"warnings"`
	Sources      []FieldSource       `json:"sources,omitempty"`
	Lines        []ClassifiedLine    `json:"lines,omitempty"`
	// AmountCandidates lists the amounts read from total, subtotal and tax
	// lines, in document order.
	AmountCandidates []AmountCandidate `json:"amount_candidates,omitempty"`
	RawText          string            `json:"raw_text"`
}

// Warning messages surfaced in ExtractedReceipt.Warnings.
const (
	WarnNoInput         = "document contains no text lines"
	WarnNoDigits        = "document contains no numeric content"
	WarnMerchantMissing = "merchant name not found"
	WarnDateMissing     = "date not found"
	WarnTotalMissing    = "total not found"
	WarnTotalZero       = "located total is zero"
	WarnNoItems         = "no line items extracted"
	WarnItemSumMismatch = "item sum does not match total"
)
