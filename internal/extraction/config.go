package extraction

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the keyword tables, tolerances and locale defaults used by the
// engine. A Config is copied into an Extractor by New and never mutated
// afterwards, so one Extractor may serve any number of goroutines.
type Config struct {
	// TotalKeywords mark the authoritative total. Keywords listed in
	// GrandTotalKeywords win over plain total keywords when both occur.
	TotalKeywords      []string
	GrandTotalKeywords []string
	SubtotalKeywords   []string
	TaxKeywords        []string

	// IgnoreKeywords mark tender and change lines ("cash", "kembali") which
	// carry amounts that are neither items nor totals.
	IgnoreKeywords []string

	// MonthNames maps lowercase month names and abbreviations to months.
	MonthNames map[string]time.Month

	// CurrencySymbols maps printed prefixes ("Rp", "$") to ISO codes.
	CurrencySymbols map[string]string
	// DefaultCurrency is used when a token carries no symbol. Empty means unit-less.
	DefaultCurrency string

	// MaxAmount is the largest plausible amount; bigger tokens are misreads.
	MaxAmount decimal.Decimal

	// ItemTotalFactor rejects items whose line total exceeds factor*total.
	ItemTotalFactor decimal.Decimal
	// LineTotalTolerance is the relative tolerance for unitPrice*quantity vs lineTotal.
	LineTotalTolerance decimal.Decimal

	// MonthFirst resolves ambiguous numeric dates as month/day instead of day/month.
	MonthFirst bool

	// MinItemNameLength is the minimum number of visible characters in an item name.
	MinItemNameLength int

	// HighDeviation and MediumDeviation bound the reconciliation bands.
	HighDeviation   float64
	MediumDeviation float64

	// MissingFieldPenalty is subtracted from confidence for a missing merchant or date.
	MissingFieldPenalty float64
}

var englishMonths = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

var indonesianMonths = map[string]time.Month{
	"januari":  time.January,
	"februari": time.February,
	"maret":    time.March,
	"mei":      time.May,
	"juni":     time.June,
	"juli":     time.July,
	"agu":      time.August,
	"agt":      time.August,
	"agustus":  time.August,
	"okt":      time.October,
	"oktober":  time.October,
	"nop":      time.November,
	"nopember": time.November,
	"des":      time.December,
	"desember": time.December,
}

// DefaultConfig returns the mixed Indonesian/English configuration the engine
// was tuned on.
func DefaultConfig() Config {
	months := make(map[string]time.Month, len(englishMonths)+len(indonesianMonths))
	for k, v := range englishMonths {
		months[k] = v
	}
	for k, v := range indonesianMonths {
		months[k] = v
	}

	return Config{
		TotalKeywords:      []string{"total", "jumlah", "grand total", "total belanja", "amount due"},
		GrandTotalKeywords: []string{"grand total", "total belanja", "amount due"},
		SubtotalKeywords:   []string{"subtotal", "sub total", "sub-total"},
		TaxKeywords:        []string{"pajak", "tax", "ppn", "vat"},
		IgnoreKeywords:     []string{"tunai", "kembali", "kembalian", "cash", "change", "total item", "total qty", "debit", "kartu"},
		MonthNames:         months,
		CurrencySymbols: map[string]string{
			"Rp":  "IDR",
			"IDR": "IDR",
			"$":   "USD",
			"USD": "USD",
			"€":   "EUR",
			"EUR": "EUR",
			"£":   "GBP",
			"GBP": "GBP",
		},
		MaxAmount:           decimal.NewFromInt(100_000_000),
		ItemTotalFactor:     decimal.NewFromInt(1),
		LineTotalTolerance:  decimal.RequireFromString("0.01"),
		MinItemNameLength:   3,
		HighDeviation:       0.02,
		MediumDeviation:     0.15,
		MissingFieldPenalty: 0.1,
	}
}

// LocaleConfig returns a configuration restricted to one locale's keyword and
// date conventions. Known locales are "id" and "en"; anything else returns
// DefaultConfig.
func LocaleConfig(locale string) Config {
	cfg := DefaultConfig()
	switch strings.ToLower(strings.TrimSpace(locale)) {
	case "id":
		cfg.TotalKeywords = []string{"total", "jumlah", "grand total", "total belanja"}
		cfg.GrandTotalKeywords = []string{"grand total", "total belanja"}
		cfg.TaxKeywords = []string{"pajak", "ppn"}
		cfg.IgnoreKeywords = []string{"tunai", "kembali", "kembalian", "total item", "total qty", "debit", "kartu"}
		cfg.DefaultCurrency = "IDR"
	case "en":
		cfg.TotalKeywords = []string{"total", "grand total", "amount due", "balance due"}
		cfg.GrandTotalKeywords = []string{"grand total", "amount due", "balance due"}
		cfg.SubtotalKeywords = []string{"subtotal", "sub total", "sub-total"}
		cfg.TaxKeywords = []string{"tax", "vat", "gst"}
		cfg.IgnoreKeywords = []string{"cash", "change", "tendered", "total items", "debit", "visa", "mastercard"}
		cfg.MonthNames = englishMonths
		cfg.MonthFirst = true
	}
	return cfg
}

// Validate reports configuration violations. These are programmer errors and
// are caught before any document is processed.
func (c Config) Validate() error {
	var errs []error
	if err := nonEmptyKeywords("total", c.TotalKeywords); err != nil {
		errs = append(errs, err)
	}
	if err := nonEmptyKeywords("subtotal", c.SubtotalKeywords); err != nil {
		errs = append(errs, err)
	}
	if err := nonEmptyKeywords("tax", c.TaxKeywords); err != nil {
		errs = append(errs, err)
	}
	for _, kw := range c.GrandTotalKeywords {
		if strings.TrimSpace(kw) == "" {
			errs = append(errs, errors.New("grand total keywords contain an empty entry"))
			break
		}
	}
	for _, kw := range c.IgnoreKeywords {
		if strings.TrimSpace(kw) == "" {
			errs = append(errs, errors.New("ignore keywords contain an empty entry"))
			break
		}
	}
	if len(c.MonthNames) == 0 {
		errs = append(errs, errors.New("month names must not be empty"))
	}
	for sym := range c.CurrencySymbols {
		if strings.TrimSpace(sym) == "" {
			errs = append(errs, errors.New("currency symbol table contains an empty symbol"))
			break
		}
	}
	if !c.MaxAmount.IsPositive() {
		errs = append(errs, fmt.Errorf("max amount must be positive, got %s", c.MaxAmount))
	}
	if !c.ItemTotalFactor.IsPositive() {
		errs = append(errs, fmt.Errorf("item total factor must be positive, got %s", c.ItemTotalFactor))
	}
	if c.LineTotalTolerance.IsNegative() {
		errs = append(errs, fmt.Errorf("line total tolerance must not be negative, got %s", c.LineTotalTolerance))
	}
	if c.MinItemNameLength < 1 {
		errs = append(errs, fmt.Errorf("min item name length must be at least 1, got %d", c.MinItemNameLength))
	}
	if c.HighDeviation <= 0 || c.MediumDeviation <= c.HighDeviation {
		errs = append(errs, fmt.Errorf("deviation bands must satisfy 0 < high < medium, got %v and %v", c.HighDeviation, c.MediumDeviation))
	}
	if c.MissingFieldPenalty < 0 || c.MissingFieldPenalty > 1 {
		errs = append(errs, fmt.Errorf("missing field penalty must be within [0, 1], got %v", c.MissingFieldPenalty))
	}
	return errors.Join(errs...)
}

func nonEmptyKeywords(name string, keywords []string) error {
	if len(keywords) == 0 {
		return fmt.Errorf("%s keywords must not be empty", name)
	}
	for _, kw := range keywords {
		if strings.TrimSpace(kw) == "" {
			return fmt.Errorf("%s keywords contain an empty entry", name)
		}
	}
	return nil
}
