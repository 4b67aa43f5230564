package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Price is a monetary amount in minor units (cents) with an ISO 4217
// currency code. Prices are never represented as floating point so that
// threshold comparisons are exact.
type Price struct {
	MinorUnits int64  `json:"minor_units"`
	Currency   string `json:"currency"`
}

// NewPrice builds a Price from minor units.
func NewPrice(minorUnits int64, currency string) Price {
	return Price{MinorUnits: minorUnits, Currency: strings.ToUpper(currency)}
}

// IsZero reports whether the price is unset.
func (p Price) IsZero() bool {
	return p.MinorUnits == 0 && p.Currency == ""
}

// Cmp returns -1, 0, or +1 comparing p against other.
func (p Price) Cmp(other Price) int {
	switch {
	case p.MinorUnits < other.MinorUnits:
		return -1
	case p.MinorUnits > other.MinorUnits:
		return 1
	default:
		return 0
	}
}

// AtOrBelow reports whether p is at or below target.
func (p Price) AtOrBelow(target Price) bool {
	return p.MinorUnits <= target.MinorUnits
}

func (p Price) String() string {
	units := p.MinorUnits / 100
	cents := p.MinorUnits % 100
	if p.Currency == "" {
		return fmt.Sprintf("%d.%02d", units, cents)
	}
	return fmt.Sprintf("%d.%02d %s", units, cents, p.Currency)
}

// ParsePrice converts scraped price text into a Price. Currency symbols,
// whitespace, and thousands separators are stripped before parsing.
// decimalComma selects the "1.234,56" convention over "1,234.56".
// Non-positive amounts are rejected.
func ParsePrice(text string, currency string, decimalComma bool) (Price, error) {
	cleaned := cleanPriceText(text)
	if cleaned == "" {
		return Price{}, eris.Errorf("parse price: no digits in %q", text)
	}
	if strings.HasPrefix(cleaned, "-") {
		return Price{}, eris.Errorf("parse price: negative amount %q", text)
	}

	if decimalComma {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	} else {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	whole, frac, _ := strings.Cut(cleaned, ".")
	if whole == "" {
		whole = "0"
	}
	// Two decimal places; extra precision is truncated, missing padded.
	if len(frac) > 2 {
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return Price{}, eris.Errorf("parse price: malformed amount %q", text)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return Price{}, eris.Errorf("parse price: malformed amount %q", text)
	}

	minor := units*100 + cents
	if minor <= 0 {
		return Price{}, eris.Errorf("parse price: non-positive amount %q", text)
	}

	return NewPrice(minor, currency), nil
}

// cleanPriceText keeps digits, separators, and a leading minus sign.
func cleanPriceText(text string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(text) {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
