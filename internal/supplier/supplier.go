// Package supplier holds one adapter per upstream feed. Each adapter fetches
// its native format and normalizes it into domain.Product.
package supplier

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"supplier-catalog-service/internal/domain"
)

// Adapter fetches and normalizes one supplier's full catalog.
type Adapter interface {
	Supplier() domain.Supplier
	FetchAll(ctx context.Context) ([]domain.Product, error)
}

// Pricing holds the regional normalization constants shared by adapters.
type Pricing struct {
	TaxRate            float64
	StockMoreIncrement int
}

// DefaultPricing matches the configuration defaults.
var DefaultPricing = Pricing{TaxRate: 0.15, StockMoreIncrement: 5}

var one = decimal.NewFromInt(1)

// TaxInclusive converts a tax-exclusive amount into the tax-inclusive price
// rounded to the nearest whole currency unit.
func (p Pricing) TaxInclusive(exclusive decimal.Decimal) float64 {
	if exclusive.IsNegative() {
		return 0
	}
	v := exclusive.Mul(one.Add(decimal.NewFromFloat(p.TaxRate))).Round(0)
	f, _ := v.Float64()
	return f
}

// BranchQuantity resolves a per-branch quantity. A branch flagged as holding
// more than shown is approximated as qty plus the configured increment.
func (p Pricing) BranchQuantity(qty int, more bool) int {
	if qty < 0 {
		qty = 0
	}
	if more {
		qty += p.StockMoreIncrement
	}
	return qty
}

// ParseAmount parses a money amount as feeds send it ("1,299.00", "$49",
// " 12.5 "). Anything unparseable is zero.
func ParseAmount(raw string) decimal.Decimal {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			return r
		}
		return -1
	}, raw)
	if cleaned == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseQuantity parses a stock quantity. A trailing "+" ("10+") marks a
// lower bound and is reported through more. Anything unparseable is zero.
func ParseQuantity(raw string) (qty int, more bool) {
	s := strings.TrimSpace(raw)
	if strings.HasSuffix(s, "+") {
		more = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "+"))
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, more && err == nil
	}
	return n, more
}

func amountFloat(d decimal.Decimal) float64 {
	if d.IsNegative() {
		return 0
	}
	f, _ := d.Float64()
	return f
}

// flexNumber accepts a JSON number or a numeric string. Malformed values
// decode to zero instead of failing the whole document.
type flexNumber struct {
	decimal.Decimal
}

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" || raw == "" {
		n.Decimal = decimal.Zero
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		n.Decimal = ParseAmount(s)
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		n.Decimal = decimal.Zero
		return nil
	}
	n.Decimal = d
	return nil
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTime accepts the timestamp layouts seen across feeds; the zero time
// is returned for anything else.
func parseTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func splitCategoryPath(path, sep string) []string {
	parts := strings.Split(path, sep)
	labels := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			labels = append(labels, p)
		}
	}
	return labels
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func shorten(s string, limit int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	cut := string(r[:limit])
	if i := strings.LastIndex(cut, " "); i > limit/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}
