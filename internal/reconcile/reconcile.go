// Package reconcile folds raw order lines into per-market and per-product
// quantities and does the money arithmetic the controllers display.
//
// Every function here is pure. Nothing returns an error: malformed numeric
// text is read as zero.
package reconcile

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// SanitizeDecimalInput turns free-form numeric text into a plain decimal
// string. Commas become dots, every other non-digit is dropped, and only the
// first dot survives; later dot-separated groups are concatenated.
func SanitizeDecimalInput(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == ',':
			b.WriteByte('.')
		}
	}
	cleaned := b.String()

	head, tail, found := strings.Cut(cleaned, ".")
	if !found {
		return cleaned
	}
	return head + "." + strings.ReplaceAll(tail, ".", "")
}

// ParseDecimal reads user or wire text as a decimal, zero when unreadable.
func ParseDecimal(text string) decimal.Decimal {
	s := SanitizeDecimalInput(text)
	if s == "" || s == "." {
		return decimal.Zero
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	s = strings.TrimSuffix(s, ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// InputText renders a stored number back into an editable field. Zero shows
// as an empty field.
func InputText(v float64) string {
	if v == 0 {
		return ""
	}
	return decimal.NewFromFloat(v).String()
}

// Line is one requested quantity of a product by a market.
type Line struct {
	MarketID  int64
	ProductID int64
	Quantity  decimal.Decimal
}

// Quantities maps market id to product id to summed quantity.
type Quantities map[int64]map[int64]decimal.Decimal

// AggregateByMarketAndProduct sums quantities per market and product.
func AggregateByMarketAndProduct(lines []Line) Quantities {
	q := make(Quantities)
	for _, l := range lines {
		byProduct, ok := q[l.MarketID]
		if !ok {
			byProduct = make(map[int64]decimal.Decimal)
			q[l.MarketID] = byProduct
		}
		byProduct[l.ProductID] = byProduct[l.ProductID].Add(l.Quantity)
	}
	return q
}

// At is one market's quantity of a product, zero when absent.
func (q Quantities) At(marketID, productID int64) decimal.Decimal {
	return q[marketID][productID]
}

// TotalAcrossMarkets sums a product's quantity over every market.
func (q Quantities) TotalAcrossMarkets(productID int64) decimal.Decimal {
	total := decimal.Zero
	for _, byProduct := range q {
		total = total.Add(byProduct[productID])
	}
	return total
}

// Markets returns the market ids present, ascending.
func (q Quantities) Markets() []int64 {
	ids := make([]int64, 0, len(q))
	for id := range q {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ApplyPrice multiplies and rounds half away from zero to cents.
func ApplyPrice(quantity, price decimal.Decimal) decimal.Decimal {
	return quantity.Mul(price).Round(2)
}

// LineTotal is the market-side row total: received quantity times price.
func LineTotal(received, price decimal.Decimal) decimal.Decimal {
	return ApplyPrice(received, price)
}

// Sum adds values exactly, zero for none.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// LedgerInput holds one market's end-of-day figures.
type LedgerInput struct {
	TotalReceived decimal.Decimal
	DamagedGoods  decimal.Decimal
	CashRegister  decimal.Decimal
	Cash          decimal.Decimal
	Salary        decimal.Decimal
	Expenses      decimal.Decimal
	Difference    decimal.Decimal
}

// Remainder is what is left of the received total after every deduction.
func Remainder(in LedgerInput) decimal.Decimal {
	return in.TotalReceived.
		Sub(in.DamagedGoods).
		Sub(in.CashRegister).
		Sub(in.Cash).
		Sub(in.Salary).
		Sub(in.Expenses).
		Sub(in.Difference).
		Round(2)
}

// Display formats d with two fixed decimals.
func Display(d decimal.Decimal) string {
	return d.StringFixed(2)
}
