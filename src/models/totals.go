package models

import "github.com/shopspring/decimal"

// Category is one of the fixed tax categories.
type Category string

const (
	CategoryEquity         Category = "equity"
	CategoryOption         Category = "option"
	CategoryDividend       Category = "dividend"
	CategoryWithholdingTax Category = "withholding_tax"
	CategoryFee            Category = "fee"
)

// AllCategories lists every category in report order.
var AllCategories = []Category{
	CategoryEquity,
	CategoryOption,
	CategoryDividend,
	CategoryWithholdingTax,
	CategoryFee,
}

// Attributable is a record that can be added to category totals.
type Attributable interface {
	TradingCurrency() string
	TradingAmount() decimal.Decimal
	LocalAmount() decimal.NullDecimal
}

// Totals holds the running sums of one category. Unresolved counts records
// whose local amount was unknown and therefore left out of Local.
type Totals struct {
	Trading           decimal.Decimal            `json:"trading"`
	TradingByCurrency map[string]decimal.Decimal `json:"tradingByCurrency"`
	Local             decimal.Decimal            `json:"local"`
	Records           int                        `json:"records"`
	Unresolved        int                        `json:"unresolved"`
}

// CategoryTotals maps each category to its totals.
type CategoryTotals map[Category]Totals

// GrandTotalLocal sums the local totals of every category.
func (ct CategoryTotals) GrandTotalLocal() decimal.Decimal {
	sum := decimal.Zero
	for _, t := range ct {
		sum = sum.Add(t.Local)
	}
	return sum
}
