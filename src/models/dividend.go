package models

import "github.com/shopspring/decimal"

// DividendCountrySummary is the dividend income of one source country in one
// year, in the local currency. Withheld is negative, as printed on the
// statement.
type DividendCountrySummary struct {
	Gross      decimal.Decimal `json:"gross"`
	Withheld   decimal.Decimal `json:"withheld"`
	Net        decimal.Decimal `json:"net"`
	Records    int             `json:"records"`
	Unresolved int             `json:"unresolved"`
}

// DividendTaxResult maps year → country → summary.
type DividendTaxResult map[string]map[string]DividendCountrySummary
