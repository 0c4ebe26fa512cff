package models

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// CashKind identifies which simple statement section a CashRecord came from.
type CashKind string

const (
	CashFee            CashKind = "fee"
	CashDividend       CashKind = "dividend"
	CashWithholdingTax CashKind = "withholding_tax"
)

// CashRecord is a fee, dividend or withholding tax line. Amount is signed as
// printed on the statement.
type CashRecord struct {
	Kind        CashKind        `json:"kind"`
	Date        time.Time       `json:"date"`
	Currency    string          `json:"currency"`
	Symbol      string          `json:"symbol,omitempty"`
	ISIN        string          `json:"isin,omitempty"`
	Country     string          `json:"country,omitempty"`
	Description string          `json:"description"`
	Subtitle    string          `json:"subtitle,omitempty"`
	Code        string          `json:"code,omitempty"`
	Amount      decimal.Decimal `json:"amount"`

	ExchangeRate decimal.NullDecimal `json:"exchangeRate"`
	RateDate     *time.Time          `json:"rateDate,omitempty"`
	AmountLocal  decimal.NullDecimal `json:"amountLocal"`

	NeedsReview   bool     `json:"needsReview"`
	ReviewReasons []string `json:"reviewReasons,omitempty"`
	Line          int      `json:"line"`
}

// Flag marks the record for review.
func (c *CashRecord) Flag(reason string) {
	c.NeedsReview = true
	if !slices.Contains(c.ReviewReasons, reason) {
		c.ReviewReasons = append(c.ReviewReasons, reason)
	}
}

func (c *CashRecord) TradingCurrency() string { return c.Currency }

func (c *CashRecord) TradingAmount() decimal.Decimal { return c.Amount }

func (c *CashRecord) LocalAmount() decimal.NullDecimal { return c.AmountLocal }
