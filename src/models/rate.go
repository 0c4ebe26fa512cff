package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SeriesKind distinguishes the two provider calls.
type SeriesKind string

const (
	SeriesExchangeRate SeriesKind = "exchange_rate"
	SeriesIndex        SeriesKind = "index"
)

// RatePoint is a resolved exchange rate or index value. Requested is the date
// asked for; Date is the date the value was published for, which is later
// than Requested when the fallback walk was used.
type RatePoint struct {
	Series    string          `json:"series"`
	Kind      SeriesKind      `json:"kind"`
	Requested time.Time       `json:"requested"`
	Date      time.Time       `json:"date"`
	Value     decimal.Decimal `json:"value"`
	Degraded  bool            `json:"degraded,omitempty"`
}

// Walked reports whether the value came from a later date than requested.
func (p RatePoint) Walked() bool { return !p.Date.Equal(p.Requested) }
