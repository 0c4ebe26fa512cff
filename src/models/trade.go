package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order groups the executions that filled one broker order. It only lives
// while a statement is being assembled.
type Order struct {
	Symbol   string          `json:"symbol"`
	Currency string          `json:"currency"`
	Quantity decimal.Decimal `json:"quantity"`
	IsOption bool            `json:"isOption"`
	Line     int             `json:"line"`
	Trades   []*Trade        `json:"trades"`
}

// IsSell reports whether the order reduced or opened a short position.
func (o *Order) IsSell() bool { return o.Quantity.IsNegative() }

// AddTrade attaches t to the order and records the back reference.
func (o *Order) AddTrade(t *Trade) {
	t.order = o
	o.Trades = append(o.Trades, t)
}

// Trade is a single execution before reconciliation.
type Trade struct {
	Symbol     string          `json:"symbol"`
	Currency   string          `json:"currency"`
	ExecutedAt time.Time       `json:"executedAt"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Proceeds   decimal.Decimal `json:"proceeds"`
	Commission decimal.Decimal `json:"commission"`
	Basis      decimal.Decimal `json:"basis"`
	Realized   decimal.Decimal `json:"realized"`
	Code       string          `json:"code,omitempty"`
	IsOption   bool            `json:"isOption"`
	Line       int             `json:"line"`
	Lots       []*ClosedLot    `json:"lots"`

	order *Order
}

// Order returns the order the trade was attached to, if any.
func (t *Trade) Order() *Order { return t.order }

// AddLot attaches l to the trade.
func (t *Trade) AddLot(l *ClosedLot) { t.Lots = append(t.Lots, l) }

// LotQuantity is the sum of |quantity| over the trade's lots.
func (t *Trade) LotQuantity() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range t.Lots {
		sum = sum.Add(l.Quantity.Abs())
	}
	return sum
}

// ClosedLot is the slice of an earlier position that a trade closed.
type ClosedLot struct {
	Quantity   decimal.Decimal `json:"quantity"`
	AcquiredAt time.Time       `json:"acquiredAt"`
	Price      decimal.Decimal `json:"price"`
	Basis      decimal.Decimal `json:"basis"`
	Realized   decimal.Decimal `json:"realized"`
	Line       int             `json:"line"`
}

// IsShort reports whether the lot was a short position.
func (l *ClosedLot) IsShort() bool { return l.Quantity.IsNegative() }
