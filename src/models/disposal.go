package models

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Review reasons attached to disposals and cash records.
const (
	ReasonUnresolvedAcquisitionRate = "unresolved_acquisition_rate"
	ReasonUnresolvedDisposalRate    = "unresolved_disposal_rate"
	ReasonUnresolvedIndex           = "unresolved_index"
	ReasonUnresolvedRate            = "unresolved_rate"
	ReasonDegradedExchangeRate      = "degraded_exchange_rate"
	ReasonDegradedIndexValue        = "degraded_index_value"
	ReasonZeroTradeQuantity         = "zero_trade_quantity"
	ReasonMissingGainInputs         = "missing_gain_inputs"
)

// MatchedDisposal is the tax-ready result of matching one closed lot (or a
// whole trade without lots) against its acquisition. Prices are per unit in
// the trading currency, already multiplied for options. Local amounts and the
// taxable gain are null when a rate or index could not be resolved.
type MatchedDisposal struct {
	Symbol          string `json:"symbol"`
	Currency        string `json:"currency"`
	IsOption        bool   `json:"isOption"`
	IsShort         bool   `json:"isShort"`
	SelfReferential bool   `json:"selfReferential,omitempty"`

	Quantity        decimal.Decimal `json:"quantity"`
	AcquisitionDate time.Time       `json:"acquisitionDate"`
	DisposalDate    time.Time       `json:"disposalDate"`

	AcquisitionPrice decimal.Decimal `json:"acquisitionPrice"`
	DisposalPrice    decimal.Decimal `json:"disposalPrice"`

	AcquisitionRate     decimal.NullDecimal `json:"acquisitionRate"`
	AcquisitionRateDate *time.Time          `json:"acquisitionRateDate,omitempty"`
	DisposalRate        decimal.NullDecimal `json:"disposalRate"`
	DisposalRateDate    *time.Time          `json:"disposalRateDate,omitempty"`

	AcquisitionAmountLocal decimal.NullDecimal `json:"acquisitionAmountLocal"`
	DisposalAmountLocal    decimal.NullDecimal `json:"disposalAmountLocal"`

	CommissionTrading decimal.Decimal     `json:"commissionTrading"`
	CommissionLocal   decimal.NullDecimal `json:"commissionLocal"`

	IndexDelta              decimal.NullDecimal `json:"indexDelta"`
	Indexed                 bool                `json:"indexed"`
	IndexedAcquisitionLocal decimal.NullDecimal `json:"indexedAcquisitionLocal"`

	TaxableGain         decimal.NullDecimal `json:"taxableGain"`
	RealizedGainTrading decimal.Decimal     `json:"realizedGainTrading"`

	NeedsReview   bool     `json:"needsReview"`
	ReviewReasons []string `json:"reviewReasons,omitempty"`

	TradeLine int `json:"tradeLine"`
	LotLine   int `json:"lotLine,omitempty"`
}

// Flag marks the disposal for review. Repeated reasons are recorded once.
func (d *MatchedDisposal) Flag(reason string) {
	d.NeedsReview = true
	if !slices.Contains(d.ReviewReasons, reason) {
		d.ReviewReasons = append(d.ReviewReasons, reason)
	}
}

func (d *MatchedDisposal) TradingCurrency() string { return d.Currency }

func (d *MatchedDisposal) TradingAmount() decimal.Decimal { return d.RealizedGainTrading }

func (d *MatchedDisposal) LocalAmount() decimal.NullDecimal { return d.TaxableGain }
