package processors

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/lotledger/backend/src/logger"
	"github.com/username/lotledger/backend/src/models"
	"github.com/username/lotledger/backend/src/security/validation"
	"github.com/username/lotledger/backend/src/utils"
	"golang.org/x/sync/errgroup"
)

var hundred = decimal.NewFromInt(100)

// MatcherOptions holds the tax policy knobs of the LotMatcher.
type MatcherOptions struct {
	// IndexationThreshold is a percentage; the acquisition amount is indexed
	// only when the index delta is strictly greater.
	IndexationThreshold decimal.Decimal
	// OptionMultiplier scales option prices to contract notional.
	OptionMultiplier decimal.Decimal
}

// DefaultMatcherOptions returns a 10% threshold and a multiplier of 100.
func DefaultMatcherOptions() MatcherOptions {
	return MatcherOptions{
		IndexationThreshold: decimal.NewFromInt(10),
		OptionMultiplier:    decimal.NewFromInt(100),
	}
}

// LotMatcher matches each closed lot of a trade against its acquisition and
// computes the local-currency, inflation-indexed taxable gain.
type LotMatcher struct {
	rates RateSource
	opts  MatcherOptions
}

func NewLotMatcher(rates RateSource, opts MatcherOptions) *LotMatcher {
	return &LotMatcher{rates: rates, opts: opts}
}

// leg is one side of a disposal before conversion.
type leg struct {
	date  time.Time
	price decimal.Decimal
}

// legLookups holds the four resolver answers a disposal needs.
type legLookups struct {
	acqRate, dispRate   models.RatePoint
	acqIndex, dispIndex models.RatePoint

	acqRateErr, dispRateErr   error
	acqIndexErr, dispIndexErr error
}

// gainInputs are the values the taxable gain cannot be computed without.
type gainInputs struct {
	DisposalAmountLocal     *decimal.Decimal `validate:"required"`
	IndexedAcquisitionLocal *decimal.Decimal `validate:"required"`
	CommissionLocal         *decimal.Decimal `validate:"required"`
}

// Reconcile emits one disposal per closed lot, in statement order. A trade
// without lots yields a single self-referential disposal.
func (m *LotMatcher) Reconcile(ctx context.Context, order *models.Order, diag *models.Diagnostics) []models.MatchedDisposal {
	var disposals []models.MatchedDisposal
	for _, trade := range order.Trades {
		if len(trade.Lots) == 0 {
			disposals = append(disposals, m.matchTrade(ctx, trade, diag))
			continue
		}
		for _, lot := range trade.Lots {
			disposals = append(disposals, m.matchLot(ctx, trade, lot, diag))
		}
	}
	return disposals
}

func (m *LotMatcher) matchLot(ctx context.Context, trade *models.Trade, lot *models.ClosedLot, diag *models.Diagnostics) models.MatchedDisposal {
	d := models.MatchedDisposal{
		Symbol:              trade.Symbol,
		Currency:            trade.Currency,
		IsOption:            trade.IsOption,
		IsShort:             lot.IsShort(),
		Quantity:            lot.Quantity.Abs(),
		RealizedGainTrading: lotRealized(trade, lot),
		TradeLine:           trade.Line,
		LotLine:             lot.Line,
	}

	tradeLeg := leg{date: utils.DateOnly(trade.ExecutedAt), price: m.unitPrice(trade.Price, trade.IsOption)}
	lotLeg := leg{date: utils.DateOnly(lot.AcquiredAt), price: m.lotUnitPrice(lot, trade.IsOption)}

	// Covering a short makes the trade the buy side.
	acq, disp := lotLeg, tradeLeg
	if d.IsShort {
		acq, disp = tradeLeg, lotLeg
	}
	d.AcquisitionDate, d.AcquisitionPrice = acq.date, acq.price
	d.DisposalDate, d.DisposalPrice = disp.date, disp.price

	if trade.Quantity.IsZero() {
		d.Flag(models.ReasonZeroTradeQuantity)
		m.record(diag, models.IssueStructural, trade, "trade of %s has zero quantity, commission not allocated", trade.Symbol)
	} else {
		d.CommissionTrading = AllocateCommission(trade.Commission, lot.Quantity, trade.Quantity)
	}

	res := m.lookupLegs(ctx, trade.Currency, acq.date, disp.date)
	m.applyRates(&d, trade, res, diag)

	// Commission is charged on the trade's own execution date.
	commissionRate := d.DisposalRate
	if d.IsShort {
		commissionRate = d.AcquisitionRate
	}
	if commissionRate.Valid && !trade.Quantity.IsZero() {
		d.CommissionLocal = utils.NullFrom(d.CommissionTrading.Mul(commissionRate.Decimal))
	}

	m.applyIndexation(&d, trade, res, diag)
	m.computeGain(&d, trade, diag)
	return d
}

// matchTrade stands a whole trade in for its missing lots: both legs are the
// execution itself and the gain is the broker's realized figure, which already
// includes commission.
func (m *LotMatcher) matchTrade(ctx context.Context, trade *models.Trade, diag *models.Diagnostics) models.MatchedDisposal {
	date := utils.DateOnly(trade.ExecutedAt)
	price := m.unitPrice(trade.Price, trade.IsOption)
	d := models.MatchedDisposal{
		Symbol:              trade.Symbol,
		Currency:            trade.Currency,
		IsOption:            trade.IsOption,
		SelfReferential:     true,
		Quantity:            trade.Quantity.Abs(),
		AcquisitionDate:     date,
		DisposalDate:        date,
		AcquisitionPrice:    price,
		DisposalPrice:       price,
		CommissionTrading:   trade.Commission.Abs(),
		RealizedGainTrading: trade.Realized,
		IndexDelta:          utils.NullFrom(decimal.Zero),
		TradeLine:           trade.Line,
	}

	point, err := m.rates.Rate(ctx, trade.Currency, date)
	if err != nil {
		d.Flag(models.ReasonUnresolvedRate)
		m.record(diag, models.IssueResolution, trade, "%s rate on %s unresolved: %v", trade.Currency, utils.FormatDate(date), err)
		return d
	}
	if point.Degraded {
		d.Flag(models.ReasonDegradedExchangeRate)
	}
	rate := point.Value
	rateDate := point.Date
	amount := d.Quantity.Mul(price).Mul(rate)

	d.AcquisitionRate, d.DisposalRate = utils.NullFrom(rate), utils.NullFrom(rate)
	d.AcquisitionRateDate, d.DisposalRateDate = &rateDate, &rateDate
	d.AcquisitionAmountLocal, d.DisposalAmountLocal = utils.NullFrom(amount), utils.NullFrom(amount)
	d.IndexedAcquisitionLocal = utils.NullFrom(amount)
	d.CommissionLocal = utils.NullFrom(d.CommissionTrading.Mul(rate))
	d.TaxableGain = utils.NullFrom(trade.Realized.Mul(rate))
	return d
}

// lookupLegs resolves both rates and both index values concurrently. Failures
// are kept per lookup; none of them cancels the others.
func (m *LotMatcher) lookupLegs(ctx context.Context, currency string, acqDate, dispDate time.Time) legLookups {
	var res legLookups
	var g errgroup.Group
	g.Go(func() error {
		res.acqRate, res.acqRateErr = m.rates.Rate(ctx, currency, acqDate)
		return nil
	})
	g.Go(func() error {
		res.dispRate, res.dispRateErr = m.rates.Rate(ctx, currency, dispDate)
		return nil
	})
	g.Go(func() error {
		res.acqIndex, res.acqIndexErr = m.rates.IndexValue(ctx, acqDate)
		return nil
	})
	g.Go(func() error {
		res.dispIndex, res.dispIndexErr = m.rates.IndexValue(ctx, dispDate)
		return nil
	})
	_ = g.Wait()
	return res
}

func (m *LotMatcher) applyRates(d *models.MatchedDisposal, trade *models.Trade, res legLookups, diag *models.Diagnostics) {
	if res.acqRateErr != nil {
		d.Flag(models.ReasonUnresolvedAcquisitionRate)
		m.record(diag, models.IssueResolution, trade, "%s acquisition rate on %s unresolved: %v",
			d.Currency, utils.FormatDate(d.AcquisitionDate), res.acqRateErr)
	} else {
		if res.acqRate.Degraded {
			d.Flag(models.ReasonDegradedExchangeRate)
		}
		rateDate := res.acqRate.Date
		d.AcquisitionRate = utils.NullFrom(res.acqRate.Value)
		d.AcquisitionRateDate = &rateDate
		d.AcquisitionAmountLocal = utils.NullFrom(d.Quantity.Mul(d.AcquisitionPrice).Mul(res.acqRate.Value))
	}

	if res.dispRateErr != nil {
		d.Flag(models.ReasonUnresolvedDisposalRate)
		m.record(diag, models.IssueResolution, trade, "%s disposal rate on %s unresolved: %v",
			d.Currency, utils.FormatDate(d.DisposalDate), res.dispRateErr)
	} else {
		if res.dispRate.Degraded {
			d.Flag(models.ReasonDegradedExchangeRate)
		}
		rateDate := res.dispRate.Date
		d.DisposalRate = utils.NullFrom(res.dispRate.Value)
		d.DisposalRateDate = &rateDate
		d.DisposalAmountLocal = utils.NullFrom(d.Quantity.Mul(d.DisposalPrice).Mul(res.dispRate.Value))
	}
}

// applyIndexation computes the index delta in percent and scales the
// acquisition amount by (1 + delta/100) when the delta exceeds the threshold.
func (m *LotMatcher) applyIndexation(d *models.MatchedDisposal, trade *models.Trade, res legLookups, diag *models.Diagnostics) {
	for _, err := range []error{res.acqIndexErr, res.dispIndexErr} {
		if err != nil {
			d.Flag(models.ReasonUnresolvedIndex)
			m.record(diag, models.IssueResolution, trade, "index value unresolved: %v", err)
			return
		}
	}
	if res.acqIndex.Value.IsZero() {
		d.Flag(models.ReasonUnresolvedIndex)
		m.record(diag, models.IssueResolution, trade, "index value on %s is zero", utils.FormatDate(d.AcquisitionDate))
		return
	}
	if res.acqIndex.Degraded || res.dispIndex.Degraded {
		d.Flag(models.ReasonDegradedIndexValue)
	}

	delta := res.dispIndex.Value.Sub(res.acqIndex.Value).Div(res.acqIndex.Value).Mul(hundred)
	d.IndexDelta = utils.NullFrom(delta)
	if !d.AcquisitionAmountLocal.Valid {
		return
	}
	acquisition := d.AcquisitionAmountLocal.Decimal
	if delta.GreaterThan(m.opts.IndexationThreshold) {
		d.Indexed = true
		acquisition = acquisition.Mul(decimal.NewFromInt(1).Add(delta.Div(hundred)))
	}
	d.IndexedAcquisitionLocal = utils.NullFrom(acquisition)
}

// computeGain sets the taxable gain once every input is present and flags the
// disposal otherwise.
func (m *LotMatcher) computeGain(d *models.MatchedDisposal, trade *models.Trade, diag *models.Diagnostics) {
	in := gainInputs{
		DisposalAmountLocal:     nullPtr(d.DisposalAmountLocal),
		IndexedAcquisitionLocal: nullPtr(d.IndexedAcquisitionLocal),
		CommissionLocal:         nullPtr(d.CommissionLocal),
	}
	if missing := validation.MissingFields(in); len(missing) > 0 {
		d.Flag(models.ReasonMissingGainInputs)
		logger.L.Warn("Taxable gain left unset", "symbol", d.Symbol, "tradeLine", d.TradeLine, "lotLine", d.LotLine, "missing", missing)
		return
	}
	gain := in.DisposalAmountLocal.Sub(*in.IndexedAcquisitionLocal).Sub(*in.CommissionLocal)
	d.TaxableGain = utils.NullFrom(gain)
}

// unitPrice scales an option premium to contract notional.
func (m *LotMatcher) unitPrice(price decimal.Decimal, isOption bool) decimal.Decimal {
	if isOption {
		return price.Mul(m.opts.OptionMultiplier)
	}
	return price
}

// lotUnitPrice prefers the lot's own price. Without one, the basis already
// covers the contract multiplier and is divided by the quantity only.
func (m *LotMatcher) lotUnitPrice(lot *models.ClosedLot, isOption bool) decimal.Decimal {
	if !lot.Price.IsZero() {
		return m.unitPrice(lot.Price, isOption)
	}
	if lot.Quantity.IsZero() {
		return decimal.Zero
	}
	return lot.Basis.Abs().Div(lot.Quantity.Abs())
}

func (m *LotMatcher) record(diag *models.Diagnostics, kind models.IssueKind, trade *models.Trade, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	logger.L.Warn("Disposal needs review", "symbol", trade.Symbol, "line", trade.Line, "kind", kind, "message", msg)
	diag.Record(models.Issue{Kind: kind, Section: models.SectionTrades, Line: trade.Line, Message: msg})
}

// lotRealized prefers the realized figure printed on the lot and otherwise
// takes the lot's share of the trade's.
func lotRealized(trade *models.Trade, lot *models.ClosedLot) decimal.Decimal {
	if !lot.Realized.IsZero() || trade.Quantity.IsZero() {
		return lot.Realized
	}
	return trade.Realized.Mul(lot.Quantity.Abs()).Div(trade.Quantity.Abs())
}

func nullPtr(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	v := n.Decimal
	return &v
}
