package processors

import (
	"context"
	"time"

	"github.com/username/lotledger/backend/src/models"
)

// RateSource resolves exchange rates into the local currency and inflation
// index values. An error means the value is unresolved.
type RateSource interface {
	Rate(ctx context.Context, currency string, date time.Time) (models.RatePoint, error)
	IndexValue(ctx context.Context, date time.Time) (models.RatePoint, error)
}

// Reconciler turns an assembled order into tax-ready disposals.
type Reconciler interface {
	Reconcile(ctx context.Context, order *models.Order, diag *models.Diagnostics) []models.MatchedDisposal
}

// CashProcessor converts fee, dividend and withholding tax records into the
// local currency.
type CashProcessor interface {
	Convert(ctx context.Context, records []models.CashRecord, diag *models.Diagnostics) []models.CashRecord
}

// DividendProcessor groups converted dividends and withholding taxes for tax
// reporting.
type DividendProcessor interface {
	CalculateTaxSummary(records []models.CashRecord) models.DividendTaxResult
}
