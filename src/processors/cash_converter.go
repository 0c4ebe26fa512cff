package processors

import (
	"context"

	"github.com/username/lotledger/backend/src/logger"
	"github.com/username/lotledger/backend/src/models"
	"github.com/username/lotledger/backend/src/utils"
)

// CashConverter enriches fee, dividend and withholding tax records with the
// exchange rate of their date and the converted local amount.
type CashConverter struct {
	rates RateSource
}

func NewCashConverter(rates RateSource) *CashConverter {
	return &CashConverter{rates: rates}
}

// Convert returns converted copies of records. A record whose rate cannot be
// resolved keeps a null local amount and is flagged.
func (c *CashConverter) Convert(ctx context.Context, records []models.CashRecord, diag *models.Diagnostics) []models.CashRecord {
	out := make([]models.CashRecord, 0, len(records))
	for _, rec := range records {
		point, err := c.rates.Rate(ctx, rec.Currency, rec.Date)
		if err != nil {
			rec.Flag(models.ReasonUnresolvedRate)
			logger.L.Warn("Cash record rate unresolved", "kind", rec.Kind, "currency", rec.Currency, "date", utils.FormatDate(rec.Date), "error", err)
			diag.Record(models.Issue{
				Kind:    models.IssueResolution,
				Section: sectionFor(rec.Kind),
				Line:    rec.Line,
				Message: "rate unresolved for " + rec.Currency + " on " + utils.FormatDate(rec.Date) + ": " + err.Error(),
			})
			out = append(out, rec)
			continue
		}
		if point.Degraded {
			rec.Flag(models.ReasonDegradedExchangeRate)
		}
		if point.Walked() {
			logger.L.Debug("Cash record converted at a later rate date", "kind", rec.Kind, "date", utils.FormatDate(rec.Date), "rateDate", utils.FormatDate(point.Date))
		}
		rateDate := point.Date
		rec.ExchangeRate = utils.NullFrom(point.Value)
		rec.RateDate = &rateDate
		rec.AmountLocal = utils.NullFrom(rec.Amount.Mul(point.Value))
		out = append(out, rec)
	}
	return out
}

func sectionFor(kind models.CashKind) string {
	switch kind {
	case models.CashFee:
		return models.SectionFees
	case models.CashDividend:
		return models.SectionDividends
	case models.CashWithholdingTax:
		return models.SectionWithholdingTax
	default:
		return string(kind)
	}
}
