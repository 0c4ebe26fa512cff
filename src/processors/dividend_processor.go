package processors

import (
	"github.com/username/lotledger/backend/src/models"
	"github.com/username/lotledger/backend/src/utils"
)

const unknownCountry = "Unknown"

// dividendProcessorImpl implements the DividendProcessor interface.
type dividendProcessorImpl struct{}

// NewDividendProcessor creates a new instance of DividendProcessor.
func NewDividendProcessor() DividendProcessor {
	return &dividendProcessorImpl{}
}

// CalculateTaxSummary groups converted dividends and withholding taxes by
// year and source country. Records without a local amount are counted as
// unresolved and left out of the sums.
func (p *dividendProcessorImpl) CalculateTaxSummary(records []models.CashRecord) models.DividendTaxResult {
	result := make(models.DividendTaxResult)

	for _, rec := range records {
		if rec.Kind != models.CashDividend && rec.Kind != models.CashWithholdingTax {
			continue
		}
		year := rec.Date.Format("2006")
		country := rec.Country
		if country == "" {
			country = unknownCountry
		}

		if _, ok := result[year]; !ok {
			result[year] = make(map[string]models.DividendCountrySummary)
		}
		summary := result[year][country]
		summary.Records++

		if !rec.AmountLocal.Valid {
			summary.Unresolved++
			result[year][country] = summary
			continue
		}
		if rec.Kind == models.CashDividend {
			summary.Gross = summary.Gross.Add(rec.AmountLocal.Decimal)
		} else {
			summary.Withheld = summary.Withheld.Add(rec.AmountLocal.Decimal)
		}
		result[year][country] = summary
	}

	for year, countries := range result {
		for country, summary := range countries {
			summary.Gross = utils.RoundMoney(summary.Gross, 2)
			summary.Withheld = utils.RoundMoney(summary.Withheld, 2)
			summary.Net = summary.Gross.Add(summary.Withheld)
			result[year][country] = summary
		}
	}
	return result
}
