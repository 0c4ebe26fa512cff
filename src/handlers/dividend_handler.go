package handlers

import (
	"net/http"

	"github.com/username/lotledger/backend/src/models"
)

// HandleGetDividendTaxSummary returns the statement's dividends grouped by
// year and source country.
func (h *StatementHandler) HandleGetDividendTaxSummary(w http.ResponseWriter, r *http.Request) {
	report, ok := h.lookup(w, r)
	if !ok {
		return
	}
	taxSummary := report.Summary.DividendsByCountry
	if taxSummary == nil {
		taxSummary = make(models.DividendTaxResult)
	}
	sendWithETag(w, r, taxSummary)
}

// HandleGetDividends returns the converted dividend and withholding records.
func (h *StatementHandler) HandleGetDividends(w http.ResponseWriter, r *http.Request) {
	report, ok := h.lookup(w, r)
	if !ok {
		return
	}
	sendWithETag(w, r, struct {
		Dividends        []models.CashRecord `json:"dividends"`
		WithholdingTaxes []models.CashRecord `json:"withholdingTaxes"`
	}{
		Dividends:        nonNilRecords(report.Dividends),
		WithholdingTaxes: nonNilRecords(report.WithholdingTaxes),
	})
}

func nonNilRecords(records []models.CashRecord) []models.CashRecord {
	if records == nil {
		return []models.CashRecord{}
	}
	return records
}
