package services

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/lotledger/backend/src/models"
)

// StatementReport is everything produced from one statement.
type StatementReport struct {
	ID               string                   `json:"id"`
	ProcessedAt      time.Time                `json:"processedAt"`
	Source           string                   `json:"source"`
	Disposals        []models.MatchedDisposal `json:"disposals"`
	Fees             []models.CashRecord      `json:"fees"`
	Dividends        []models.CashRecord      `json:"dividends"`
	WithholdingTaxes []models.CashRecord      `json:"withholdingTaxes"`
	Totals           models.CategoryTotals    `json:"totals"`
	Summary          Summary                  `json:"summary"`
	Issues           []models.Issue           `json:"issues"`
}

// Summary condenses the report into the figures a tax return needs.
// TaxableGainLocal covers equity and option disposals only.
type Summary struct {
	GrandTotalLocal    decimal.Decimal          `json:"grandTotalLocal"`
	TaxableGainLocal   decimal.Decimal          `json:"taxableGainLocal"`
	EstimatedTax       decimal.Decimal          `json:"estimatedTax"`
	Disposals          int                      `json:"disposals"`
	FlaggedDisposals   int                      `json:"flaggedDisposals"`
	CashRecords        int                      `json:"cashRecords"`
	FlaggedCashRecords int                      `json:"flaggedCashRecords"`
	IssuesByKind       map[models.IssueKind]int `json:"issuesByKind"`
	DividendsByCountry models.DividendTaxResult `json:"dividendsByCountry"`
}

// FlaggedDisposals returns the disposals that need review.
func (r *StatementReport) FlaggedDisposals() []models.MatchedDisposal {
	flagged := make([]models.MatchedDisposal, 0)
	for _, d := range r.Disposals {
		if d.NeedsReview {
			flagged = append(flagged, d)
		}
	}
	return flagged
}
