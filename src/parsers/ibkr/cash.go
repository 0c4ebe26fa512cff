package ibkr

import (
	"fmt"
	"strings"

	"github.com/username/lotledger/backend/src/logger"
	"github.com/username/lotledger/backend/src/models"
	"github.com/username/lotledger/backend/src/security/validation"
	"github.com/username/lotledger/backend/src/utils"
)

// CashParser turns Fees, Dividends and Withholding Tax sections into
// CashRecords. Countries may be nil.
type CashParser struct {
	countries *utils.CountryDirectory
}

func NewCashParser(countries *utils.CountryDirectory) *CashParser {
	return &CashParser{countries: countries}
}

// Parse dispatches on the section name. ok is false for sections that are not
// cash sections.
func (p *CashParser) Parse(section models.Section, diag *models.Diagnostics) (records []models.CashRecord, ok bool) {
	switch section.Name {
	case models.SectionFees:
		return p.ParseFees(section, diag), true
	case models.SectionDividends:
		return p.ParseDividends(section, diag), true
	case models.SectionWithholdingTax:
		return p.ParseWithholdingTax(section, diag), true
	default:
		return nil, false
	}
}

func (p *CashParser) ParseFees(section models.Section, diag *models.Diagnostics) []models.CashRecord {
	cols := newColumnMap(section.Header(), feesLayout)
	return parseCashRows(section, cols, models.CashFee, diag, func(row models.RawRow, rec *models.CashRecord) bool {
		rec.Subtitle = cols.get(row, colSubtitle)
		return !isTotalLabel(rec.Subtitle) && !isTotalLabel(rec.Currency)
	})
}

func (p *CashParser) ParseDividends(section models.Section, diag *models.Diagnostics) []models.CashRecord {
	cols := newColumnMap(section.Header(), dividendsLayout)
	return parseCashRows(section, cols, models.CashDividend, diag, func(row models.RawRow, rec *models.CashRecord) bool {
		if isTotalLabel(rec.Currency) {
			return false
		}
		p.attachSecurity(rec)
		return true
	})
}

func (p *CashParser) ParseWithholdingTax(section models.Section, diag *models.Diagnostics) []models.CashRecord {
	cols := newColumnMap(section.Header(), withholdingLayout)
	return parseCashRows(section, cols, models.CashWithholdingTax, diag, func(row models.RawRow, rec *models.CashRecord) bool {
		if isTotalLabel(rec.Currency) {
			return false
		}
		rec.Code = cols.get(row, colCode)
		p.attachSecurity(rec)
		return true
	})
}

func (p *CashParser) attachSecurity(rec *models.CashRecord) {
	rec.Symbol, rec.ISIN = utils.ExtractSymbolAndISIN(rec.Description)
	if rec.ISIN != "" {
		rec.Country = p.countries.CountryForISIN(rec.ISIN)
	}
}

// parseCashRows reads the columns every cash section shares. keep fills the
// section specific fields and returns false for summary rows.
func parseCashRows(
	section models.Section,
	cols columnMap,
	kind models.CashKind,
	diag *models.Diagnostics,
	keep func(models.RawRow, *models.CashRecord) bool,
) []models.CashRecord {
	var records []models.CashRecord
	for _, row := range section.Body() {
		switch row.Kind() {
		case models.RowKindData:
		case models.RowKindSubTotal, models.RowKindTotal, models.RowKindHeader:
			continue
		default:
			logger.L.Warn("Cash row not attributed", "section", section.Name, "line", row.Line, "kind", row.Kind())
			diag.Recordf(models.IssueUnattributed, section.Name, row, "unrecognized row kind %q", row.Kind())
			continue
		}

		rec := models.CashRecord{
			Kind:        kind,
			Currency:    cols.get(row, colCurrency),
			Description: validation.SanitizeDescription(cols.get(row, colDescription)),
			Line:        row.Line,
		}
		if !keep(row, &rec) {
			continue
		}

		if err := fillDateAndAmount(row, cols, &rec); err != nil {
			logger.L.Error("Skipping unparseable cash row", "section", section.Name, "line", row.Line, "row", row.Cells, "error", err)
			diag.Recordf(models.IssueParse, section.Name, row, "%s row: %v", kind, err)
			continue
		}
		records = append(records, rec)
	}
	return records
}

func fillDateAndAmount(row models.RawRow, cols columnMap, rec *models.CashRecord) error {
	date, err := utils.ParseStatementDate(cols.get(row, colDate))
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	amount, err := utils.ParseAmount(cols.get(row, colAmount))
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	rec.Date = utils.DateOnly(date)
	rec.Amount = amount
	return nil
}

func isTotalLabel(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "Total")
}
