package ibkr

import (
	"strings"

	"github.com/username/lotledger/backend/src/models"
)

// Column names as printed in IBKR activity statement headers.
const (
	colDiscriminator = "DataDiscriminator"
	colAssetCategory = "Asset Category"
	colCurrency      = "Currency"
	colSymbol        = "Symbol"
	colDateTime      = "Date/Time"
	colDate          = "Date"
	colQuantity      = "Quantity"
	colTradePrice    = "T. Price"
	colClosePrice    = "C. Price"
	colProceeds      = "Proceeds"
	colCommission    = "Comm/Fee"
	colBasis         = "Basis"
	colRealized      = "Realized P/L"
	colMTM           = "MTM P/L"
	colCode          = "Code"
	colDescription   = "Description"
	colAmount        = "Amount"
	colSubtitle      = "Subtitle"
)

// Positions used when a section header names no columns.
var (
	tradesLayout = map[string]int{
		colDiscriminator: 2,
		colAssetCategory: 3,
		colCurrency:      4,
		colSymbol:        5,
		colDateTime:      6,
		colQuantity:      7,
		colTradePrice:    8,
		colClosePrice:    9,
		colProceeds:      10,
		colCommission:    11,
		colBasis:         12,
		colRealized:      13,
		colMTM:           14,
		colCode:          15,
	}
	dividendsLayout = map[string]int{
		colCurrency:    2,
		colDate:        3,
		colDescription: 4,
		colAmount:      5,
	}
	withholdingLayout = map[string]int{
		colCurrency:    2,
		colDate:        3,
		colDescription: 4,
		colAmount:      5,
		colCode:        6,
	}
	feesLayout = map[string]int{
		colSubtitle:    2,
		colCurrency:    3,
		colDate:        4,
		colDescription: 5,
		colAmount:      6,
	}
)

// Header spellings that mean the same column.
var columnAliases = map[string]string{
	"Comm in USD": colCommission,
	"Commission":  colCommission,
	"Realized":    colRealized,
	"Price":       colTradePrice,
}

type columnMap map[string]int

// newColumnMap reads column positions from the section header. The fixed
// layout is used only when the header names no columns at all.
func newColumnMap(header models.RawRow, layout map[string]int) columnMap {
	cols := make(columnMap)
	for i, cell := range header.Cells {
		if i <= models.ColumnRowKind {
			continue
		}
		name := strings.TrimSpace(cell)
		if name == "" {
			continue
		}
		if canonical, ok := columnAliases[name]; ok {
			name = canonical
		}
		if _, seen := cols[name]; !seen {
			cols[name] = i
		}
	}
	if len(cols) > 0 {
		return cols
	}
	for name, i := range layout {
		cols[name] = i
	}
	return cols
}

func (c columnMap) get(row models.RawRow, name string) string {
	i, ok := c[name]
	if !ok {
		return ""
	}
	return strings.TrimSpace(row.Cell(i))
}
