package models

// Section names recognized in an activity statement.
const (
	SectionTrades         = "Trades"
	SectionFees           = "Fees"
	SectionDividends      = "Dividends"
	SectionWithholdingTax = "Withholding Tax"
)

// Row kinds found in column 1 of every statement line.
const (
	RowKindHeader   = "Header"
	RowKindData     = "Data"
	RowKindSubTotal = "SubTotal"
	RowKindTotal    = "Total"
)

// Discriminators found in the DataDiscriminator column of Trades rows.
const (
	DiscriminatorOrder     = "Order"
	DiscriminatorTrade     = "Trade"
	DiscriminatorClosedLot = "ClosedLot"
)

// Fixed positions shared by every statement line.
const (
	ColumnSectionName = 0
	ColumnRowKind     = 1
)

// RawRow is one normalized statement line.
type RawRow struct {
	Line  int      `json:"line"`
	Cells []string `json:"cells"`
}

// Width is the number of cells in the row.
func (r RawRow) Width() int { return len(r.Cells) }

// Cell returns the cell at i, or "" when i is out of range.
func (r RawRow) Cell(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return r.Cells[i]
}

// SectionName is the content of the section-name column.
func (r RawRow) SectionName() string { return r.Cell(ColumnSectionName) }

// Kind is the content of the row-kind column.
func (r RawRow) Kind() string { return r.Cell(ColumnRowKind) }

// Section is a run of rows that share one header. The first row is the header.
type Section struct {
	Name string   `json:"name"`
	Rows []RawRow `json:"rows"`
}

// Header returns the section's header row.
func (s Section) Header() RawRow {
	if len(s.Rows) == 0 {
		return RawRow{}
	}
	return s.Rows[0]
}

// Body returns every row after the header.
func (s Section) Body() []RawRow {
	if len(s.Rows) < 2 {
		return nil
	}
	return s.Rows[1:]
}
