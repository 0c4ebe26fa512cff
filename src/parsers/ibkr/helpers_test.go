package ibkr

import (
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/username/lotledger/backend/src/models"
)

const tradesHeader = `Trades,Header,DataDiscriminator,Asset Category,Currency,Symbol,Date/Time,Quantity,T. Price,C. Price,Proceeds,Comm/Fee,Basis,Realized P/L,MTM P/L,Code`

// sectionOf builds a section from CSV lines; the first line is the header.
func sectionOf(t *testing.T, lines ...string) models.Section {
	t.Helper()
	cr := csv.NewReader(strings.NewReader(strings.Join(lines, "\n")))
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)

	s := models.Section{Name: records[0][0]}
	for i, rec := range records {
		for j := range rec {
			rec[j] = strings.TrimSpace(rec[j])
		}
		s.Rows = append(s.Rows, models.RawRow{Line: i + 1, Cells: rec})
	}
	return s
}
