package ibkr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/username/lotledger/backend/src/models"
)

func TestColumnMapFallsBackToLayout(t *testing.T) {
	header := models.RawRow{Cells: []string{"Trades", "Header", "", ""}}
	cols := newColumnMap(header, tradesLayout)
	assert.Equal(t, 5, cols[colSymbol])
	assert.Equal(t, 11, cols[colCommission])
}

func TestColumnMapAliasesAndFirstWins(t *testing.T) {
	header := models.RawRow{Cells: []string{"Trades", "Header", "DataDiscriminator", "Comm in USD", "Comm/Fee"}}
	cols := newColumnMap(header, tradesLayout)
	assert.Equal(t, 3, cols[colCommission])
	_, hasSymbol := cols[colSymbol]
	assert.False(t, hasSymbol, "layout is not mixed into a named header")

	row := models.RawRow{Cells: []string{"Trades", "Data", "Order", " -1.5 "}}
	assert.Equal(t, "-1.5", cols.get(row, colCommission))
	assert.Equal(t, "", cols.get(row, colSymbol))
}
