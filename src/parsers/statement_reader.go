package parsers

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/username/lotledger/backend/src/models"
)

// ErrMalformedStatement is returned when the input is not readable as CSV.
var ErrMalformedStatement = errors.New("malformed statement")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadStatement reads a CSV activity statement and normalizes every line to
// exactly columns cells. A columns value of zero or less keeps rows as read.
// Lines whose cells are all blank are dropped.
func ReadStatement(r io.Reader, columns int) ([]models.RawRow, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		if _, err := br.Discard(len(utf8BOM)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedStatement, err)
		}
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var rows []models.RawRow
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedStatement, err)
		}
		if isBlank(record) {
			continue
		}
		line, _ := cr.FieldPos(0)
		rows = append(rows, models.RawRow{Line: line, Cells: NormalizeRow(record, columns)})
	}
	return rows, nil
}

// NormalizeRow trims every cell and pads or truncates cells to columns.
func NormalizeRow(cells []string, columns int) []string {
	n := columns
	if n <= 0 {
		n = len(cells)
	}
	out := make([]string, n)
	for i := 0; i < n && i < len(cells); i++ {
		out[i] = strings.TrimSpace(cells[i])
	}
	return out
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
