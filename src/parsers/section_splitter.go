package parsers

import (
	"github.com/username/lotledger/backend/src/logger"
	"github.com/username/lotledger/backend/src/models"
)

// SplitSections partitions rows into sections. Every Header row opens a new
// section and closes the previous one, so a repeated header yields a second
// section of the same name. Rows before the first header, or whose section
// name differs from the open section, are dropped and recorded as
// unattributed.
func SplitSections(rows []models.RawRow, diag *models.Diagnostics) []models.Section {
	var sections []models.Section
	var current *models.Section

	flush := func() {
		if current != nil {
			sections = append(sections, *current)
			current = nil
		}
	}

	for _, row := range rows {
		name := row.SectionName()
		if row.Kind() == models.RowKindHeader {
			flush()
			current = &models.Section{Name: name, Rows: []models.RawRow{row}}
			continue
		}
		if current == nil || name != current.Name {
			open := ""
			if current != nil {
				open = current.Name
			}
			logger.L.Warn("Row outside of its section discarded", "line", row.Line, "section", name, "openSection", open)
			diag.Recordf(models.IssueUnattributed, name, row, "row for section %q found while %q was open", name, open)
			continue
		}
		current.Rows = append(current.Rows, row)
	}
	flush()

	return sections
}
