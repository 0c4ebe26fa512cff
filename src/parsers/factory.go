package parsers

import (
	"fmt"
	"strings"

	"github.com/username/lotledger/backend/src/models"
	"github.com/username/lotledger/backend/src/parsers/ibkr"
	"github.com/username/lotledger/backend/src/utils"
)

// OrderAssembler rebuilds the order hierarchy of one trades section.
type OrderAssembler interface {
	Assemble(section models.Section) []*models.Order
}

// CashSectionParser parses fee, dividend and withholding tax sections. ok is
// false when the section is not one it understands.
type CashSectionParser interface {
	Parse(section models.Section, diag *models.Diagnostics) (records []models.CashRecord, ok bool)
}

// BrokerParsers bundles the section parsers for one broker format.
type BrokerParsers struct {
	TradesSection string
	NewAssembler  func(diag *models.Diagnostics) OrderAssembler
	Cash          CashSectionParser
}

// GetParsers returns the parsers for source. An empty source means IBKR.
func GetParsers(source string, countries *utils.CountryDirectory) (*BrokerParsers, error) {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "", "ibkr":
		return &BrokerParsers{
			TradesSection: models.SectionTrades,
			NewAssembler: func(diag *models.Diagnostics) OrderAssembler {
				return ibkr.NewHierarchyAssembler(diag)
			},
			Cash: ibkr.NewCashParser(countries),
		}, nil
	default:
		return nil, fmt.Errorf("no parser available for source: %s", source)
	}
}
