package ibkr

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/username/lotledger/backend/src/logger"
	"github.com/username/lotledger/backend/src/models"
	"github.com/username/lotledger/backend/src/utils"
)

type assemblyState int

const (
	stateNoOrder assemblyState = iota
	stateInOrder
	stateInTrade
)

func (s assemblyState) String() string {
	switch s {
	case stateNoOrder:
		return "NoOrder"
	case stateInOrder:
		return "InOrder"
	case stateInTrade:
		return "InTrade"
	default:
		return fmt.Sprintf("assemblyState(%d)", int(s))
	}
}

// HierarchyAssembler rebuilds Order → Trade → ClosedLot trees from the flat
// rows of a Trades section.
//
// Transitions:
//
//	Order row      any state         → InOrder (new current order)
//	Trade row      NoOrder           → NoOrder (trade dropped, warning)
//	Trade row      InOrder, InTrade  → InTrade (trade attached to current order)
//	ClosedLot row  InTrade           → InTrade (lot attached to current trade)
//	ClosedLot row  NoOrder, InOrder  → unchanged (lot dropped, warning)
//
// A row that fails to parse leaves no current record at its level: a bad
// Order row moves to NoOrder and a bad Trade row to InOrder, so later lots are
// never attached to the wrong parent.
type HierarchyAssembler struct {
	diag *models.Diagnostics

	cols    columnMap
	section string
	state   assemblyState
	order   *models.Order
	trade   *models.Trade
	orders  []*models.Order
}

// NewHierarchyAssembler returns an assembler that records issues in diag.
func NewHierarchyAssembler(diag *models.Diagnostics) *HierarchyAssembler {
	return &HierarchyAssembler{diag: diag}
}

// Assemble walks one Trades section and returns its orders in statement
// order. State does not carry over between sections.
func (a *HierarchyAssembler) Assemble(section models.Section) []*models.Order {
	a.cols = newColumnMap(section.Header(), tradesLayout)
	a.section = section.Name
	a.state = stateNoOrder
	a.order, a.trade, a.orders = nil, nil, nil

	for _, row := range section.Body() {
		a.step(row)
	}
	a.closeTrade()

	logger.L.Debug("Trades section assembled", "line", section.Header().Line, "orders", len(a.orders))
	return a.orders
}

func (a *HierarchyAssembler) step(row models.RawRow) {
	switch row.Kind() {
	case models.RowKindData:
	case models.RowKindSubTotal, models.RowKindTotal, models.RowKindHeader:
		return
	default:
		a.unattributed(row, "unrecognized row kind %q", row.Kind())
		return
	}

	if isForex(a.cols.get(row, colAssetCategory)) {
		logger.L.Debug("Skipping forex trades row", "line", row.Line)
		return
	}

	switch discriminator := a.cols.get(row, colDiscriminator); discriminator {
	case models.DiscriminatorOrder:
		a.onOrder(row)
	case models.DiscriminatorTrade:
		a.onTrade(row)
	case models.DiscriminatorClosedLot:
		a.onClosedLot(row)
	default:
		a.unattributed(row, "unrecognized discriminator %q", discriminator)
	}
}

func (a *HierarchyAssembler) onOrder(row models.RawRow) {
	a.closeTrade()
	order, err := a.parseOrder(row)
	if err != nil {
		a.parseFailure(row, "order", err)
		a.order = nil
		a.state = stateNoOrder
		return
	}
	a.orders = append(a.orders, order)
	a.order = order
	a.state = stateInOrder
}

func (a *HierarchyAssembler) onTrade(row models.RawRow) {
	a.closeTrade()
	if a.state == stateNoOrder {
		a.structural(row, "trade without an enclosing order dropped")
		return
	}
	trade, err := a.parseTrade(row)
	if err != nil {
		a.parseFailure(row, "trade", err)
		a.state = stateInOrder
		return
	}
	if trade.Symbol != a.order.Symbol {
		a.structural(row, "trade symbol %q differs from order symbol %q", trade.Symbol, a.order.Symbol)
	}
	a.order.AddTrade(trade)
	a.trade = trade
	a.state = stateInTrade
}

func (a *HierarchyAssembler) onClosedLot(row models.RawRow) {
	if a.state != stateInTrade {
		a.structural(row, "closed lot without a current trade dropped (state %s)", a.state)
		return
	}
	lot, err := a.parseClosedLot(row)
	if err != nil {
		a.parseFailure(row, "closed lot", err)
		return
	}
	a.trade.AddLot(lot)
}

// closeTrade finishes the current trade and checks that its lots cover the
// traded quantity.
func (a *HierarchyAssembler) closeTrade() {
	t := a.trade
	a.trade = nil
	if a.state == stateInTrade {
		a.state = stateInOrder
	}
	if t == nil || len(t.Lots) == 0 {
		return
	}
	if lotQty, tradeQty := t.LotQuantity(), t.Quantity.Abs(); !lotQty.Equal(tradeQty) {
		a.diag.Record(models.Issue{
			Kind:    models.IssueStructural,
			Section: a.section,
			Line:    t.Line,
			Message: fmt.Sprintf("closed lot quantities of %s sum to %s, trade quantity is %s", t.Symbol, lotQty, tradeQty),
		})
		logger.L.Warn("Closed lot quantities do not match trade quantity",
			"symbol", t.Symbol, "line", t.Line, "lotQuantity", lotQty.String(), "tradeQuantity", tradeQty.String())
	}
}

func (a *HierarchyAssembler) parseOrder(row models.RawRow) (*models.Order, error) {
	symbol := a.cols.get(row, colSymbol)
	if symbol == "" {
		return nil, fmt.Errorf("missing symbol")
	}
	qty, err := utils.ParseAmount(a.cols.get(row, colQuantity))
	if err != nil {
		return nil, fmt.Errorf("quantity: %w", err)
	}
	return &models.Order{
		Symbol:   symbol,
		Currency: a.cols.get(row, colCurrency),
		Quantity: qty,
		IsOption: isOption(a.cols.get(row, colAssetCategory)),
		Line:     row.Line,
	}, nil
}

func (a *HierarchyAssembler) parseTrade(row models.RawRow) (*models.Trade, error) {
	symbol := a.cols.get(row, colSymbol)
	if symbol == "" {
		return nil, fmt.Errorf("missing symbol")
	}
	executedAt, err := utils.ParseStatementDate(a.cols.get(row, colDateTime))
	if err != nil {
		return nil, fmt.Errorf("date/time: %w", err)
	}
	qty, err := utils.ParseAmount(a.cols.get(row, colQuantity))
	if err != nil {
		return nil, fmt.Errorf("quantity: %w", err)
	}
	price, err := utils.ParseAmount(a.cols.get(row, colTradePrice))
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}
	t := &models.Trade{
		Symbol:     symbol,
		Currency:   a.cols.get(row, colCurrency),
		ExecutedAt: executedAt,
		Quantity:   qty,
		Price:      price,
		Code:       a.cols.get(row, colCode),
		IsOption:   isOption(a.cols.get(row, colAssetCategory)),
		Line:       row.Line,
	}
	if t.Proceeds, err = a.optionalAmount(row, colProceeds); err != nil {
		return nil, err
	}
	if t.Commission, err = a.optionalAmount(row, colCommission); err != nil {
		return nil, err
	}
	if t.Basis, err = a.optionalAmount(row, colBasis); err != nil {
		return nil, err
	}
	if t.Realized, err = a.optionalAmount(row, colRealized); err != nil {
		return nil, err
	}
	return t, nil
}

func (a *HierarchyAssembler) parseClosedLot(row models.RawRow) (*models.ClosedLot, error) {
	acquiredAt, err := utils.ParseStatementDate(a.cols.get(row, colDateTime))
	if err != nil {
		return nil, fmt.Errorf("acquisition date: %w", err)
	}
	qty, err := utils.ParseAmount(a.cols.get(row, colQuantity))
	if err != nil {
		return nil, fmt.Errorf("quantity: %w", err)
	}
	if qty.IsZero() {
		return nil, fmt.Errorf("quantity is zero")
	}
	basis, err := a.optionalAmount(row, colBasis)
	if err != nil {
		return nil, err
	}
	realized, err := a.optionalAmount(row, colRealized)
	if err != nil {
		return nil, err
	}

	// A lot without a unit price is still usable when its basis is known.
	price, err := a.optionalAmount(row, colTradePrice)
	if err != nil {
		return nil, err
	}
	if price.IsZero() && basis.IsZero() {
		return nil, fmt.Errorf("neither price nor basis given")
	}

	return &models.ClosedLot{
		Quantity:   qty,
		AcquiredAt: acquiredAt,
		Price:      price,
		Basis:      basis,
		Realized:   realized,
		Line:       row.Line,
	}, nil
}

func (a *HierarchyAssembler) optionalAmount(row models.RawRow, name string) (decimal.Decimal, error) {
	d, err := utils.ParseOptionalAmount(a.cols.get(row, name))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}

func (a *HierarchyAssembler) parseFailure(row models.RawRow, what string, err error) {
	logger.L.Error("Skipping unparseable trades row", "kind", what, "line", row.Line, "row", row.Cells, "error", err)
	a.diag.Recordf(models.IssueParse, a.section, row, "%s row: %v", what, err)
}

func (a *HierarchyAssembler) structural(row models.RawRow, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	logger.L.Warn("Trades structure anomaly", "line", row.Line, "message", msg, "row", row.Cells)
	a.diag.Recordf(models.IssueStructural, a.section, row, "%s", msg)
}

func (a *HierarchyAssembler) unattributed(row models.RawRow, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	logger.L.Warn("Trades row not attributed", "line", row.Line, "message", msg)
	a.diag.Recordf(models.IssueUnattributed, a.section, row, "%s", msg)
}

func isOption(assetCategory string) bool {
	return strings.Contains(assetCategory, "Option")
}

func isForex(assetCategory string) bool {
	return strings.EqualFold(strings.TrimSpace(assetCategory), "Forex")
}
