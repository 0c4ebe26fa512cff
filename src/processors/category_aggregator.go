package processors

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/username/lotledger/backend/src/models"
)

// ErrUnknownCategory is returned by Attribute for a category outside
// models.AllCategories.
var ErrUnknownCategory = errors.New("unknown tax category")

// CategoryAggregator keeps running totals per tax category. Totals only grow;
// there is no way to take a record back out.
type CategoryAggregator struct {
	mu     sync.Mutex
	totals models.CategoryTotals
}

func NewCategoryAggregator() *CategoryAggregator {
	totals := make(models.CategoryTotals, len(models.AllCategories))
	for _, c := range models.AllCategories {
		totals[c] = models.Totals{TradingByCurrency: map[string]decimal.Decimal{}}
	}
	return &CategoryAggregator{totals: totals}
}

// Attribute adds record to category.
func (a *CategoryAggregator) Attribute(category models.Category, record models.Attributable) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.totals[category]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	amount := record.TradingAmount()
	ccy := strings.ToUpper(record.TradingCurrency())

	t.Trading = t.Trading.Add(amount)
	t.TradingByCurrency[ccy] = t.TradingByCurrency[ccy].Add(amount)
	t.Records++
	if local := record.LocalAmount(); local.Valid {
		t.Local = t.Local.Add(local.Decimal)
	} else {
		t.Unresolved++
	}
	a.totals[category] = t
	return nil
}

// Add attributes record to the category implied by its type: disposals by
// whether they are options, cash records by their kind.
func (a *CategoryAggregator) Add(record models.Attributable) error {
	category, err := CategoryOf(record)
	if err != nil {
		return err
	}
	return a.Attribute(category, record)
}

// CategoryOf maps a record to its tax category.
func CategoryOf(record models.Attributable) (models.Category, error) {
	switch r := record.(type) {
	case *models.MatchedDisposal:
		if r.IsOption {
			return models.CategoryOption, nil
		}
		return models.CategoryEquity, nil
	case *models.CashRecord:
		switch r.Kind {
		case models.CashDividend:
			return models.CategoryDividend, nil
		case models.CashWithholdingTax:
			return models.CategoryWithholdingTax, nil
		case models.CashFee:
			return models.CategoryFee, nil
		}
		return "", fmt.Errorf("%w: cash kind %q", ErrUnknownCategory, r.Kind)
	default:
		return "", fmt.Errorf("%w: record type %T", ErrUnknownCategory, record)
	}
}

// Totals returns a copy of the current totals.
func (a *CategoryAggregator) Totals() models.CategoryTotals {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(models.CategoryTotals, len(a.totals))
	for c, t := range a.totals {
		t.TradingByCurrency = maps.Clone(t.TradingByCurrency)
		out[c] = t
	}
	return out
}
