package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/lotledger/backend/src/logger"
)

const (
	evdsDateKey      = "Tarih"
	evdsDailyLayout  = "02-01-2006"
	evdsMonthLayout  = "2006-1"
	evdsMonthLayout2 = "2006-01"
)

// HistoricalRates serves exchange rates and index values from an EVDS JSON
// export. Items carry a "Tarih" date and one field per series, named after
// the series id with '.' replaced by '_'. Monthly items answer every day of
// their month.
type HistoricalRates struct {
	daily   map[string]decimal.Decimal
	monthly map[string]decimal.Decimal
}

type evdsExport struct {
	Items []map[string]any `json:"items"`
}

// LoadHistoricalRates loads rates from the specified file path.
// This should be called once from main.go after config is loaded.
func LoadHistoricalRates(filePath string) (*HistoricalRates, error) {
	logger.L.Info("Loading historical rates", "path", filePath)
	file, err := os.Open(filePath)
	if err != nil {
		logger.L.Error("Error reading historical rate file", "path", filePath, "error", err)
		return nil, fmt.Errorf("error reading historical rate file '%s': %w", filePath, err)
	}
	defer file.Close()

	rates, err := ParseHistoricalRates(file)
	if err != nil {
		logger.L.Error("Error unmarshalling historical rates", "path", filePath, "error", err)
		return nil, fmt.Errorf("error unmarshalling historical rates from '%s': %w", filePath, err)
	}
	logger.L.Info("Historical rates loaded successfully.", "path", filePath, "observationCount", rates.Len())
	return rates, nil
}

// ParseHistoricalRates decodes an EVDS export. Empty and null observations are
// skipped; an unparseable date or value is an error.
func ParseHistoricalRates(r io.Reader) (*HistoricalRates, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var export evdsExport
	if err := dec.Decode(&export); err != nil {
		return nil, err
	}

	h := &HistoricalRates{
		daily:   make(map[string]decimal.Decimal),
		monthly: make(map[string]decimal.Decimal),
	}
	for i, item := range export.Items {
		rawDate, _ := item[evdsDateKey].(string)
		target, suffix, err := h.targetFor(rawDate)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		for field, raw := range item {
			if !strings.HasPrefix(field, "TP_") {
				continue
			}
			value, ok, err := observationValue(raw)
			if err != nil {
				return nil, fmt.Errorf("item %d (%s) field %s: %w", i, rawDate, field, err)
			}
			if ok {
				target[field+"|"+suffix] = value
			}
		}
	}
	return h, nil
}

func (h *HistoricalRates) targetFor(rawDate string) (map[string]decimal.Decimal, string, error) {
	rawDate = strings.TrimSpace(rawDate)
	if d, err := time.Parse(evdsDailyLayout, rawDate); err == nil {
		return h.daily, d.Format(time.DateOnly), nil
	}
	for _, layout := range []string{evdsMonthLayout, evdsMonthLayout2} {
		if d, err := time.Parse(layout, rawDate); err == nil {
			return h.monthly, d.Format("2006-01"), nil
		}
	}
	return nil, "", fmt.Errorf("unrecognized date %q", rawDate)
}

func observationValue(raw any) (decimal.Decimal, bool, error) {
	var s string
	switch v := raw.(type) {
	case nil:
		return decimal.Zero, false, nil
	case json.Number:
		s = v.String()
	case string:
		s = strings.TrimSpace(v)
	default:
		return decimal.Zero, false, fmt.Errorf("unexpected value type %T", raw)
	}
	if s == "" || s == "ND" {
		return decimal.Zero, false, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, err
	}
	return d, true, nil
}

// Len returns the number of observations held.
func (h *HistoricalRates) Len() int {
	return len(h.daily) + len(h.monthly)
}

// FetchRate returns the exchange rate published for series on date.
func (h *HistoricalRates) FetchRate(ctx context.Context, series string, date time.Time) (decimal.Decimal, bool, error) {
	return h.lookup(ctx, series, date)
}

// FetchIndex returns the index value for series on date.
func (h *HistoricalRates) FetchIndex(ctx context.Context, series string, date time.Time) (decimal.Decimal, bool, error) {
	return h.lookup(ctx, series, date)
}

func (h *HistoricalRates) lookup(ctx context.Context, series string, date time.Time) (decimal.Decimal, bool, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, false, err
	}
	field := strings.ReplaceAll(series, ".", "_")
	if v, ok := h.daily[field+"|"+date.Format(time.DateOnly)]; ok {
		return v, true, nil
	}
	if v, ok := h.monthly[field+"|"+date.Format("2006-01")]; ok {
		return v, true, nil
	}
	return decimal.Zero, false, nil
}
