package processors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/username/lotledger/backend/src/models"
	"github.com/username/lotledger/backend/src/utils"
)

var errNoValue = errors.New("no value")

// stubRates answers from fixed tables. Every date without an index entry gets
// the same index value, so indexing is neutral unless a test sets one.
type stubRates struct {
	rates map[string]decimal.Decimal
	index map[string]decimal.Decimal

	degradedRates bool
}

func newStubRates() *stubRates {
	return &stubRates{rates: map[string]decimal.Decimal{}, index: map[string]decimal.Decimal{}}
}

func (s *stubRates) withRate(ccy, date, value string) *stubRates {
	s.rates[ccy+"|"+date] = decimal.RequireFromString(value)
	return s
}

func (s *stubRates) withIndex(date, value string) *stubRates {
	s.index[date] = decimal.RequireFromString(value)
	return s
}

func (s *stubRates) Rate(_ context.Context, currency string, date time.Time) (models.RatePoint, error) {
	if currency == "TRY" {
		return models.RatePoint{Series: "TRY", Requested: date, Date: date, Value: decimal.NewFromInt(1)}, nil
	}
	v, ok := s.rates[currency+"|"+utils.FormatDate(date)]
	if !ok {
		return models.RatePoint{}, errNoValue
	}
	return models.RatePoint{Series: currency, Requested: date, Date: date, Value: v, Degraded: s.degradedRates}, nil
}

func (s *stubRates) IndexValue(_ context.Context, date time.Time) (models.RatePoint, error) {
	v, ok := s.index[utils.FormatDate(date)]
	if !ok {
		v = decimal.NewFromInt(1000)
	}
	return models.RatePoint{Kind: models.SeriesIndex, Requested: date, Date: date, Value: v}, nil
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(utils.DefaultDateFormat, s)
	require.NoError(t, err)
	return d
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got.String(), msgAndArgs)
}
