package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/lotledger/backend/src/models"
	"github.com/username/lotledger/backend/src/utils"
)

const (
	usdSeries   = "TP.DK.USD.S.YTL"
	indexSeries = "TP.TUFE1YI.T1"
)

// fakeProvider serves values from a map and counts calls per key.
type fakeProvider struct {
	mu     sync.Mutex
	values map[string]decimal.Decimal
	calls  map[string]int
	total  atomic.Int64
	delay  time.Duration
	err    error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{values: map[string]decimal.Decimal{}, calls: map[string]int{}}
}

func (p *fakeProvider) set(series, date, value string) {
	p.values[series+"|"+date] = decimal.RequireFromString(value)
}

func (p *fakeProvider) callsFor(series, date string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[series+"|"+date]
}

func (p *fakeProvider) fetch(ctx context.Context, series string, date time.Time) (decimal.Decimal, bool, error) {
	key := series + "|" + utils.FormatDate(date)
	p.total.Add(1)
	p.mu.Lock()
	p.calls[key]++
	p.mu.Unlock()
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return decimal.Zero, false, ctx.Err()
		}
	}
	if p.err != nil {
		return decimal.Zero, false, p.err
	}
	v, ok := p.values[key]
	return v, ok, nil
}

func (p *fakeProvider) FetchRate(ctx context.Context, series string, date time.Time) (decimal.Decimal, bool, error) {
	return p.fetch(ctx, series, date)
}

func (p *fakeProvider) FetchIndex(ctx context.Context, series string, date time.Time) (decimal.Decimal, bool, error) {
	return p.fetch(ctx, series, date)
}

// memStore is a write-once RateStore held in memory.
type memStore struct {
	mu     sync.Mutex
	values map[string]decimal.Decimal
	puts   int
}

func newMemStore() *memStore { return &memStore{values: map[string]decimal.Decimal{}} }

func (s *memStore) Get(_ context.Context, series string, date time.Time) (decimal.Decimal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[series+"|"+utils.FormatDate(date)]
	return v, ok, nil
}

func (s *memStore) PutIfAbsent(_ context.Context, series string, date time.Time, value decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	key := series + "|" + utils.FormatDate(date)
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = value
	return true, nil
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(utils.DefaultDateFormat, s)
	require.NoError(t, err)
	return d
}

func testResolver(p RateProvider, store RateStore, mutate ...func(*ResolverOptions)) *RateResolver {
	opts := ResolverOptions{
		LocalCurrency:  "TRY",
		CurrencySeries: map[string]string{"usd": usdSeries},
		IndexSeries:    indexSeries,
		FallbackDays:   DefaultFallbackDays,
		NegativeTTL:    DefaultNegativeTTL,
	}
	for _, m := range mutate {
		m(&opts)
	}
	return NewRateResolver(p, store, opts)
}

func TestRateResolver_CachesSuccessfulLookup(t *testing.T) {
	p := newFakeProvider()
	p.set(usdSeries, "2023-03-01", "18.90")
	r := testResolver(p, nil)
	ctx := context.Background()

	first, err := r.Rate(ctx, "USD", day(t, "2023-03-01"))
	require.NoError(t, err)
	second, err := r.Rate(ctx, "usd", day(t, "2023-03-01"))
	require.NoError(t, err)

	assert.True(t, first.Value.Equal(decimal.RequireFromString("18.90")))
	assert.Equal(t, first, second)
	assert.False(t, first.Walked())
	assert.Equal(t, 1, p.callsFor(usdSeries, "2023-03-01"))
}

func TestRateResolver_ConcurrentLookupsShareOneFetch(t *testing.T) {
	p := newFakeProvider()
	p.delay = 50 * time.Millisecond
	p.set(usdSeries, "2023-03-01", "18.90")
	r := testResolver(p, nil)

	var wg sync.WaitGroup
	results := make([]models.RatePoint, 20)
	errs := make([]error, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Rate(context.Background(), "USD", day(t, "2023-03-01"))
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.True(t, results[i].Value.Equal(decimal.RequireFromString("18.90")))
	}
	assert.Equal(t, 1, p.callsFor(usdSeries, "2023-03-01"))
}

func TestRateResolver_AbsentValuesExpireFoundValuesDoNot(t *testing.T) {
	p := newFakeProvider()
	r := testResolver(p, nil, func(o *ResolverOptions) {
		o.FallbackDays = 0
		o.NegativeTTL = 20 * time.Millisecond
	})
	ctx := context.Background()

	_, err := r.Rate(ctx, "USD", day(t, "2023-03-01"))
	require.ErrorIs(t, err, ErrRateNotFound)
	_, err = r.Rate(ctx, "USD", day(t, "2023-03-01"))
	require.ErrorIs(t, err, ErrRateNotFound)
	assert.Equal(t, 1, p.callsFor(usdSeries, "2023-03-01"))

	p.set(usdSeries, "2023-03-01", "18.90")
	time.Sleep(40 * time.Millisecond)
	point, err := r.Rate(ctx, "USD", day(t, "2023-03-01"))
	require.NoError(t, err)
	assert.True(t, point.Value.Equal(decimal.RequireFromString("18.90")))
	assert.Equal(t, 2, p.callsFor(usdSeries, "2023-03-01"))

	time.Sleep(40 * time.Millisecond)
	_, err = r.Rate(ctx, "USD", day(t, "2023-03-01"))
	require.NoError(t, err)
	assert.Equal(t, 2, p.callsFor(usdSeries, "2023-03-01"))
}

func TestRateResolver_WalksForwardOverGap(t *testing.T) {
	p := newFakeProvider()
	// Friday 2023-03-03 through Monday 2023-03-06 have no value.
	p.set(usdSeries, "2023-03-07", "19.00")
	r := testResolver(p, nil)

	point, err := r.Rate(context.Background(), "USD", day(t, "2023-03-03"))
	require.NoError(t, err)

	assert.Equal(t, day(t, "2023-03-03"), point.Requested)
	assert.Equal(t, day(t, "2023-03-07"), point.Date)
	assert.True(t, point.Walked())
	assert.False(t, point.Degraded)
	assert.EqualValues(t, 5, p.total.Load())

	// The gap days are remembered as absent.
	_, err = r.Rate(context.Background(), "USD", day(t, "2023-03-04"))
	require.NoError(t, err)
	assert.EqualValues(t, 5, p.total.Load())
}

func TestRateResolver_WindowIsInclusive(t *testing.T) {
	p := newFakeProvider()
	p.set(usdSeries, "2023-03-11", "19.00")
	r := testResolver(p, nil)

	point, err := r.Rate(context.Background(), "USD", day(t, "2023-03-01"))
	require.NoError(t, err)
	assert.Equal(t, day(t, "2023-03-11"), point.Date)
}

func TestRateResolver_UnresolvedBeyondWindow(t *testing.T) {
	p := newFakeProvider()
	p.set(usdSeries, "2023-03-12", "19.00")
	r := testResolver(p, nil)

	_, err := r.Rate(context.Background(), "USD", day(t, "2023-03-01"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateNotFound)
	assert.EqualValues(t, DefaultFallbackDays+1, p.total.Load())
}

func TestRateResolver_DegradedConstant(t *testing.T) {
	p := newFakeProvider()
	r := testResolver(p, nil, func(o *ResolverOptions) {
		o.FallbackDays = 2
		o.DegradedRate = decimal.NewNullDecimal(decimal.RequireFromString("20"))
		o.DegradedIndex = decimal.NewNullDecimal(decimal.RequireFromString("1000"))
	})

	rate, err := r.Rate(context.Background(), "USD", day(t, "2023-03-01"))
	require.NoError(t, err)
	assert.True(t, rate.Degraded)
	assert.True(t, rate.Value.Equal(decimal.NewFromInt(20)))

	index, err := r.IndexValue(context.Background(), day(t, "2023-03-01"))
	require.NoError(t, err)
	assert.True(t, index.Degraded)
	assert.Equal(t, models.SeriesIndex, index.Kind)
	assert.True(t, index.Value.Equal(decimal.NewFromInt(1000)))
}

func TestRateResolver_LocalAndUnknownCurrency(t *testing.T) {
	p := newFakeProvider()
	r := testResolver(p, nil)

	point, err := r.Rate(context.Background(), "try", day(t, "2023-03-01"))
	require.NoError(t, err)
	assert.True(t, point.Value.Equal(decimal.NewFromInt(1)))

	_, err = r.Rate(context.Background(), "GBP", day(t, "2023-03-01"))
	assert.ErrorIs(t, err, ErrUnknownCurrency)
	assert.Zero(t, p.total.Load())
}

func TestRateResolver_ProviderErrorsAreNotCached(t *testing.T) {
	p := newFakeProvider()
	p.err = errors.New("source unavailable")
	r := testResolver(p, nil, func(o *ResolverOptions) { o.FallbackDays = 0 })

	_, err := r.Rate(context.Background(), "USD", day(t, "2023-03-01"))
	require.ErrorIs(t, err, ErrRateNotFound)

	p.err = nil
	p.set(usdSeries, "2023-03-01", "18.90")
	point, err := r.Rate(context.Background(), "USD", day(t, "2023-03-01"))
	require.NoError(t, err)
	assert.True(t, point.Value.Equal(decimal.RequireFromString("18.90")))
	assert.Equal(t, 2, p.callsFor(usdSeries, "2023-03-01"))
}

func TestRateResolver_StoreWriteThroughAndReadBack(t *testing.T) {
	store := newMemStore()
	p := newFakeProvider()
	p.set(usdSeries, "2023-03-01", "18.90")

	_, err := testResolver(p, store).Rate(context.Background(), "USD", day(t, "2023-03-01"))
	require.NoError(t, err)
	assert.Equal(t, 1, store.puts)

	// A fresh resolver over the same store never reaches the provider.
	other := newFakeProvider()
	point, err := testResolver(other, store).Rate(context.Background(), "USD", day(t, "2023-03-01"))
	require.NoError(t, err)
	assert.True(t, point.Value.Equal(decimal.RequireFromString("18.90")))
	assert.Zero(t, other.total.Load())
}

func TestRateResolver_StoreKeepsFirstValue(t *testing.T) {
	store := newMemStore()
	_, err := store.PutIfAbsent(context.Background(), usdSeries, day(t, "2023-03-01"), decimal.RequireFromString("18.50"))
	require.NoError(t, err)

	// Simulate a writer racing in between our store read and our put.
	racing := &racingStore{memStore: store}
	p := newFakeProvider()
	p.set(usdSeries, "2023-03-01", "18.90")

	point, err := testResolver(p, racing).Rate(context.Background(), "USD", day(t, "2023-03-01"))
	require.NoError(t, err)
	assert.True(t, point.Value.Equal(decimal.RequireFromString("18.50")))
}

// racingStore hides existing values from the first Get.
type racingStore struct {
	*memStore
	gets int
}

func (s *racingStore) Get(ctx context.Context, series string, date time.Time) (decimal.Decimal, bool, error) {
	s.gets++
	if s.gets == 1 {
		return decimal.Zero, false, nil
	}
	return s.memStore.Get(ctx, series, date)
}

func TestRateResolver_CancelledContext(t *testing.T) {
	p := newFakeProvider()
	p.delay = time.Second
	p.set(usdSeries, "2023-03-01", "18.90")
	r := testResolver(p, nil, func(o *ResolverOptions) {
		o.DegradedRate = decimal.NewNullDecimal(decimal.NewFromInt(20))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Rate(ctx, "USD", day(t, "2023-03-01"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateNotFound)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateResolver_AbandonedFlightServesOtherCallers(t *testing.T) {
	p := newFakeProvider()
	p.delay = 100 * time.Millisecond
	p.set(usdSeries, "2023-03-01", "18.90")
	p.set(usdSeries, "2023-03-02", "19.10")
	r := testResolver(p, nil)

	short, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := r.Rate(short, "USD", day(t, "2023-03-01"))
		done <- err
	}()
	// Join the flight the short-lived caller started.
	time.Sleep(5 * time.Millisecond)
	point, err := r.Rate(context.Background(), "USD", day(t, "2023-03-01"))
	require.NoError(t, err)
	assert.Equal(t, day(t, "2023-03-01"), point.Date)
	assert.Equal(t, "18.9", point.Value.String())

	assert.ErrorIs(t, <-done, context.DeadlineExceeded)
	assert.Equal(t, 1, p.callsFor(usdSeries, "2023-03-01"))
	assert.Zero(t, p.callsFor(usdSeries, "2023-03-02"))
}
