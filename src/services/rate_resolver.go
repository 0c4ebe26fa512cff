package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/lotledger/backend/src/logger"
	"github.com/username/lotledger/backend/src/metrics"
	"github.com/username/lotledger/backend/src/models"
	"github.com/username/lotledger/backend/src/utils"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultFallbackDays = 10
	DefaultNegativeTTL  = time.Hour
)

// ResolverOptions configures a RateResolver.
type ResolverOptions struct {
	// LocalCurrency needs no conversion; its rate is always 1.
	LocalCurrency string
	// CurrencySeries maps a trading currency to its exchange-rate series id.
	CurrencySeries map[string]string
	IndexSeries    string
	// FallbackDays is how many calendar days past the requested date the
	// resolver may walk. Zero disables the walk.
	FallbackDays int
	// NegativeTTL is how long a "no data" answer is remembered. Zero or less
	// remembers it for the life of the resolver. Only found values are fetched
	// at most once per key; an expired negative entry is fetched again.
	NegativeTTL time.Duration
	// DegradedRate and DegradedIndex, when valid, are returned (flagged as
	// degraded) instead of ErrRateNotFound.
	DegradedRate  decimal.NullDecimal
	DegradedIndex decimal.NullDecimal
}

// RateResolver looks up exchange rates and index values by date. Values are
// cached per (series, date) in process and in an optional persistent store;
// concurrent lookups of one key share a single provider call.
type RateResolver struct {
	provider RateProvider
	store    RateStore
	memo     *cache.Cache
	group    singleflight.Group
	opts     ResolverOptions
}

type memoEntry struct {
	value decimal.Decimal
	found bool
}

// NewRateResolver builds a resolver. store may be nil.
func NewRateResolver(provider RateProvider, store RateStore, opts ResolverOptions) *RateResolver {
	series := make(map[string]string, len(opts.CurrencySeries))
	for ccy, id := range opts.CurrencySeries {
		series[strings.ToUpper(ccy)] = id
	}
	opts.CurrencySeries = series
	opts.LocalCurrency = strings.ToUpper(opts.LocalCurrency)
	if opts.FallbackDays < 0 {
		opts.FallbackDays = 0
	}
	return &RateResolver{
		provider: provider,
		store:    store,
		memo:     cache.New(cache.NoExpiration, 30*time.Minute),
		opts:     opts,
	}
}

// Rate returns the exchange rate from currency into the local currency on date.
func (r *RateResolver) Rate(ctx context.Context, currency string, date time.Time) (models.RatePoint, error) {
	ccy := strings.ToUpper(strings.TrimSpace(currency))
	day := utils.DateOnly(date)
	if ccy == r.opts.LocalCurrency {
		return models.RatePoint{
			Series:    ccy,
			Kind:      models.SeriesExchangeRate,
			Requested: day,
			Date:      day,
			Value:     decimal.NewFromInt(1),
		}, nil
	}
	series, ok := r.opts.CurrencySeries[ccy]
	if !ok {
		return models.RatePoint{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, currency)
	}
	return r.Resolve(ctx, models.SeriesExchangeRate, series, day)
}

// IndexValue returns the inflation index value on date.
func (r *RateResolver) IndexValue(ctx context.Context, date time.Time) (models.RatePoint, error) {
	return r.Resolve(ctx, models.SeriesIndex, r.opts.IndexSeries, date)
}

// Resolve looks up series on date and, when there is no value, on each
// following day up to the fallback window. It fails with ErrRateNotFound when
// nothing is found, unless a degraded constant is configured for kind.
func (r *RateResolver) Resolve(ctx context.Context, kind models.SeriesKind, series string, date time.Time) (models.RatePoint, error) {
	day := utils.DateOnly(date)
	var lastErr error

	for offset := 0; offset <= r.opts.FallbackDays; offset++ {
		candidate := day.AddDate(0, 0, offset)
		value, found, err := r.lookup(ctx, kind, series, candidate)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.RatePoint{}, fmt.Errorf("%w: %s on %s: %w", ErrRateNotFound, series, utils.FormatDate(day), ctxErr)
		}
		if err != nil {
			lastErr = err
			logger.L.Warn("Rate lookup failed, trying next day", "series", series, "date", utils.FormatDate(candidate), "error", err)
			continue
		}
		if found {
			metrics.FallbackWalkDays.WithLabelValues(string(kind)).Observe(float64(offset))
			if offset > 0 {
				logger.L.Debug("Rate found after fallback walk", "series", series, "requested", utils.FormatDate(day), "found", utils.FormatDate(candidate))
			}
			return models.RatePoint{Series: series, Kind: kind, Requested: day, Date: candidate, Value: value}, nil
		}
	}

	if degraded := r.degraded(kind); degraded.Valid {
		metrics.UnresolvedLookups.WithLabelValues(string(kind), "true").Inc()
		logger.L.Warn("No value within fallback window, using degraded-mode constant",
			"series", series, "date", utils.FormatDate(day), "days", r.opts.FallbackDays, "value", degraded.Decimal.String())
		return models.RatePoint{Series: series, Kind: kind, Requested: day, Date: day, Value: degraded.Decimal, Degraded: true}, nil
	}

	metrics.UnresolvedLookups.WithLabelValues(string(kind), "false").Inc()
	logger.L.Warn("No value within fallback window", "series", series, "date", utils.FormatDate(day), "days", r.opts.FallbackDays)
	if lastErr != nil {
		return models.RatePoint{}, fmt.Errorf("%w: %s on %s (+%d days), last error: %v", ErrRateNotFound, series, utils.FormatDate(day), r.opts.FallbackDays, lastErr)
	}
	return models.RatePoint{}, fmt.Errorf("%w: %s on %s (+%d days)", ErrRateNotFound, series, utils.FormatDate(day), r.opts.FallbackDays)
}

func (r *RateResolver) degraded(kind models.SeriesKind) decimal.NullDecimal {
	if kind == models.SeriesIndex {
		return r.opts.DegradedIndex
	}
	return r.opts.DegradedRate
}

func memoKey(series string, day time.Time) string {
	return series + "|" + utils.FormatDate(day)
}

// lookup answers one (series, day) key from the memo, the store, or a single
// shared provider call, in that order.
func (r *RateResolver) lookup(ctx context.Context, kind models.SeriesKind, series string, day time.Time) (decimal.Decimal, bool, error) {
	key := memoKey(series, day)
	if e, ok := r.memo.Get(key); ok {
		metrics.RateCacheLookups.WithLabelValues("memory", "hit").Inc()
		entry := e.(memoEntry)
		return entry.value, entry.found, nil
	}
	metrics.RateCacheLookups.WithLabelValues("memory", "miss").Inc()

	// The flight is shared, so one caller giving up must not fail the others.
	flightCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (interface{}, error) {
		// A caller that lost the race with a finished flight finds the memo filled.
		if e, ok := r.memo.Get(key); ok {
			return e.(memoEntry), nil
		}
		if entry, ok := r.fromStore(flightCtx, series, day); ok {
			r.memo.Set(key, entry, cache.NoExpiration)
			return entry, nil
		}

		value, found, err := r.fetch(flightCtx, kind, series, day)
		if err != nil {
			return nil, err
		}
		if !found {
			r.memo.Set(key, memoEntry{}, r.negativeTTL())
			return memoEntry{}, nil
		}

		entry := memoEntry{value: value, found: true}
		if r.store != nil {
			stored, err := r.store.PutIfAbsent(flightCtx, series, day, value)
			if err != nil {
				logger.L.Warn("Failed to persist rate", "series", series, "date", utils.FormatDate(day), "error", err)
			} else if !stored {
				// Another writer got there first; its value is the canonical one.
				if existing, ok := r.fromStore(flightCtx, series, day); ok {
					entry = existing
				}
			}
		}
		r.memo.Set(key, entry, cache.NoExpiration)
		return entry, nil
	})

	select {
	case <-ctx.Done():
		return decimal.Zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return decimal.Zero, false, res.Err
		}
		entry := res.Val.(memoEntry)
		return entry.value, entry.found, nil
	}
}

func (r *RateResolver) fromStore(ctx context.Context, series string, day time.Time) (memoEntry, bool) {
	if r.store == nil {
		return memoEntry{}, false
	}
	value, found, err := r.store.Get(ctx, series, day)
	if err != nil {
		logger.L.Warn("Rate store read failed", "series", series, "date", utils.FormatDate(day), "error", err)
		return memoEntry{}, false
	}
	if !found {
		metrics.RateCacheLookups.WithLabelValues("store", "miss").Inc()
		return memoEntry{}, false
	}
	metrics.RateCacheLookups.WithLabelValues("store", "hit").Inc()
	return memoEntry{value: value, found: true}, true
}

func (r *RateResolver) fetch(ctx context.Context, kind models.SeriesKind, series string, day time.Time) (decimal.Decimal, bool, error) {
	var (
		value decimal.Decimal
		found bool
		err   error
	)
	if kind == models.SeriesIndex {
		value, found, err = r.provider.FetchIndex(ctx, series, day)
	} else {
		value, found, err = r.provider.FetchRate(ctx, series, day)
	}
	switch {
	case err != nil:
		metrics.ProviderFetches.WithLabelValues(string(kind), "error").Inc()
		return decimal.Zero, false, fmt.Errorf("fetching %s on %s: %w", series, utils.FormatDate(day), err)
	case !found:
		metrics.ProviderFetches.WithLabelValues(string(kind), "absent").Inc()
	default:
		metrics.ProviderFetches.WithLabelValues(string(kind), "found").Inc()
	}
	return value, found, nil
}

func (r *RateResolver) negativeTTL() time.Duration {
	if r.opts.NegativeTTL <= 0 {
		return cache.NoExpiration
	}
	return r.opts.NegativeTTL
}
