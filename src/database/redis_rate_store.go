package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/username/lotledger/backend/src/utils"
)

// RedisRateStore shares resolved rate points between instances.
// Keys never expire since published rates do not change.
type RedisRateStore struct {
	client redis.UniversalClient
}

func NewRedisRateStore(client redis.UniversalClient) *RedisRateStore {
	return &RedisRateStore{client: client}
}

func rateKey(series string, date time.Time) string {
	return "rate:" + series + ":" + utils.FormatDate(date)
}

func (s *RedisRateStore) Get(ctx context.Context, series string, date time.Time) (decimal.Decimal, bool, error) {
	raw, err := s.client.Get(ctx, rateKey(series, date)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("reading %s: %w", rateKey(series, date), err)
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("stored value at %s is not a decimal: %w", rateKey(series, date), err)
	}
	return value, true, nil
}

func (s *RedisRateStore) PutIfAbsent(ctx context.Context, series string, date time.Time, value decimal.Decimal) (bool, error) {
	stored, err := s.client.SetNX(ctx, rateKey(series, date), value.String(), 0).Result()
	if err != nil {
		return false, fmt.Errorf("storing %s: %w", rateKey(series, date), err)
	}
	return stored, nil
}
