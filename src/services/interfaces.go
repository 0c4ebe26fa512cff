package services

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"
)

// RateProvider answers single-date lookups against the upstream data source.
// found is false when the source has no value for that date (weekend,
// holiday, not yet published); err is reserved for failures to ask.
type RateProvider interface {
	FetchRate(ctx context.Context, series string, date time.Time) (value decimal.Decimal, found bool, err error)
	FetchIndex(ctx context.Context, series string, date time.Time) (value decimal.Decimal, found bool, err error)
}

// RateStore is the persistent write-once cache behind the resolver.
// PutIfAbsent never overwrites an existing value; stored reports whether this
// call created the entry.
type RateStore interface {
	Get(ctx context.Context, series string, date time.Time) (value decimal.Decimal, found bool, err error)
	PutIfAbsent(ctx context.Context, series string, date time.Time, value decimal.Decimal) (stored bool, err error)
}

// StatementService runs the full statement pipeline and keeps recent reports.
type StatementService interface {
	ProcessStatement(ctx context.Context, r io.Reader, source string) (*StatementReport, error)
	GetReport(id string) (*StatementReport, error)
}
