package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/lotledger/backend/src/utils"
)

// SQLiteRateStore keeps resolved rate points in the rate_points table.
// Rows are write-once.
type SQLiteRateStore struct {
	db *sql.DB
}

func NewSQLiteRateStore(db *sql.DB) *SQLiteRateStore {
	return &SQLiteRateStore{db: db}
}

func (s *SQLiteRateStore) Get(ctx context.Context, series string, date time.Time) (decimal.Decimal, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM rate_points WHERE series = ? AND date = ?",
		series, utils.FormatDate(date),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("reading rate point %s@%s: %w", series, utils.FormatDate(date), err)
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("stored rate point %s@%s is not a decimal: %w", series, utils.FormatDate(date), err)
	}
	return value, true, nil
}

func (s *SQLiteRateStore) PutIfAbsent(ctx context.Context, series string, date time.Time, value decimal.Decimal) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO rate_points (series, date, value) VALUES (?, ?, ?)",
		series, utils.FormatDate(date), value.String(),
	)
	if err != nil {
		return false, fmt.Errorf("storing rate point %s@%s: %w", series, utils.FormatDate(date), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
