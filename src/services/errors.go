package services

import "errors"

var (
	ErrParsingFailed  = errors.New("statement parsing failed")
	ErrEmptyStatement = errors.New("statement contains no sections")
	ErrReportNotFound = errors.New("report not found")

	// ErrRateNotFound means no value existed inside the fallback window.
	ErrRateNotFound = errors.New("rate not found within fallback window")
	// ErrUnknownCurrency means no exchange-rate series is configured for a currency.
	ErrUnknownCurrency = errors.New("no exchange rate series configured for currency")
)
