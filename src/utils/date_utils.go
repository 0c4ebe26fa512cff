package utils

import (
	"fmt"
	"strings"
	"time"
)

// DefaultDateFormat is the layout used for cache keys and report output.
const DefaultDateFormat = "2006-01-02"

var statementDateLayouts = []string{
	"2006-01-02, 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02;150405",
	"2006-01-02, 15:04",
	DefaultDateFormat,
	"20060102",
}

// ParseStatementDate parses the date and date/time formats found in broker
// activity statements. The result is in UTC.
func ParseStatementDate(dateStr string) (time.Time, error) {
	s := strings.Trim(strings.TrimSpace(dateStr), "\"")
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range statementDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", dateStr)
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders t with DefaultDateFormat.
func FormatDate(t time.Time) string {
	return t.Format(DefaultDateFormat)
}
