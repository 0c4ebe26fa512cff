package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/username/lotledger/backend/src/logger"
)

type CountryInfo struct {
	Country string `json:"country"`
	Alpha2  string `json:"alpha2"`
	Alpha3  string `json:"alpha3"`
	Numeric string `json:"numeric"`
}

// CountryDirectory resolves the issuer country encoded in an ISIN prefix.
// A nil directory still answers with the bare two-letter code.
type CountryDirectory struct {
	byAlpha2 map[string]CountryInfo
}

// LoadCountryDirectory decodes a JSON array of CountryInfo.
func LoadCountryDirectory(r io.Reader) (*CountryDirectory, error) {
	var countries []CountryInfo
	if err := json.NewDecoder(r).Decode(&countries); err != nil {
		return nil, fmt.Errorf("failed to decode country data: %w", err)
	}
	dir := &CountryDirectory{byAlpha2: make(map[string]CountryInfo, len(countries))}
	for _, c := range countries {
		dir.byAlpha2[strings.ToUpper(c.Alpha2)] = c
	}
	return dir, nil
}

// LoadCountryDirectoryFile is LoadCountryDirectory for a file path.
func LoadCountryDirectoryFile(filePath string) (*CountryDirectory, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read country data file '%s': %w", filePath, err)
	}
	defer f.Close()
	dir, err := LoadCountryDirectory(f)
	if err != nil {
		return nil, err
	}
	logger.L.Info("Country data loaded successfully.", "path", filePath, "countryCount", len(dir.byAlpha2))
	return dir, nil
}

// CountryForISIN returns the country name for the ISIN prefix, or the
// two-letter prefix when it is not in the directory.
func (d *CountryDirectory) CountryForISIN(isin string) string {
	if len(isin) < 2 {
		return ""
	}
	alpha2 := strings.ToUpper(isin[:2])
	if d == nil {
		return alpha2
	}
	if info, ok := d.byAlpha2[alpha2]; ok && info.Country != "" {
		return info.Country
	}
	return alpha2
}

var isinPattern = regexp.MustCompile(`\(([A-Z]{2}[A-Z0-9]{9}[0-9])\)`)

// ExtractSymbolAndISIN splits a dividend style description such as
// "AAPL(US0378331005) Cash Dividend USD 0.24 per Share" into its symbol and ISIN.
func ExtractSymbolAndISIN(description string) (symbol, isin string) {
	description = strings.TrimSpace(description)
	if i := strings.Index(description, "("); i >= 0 {
		symbol = strings.TrimSpace(description[:i])
	} else if fields := strings.Fields(description); len(fields) > 0 {
		symbol = fields[0]
	}
	if m := isinPattern.FindStringSubmatch(description); m != nil {
		isin = m[1]
	}
	return symbol, isin
}
