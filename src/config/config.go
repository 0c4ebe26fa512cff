package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"github.com/username/lotledger/backend/src/security/validation"
)

// ErrInvalidConfig is returned for any configuration that must stop start-up.
var ErrInvalidConfig = errors.New("invalid configuration")

type AppConfig struct {
	Port         string `envconfig:"PORT" default:"8080"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"./lotledger.db"`

	RateStore     string `envconfig:"RATE_STORE" default:"sqlite" validate:"oneof=sqlite redis"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0" validate:"gte=0"`

	RateDataPath    string `envconfig:"RATE_DATA_PATH" required:"true" validate:"required"`
	CountryDataPath string `envconfig:"COUNTRY_DATA_PATH" default:"data/country.json"`

	LocalCurrency    string            `envconfig:"LOCAL_CURRENCY" default:"TRY" validate:"len=3"`
	CurrencySeries   map[string]string `envconfig:"CURRENCY_SERIES" default:"USD:TP.DK.USD.S.YTL,EUR:TP.DK.EUR.S.YTL" validate:"min=1"`
	IndexSeries      string            `envconfig:"INDEX_SERIES" default:"TP.TUFE1YI.T1" validate:"required"`
	FallbackDays     int               `envconfig:"FALLBACK_DAYS" default:"10" validate:"gte=0,lte=31"`
	NegativeCacheTTL time.Duration     `envconfig:"NEGATIVE_CACHE_TTL" default:"1h"`

	IndexationThreshold decimal.Decimal `envconfig:"INDEXATION_THRESHOLD" default:"10"`
	OptionMultiplier    decimal.Decimal `envconfig:"OPTION_MULTIPLIER" default:"100"`
	TaxRate             decimal.Decimal `envconfig:"TAX_RATE" default:"0.15"`

	// Degraded-mode constants stay unset unless an operator opts in.
	DegradedExchangeRate string `envconfig:"DEGRADED_EXCHANGE_RATE"`
	DegradedIndexValue   string `envconfig:"DEGRADED_INDEX_VALUE"`

	StatementColumns   int           `envconfig:"STATEMENT_COLUMNS" default:"17" validate:"gte=8"`
	StatementTimeout   time.Duration `envconfig:"STATEMENT_TIMEOUT" default:"2m"`
	ReportCacheTTL     time.Duration `envconfig:"REPORT_CACHE_TTL" default:"30m"`
	MaxUploadSizeBytes int64         `envconfig:"MAX_UPLOAD_SIZE_BYTES" default:"10485760" validate:"gt=0"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`
	RateLimitRPS   float64  `envconfig:"RATE_LIMIT_RPS" default:"10" validate:"gt=0"`
	RateLimitBurst int      `envconfig:"RATE_LIMIT_BURST" default:"30" validate:"gt=0"`
	UploadsPerMin  int      `envconfig:"UPLOADS_PER_MINUTE" default:"20" validate:"gt=0"`
}

// Load reads an optional .env file, decodes the environment and validates
// the result. Any error it returns is fatal for the process.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found or error loading .env file. Relying on OS environment variables and defaults.")
	} else {
		log.Println(".env file loaded successfully.")
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, RateStore=%s, RateData=%s, Series=%d, FallbackDays=%d",
		cfg.Port, cfg.LogLevel, cfg.RateStore, cfg.RateDataPath, len(cfg.CurrencySeries), cfg.FallbackDays)
	return &cfg, nil
}

func (c *AppConfig) normalize() {
	c.LocalCurrency = strings.ToUpper(strings.TrimSpace(c.LocalCurrency))
	series := make(map[string]string, len(c.CurrencySeries))
	for ccy, id := range c.CurrencySeries {
		ccy = strings.ToUpper(strings.TrimSpace(ccy))
		id = strings.TrimSpace(id)
		if ccy != "" && id != "" {
			series[ccy] = id
		}
	}
	c.CurrencySeries = series
	c.RateStore = strings.ToLower(strings.TrimSpace(c.RateStore))
}

// Validate checks ranges and enums and parses the degraded-mode constants.
func (c *AppConfig) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.IndexationThreshold.IsNegative() {
		return fmt.Errorf("%w: INDEXATION_THRESHOLD must not be negative", ErrInvalidConfig)
	}
	if !c.OptionMultiplier.IsPositive() {
		return fmt.Errorf("%w: OPTION_MULTIPLIER must be positive", ErrInvalidConfig)
	}
	if _, err := c.DegradedRate(); err != nil {
		return err
	}
	if _, err := c.DegradedIndex(); err != nil {
		return err
	}
	return nil
}

// DegradedRate returns the configured degraded exchange rate, if any.
func (c *AppConfig) DegradedRate() (decimal.NullDecimal, error) {
	return parseOptionalDecimal("DEGRADED_EXCHANGE_RATE", c.DegradedExchangeRate)
}

// DegradedIndex returns the configured degraded index value, if any.
func (c *AppConfig) DegradedIndex() (decimal.NullDecimal, error) {
	return parseOptionalDecimal("DEGRADED_INDEX_VALUE", c.DegradedIndexValue)
}

func parseOptionalDecimal(key, raw string) (decimal.NullDecimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, key, raw)
	}
	if !d.IsPositive() {
		return decimal.NullDecimal{}, fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, key)
	}
	return decimal.NewNullDecimal(d), nil
}
