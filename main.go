package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/username/lotledger/backend/src/config"
	"github.com/username/lotledger/backend/src/database"
	"github.com/username/lotledger/backend/src/handlers"
	"github.com/username/lotledger/backend/src/logger"
	"github.com/username/lotledger/backend/src/processors"
	"github.com/username/lotledger/backend/src/services"
	"github.com/username/lotledger/backend/src/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}
	logger.InitLogger(cfg.LogLevel)
	logger.L.Info("Lotledger backend server starting...")

	if err := run(cfg); err != nil {
		logger.L.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig) error {
	logger.L.Info("Initializing data loaders...")
	rates, err := processors.LoadHistoricalRates(cfg.RateDataPath)
	if err != nil {
		return fmt.Errorf("loading historical rates: %w", err)
	}
	logger.L.Info("Historical rates loaded", "path", cfg.RateDataPath, "points", rates.Len())

	countries, err := utils.LoadCountryDirectoryFile(cfg.CountryDataPath)
	if err != nil {
		logger.L.Warn("Country data unavailable, dividend countries fall back to ISIN prefixes", "path", cfg.CountryDataPath, "error", err)
	}

	store, closeStore, err := openRateStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	degradedRate, err := cfg.DegradedRate()
	if err != nil {
		return err
	}
	degradedIndex, err := cfg.DegradedIndex()
	if err != nil {
		return err
	}
	if degradedRate.Valid || degradedIndex.Valid {
		logger.L.Warn("Degraded-mode constants enabled, affected disposals will be flagged",
			"exchangeRate", cfg.DegradedExchangeRate, "indexValue", cfg.DegradedIndexValue)
	}

	logger.L.Info("Initializing services and handlers...")
	resolver := services.NewRateResolver(rates, store, services.ResolverOptions{
		LocalCurrency:  cfg.LocalCurrency,
		CurrencySeries: cfg.CurrencySeries,
		IndexSeries:    cfg.IndexSeries,
		FallbackDays:   cfg.FallbackDays,
		NegativeTTL:    cfg.NegativeCacheTTL,
		DegradedRate:   degradedRate,
		DegradedIndex:  degradedIndex,
	})
	matcher := processors.NewLotMatcher(resolver, processors.MatcherOptions{
		IndexationThreshold: cfg.IndexationThreshold,
		OptionMultiplier:    cfg.OptionMultiplier,
	})
	reportCache := cache.New(cfg.ReportCacheTTL, services.CacheCleanupInterval)
	statementService := services.NewStatementService(
		matcher,
		processors.NewCashConverter(resolver),
		processors.NewDividendProcessor(),
		reportCache,
		services.StatementOptions{
			Columns:   cfg.StatementColumns,
			Timeout:   cfg.StatementTimeout,
			ReportTTL: cfg.ReportCacheTTL,
			TaxRate:   cfg.TaxRate,
			Countries: countries,
		},
	)

	logger.L.Info("Configuring routes...")
	router := handlers.NewRouter(
		handlers.NewStatementHandler(statementService, cfg.MaxUploadSizeBytes),
		handlers.RouterOptions{
			AllowedOrigins: cfg.AllowedOrigins,
			RateLimitRPS:   cfg.RateLimitRPS,
			RateLimitBurst: cfg.RateLimitBurst,
			UploadsPerMin:  cfg.UploadsPerMin,
		},
	)

	serverAddr := ":" + cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.StatementTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.L.Info("Server starting", "address", serverAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.L.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.L.Info("Server stopped gracefully.")
	return nil
}

// openRateStore returns the persistent rate store named by RATE_STORE and a
// func that releases it.
func openRateStore(cfg *config.AppConfig) (services.RateStore, func(), error) {
	switch cfg.RateStore {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}
		logger.L.Info("Rate store initialized", "backend", "redis", "addr", cfg.RedisAddr)
		return database.NewRedisRateStore(client), func() { client.Close() }, nil
	default:
		logger.L.Info("Initializing database...", "path", cfg.DatabasePath)
		db, err := database.InitDB(cfg.DatabasePath)
		if err != nil {
			return nil, nil, err
		}
		logger.L.Info("Rate store initialized", "backend", "sqlite", "path", cfg.DatabasePath)
		return database.NewSQLiteRateStore(db), func() { db.Close() }, nil
	}
}
