// Package app wires configuration, storage and services into one App shared
// by cmd/folio-server and cmd/folio.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/services/fx"
	"github.com/bobmcallan/folio/internal/services/portfolio"
	"github.com/bobmcallan/folio/internal/services/pricing"
	"github.com/bobmcallan/folio/internal/services/trade"
	"github.com/bobmcallan/folio/internal/storage"
)

// App holds all initialized services and storage.
type App struct {
	Config           *common.Config
	Logger           *common.Logger
	Storage          interfaces.StorageManager
	Prices           *pricing.Resolver
	Unifier          *fx.Unifier
	PortfolioService interfaces.PortfolioService
	TradeService     interfaces.TradeService
	StartupTime      time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// ResolveConfigPath returns configPath, else FOLIO_CONFIG, else folio.toml
// next to the binary, else config/folio.toml.
func ResolveConfigPath(configPath string) string {
	if configPath == "" {
		configPath = os.Getenv("FOLIO_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "folio.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/folio.toml" // fallback for development
		}
	}
	return configPath
}

// NewApp loads configuration, connects storage and builds the services.
// configPath may be empty, in which case ResolveConfigPath decides.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	config, err := common.LoadConfig(ResolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve relative log file path to binary directory
	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(getBinaryDir(), config.Logging.FilePath)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	storageManager, err := storage.NewStorageManager(context.Background(), logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a := NewAppWithStorage(config, logger, storageManager)
	a.StartupTime = startupStart

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// NewAppWithStorage builds the services over an existing storage manager.
func NewAppWithStorage(config *common.Config, logger *common.Logger, storageManager interfaces.StorageManager) *App {
	prices := pricing.NewResolver(storageManager.PriceStore(), config.Engine.GetPriceCacheTTL(), logger)
	unifier := fx.NewUnifier(storageManager.RateStore(), config.FX.BaseCurrency, logger)

	portfolioService := portfolio.NewService(storageManager, prices, unifier, portfolio.Options{
		ReportingCurrency: config.ReportingCurrency,
		CacheTTL:          config.Engine.GetCacheTTL(),
		MaxDays:           config.Engine.MaxDays,
	}, logger)
	tradeService := trade.NewService(storageManager, logger)

	return &App{
		Config:           config,
		Logger:           logger,
		Storage:          storageManager,
		Prices:           prices,
		Unifier:          unifier,
		PortfolioService: portfolioService,
		TradeService:     tradeService,
		StartupTime:      time.Now(),
	}
}

// Close releases all resources held by the App.
func (a *App) Close() {
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage close failed")
		}
		a.Storage = nil
	}
}
