// ====================================
// File: cmd/tui/main.go
// ====================================
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/blockchain/solbc"
	"github.com/rovshanmuradov/solana-copybot/internal/bot"
	"github.com/rovshanmuradov/solana-copybot/internal/config"
	"github.com/rovshanmuradov/solana-copybot/internal/export"
	"github.com/rovshanmuradov/solana-copybot/internal/pnl"
	"github.com/rovshanmuradov/solana-copybot/internal/router/jupiter"
	"github.com/rovshanmuradov/solana-copybot/internal/ui"
	logutil "github.com/rovshanmuradov/solana-copybot/internal/utils/logger"
)

// The dashboard is read-only: it shares storage with a running bot and never
// submits orders, so no private key is needed.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	refresh := flag.Duration("refresh", 5*time.Second, "dashboard refresh interval")
	exportDir := flag.String("export-dir", "exports", "directory for trade history exports")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logutil.DefaultConfig()
	logCfg.LogFile = "logs/tui.log"
	logCfg.Development = cfg.DebugLogging
	logCfg.FileOnly = true
	appLogger, err := logutil.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()
	logger := appLogger.Logger

	store, err := bot.OpenStorage(cfg.Storage.DSN, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.RunMigrations(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to migrate storage: %v\n", err)
		os.Exit(1)
	}

	prices := jupiter.NewClient(jupiter.Config{
		BaseURL:  cfg.Router.BaseURL,
		PriceURL: cfg.Router.PriceURL,
		APIKey:   cfg.Router.APIKey,
		Timeout:  cfg.Router.Timeout(),
		Retries:  cfg.Router.Retries,
	}, solbc.NewClient(cfg.RPCURL, logger), logger)

	dashboard := ui.NewDashboard(store, pnl.NewTracker(store, prices, logger), *refresh, logger)
	dashboard.EnableExport(export.NewExporter(logger), *exportDir)

	logger.Info("🖥️ Dashboard started", zap.Duration("refresh", *refresh))
	if _, err := tea.NewProgram(dashboard, tea.WithAltScreen()).Run(); err != nil {
		logger.Error("TUI error", zap.Error(err))
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		os.Exit(1)
	}
}
