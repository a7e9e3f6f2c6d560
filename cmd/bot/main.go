// ====================================
// File: cmd/bot/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/bot"
	"github.com/rovshanmuradov/solana-copybot/internal/config"
	"github.com/rovshanmuradov/solana-copybot/internal/telegram"
	logutil "github.com/rovshanmuradov/solana-copybot/internal/utils/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	// .env is optional; secrets may come from the environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logutil.DefaultConfig()
	logCfg.LogFile = cfg.LogFile
	logCfg.Development = cfg.DebugLogging
	appLogger, err := logutil.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()
	logger := appLogger.Logger

	logger.Info("🚀 Starting copy bot", zap.String("config", *configPath))

	ctx := context.Background()
	runner, err := bot.NewRunner(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize bot", zap.Error(err))
	}

	if cfg.Telegram.Token != "" {
		if err := attachTelegram(runner, cfg.Telegram, logger); err != nil {
			logger.Fatal("Failed to start telegram bot", zap.Error(err))
		}
	} else {
		logger.Warn("⚠️ Telegram token not set, running headless")
	}

	if err := runner.Run(ctx); err != nil {
		logger.Error("Bot execution error", zap.Error(err))
		appLogger.Sync()
		os.Exit(1)
	}
}

func attachTelegram(runner *bot.Runner, cfg config.TelegramConfig, logger *zap.Logger) error {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return fmt.Errorf("failed to create telegram bot: %w", err)
	}
	logger.Info("🤖 Telegram bot connected", zap.String("username", api.Self.UserName))

	tg, err := telegram.New(api, runner.Service(), runner.Monitor(), telegram.Config{
		ChatID:      cfg.ChatID,
		NotifySkips: cfg.NotifySkips,
	}, logger)
	if err != nil {
		return err
	}
	runner.Bus().SubscribeAll(tg)
	runner.Go("telegram", tg.Run)
	return nil
}
