// internal/telegram/bot.go
package telegram

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/bot"
	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/events"
)

// API is the part of tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Commander executes core commands.
type Commander interface {
	Send(ctx context.Context, cmd bot.Command) bot.CommandResult
}

// WalletLookup returns the live state of a tracked wallet.
type WalletLookup interface {
	Wallet(address string) (domain.TrackedWallet, bool)
}

// Config for the chat front end.
type Config struct {
	ChatID      int64
	NotifySkips bool
	OutboxSize  int
}

// Bot is the Telegram front end: it turns chat commands into core commands
// and pushes notifications to the configured chat. Only ChatID is served.
type Bot struct {
	api       API
	commander Commander
	wallets   WalletLookup
	cfg       Config
	outbox    chan string
	logger    *zap.Logger
}

// New creates the bot. wallets may be nil, which disables per-wallet alerts.
func New(api API, commander Commander, wallets WalletLookup, cfg Config, logger *zap.Logger) (*Bot, error) {
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = 256
	}
	return &Bot{
		api:       api,
		commander: commander,
		wallets:   wallets,
		cfg:       cfg,
		outbox:    make(chan string, cfg.OutboxSize),
		logger:    logger.Named("telegram"),
	}, nil
}

// Run serves chat commands and drains notifications until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	b.logger.Info("🤖 Telegram bot started", zap.Int64("chat_id", b.cfg.ChatID))
	b.send("🤖 Copy bot online. /help for commands.")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("🛑 Telegram bot stopped")
			return nil
		case text := <-b.outbox:
			b.send(text)
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message != nil {
				b.handleMessage(ctx, update.Message)
			}
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || msg.Chat.ID != b.cfg.ChatID {
		chatID := int64(0)
		if msg.Chat != nil {
			chatID = msg.Chat.ID
		}
		b.logger.Warn("Ignoring message from unauthorized chat", zap.Int64("chat_id", chatID))
		return
	}
	if !msg.IsCommand() {
		return
	}

	name := msg.Command()
	b.logger.Debug("Received command", zap.String("command", name))

	switch name {
	case "start", "help":
		b.send(helpText)
		return
	}

	cmd, err := ParseCommand(name, msg.CommandArguments())
	if err != nil {
		if errors.Is(err, ErrUnknownCommand) {
			b.send("❓ Unknown command. Use /help for available commands.")
			return
		}
		b.send("❌ " + err.Error())
		return
	}

	if order, ok := cmd.(bot.ManualOrderCommand); ok {
		b.send("⏳ Submitting " + string(order.Direction) + " order...")
	}
	b.send(FormatResult(b.commander.Send(ctx, cmd)))
}

// Handle implements events.Handler. It only queues text; Run sends it.
func (b *Bot) Handle(_ context.Context, event events.Event) error {
	if ev, ok := event.(*events.TradeDetectedEvent); ok {
		b.alert(ev.Trade)
		return nil
	}
	if _, ok := event.(*events.CopySkippedEvent); ok && !b.cfg.NotifySkips {
		return nil
	}
	if text := formatEvent(event); text != "" {
		b.enqueue(text)
	}
	return nil
}

func (b *Bot) alert(trade domain.DetectedTrade) {
	if b.wallets == nil {
		return
	}
	w, ok := b.wallets.Wallet(trade.Wallet)
	if !ok {
		return
	}
	switch {
	case trade.Direction == domain.DirectionBuy && w.Overrides.AlertOnBuy,
		trade.Direction == domain.DirectionSell && w.Overrides.AlertOnSell:
		b.enqueue(formatAlert(w, trade))
	}
}

func (b *Bot) enqueue(text string) {
	select {
	case b.outbox <- text:
	default:
		b.logger.Warn("Notification dropped, outbox full")
	}
}

func (b *Bot) send(text string) {
	msg := tgbotapi.NewMessage(b.cfg.ChatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send telegram message", zap.Error(err))
	}
}
