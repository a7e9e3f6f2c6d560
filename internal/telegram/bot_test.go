package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-copybot/internal/bot"
	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/events"
)

const chatID = int64(4242)

type fakeAPI struct {
	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	updates chan tgbotapi.Update
	stopped bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 8)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.Text)
	}
	return out
}

type fakeCommander struct {
	mu     sync.Mutex
	cmds   []bot.Command
	result bot.CommandResult
}

func (f *fakeCommander) Send(_ context.Context, cmd bot.Command) bot.CommandResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	return f.result
}

type walletMap map[string]domain.TrackedWallet

func (m walletMap) Wallet(address string) (domain.TrackedWallet, bool) {
	w, ok := m[address]
	return w, ok
}

func command(chat int64, text string) *tgbotapi.Message {
	n := len(text)
	if i := strings.Index(text, " "); i >= 0 {
		n = i
	}
	return &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chat},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: n}},
	}
}

func newTestBot(t *testing.T, wallets WalletLookup, cfg Config) (*Bot, *fakeAPI, *fakeCommander) {
	t.Helper()
	api := newFakeAPI()
	cmd := &fakeCommander{result: bot.CommandResult{OK: true}}
	cfg.ChatID = chatID
	b, err := New(api, cmd, wallets, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return b, api, cmd
}

func drain(b *Bot) []string {
	var out []string
	for {
		select {
		case text := <-b.outbox:
			out = append(out, text)
		default:
			return out
		}
	}
}

func TestNewRequiresChatID(t *testing.T) {
	_, err := New(newFakeAPI(), &fakeCommander{}, nil, Config{}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestHandleMessageDispatchesCommand(t *testing.T) {
	b, api, commander := newTestBot(t, nil, Config{})
	commander.result = bot.CommandResult{OK: true, Data: domain.TrackedWallet{Address: walletA, Name: "whale", Enabled: true}}

	b.handleMessage(context.Background(), command(chatID, "/track "+walletA+" whale"))

	require.Len(t, commander.cmds, 1)
	assert.Equal(t, bot.TrackWalletCommand{Address: walletA, Name: "whale"}, commander.cmds[0])

	texts := api.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "whale")
	assert.Equal(t, chatID, api.sent[0].ChatID)
}

func TestHandleMessageIgnoresOtherChats(t *testing.T) {
	b, api, commander := newTestBot(t, nil, Config{})

	b.handleMessage(context.Background(), command(999, "/copy off"))

	assert.Empty(t, commander.cmds)
	assert.Empty(t, api.texts())
}

func TestHandleMessageReportsErrors(t *testing.T) {
	b, api, commander := newTestBot(t, nil, Config{})
	ctx := context.Background()

	b.handleMessage(ctx, command(chatID, "/frobnicate"))
	b.handleMessage(ctx, command(chatID, "/copy maybe"))
	commander.result = bot.CommandResult{Err: errors.New("wallet not tracked")}
	b.handleMessage(ctx, command(chatID, "/untrack "+walletA))

	texts := api.texts()
	require.Len(t, texts, 3)
	assert.Contains(t, texts[0], "Unknown command")
	assert.Contains(t, texts[1], "expected on or off")
	assert.Equal(t, "❌ wallet not tracked", texts[2])
	assert.Len(t, commander.cmds, 1, "only parsed commands reach the core")
}

func TestHelpDoesNotReachCore(t *testing.T) {
	b, api, commander := newTestBot(t, nil, Config{})

	b.handleMessage(context.Background(), command(chatID, "/help"))

	assert.Empty(t, commander.cmds)
	require.Len(t, api.texts(), 1)
	assert.Contains(t, api.texts()[0], "/track <address> [name]")
}

func TestNotificationsAreQueued(t *testing.T) {
	b, _, _ := newTestBot(t, nil, Config{})
	ctx := context.Background()
	at := time.Unix(1700000000, 0)
	now := events.NewBase(events.TradeExecuted, at)

	require.NoError(t, b.Handle(ctx, &events.TradeExecutedEvent{BaseEvent: now, Result: domain.TradeResult{
		Order:     domain.Order{Source: walletA, Direction: domain.DirectionBuy, InputMint: domain.SOLMint, OutputMint: tokenX},
		Signature: "5sig",
		InAmount:  d("1"),
		OutAmount: d("100"),
		Status:    domain.TradeConfirmed,
	}}))
	require.NoError(t, b.Handle(ctx, &events.TradeExecutedEvent{BaseEvent: now, Result: domain.TradeResult{
		Status: domain.TradePending,
	}}))
	require.NoError(t, b.Handle(ctx, &events.CopySkippedEvent{BaseEvent: now, Reason: domain.SkipBlacklisted}))
	require.NoError(t, b.Handle(ctx, &events.FeedHealthEvent{
		BaseEvent: events.NewBase(events.FeedDegraded, at),
		Wallet:    walletA,
		Attempts:  5,
		Err:       "connection refused",
	}))

	texts := drain(b)
	require.Len(t, texts, 2, "pending results and skips are silent by default")
	assert.Contains(t, texts[0], "Copy buy confirmed")
	assert.Contains(t, texts[0], "5sig")
	assert.Contains(t, texts[1], "Feed degraded")
}

func TestSkipNotificationsWhenEnabled(t *testing.T) {
	b, _, _ := newTestBot(t, nil, Config{NotifySkips: true})
	now := events.NewBase(events.CopySkipped, time.Unix(1700000000, 0))

	require.NoError(t, b.Handle(context.Background(), &events.CopySkippedEvent{
		BaseEvent: now,
		Trade:     domain.DetectedTrade{Wallet: walletA, Direction: domain.DirectionBuy, OutputMint: tokenX},
		Reason:    domain.SkipBelowMinSize,
		Detail:    "0.1",
	}))

	texts := drain(b)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "below_min_size (0.1)")
}

func TestWalletAlertsFollowOverrides(t *testing.T) {
	wallets := walletMap{walletA: {Address: walletA, Name: "whale", Overrides: domain.WalletOverrides{AlertOnSell: true}}}
	b, _, _ := newTestBot(t, wallets, Config{})
	ctx := context.Background()
	now := events.NewBase(events.TradeDetected, time.Unix(1700000000, 0))

	buy := domain.DetectedTrade{Wallet: walletA, Direction: domain.DirectionBuy, InputMint: domain.SOLMint, OutputMint: tokenX, Signature: "b1"}
	sell := domain.DetectedTrade{Wallet: walletA, Direction: domain.DirectionSell, InputMint: tokenX, OutputMint: domain.SOLMint, Signature: "s1"}
	other := domain.DetectedTrade{Wallet: walletB, Direction: domain.DirectionSell, Signature: "s2"}

	for _, trade := range []domain.DetectedTrade{buy, sell, other} {
		require.NoError(t, b.Handle(ctx, &events.TradeDetectedEvent{BaseEvent: now, Trade: trade}))
	}

	texts := drain(b)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "whale sell")
	assert.Contains(t, texts[0], "s1")
}

func TestRunServesUpdatesAndOutbox(t *testing.T) {
	b, api, commander := newTestBot(t, nil, Config{})
	commander.result = bot.CommandResult{OK: true, Data: bot.CopyStats{Detected: 3}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	api.updates <- tgbotapi.Update{Message: command(chatID, "/stats")}
	b.enqueue("🏁 Position closed")

	require.Eventually(t, func() bool {
		texts := api.texts()
		var stats, closed bool
		for _, text := range texts {
			stats = stats || strings.Contains(text, "detected: 3")
			closed = closed || strings.Contains(text, "Position closed")
		}
		return stats && closed
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.True(t, api.stopped)
}
