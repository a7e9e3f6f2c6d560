package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-copybot/internal/blockchain"
	"github.com/rovshanmuradov/solana-copybot/internal/clock"
	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/events"
)

const (
	walletA = "WaLLetA111111111111111111111111111111111111"
	walletB = "WaLLetB111111111111111111111111111111111111"
	waitFor = 2 * time.Second
)

type fakeSub struct {
	wallet string
	events chan domain.RawEvent
	errs   chan error
	closed chan struct{}
	once   sync.Once
}

func (s *fakeSub) Recv(ctx context.Context) (domain.RawEvent, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case err := <-s.errs:
		return domain.RawEvent{}, err
	case <-s.closed:
		return domain.RawEvent{}, domain.ErrFeedDisconnected
	case <-ctx.Done():
		return domain.RawEvent{}, ctx.Err()
	}
}

func (s *fakeSub) Close() { s.once.Do(func() { close(s.closed) }) }

type backfillPage struct {
	events []domain.RawEvent
	found  bool
}

type fakeFeed struct {
	mu            sync.Mutex
	subscribeErrs map[string]int
	pages         map[string][]backfillPage
	cursors       map[string][]domain.Cursor
	subs          chan *fakeSub
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		subscribeErrs: make(map[string]int),
		pages:         make(map[string][]backfillPage),
		cursors:       make(map[string][]domain.Cursor),
		subs:          make(chan *fakeSub, 16),
	}
}

func (f *fakeFeed) Subscribe(_ context.Context, wallet string) (blockchain.Subscription, error) {
	f.mu.Lock()
	if f.subscribeErrs[wallet] > 0 {
		f.subscribeErrs[wallet]--
		f.mu.Unlock()
		return nil, domain.ErrFeedDisconnected
	}
	f.mu.Unlock()

	sub := &fakeSub{
		wallet: wallet,
		events: make(chan domain.RawEvent, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
	f.subs <- sub
	return sub, nil
}

func (f *fakeFeed) Backfill(_ context.Context, wallet string, cursor domain.Cursor, _ int) ([]domain.RawEvent, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cursors[wallet] = append(f.cursors[wallet], cursor)
	pages := f.pages[wallet]
	if len(pages) == 0 {
		return nil, true, nil
	}
	f.pages[wallet] = pages[1:]
	return pages[0].events, pages[0].found, nil
}

func (f *fakeFeed) backfillCursors(wallet string) []domain.Cursor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Cursor(nil), f.cursors[wallet]...)
}

func (f *fakeFeed) nextSub(t *testing.T) *fakeSub {
	t.Helper()
	select {
	case sub := <-f.subs:
		return sub
	case <-time.After(waitFor):
		t.Fatal("no subscription opened")
		return nil
	}
}

// stubParser treats every successful transaction as a swap.
type stubParser struct{}

func (stubParser) Parse(ev domain.RawEvent) (domain.DetectedTrade, error) {
	if ev.Failed {
		return domain.DetectedTrade{}, domain.NotASwap("transaction failed")
	}
	return domain.DetectedTrade{Wallet: ev.Wallet, Signature: ev.Signature, Slot: ev.Slot, Direction: domain.DirectionBuy}, nil
}

type cursorLog struct {
	mu   sync.Mutex
	last map[string]domain.Cursor
}

func (c *cursorLog) UpdateCursor(_ context.Context, address string, cur domain.Cursor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		c.last = make(map[string]domain.Cursor)
	}
	c.last[address] = cur
	return nil
}

func (c *cursorLog) get(address string) domain.Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last[address]
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Type() == t {
			out = append(out, ev)
		}
	}
	return out
}

func raw(wallet, sig string, slot uint64) domain.RawEvent {
	return domain.RawEvent{Wallet: wallet, Signature: sig, Slot: slot, Signer: wallet}
}

func nextDetection(t *testing.T, m *Monitor) Detection {
	t.Helper()
	select {
	case d := <-m.Trades():
		return d
	case <-time.After(waitFor):
		t.Fatal("no trade delivered")
		return Detection{}
	}
}

// nextTrade receives one detection and marks it handled.
func nextTrade(t *testing.T, m *Monitor) domain.DetectedTrade {
	t.Helper()
	d := nextDetection(t, m)
	d.Done()
	return d.Trade
}

func noTrade(t *testing.T, m *Monitor) {
	t.Helper()
	select {
	case d := <-m.Trades():
		t.Fatalf("unexpected trade %s", d.Trade.Signature)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestMonitor(t *testing.T, feed *fakeFeed, cursors CursorStore, bus Publisher, clk clock.Clock) *Monitor {
	m := New(feed, stubParser{}, cursors, bus, clk, DefaultConfig(), zaptest.NewLogger(t))
	t.Cleanup(m.Stop)
	return m
}

func TestDeliversInOrderAndSkipsDuplicates(t *testing.T) {
	feed := newFakeFeed()
	cursors := &cursorLog{}
	m := newTestMonitor(t, feed, cursors, nil, clock.NewAutoFake(time.Unix(0, 0)))

	require.NoError(t, m.Track(domain.TrackedWallet{Address: walletA, Enabled: true}))
	sub := feed.nextSub(t)

	sub.events <- raw(walletA, "s1", 10)
	sub.events <- raw(walletA, "s2", 11)
	sub.events <- raw(walletA, "s1", 10)
	sub.events <- raw(walletA, "s3", 12)

	assert.Equal(t, "s1", nextTrade(t, m).Signature)
	assert.Equal(t, "s2", nextTrade(t, m).Signature)
	assert.Equal(t, "s3", nextTrade(t, m).Signature)
	noTrade(t, m)

	assert.Eventually(t, func() bool {
		return cursors.get(walletA) == domain.Cursor{Signature: "s3", Slot: 12}
	}, waitFor, 5*time.Millisecond)
}

func TestNonSwapsAdvanceCursorWithoutTrade(t *testing.T) {
	feed := newFakeFeed()
	cursors := &cursorLog{}
	m := newTestMonitor(t, feed, cursors, nil, clock.NewAutoFake(time.Unix(0, 0)))

	require.NoError(t, m.Track(domain.TrackedWallet{Address: walletA, Enabled: true}))
	sub := feed.nextSub(t)

	failed := raw(walletA, "f1", 20)
	failed.Failed = true
	sub.events <- failed

	assert.Eventually(t, func() bool {
		return cursors.get(walletA).Signature == "f1"
	}, waitFor, 5*time.Millisecond)
	noTrade(t, m)

	sub.events <- raw(walletA, "s2", 21)
	assert.Equal(t, "s2", nextTrade(t, m).Signature)
}

func TestCursorWaitsForHandledDetections(t *testing.T) {
	feed := newFakeFeed()
	cursors := &cursorLog{}
	m := newTestMonitor(t, feed, cursors, nil, clock.NewAutoFake(time.Unix(0, 0)))

	require.NoError(t, m.Track(domain.TrackedWallet{Address: walletA, Enabled: true}))
	sub := feed.nextSub(t)

	failed := raw(walletA, "f0", 9)
	failed.Failed = true
	sub.events <- failed
	assert.Eventually(t, func() bool {
		return cursors.get(walletA).Signature == "f0"
	}, waitFor, 5*time.Millisecond)

	sub.events <- raw(walletA, "s1", 10)
	first := nextDetection(t, m)
	sub.events <- raw(walletA, "s2", 11)
	second := nextDetection(t, m)
	failed = raw(walletA, "f3", 12)
	failed.Failed = true
	sub.events <- failed

	assert.Eventually(t, func() bool {
		w, _ := m.Wallet(walletA)
		return w.Cursor.Signature == "f3"
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, "f0", cursors.get(walletA).Signature, "unhandled swaps hold the persisted cursor")

	second.Done()
	assert.Equal(t, "f0", cursors.get(walletA).Signature, "s1 is still outstanding")

	first.Done()
	assert.Equal(t, domain.Cursor{Signature: "f3", Slot: 12}, cursors.get(walletA))

	first.Done()
	assert.Equal(t, "f3", cursors.get(walletA).Signature)
}

func TestReconnectBackoffSequence(t *testing.T) {
	feed := newFakeFeed()
	feed.subscribeErrs[walletA] = 7
	bus := &recorder{}
	clk := clock.NewAutoFake(time.Unix(0, 0))
	m := newTestMonitor(t, feed, nil, bus, clk)

	require.NoError(t, m.Track(domain.TrackedWallet{Address: walletA, Enabled: true}))
	feed.nextSub(t)

	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}
	assert.Equal(t, want, clk.Slept())

	assert.Eventually(t, func() bool {
		return len(bus.ofType(events.FeedRecovered)) == 1
	}, waitFor, 5*time.Millisecond)
	degraded := bus.ofType(events.FeedDegraded)
	require.Len(t, degraded, 1)
	assert.Equal(t, 5, degraded[0].(*events.FeedHealthEvent).Attempts)
}

func TestReconnectBackfillsFromCursor(t *testing.T) {
	feed := newFakeFeed()
	m := newTestMonitor(t, feed, nil, nil, clock.NewAutoFake(time.Unix(0, 0)))

	require.NoError(t, m.Track(domain.TrackedWallet{Address: walletA, Enabled: true}))
	first := feed.nextSub(t)
	first.events <- raw(walletA, "s1", 30)
	assert.Equal(t, "s1", nextTrade(t, m).Signature)

	feed.mu.Lock()
	feed.pages[walletA] = []backfillPage{{events: []domain.RawEvent{raw(walletA, "s2", 31), raw(walletA, "s3", 32)}, found: true}}
	feed.mu.Unlock()

	first.errs <- errors.New("socket closed")
	second := feed.nextSub(t)

	assert.Equal(t, "s2", nextTrade(t, m).Signature)
	assert.Equal(t, "s3", nextTrade(t, m).Signature)

	// Live delivery of an already backfilled signature is dropped.
	second.events <- raw(walletA, "s3", 32)
	second.events <- raw(walletA, "s4", 33)
	assert.Equal(t, "s4", nextTrade(t, m).Signature)

	cursors := feed.backfillCursors(walletA)
	require.Len(t, cursors, 2)
	assert.True(t, cursors[0].IsZero())
	assert.Equal(t, domain.Cursor{Signature: "s1", Slot: 30}, cursors[1])
}

func TestBackfillGapPublishesEvent(t *testing.T) {
	feed := newFakeFeed()
	feed.pages[walletA] = []backfillPage{{
		events: []domain.RawEvent{raw(walletA, "b1", 50), raw(walletA, "b2", 51)},
		found:  false,
	}}
	bus := &recorder{}
	m := newTestMonitor(t, feed, nil, bus, clock.NewAutoFake(time.Unix(0, 0)))

	start := domain.Cursor{Signature: "old", Slot: 10}
	require.NoError(t, m.Track(domain.TrackedWallet{Address: walletA, Enabled: true, Cursor: start}))
	feed.nextSub(t)

	assert.Equal(t, "b1", nextTrade(t, m).Signature)
	assert.Equal(t, "b2", nextTrade(t, m).Signature)

	gaps := bus.ofType(events.MonitoringGap)
	require.Len(t, gaps, 1)
	gap := gaps[0].(*events.MonitoringGapEvent)
	assert.Equal(t, walletA, gap.Wallet)
	assert.Equal(t, start, gap.From)
	assert.Equal(t, domain.Cursor{Signature: "b1", Slot: 50}, gap.To)
}

func TestUntrackLeavesOtherWalletsRunning(t *testing.T) {
	feed := newFakeFeed()
	m := newTestMonitor(t, feed, nil, nil, clock.NewAutoFake(time.Unix(0, 0)))

	require.NoError(t, m.Track(domain.TrackedWallet{Address: walletA, Enabled: true}))
	subA := feed.nextSub(t)
	require.NoError(t, m.Track(domain.TrackedWallet{Address: walletB, Enabled: true}))
	subB := feed.nextSub(t)

	assert.ErrorIs(t, m.Track(domain.TrackedWallet{Address: walletA}), domain.ErrWalletExists)

	require.NoError(t, m.Untrack(walletA))
	assert.ErrorIs(t, m.Untrack(walletA), domain.ErrWalletNotFound)

	select {
	case <-subA.closed:
	case <-time.After(waitFor):
		t.Fatal("untracked subscription left open")
	}

	subB.events <- raw(walletB, "b1", 5)
	got := nextTrade(t, m)
	assert.Equal(t, walletB, got.Wallet)

	_, ok := m.Wallet(walletA)
	assert.False(t, ok)
	assert.Len(t, m.Wallets(), 1)
}

func TestSetEnabledKeepsFeedRunning(t *testing.T) {
	feed := newFakeFeed()
	m := newTestMonitor(t, feed, nil, nil, clock.NewAutoFake(time.Unix(0, 0)))

	require.NoError(t, m.Track(domain.TrackedWallet{Address: walletA, Enabled: true}))
	sub := feed.nextSub(t)

	w, err := m.SetEnabled(walletA, false)
	require.NoError(t, err)
	assert.False(t, w.Enabled)

	sub.events <- raw(walletA, "s1", 1)
	select {
	case d := <-m.Trades():
		assert.False(t, d.Wallet.Enabled)
	case <-time.After(waitFor):
		t.Fatal("no trade delivered")
	}

	_, err = m.SetEnabled(walletB, true)
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
}

func TestSeenSetEvictsOldest(t *testing.T) {
	s := newSeenSet(2)
	assert.True(t, s.Add("a"))
	assert.True(t, s.Add("b"))
	assert.False(t, s.Add("a"))
	assert.True(t, s.Add("c"))
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Add("a"), "oldest entry should have been evicted")
	assert.False(t, s.Add("c"))
}
