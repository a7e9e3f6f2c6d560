package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-copybot/internal/clock"
	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/router"
	"github.com/rovshanmuradov/solana-copybot/internal/storage"
	"github.com/rovshanmuradov/solana-copybot/internal/storage/memory"
	"github.com/rovshanmuradov/solana-copybot/internal/wallet"
)

const (
	walletA = "WaLLetA111111111111111111111111111111111111"
	tokenB  = "TokenB11111111111111111111111111111111111111"
	tokenC  = "TokenC11111111111111111111111111111111111111"
)

var start = time.Unix(1700000000, 0).UTC()

type fakeRouter struct {
	mu          sync.Mutex
	slippageBps int
	quoteErr    error
	submitErr   error
	submitSig   string
	submits     int
	// gate, when set, blocks every Quote until a value is received.
	gate    chan struct{}
	started chan string
	active  map[string]int
	maxSeen map[string]int
	quoted  []string
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{active: map[string]int{}, maxSeen: map[string]int{}}
}

func (f *fakeRouter) Quote(ctx context.Context, req router.QuoteRequest) (router.Quote, error) {
	f.mu.Lock()
	f.active[req.OutputMint]++
	if f.active[req.OutputMint] > f.maxSeen[req.OutputMint] {
		f.maxSeen[req.OutputMint] = f.active[req.OutputMint]
	}
	f.quoted = append(f.quoted, req.Amount.String())
	gate, started := f.gate, f.started
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active[req.OutputMint]--
		f.mu.Unlock()
	}()

	if started != nil {
		started <- req.Amount.String()
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return router.Quote{}, ctx.Err()
		}
	}
	if f.quoteErr != nil {
		return router.Quote{}, f.quoteErr
	}
	return router.Quote{
		RequestID:   "req",
		InAmount:    req.Amount,
		OutAmount:   req.Amount.Mul(decimal.NewFromInt(100)),
		SlippageBps: f.slippageBps,
		Transaction: []byte{1},
	}, nil
}

func (f *fakeRouter) Submit(_ context.Context, q router.Quote, _ []byte) (router.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if f.submitErr != nil {
		return router.Submission{Signature: f.submitSig}, f.submitErr
	}
	return router.Submission{Signature: "sig-" + q.InAmount.String()}, nil
}

func (f *fakeRouter) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

type fakeSigner struct{}

func (fakeSigner) Address() string                          { return "BotWallet1111111111111111111111111111111111" }
func (fakeSigner) SignTransaction(tx []byte) ([]byte, error) { return tx, nil }

type fakeChain struct {
	mu       sync.Mutex
	statuses map[string]domain.TxStatus
	err      error
	calls    int
	history  []bool
}

func (f *fakeChain) TransactionStatus(_ context.Context, sig string, searchHistory bool) (domain.TxStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.history = append(f.history, searchHistory)
	if f.err != nil {
		return domain.TxStatus{}, f.err
	}
	if st, ok := f.statuses[sig]; ok {
		return st, nil
	}
	return domain.TxStatus{State: domain.TxPending}, nil
}

type handlerLog struct {
	mu      sync.Mutex
	results []domain.TradeResult
}

func (h *handlerLog) ApplyResult(_ context.Context, r domain.TradeResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, r)
	return nil
}

func (h *handlerLog) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.results)
}

type fixture struct {
	exec    *Executor
	router  *fakeRouter
	chain   *fakeChain
	store   *memory.Store
	handler *handlerLog
}

func newFixture(t *testing.T, clk clock.Clock) *fixture {
	t.Helper()
	f := &fixture{
		router:  newFakeRouter(),
		chain:   &fakeChain{statuses: map[string]domain.TxStatus{}},
		store:   memory.New(),
		handler: &handlerLog{},
	}
	f.exec = New(f.router, fakeSigner{}, f.chain, f.store, nil, clk, Config{
		Workers:            4,
		QuoteTimeout:       time.Second,
		PollInterval:       2 * time.Second,
		ConfirmTimeout:     10 * time.Second,
		ReconcileInterval:  30 * time.Second,
		ExpireAfter:        2 * time.Minute,
		DefaultSlippageBps: 100,
		MaxSlippageBps:     500,
	}, zaptest.NewLogger(t))
	f.exec.SetResultHandler(f.handler)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = f.exec.Shutdown(ctx)
	})
	return f
}

func buyOrder(id, amount, token string) domain.Order {
	return domain.Order{
		ID:             id,
		Source:         walletA,
		Kind:           domain.KindEntry,
		Direction:      domain.DirectionBuy,
		InputMint:      domain.SOLMint,
		OutputMint:     token,
		Amount:         decimal.RequireFromString(amount),
		InputDecimals:  9,
		OutputDecimals: 6,
		MaxSlippageBps: 300,
		CreatedAt:      start,
	}
}

func TestSlippageAboveLimitIsRejectedWithoutSubmit(t *testing.T) {
	f := newFixture(t, clock.NewAutoFake(start))
	f.router.slippageBps = 450

	r, err := f.exec.Execute(context.Background(), buyOrder("o1", "1", tokenB))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSlippageExceeded)

	assert.Equal(t, domain.TradeFailed, r.Status)
	assert.Equal(t, domain.CategorySlippage, r.ErrorCategory)
	assert.Equal(t, 0, f.router.submitCount())

	stored, err := f.store.GetTradeResult(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeFailed, stored.Status)
	assert.Equal(t, 1, f.handler.len())
}

func TestConfiguredCeilingCapsOrderSlippage(t *testing.T) {
	f := newFixture(t, clock.NewAutoFake(start))
	f.router.slippageBps = 600

	order := buyOrder("o1", "1", tokenB)
	order.MaxSlippageBps = 1000

	r, _ := f.exec.Execute(context.Background(), order)
	assert.Equal(t, domain.CategorySlippage, r.ErrorCategory)
	assert.Equal(t, 0, f.router.submitCount())
}

func TestConfirmedTrade(t *testing.T) {
	f := newFixture(t, clock.NewAutoFake(start))
	f.router.slippageBps = 50
	f.chain.statuses["sig-1"] = domain.TxStatus{State: domain.TxConfirmed}

	r, err := f.exec.Execute(context.Background(), buyOrder("o1", "1", tokenB))
	require.NoError(t, err)

	assert.Equal(t, domain.TradeConfirmed, r.Status)
	assert.Equal(t, "sig-1", r.Signature)
	assert.True(t, r.OutAmount.Equal(decimal.NewFromInt(100)))
	require.NotNil(t, r.ResolvedAt)

	stored, err := f.store.GetTradeResult(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeConfirmed, stored.Status)
	assert.Equal(t, "o1", stored.Order.ID)
	assert.Equal(t, 1, f.handler.len())
}

func TestConfirmationTimeoutLeavesResultPending(t *testing.T) {
	clk := clock.NewAutoFake(start)
	f := newFixture(t, clk)

	r, err := f.exec.Execute(context.Background(), buyOrder("o1", "1", tokenB))
	require.NoError(t, err)

	assert.Equal(t, domain.TradePending, r.Status)
	assert.Equal(t, domain.ErrConfirmationTimeout.Error(), r.Error)
	assert.Empty(t, r.ErrorCategory)
	assert.Nil(t, r.ResolvedAt)
	// Polled at 0, 2, 4, 6, 8 and 10 seconds.
	assert.Equal(t, 6, f.chain.calls)
	assert.Equal(t, 10*time.Second, clk.Now().Sub(start))

	pending, err := f.store.ListTradeResults(context.Background(), storage.ResultFilter{Status: domain.TradePending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "sig-1", pending[0].Signature)
}

func TestOnChainFailureIsCategorized(t *testing.T) {
	cases := []struct {
		name string
		err  string
		want domain.ErrorCategory
	}{
		{"slippage", `{"InstructionError":[2,{"Custom":6001}]} custom program error: 0x1771`, domain.CategorySlippage},
		{"program", `{"InstructionError":[3,{"Custom":42}]}`, domain.CategoryProgramError},
		{"balance", "insufficient lamports", domain.CategoryInsufficientBalance},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, clock.NewAutoFake(start))
			f.chain.statuses["sig-1"] = domain.TxStatus{State: domain.TxFailed, Err: tc.err}

			r, err := f.exec.Execute(context.Background(), buyOrder("o1", "1", tokenB))
			require.Error(t, err)
			assert.Equal(t, domain.TradeFailed, r.Status)
			assert.Equal(t, tc.want, r.ErrorCategory)
			assert.Equal(t, "sig-1", r.Signature)
		})
	}
}

func TestRouterErrorsFailTheOrder(t *testing.T) {
	f := newFixture(t, clock.NewAutoFake(start))
	f.router.quoteErr = domain.NewExecutionError(domain.CategoryInsufficientBalance, "Insufficient funds", domain.ErrInsufficientBalance)

	r, err := f.exec.Execute(context.Background(), buyOrder("o1", "1", tokenB))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, domain.CategoryInsufficientBalance, r.ErrorCategory)

	f.router.quoteErr = nil
	f.router.submitErr = domain.NewExecutionError(domain.CategorySlippage, "code 6001", router.ErrRejected)
	f.router.submitSig = "sig-rejected"
	r, err = f.exec.Execute(context.Background(), buyOrder("o2", "1", tokenB))
	require.Error(t, err)
	assert.Equal(t, domain.TradeFailed, r.Status)
	assert.Equal(t, domain.CategorySlippage, r.ErrorCategory)
	assert.Equal(t, "sig-rejected", r.Signature)
	assert.Zero(t, f.chain.calls, "a rejected submission is not polled")

	f.router.submitErr = errors.New("boom")
	f.router.submitSig = ""
	r, err = f.exec.Execute(context.Background(), buyOrder("o3", "1", tokenB))
	require.Error(t, err)
	assert.Equal(t, domain.TradeFailed, r.Status, "no signature to follow")
	assert.Equal(t, domain.CategoryUnknown, r.ErrorCategory)
}

func TestSubmitErrorWithSignatureIsConfirmedOnChain(t *testing.T) {
	f := newFixture(t, clock.NewAutoFake(start))
	f.router.submitErr = domain.NewExecutionError(domain.CategoryRouter, "execute outcome unknown", context.DeadlineExceeded)
	f.router.submitSig = "sig-landed"
	f.chain.statuses["sig-landed"] = domain.TxStatus{State: domain.TxConfirmed}

	r, err := f.exec.Execute(context.Background(), buyOrder("o1", "1", tokenB))
	require.NoError(t, err)
	assert.Equal(t, domain.TradeConfirmed, r.Status)
	assert.Equal(t, "sig-landed", r.Signature)
	assert.Positive(t, f.chain.calls)

	stored, err := f.store.GetTradeResult(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeConfirmed, stored.Status)
}

func TestSubmitErrorWithUnknownOutcomeStaysPending(t *testing.T) {
	f := newFixture(t, clock.NewAutoFake(start))
	f.router.submitErr = errors.New("connection reset by peer")
	f.router.submitSig = "sig-lost"

	r, err := f.exec.Execute(context.Background(), buyOrder("o1", "1", tokenB))
	require.NoError(t, err)
	assert.Equal(t, domain.TradePending, r.Status, "left for the reconciler")
	assert.Equal(t, domain.ErrConfirmationTimeout.Error(), r.Error)
	assert.Equal(t, "sig-lost", r.Signature)
}

func TestSignatureOfSignedTransaction(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	w, err := wallet.NewWallet(key.String())
	require.NoError(t, err)

	ix := solana.NewInstruction(
		solana.SystemProgramID,
		[]*solana.AccountMeta{
			{PublicKey: w.PublicKey, IsSigner: true, IsWritable: true},
			{PublicKey: solana.NewWallet().PublicKey(), IsWritable: true},
		},
		[]byte{2, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0},
	)
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{}, solana.TransactionPayer(w.PublicKey))
	require.NoError(t, err)
	unsigned, err := tx.MarshalBinary()
	require.NoError(t, err)

	assert.Empty(t, signatureOf(unsigned), "unsigned slot")
	assert.Empty(t, signatureOf([]byte{1}))

	signed, err := w.SignTransaction(unsigned)
	require.NoError(t, err)
	decoded, err := solana.TransactionFromBytes(signed)
	require.NoError(t, err)
	assert.Equal(t, decoded.Signatures[0].String(), signatureOf(signed))
}

func TestSameKeyRunsOneAtATimeInOrder(t *testing.T) {
	f := newFixture(t, clock.NewAutoFake(start))
	f.router.gate = make(chan struct{})
	f.router.started = make(chan string, 3)
	for _, sig := range []string{"sig-1", "sig-2", "sig-3"} {
		f.chain.statuses[sig] = domain.TxStatus{State: domain.TxConfirmed}
	}

	var chans []<-chan domain.TradeResult
	for i, amount := range []string{"1", "2", "3"} {
		ch, err := f.exec.Submit(context.Background(), buyOrder(string(rune('a'+i)), amount, tokenB))
		require.NoError(t, err)
		chans = append(chans, ch)
	}

	for _, want := range []string{"1", "2", "3"} {
		select {
		case got := <-f.router.started:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("order %s never started", want)
		}
		// The next order must not start while this one is held.
		select {
		case extra := <-f.router.started:
			t.Fatalf("order %s started concurrently", extra)
		case <-time.After(20 * time.Millisecond):
		}
		f.router.gate <- struct{}{}
	}

	for _, ch := range chans {
		r := <-ch
		assert.Equal(t, domain.TradeConfirmed, r.Status)
	}
	assert.Equal(t, 1, f.router.maxSeen[tokenB])
	assert.Equal(t, []string{"1", "2", "3"}, f.router.quoted)
}

func TestDifferentKeysRunConcurrently(t *testing.T) {
	f := newFixture(t, clock.NewAutoFake(start))
	f.router.gate = make(chan struct{})
	f.router.started = make(chan string, 2)

	chB, err := f.exec.Submit(context.Background(), buyOrder("b", "1", tokenB))
	require.NoError(t, err)
	chC, err := f.exec.Submit(context.Background(), buyOrder("c", "2", tokenC))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		select {
		case <-f.router.started:
		case <-time.After(2 * time.Second):
			t.Fatal("orders on different keys did not run in parallel")
		}
	}
	f.router.gate <- struct{}{}
	f.router.gate <- struct{}{}

	<-chB
	<-chC
}

func TestReconcileResolvesAndExpires(t *testing.T) {
	clk := clock.NewFake(start.Add(10 * time.Minute))
	f := newFixture(t, clk)
	ctx := context.Background()

	seed := func(id, sig string, submitted time.Time) {
		require.NoError(t, f.store.SaveTradeResult(ctx, domain.TradeResult{
			ID:          id,
			Order:       buyOrder("o-"+id, "1", tokenB),
			Signature:   sig,
			Status:      domain.TradePending,
			Error:       domain.ErrConfirmationTimeout.Error(),
			SubmittedAt: submitted,
		}))
	}
	seed("landed", "sig-landed", start)
	seed("stale", "sig-stale", start)
	seed("fresh", "sig-fresh", clk.Now().Add(-time.Minute))
	f.chain.statuses["sig-landed"] = domain.TxStatus{State: domain.TxConfirmed}

	resolved, err := f.exec.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, resolved)

	landed, _ := f.store.GetTradeResult(ctx, "landed")
	assert.Equal(t, domain.TradeConfirmed, landed.Status)
	assert.Empty(t, landed.Error)

	stale, _ := f.store.GetTradeResult(ctx, "stale")
	assert.Equal(t, domain.TradeFailed, stale.Status)
	assert.Equal(t, domain.CategoryExpired, stale.ErrorCategory)

	fresh, _ := f.store.GetTradeResult(ctx, "fresh")
	assert.Equal(t, domain.TradePending, fresh.Status)

	assert.Equal(t, 2, f.handler.len())
	for _, searched := range f.chain.history {
		assert.True(t, searched, "reconciliation must search transaction history")
	}
}

func TestReconcileKeepsPendingWhenLookupFails(t *testing.T) {
	clk := clock.NewFake(start.Add(3 * time.Minute))
	f := newFixture(t, clk)
	ctx := context.Background()
	require.NoError(t, f.store.SaveTradeResult(ctx, domain.TradeResult{
		ID:          "old",
		Order:       buyOrder("o-old", "1", tokenB),
		Signature:   "sig-old",
		Status:      domain.TradePending,
		SubmittedAt: start,
	}))
	f.chain.err = errors.New("rpc unavailable")

	resolved, err := f.exec.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, resolved)

	stored, err := f.store.GetTradeResult(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, domain.TradePending, stored.Status, "past ExpireAfter but the chain could not be asked")
	assert.Zero(t, f.handler.len())

	f.chain.err = nil
	f.chain.statuses["sig-old"] = domain.TxStatus{State: domain.TxConfirmed}
	resolved, err = f.exec.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)
	stored, _ = f.store.GetTradeResult(ctx, "old")
	assert.Equal(t, domain.TradeConfirmed, stored.Status)
}

func TestShutdownRejectsNewOrders(t *testing.T) {
	f := newFixture(t, clock.NewAutoFake(start))
	require.NoError(t, f.exec.Shutdown(context.Background()))

	_, err := f.exec.Submit(context.Background(), buyOrder("late", "1", tokenB))
	assert.ErrorIs(t, err, ErrExecutorClosed)
}
