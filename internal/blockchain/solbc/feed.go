// internal/blockchain/solbc/feed.go
package solbc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/blockchain"
	"github.com/rovshanmuradov/solana-copybot/internal/clock"
	"github.com/rovshanmuradov/solana-copybot/internal/domain"
)

// Backfill returns transactions after cursor, oldest first. A zero cursor
// has nothing to catch up on.
func (c *Client) Backfill(ctx context.Context, wallet string, cursor domain.Cursor, limit int) ([]domain.RawEvent, bool, error) {
	if cursor.IsZero() {
		return nil, true, nil
	}

	sigs, err := c.Signatures(ctx, wallet, cursor.Signature, limit)
	if err != nil {
		return nil, false, err
	}
	// A full page means the cursor may lie further back than we looked.
	found := len(sigs) < limit

	events, err := c.eventsFor(ctx, wallet, sigs)
	return events, found, err
}

// eventsFor fetches sigs (newest first) and returns them oldest first.
// Failed transactions are reported without fetching their bodies.
func (c *Client) eventsFor(ctx context.Context, wallet string, sigs []*rpc.TransactionSignature) ([]domain.RawEvent, error) {
	events := make([]domain.RawEvent, 0, len(sigs))
	for i := len(sigs) - 1; i >= 0; i-- {
		s := sigs[i]
		if s == nil {
			continue
		}
		if s.Err != nil {
			ev := domain.RawEvent{Wallet: wallet, Signature: s.Signature.String(), Slot: s.Slot, Failed: true}
			if s.BlockTime != nil {
				ev.BlockTime = s.BlockTime.Time().UTC()
			}
			events = append(events, ev)
			continue
		}
		ev, err := c.FetchEvent(ctx, wallet, s.Signature.String())
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// WSFeed pushes wallet activity from logsSubscribe notifications and reads
// transaction bodies over RPC.
type WSFeed struct {
	*Client
	wsURL  string
	logger *zap.Logger
}

var _ blockchain.Feed = (*WSFeed)(nil)

func NewWSFeed(client *Client, wsURL string, logger *zap.Logger) *WSFeed {
	return &WSFeed{
		Client: client,
		wsURL:  wsURL,
		logger: logger.Named("ws-feed"),
	}
}

// Subscribe opens a dedicated websocket for wallet so one wallet's failure
// never tears down another's stream.
func (f *WSFeed) Subscribe(ctx context.Context, wallet string) (blockchain.Subscription, error) {
	pk, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet address %q: %w", wallet, err)
	}

	conn, err := ws.Connect(ctx, f.wsURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFeedDisconnected, err)
	}
	sub, err := conn.LogsSubscribeMentions(pk, rpc.CommitmentConfirmed)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: logs subscribe: %v", domain.ErrFeedDisconnected, err)
	}

	f.logger.Debug("📡 Logs subscription opened", zap.String("wallet", wallet))
	return &logSubscription{client: f.Client, wallet: wallet, conn: conn, sub: sub}, nil
}

type logSubscription struct {
	client *Client
	wallet string
	conn   *ws.Client
	sub    *ws.LogSubscription
	once   sync.Once
}

func (s *logSubscription) Recv(ctx context.Context) (domain.RawEvent, error) {
	got, err := s.sub.Recv(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return domain.RawEvent{}, ctx.Err()
		}
		return domain.RawEvent{}, fmt.Errorf("%w: %v", domain.ErrFeedDisconnected, err)
	}
	if got == nil {
		return domain.RawEvent{}, domain.ErrFeedDisconnected
	}

	sig := got.Value.Signature.String()
	if got.Value.Err != nil {
		return domain.RawEvent{Wallet: s.wallet, Signature: sig, Slot: got.Context.Slot, Failed: true}, nil
	}
	return s.client.FetchEvent(ctx, s.wallet, sig)
}

func (s *logSubscription) Close() {
	s.once.Do(func() {
		s.sub.Unsubscribe()
		s.conn.Close()
	})
}

// PollFeed discovers wallet activity by polling signatures. It backs
// deployments without a websocket endpoint.
type PollFeed struct {
	*Client
	interval time.Duration
	pageSize int
	maxPages int
	clock    clock.Clock
	logger   *zap.Logger
}

var _ blockchain.Feed = (*PollFeed)(nil)

func NewPollFeed(client *Client, interval time.Duration, clk clock.Clock, logger *zap.Logger) *PollFeed {
	return &PollFeed{
		Client:   client,
		interval: interval,
		pageSize: pollPageSize,
		maxPages: pollMaxPages,
		clock:    clk,
		logger:   logger.Named("poll-feed"),
	}
}

const (
	pollPageSize = 50
	pollMaxPages = 10
)

// Subscribe anchors at the wallet's newest signature; later transactions are
// delivered as they appear.
func (f *PollFeed) Subscribe(ctx context.Context, wallet string) (blockchain.Subscription, error) {
	sigs, err := f.Signatures(ctx, wallet, "", 1)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFeedDisconnected, err)
	}
	anchor := ""
	if len(sigs) > 0 && sigs[0] != nil {
		anchor = sigs[0].Signature.String()
	}
	return &pollSubscription{feed: f, wallet: wallet, anchor: anchor}, nil
}

type pollSubscription struct {
	feed    *PollFeed
	wallet  string
	anchor  string
	pending []domain.RawEvent
}

func (s *pollSubscription) Recv(ctx context.Context) (domain.RawEvent, error) {
	for len(s.pending) == 0 {
		select {
		case <-ctx.Done():
			return domain.RawEvent{}, ctx.Err()
		case <-s.feed.clock.After(s.feed.interval):
		}

		sigs, reached, err := s.feed.SignaturesSince(ctx, s.wallet, s.anchor, s.feed.pageSize, s.feed.maxPages)
		if err != nil {
			return domain.RawEvent{}, fmt.Errorf("%w: %v", domain.ErrFeedDisconnected, err)
		}
		if !reached {
			// Too far behind to page forward safely; the monitor backfills from
			// its cursor and reports the gap.
			return domain.RawEvent{}, fmt.Errorf("%w: more than %d transactions since %s",
				domain.ErrFeedDisconnected, len(sigs), s.anchor)
		}
		if len(sigs) == 0 {
			continue
		}
		events, err := s.feed.eventsFor(ctx, s.wallet, sigs)
		s.pending = append(s.pending, events...)
		if n := len(events); n > 0 {
			s.anchor = events[n-1].Signature
		}
		if err != nil && len(s.pending) == 0 {
			return domain.RawEvent{}, fmt.Errorf("%w: %v", domain.ErrFeedDisconnected, err)
		}
	}

	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, nil
}

func (s *pollSubscription) Close() {}
