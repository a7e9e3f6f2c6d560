// internal/blockchain/blockchain.go
package blockchain

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
)

// Subscription delivers transactions touching one wallet in arrival order.
type Subscription interface {
	// Recv blocks for the next transaction. Any error ends the subscription.
	Recv(ctx context.Context) (domain.RawEvent, error)
	Close()
}

// Feed is the source of wallet activity.
type Feed interface {
	Subscribe(ctx context.Context, wallet string) (Subscription, error)

	// Backfill returns up to limit transactions after cursor, oldest first.
	// found is false when the cursor fell outside the returned window and
	// older transactions may have been skipped.
	Backfill(ctx context.Context, wallet string, cursor domain.Cursor, limit int) (events []domain.RawEvent, found bool, err error)
}

// Client is the chain state the bot reads outside the feed.
type Client interface {
	// TransactionStatus reports confirmation of a submitted signature.
	// searchHistory extends the lookup beyond the recent status cache.
	TransactionStatus(ctx context.Context, signature string, searchHistory bool) (domain.TxStatus, error)
	SOLBalance(ctx context.Context, owner string) (decimal.Decimal, error)
	TokenBalance(ctx context.Context, owner, mint string) (decimal.Decimal, error)
	MintDecimals(ctx context.Context, mint string) (uint8, error)
}
