// internal/blockchain/solbc/client.go
package solbc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/blockchain"
	"github.com/rovshanmuradov/solana-copybot/internal/domain"
)

const rpcMaxTries = 4

// Client is a thin adapter over solana-go RPC speaking domain types.
type Client struct {
	rpc        *rpc.Client
	commitment rpc.CommitmentType
	decimals   sync.Map // mint -> uint8
	logger     *zap.Logger
}

var _ blockchain.Client = (*Client)(nil)

// NewClient creates an RPC client reading at confirmed commitment.
func NewClient(rpcURL string, logger *zap.Logger) *Client {
	return &Client{
		rpc:        rpc.New(rpcURL),
		commitment: rpc.CommitmentConfirmed,
		logger:     logger.Named("solbc-client"),
	}
}

// IsAccountNotFoundError reports whether err means the account does not exist.
func IsAccountNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, rpc.ErrNotFound) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "could not find account")
}

// retryRPC retries transient RPC failures with exponential backoff.
func retryRPC[T any](ctx context.Context, logger *zap.Logger, method string, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	return backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err != nil && ctx.Err() != nil {
			return v, backoff.Permanent(ctx.Err())
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(rpcMaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Debug("RPC call failed, retrying",
				zap.String("method", method),
				zap.Duration("next", next),
				zap.Error(err))
		}),
	)
}

// Signatures lists wallet signatures newest first, stopping before until.
func (c *Client) Signatures(ctx context.Context, wallet string, until string, limit int) ([]*rpc.TransactionSignature, error) {
	return c.signaturePage(ctx, wallet, until, "", limit)
}

// SignaturesSince pages backwards from the newest signature until it reaches
// until, reading at most maxPages pages. reached is false when the pages ran
// out first; the result is then the newest pageSize*maxPages signatures.
func (c *Client) SignaturesSince(ctx context.Context, wallet, until string, pageSize, maxPages int) (sigs []*rpc.TransactionSignature, reached bool, err error) {
	before := ""
	for page := 0; page < maxPages; page++ {
		batch, err := c.signaturePage(ctx, wallet, until, before, pageSize)
		if err != nil {
			return sigs, false, err
		}
		sigs = append(sigs, batch...)
		if len(batch) < pageSize {
			return sigs, true, nil
		}
		last := batch[len(batch)-1]
		if last == nil {
			return sigs, false, nil
		}
		before = last.Signature.String()
	}
	return sigs, false, nil
}

func (c *Client) signaturePage(ctx context.Context, wallet, until, before string, limit int) ([]*rpc.TransactionSignature, error) {
	pk, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet address %q: %w", wallet, err)
	}

	opts := &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: c.commitment,
	}
	if until != "" {
		sig, err := solana.SignatureFromBase58(until)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor signature: %w", err)
		}
		opts.Until = sig
	}
	if before != "" {
		sig, err := solana.SignatureFromBase58(before)
		if err != nil {
			return nil, fmt.Errorf("invalid page signature: %w", err)
		}
		opts.Before = sig
	}

	return retryRPC(ctx, c.logger, "getSignaturesForAddress", func() ([]*rpc.TransactionSignature, error) {
		return c.rpc.GetSignaturesForAddressWithOpts(ctx, pk, opts)
	})
}

// FetchEvent loads a transaction and converts it to the wallet's view of it.
// A transaction that is not yet visible at the read commitment is retried.
func (c *Client) FetchEvent(ctx context.Context, wallet, signature string) (domain.RawEvent, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return domain.RawEvent{}, fmt.Errorf("invalid signature %q: %w", signature, err)
	}

	maxVersion := uint64(0)
	res, err := retryRPC(ctx, c.logger, "getTransaction", func() (*rpc.GetTransactionResult, error) {
		return c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     c.commitment,
			MaxSupportedTransactionVersion: &maxVersion,
		})
	})
	if err != nil {
		return domain.RawEvent{}, fmt.Errorf("failed to fetch transaction %s: %w", signature, err)
	}
	if res == nil || res.Transaction == nil || res.Meta == nil {
		return domain.RawEvent{}, fmt.Errorf("transaction %s has no body", signature)
	}

	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		return domain.RawEvent{}, fmt.Errorf("failed to decode transaction %s: %w", signature, err)
	}

	var blockTime time.Time
	if res.BlockTime != nil {
		blockTime = res.BlockTime.Time().UTC()
	}
	return RawEventFromTransaction(wallet, signature, res.Slot, blockTime, tx, res.Meta), nil
}

// TransactionStatus maps signature status to a domain state. A signature the
// node has never seen is pending until the caller's deadline says otherwise.
func (c *Client) TransactionStatus(ctx context.Context, signature string, searchHistory bool) (domain.TxStatus, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return domain.TxStatus{State: domain.TxUnknown}, fmt.Errorf("invalid signature %q: %w", signature, err)
	}

	res, err := c.rpc.GetSignatureStatuses(ctx, searchHistory, sig)
	if err != nil {
		return domain.TxStatus{State: domain.TxUnknown}, err
	}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return domain.TxStatus{State: domain.TxPending}, nil
	}

	status := res.Value[0]
	if status.Err != nil {
		return domain.TxStatus{State: domain.TxFailed, Err: DescribeTxError(status.Err)}, nil
	}
	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return domain.TxStatus{State: domain.TxConfirmed}, nil
	default:
		return domain.TxStatus{State: domain.TxPending}, nil
	}
}

// SOLBalance returns the native balance of owner in SOL.
func (c *Client) SOLBalance(ctx context.Context, owner string) (decimal.Decimal, error) {
	pk, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid owner %q: %w", owner, err)
	}

	res, err := retryRPC(ctx, c.logger, "getBalance", func() (*rpc.GetBalanceResult, error) {
		return c.rpc.GetBalance(ctx, pk, c.commitment)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromUint64(res.Value).Shift(-domain.SOLDecimals), nil
}

// TokenBalance returns the owner's balance of mint. SOL reads the native
// balance; a missing associated token account is a zero balance.
func (c *Client) TokenBalance(ctx context.Context, owner, mint string) (decimal.Decimal, error) {
	if mint == domain.SOLMint {
		return c.SOLBalance(ctx, owner)
	}

	ownerPK, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid owner %q: %w", owner, err)
	}
	mintPK, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid mint %q: %w", mint, err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(ownerPK, mintPK)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to derive token account: %w", err)
	}

	res, err := c.rpc.GetTokenAccountBalance(ctx, ata, c.commitment)
	if err != nil {
		if IsAccountNotFoundError(err) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	if res == nil || res.Value == nil {
		return decimal.Zero, nil
	}
	return uiAmount(res.Value.Amount, res.Value.Decimals), nil
}

// MintDecimals returns the decimals of mint, cached for the process lifetime.
func (c *Client) MintDecimals(ctx context.Context, mint string) (uint8, error) {
	if mint == domain.SOLMint {
		return domain.SOLDecimals, nil
	}
	if v, ok := c.decimals.Load(mint); ok {
		return v.(uint8), nil
	}

	mintPK, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("invalid mint %q: %w", mint, err)
	}
	res, err := retryRPC(ctx, c.logger, "getTokenSupply", func() (*rpc.GetTokenSupplyResult, error) {
		return c.rpc.GetTokenSupply(ctx, mintPK, c.commitment)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to load mint %s: %w", mint, err)
	}
	if res == nil || res.Value == nil {
		return 0, fmt.Errorf("mint %s has no supply info", mint)
	}

	c.decimals.Store(mint, res.Value.Decimals)
	return res.Value.Decimals, nil
}
