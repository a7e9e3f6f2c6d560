// internal/domain/chain.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Base mints. A swap from one of these into anything else is a buy.
const (
	SOLMint  = "So11111111111111111111111111111111111111112"
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDTMint = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"

	SOLDecimals = 9
)

var baseMints = map[string]struct{}{
	SOLMint:  {},
	USDCMint: {},
	USDTMint: {},
}

// MintSymbol names a base mint for display and shortens anything else.
func MintSymbol(mint string) string {
	switch mint {
	case SOLMint:
		return "SOL"
	case USDCMint:
		return "USDC"
	case USDTMint:
		return "USDT"
	}
	return ShortAddress(mint)
}

// IsBaseMint reports whether mint is SOL or a major stablecoin.
func IsBaseMint(mint string) bool {
	_, ok := baseMints[mint]
	return ok
}

// ClassifyDirection derives the trade direction from the net pair.
func ClassifyDirection(inputMint, outputMint string) Direction {
	inBase, outBase := IsBaseMint(inputMint), IsBaseMint(outputMint)
	switch {
	case inBase && !outBase:
		return DirectionBuy
	case outBase && !inBase:
		return DirectionSell
	default:
		return DirectionUnknown
	}
}

// dexPrograms maps swap program ids to a display name.
var dexPrograms = map[string]string{
	"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4": "Jupiter v6",
	"JUP4Fb2cqiRUcaTHdrPC8h2gNsA2ETXiPDD33WcGuJB": "Jupiter v4",
	"675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8": "Raydium AMM",
	"CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK": "Raydium CLMM",
	"CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C": "Raydium CPMM",
	"whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc":  "Orca Whirlpool",
	"9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP": "Orca v2",
	"LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo":  "Meteora DLMM",
	"Eo7WjKq67rjJQSZxS6z3YkapzY3eMj6Xy8X5EQVn5UaB": "Meteora Pools",
	"6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P":  "Pump.fun",
	"pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA":  "PumpSwap",
}

// DEXName returns the swap venue for a program id.
func DEXName(programID string) (string, bool) {
	name, ok := dexPrograms[programID]
	return name, ok
}

// TokenBalance is one entry of a transaction's pre/post token balances.
type TokenBalance struct {
	AccountIndex uint16
	Owner        string
	Mint         string
	Amount       decimal.Decimal // ui amount
	Decimals     uint8
}

// RawEvent is a transaction touching a watched address, as delivered by the
// chain feed before any interpretation.
type RawEvent struct {
	Wallet            string
	Signature         string
	Slot              uint64
	BlockTime         time.Time
	Failed            bool
	Signer            string
	ProgramIDs        []string
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	PreLamports       uint64
	PostLamports      uint64
	Fee               uint64
}

// TxStatus is the confirmation state of a submitted transaction.
type TxStatus struct {
	State TxState
	Err   string
}

// TxState enumerates confirmation states.
type TxState string

const (
	TxUnknown   TxState = "unknown"
	TxPending   TxState = "pending"
	TxConfirmed TxState = "confirmed"
	TxFailed    TxState = "failed"
)
