// internal/parser/parser.go
package parser

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
)

// nativeDust ignores lamport movements that are only fees and rent.
var nativeDust = decimal.RequireFromString("0.01")

var lamportsPerSOL = decimal.New(1, domain.SOLDecimals)

// Parser turns raw wallet transactions into detected swaps.
type Parser struct {
	// RequireKnownDEX drops transactions that invoke no known swap program
	// when program ids are available.
	RequireKnownDEX bool
}

// New returns a parser that requires a known swap program.
func New() *Parser {
	return &Parser{RequireKnownDEX: true}
}

type mintDelta struct {
	mint     string
	delta    decimal.Decimal
	decimals uint8
}

// Parse classifies ev as a swap by the wallet or returns an error wrapping
// domain.ErrNotASwap.
func (p *Parser) Parse(ev domain.RawEvent) (domain.DetectedTrade, error) {
	if ev.Failed {
		return domain.DetectedTrade{}, domain.NotASwap("transaction failed")
	}
	if ev.Signer == "" || ev.Signer != ev.Wallet {
		return domain.DetectedTrade{}, domain.NotASwap("wallet is not the signer")
	}

	dex := ""
	for _, program := range ev.ProgramIDs {
		if name, ok := domain.DEXName(program); ok {
			dex = name
			break
		}
	}
	if dex == "" && p.RequireKnownDEX && len(ev.ProgramIDs) > 0 {
		return domain.DetectedTrade{}, domain.NotASwap("no swap program invoked")
	}

	deltas := walletDeltas(ev)
	if len(deltas) < 2 {
		return domain.DetectedTrade{}, domain.NotASwap("fewer than two balance changes")
	}

	in, out := deltas[0], deltas[len(deltas)-1]
	if !in.delta.IsNegative() || !out.delta.IsPositive() {
		return domain.DetectedTrade{}, domain.NotASwap("no opposing balance changes")
	}
	if in.mint == out.mint {
		return domain.DetectedTrade{}, domain.NotASwap("self transfer")
	}

	ts := ev.BlockTime
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return domain.DetectedTrade{
		Wallet:         ev.Wallet,
		InputMint:      in.mint,
		OutputMint:     out.mint,
		InputAmount:    in.delta.Neg(),
		OutputAmount:   out.delta,
		InputDecimals:  in.decimals,
		OutputDecimals: out.decimals,
		Direction:      domain.ClassifyDirection(in.mint, out.mint),
		DEX:            dex,
		Slot:           ev.Slot,
		Timestamp:      ts,
		Signature:      ev.Signature,
	}, nil
}

// walletDeltas returns non-zero net changes per mint for accounts owned by
// the wallet, sorted from most negative to most positive. Intermediate hops
// of a multi-hop route net out near zero and end up in the middle.
func walletDeltas(ev domain.RawEvent) []mintDelta {
	type acct struct {
		mint     string
		pre      decimal.Decimal
		post     decimal.Decimal
		decimals uint8
	}
	accounts := make(map[uint16]*acct)

	for _, b := range ev.PreTokenBalances {
		if b.Owner != ev.Wallet {
			continue
		}
		accounts[b.AccountIndex] = &acct{mint: b.Mint, pre: b.Amount, decimals: b.Decimals}
	}
	for _, b := range ev.PostTokenBalances {
		if b.Owner != ev.Wallet {
			continue
		}
		a, ok := accounts[b.AccountIndex]
		if !ok {
			a = &acct{mint: b.Mint, decimals: b.Decimals}
			accounts[b.AccountIndex] = a
		}
		a.post = b.Amount
	}

	byMint := make(map[string]*mintDelta)
	for _, a := range accounts {
		d, ok := byMint[a.mint]
		if !ok {
			d = &mintDelta{mint: a.mint, decimals: a.decimals}
			byMint[a.mint] = d
		}
		// An account closed by the swap has no post entry and counts as −pre.
		d.delta = d.delta.Add(a.post.Sub(a.pre))
	}

	if _, hasWSOL := byMint[domain.SOLMint]; !hasWSOL && ev.PreLamports > 0 {
		native := decimal.NewFromInt(int64(ev.PostLamports)).
			Sub(decimal.NewFromInt(int64(ev.PreLamports))).
			Add(decimal.NewFromInt(int64(ev.Fee))).
			Div(lamportsPerSOL)
		if native.Abs().GreaterThan(nativeDust) {
			byMint[domain.SOLMint] = &mintDelta{mint: domain.SOLMint, delta: native, decimals: domain.SOLDecimals}
		}
	}

	out := make([]mintDelta, 0, len(byMint))
	for _, d := range byMint {
		if d.delta.IsZero() {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].delta.Cmp(out[j].delta); c != 0 {
			return c < 0
		}
		return out[i].mint < out[j].mint
	})
	return out
}
