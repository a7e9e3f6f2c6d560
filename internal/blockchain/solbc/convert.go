// internal/blockchain/solbc/convert.go
package solbc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
)

// RawEventFromTransaction flattens a fetched transaction into the wallet's
// balance view. Token balances keep their owner so the parser can select the
// wallet's accounts; lamports are read from the wallet's own account index.
func RawEventFromTransaction(wallet, signature string, slot uint64, blockTime time.Time, tx *solana.Transaction, meta *rpc.TransactionMeta) domain.RawEvent {
	ev := domain.RawEvent{
		Wallet:    wallet,
		Signature: signature,
		Slot:      slot,
		BlockTime: blockTime,
	}
	if meta != nil {
		ev.Failed = meta.Err != nil
		ev.Fee = meta.Fee
		ev.PreTokenBalances = tokenBalances(meta.PreTokenBalances)
		ev.PostTokenBalances = tokenBalances(meta.PostTokenBalances)
	}
	if tx == nil {
		return ev
	}

	keys := tx.Message.AccountKeys
	if len(keys) > 0 {
		ev.Signer = keys[0].String()
	}

	for i, key := range keys {
		if key.String() != wallet || meta == nil {
			continue
		}
		if i < len(meta.PreBalances) {
			ev.PreLamports = meta.PreBalances[i]
		}
		if i < len(meta.PostBalances) {
			ev.PostLamports = meta.PostBalances[i]
		}
		break
	}

	seen := make(map[string]struct{})
	addProgram := func(idx uint16) {
		if int(idx) >= len(keys) {
			return
		}
		id := keys[idx].String()
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ev.ProgramIDs = append(ev.ProgramIDs, id)
	}
	for _, inst := range tx.Message.Instructions {
		addProgram(inst.ProgramIDIndex)
	}
	if meta != nil {
		for _, inner := range meta.InnerInstructions {
			for _, inst := range inner.Instructions {
				addProgram(inst.ProgramIDIndex)
			}
		}
	}
	return ev
}

func tokenBalances(in []rpc.TokenBalance) []domain.TokenBalance {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.TokenBalance, 0, len(in))
	for _, b := range in {
		if b.UiTokenAmount == nil {
			continue
		}
		owner := ""
		if b.Owner != nil {
			owner = b.Owner.String()
		}
		out = append(out, domain.TokenBalance{
			AccountIndex: b.AccountIndex,
			Owner:        owner,
			Mint:         b.Mint.String(),
			Amount:       uiAmount(b.UiTokenAmount.Amount, b.UiTokenAmount.Decimals),
			Decimals:     b.UiTokenAmount.Decimals,
		})
	}
	return out
}

// uiAmount converts a raw integer amount string into token units.
func uiAmount(raw string, decimals uint8) decimal.Decimal {
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return v.Shift(-int32(decimals))
}

// DescribeTxError renders a transaction error value from RPC as text.
func DescribeTxError(txErr interface{}) string {
	if txErr == nil {
		return ""
	}
	if s, ok := txErr.(string); ok {
		return s
	}
	b, err := json.Marshal(txErr)
	if err != nil {
		return fmt.Sprintf("%v", txErr)
	}
	return string(b)
}
