package balance

import (
	"context"
	"fmt"
	"math/big"
)

const lamportDecimals = 9

// SolanaOracle reads SOL and SPL token balances over Solana JSON-RPC
type SolanaOracle struct {
	rpc *rpcClient
}

// NewSolanaOracle creates an oracle for the given JSON-RPC endpoint
func NewSolanaOracle(rpcURL string, requestsPerSecond float64) *SolanaOracle {
	return &SolanaOracle{rpc: newRPCClient(rpcURL, requestsPerSecond)}
}

// NativeBalance returns the SOL balance of address
func (o *SolanaOracle) NativeBalance(ctx context.Context, address string) (float64, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	if err := o.rpc.call(ctx, "getBalance", []interface{}{address}, &result); err != nil {
		return 0, err
	}
	return toUnits(new(big.Int).SetUint64(result.Value), lamportDecimals), nil
}

// TokenBalance sums every token account of address for the given mint.
// The mint's own decimals are used; the decimals argument is only a fallback.
func (o *SolanaOracle) TokenBalance(ctx context.Context, mint, address string, decimals int) (float64, error) {
	var result struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount struct {
								Amount   string `json:"amount"`
								Decimals *int   `json:"decimals"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}

	params := []interface{}{
		address,
		map[string]string{"mint": mint},
		map[string]string{"encoding": "jsonParsed"},
	}
	if err := o.rpc.call(ctx, "getTokenAccountsByOwner", params, &result); err != nil {
		return 0, err
	}

	var total float64
	for _, account := range result.Value {
		amount := account.Account.Data.Parsed.Info.TokenAmount
		value, ok := new(big.Int).SetString(amount.Amount, 10)
		if !ok {
			return 0, fmt.Errorf("invalid token amount %q", amount.Amount)
		}
		d := decimals
		if amount.Decimals != nil {
			d = *amount.Decimals
		}
		total += toUnits(value, d)
	}
	return total, nil
}
