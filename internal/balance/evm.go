package balance

import (
	"context"
	"fmt"
	"math/big"
	"strings"
)

// balanceOf(address) selector
const erc20BalanceOfSelector = "0x70a08231"

const weiDecimals = 18

// EVMOracle reads native and ERC-20 balances over Ethereum JSON-RPC
type EVMOracle struct {
	rpc *rpcClient
}

// NewEVMOracle creates an oracle for the given JSON-RPC endpoint
func NewEVMOracle(rpcURL string, requestsPerSecond float64) *EVMOracle {
	return &EVMOracle{rpc: newRPCClient(rpcURL, requestsPerSecond)}
}

// NativeBalance returns the ether balance of address at the latest block
func (o *EVMOracle) NativeBalance(ctx context.Context, address string) (float64, error) {
	var result string
	if err := o.rpc.call(ctx, "eth_getBalance", []interface{}{address, "latest"}, &result); err != nil {
		return 0, err
	}
	wei, err := parseHexQuantity(result)
	if err != nil {
		return 0, fmt.Errorf("eth_getBalance: %w", err)
	}
	return toUnits(wei, weiDecimals), nil
}

// TokenBalance calls balanceOf on an ERC-20 contract
func (o *EVMOracle) TokenBalance(ctx context.Context, token, address string, decimals int) (float64, error) {
	addr := strings.TrimPrefix(strings.ToLower(address), "0x")
	if len(addr) != 40 {
		return 0, fmt.Errorf("invalid EVM address %q", address)
	}

	call := map[string]string{
		"to":   token,
		"data": erc20BalanceOfSelector + strings.Repeat("0", 24) + addr,
	}
	var result string
	if err := o.rpc.call(ctx, "eth_call", []interface{}{call, "latest"}, &result); err != nil {
		return 0, err
	}
	amount, err := parseHexQuantity(result)
	if err != nil {
		return 0, fmt.Errorf("balanceOf: %w", err)
	}
	return toUnits(amount, decimals), nil
}

// parseHexQuantity parses a 0x-prefixed hex number. "0x" alone is zero.
func parseHexQuantity(s string) (*big.Int, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, fmt.Errorf("expected hex quantity, got %q", s)
	}
	digits := s[2:]
	if digits == "" {
		return new(big.Int), nil
	}
	value, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity %q", s)
	}
	return value, nil
}
