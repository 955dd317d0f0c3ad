// Package balance implements the admission gate that checks an owner's
// on-chain balance before an agent is deployed or started.
package balance

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	cache "github.com/patrickmn/go-cache"

	"github.com/pyanoxyz/agent-generator/internal/apperror"
	"github.com/pyanoxyz/agent-generator/internal/config"
	"github.com/pyanoxyz/agent-generator/internal/logging"
	"github.com/pyanoxyz/agent-generator/internal/metrics"
)

// Oracle reads balances for one network, in whole units
type Oracle interface {
	NativeBalance(ctx context.Context, address string) (float64, error)
	TokenBalance(ctx context.Context, token, address string, decimals int) (float64, error)
}

// Tier pairs a configured threshold with the oracle that serves it
type Tier struct {
	config.BalanceTier
	Oracle Oracle
}

// Gate enforces the minimum-balance admission policy
type Gate struct {
	tiers   []Tier
	enforce bool
	cache   *cache.Cache
}

var evmAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// NewGate builds one oracle per configured tier. The gate only enforces in production.
func NewGate(cfg config.BalanceConfig, production bool) *Gate {
	tiers := make([]Tier, 0, len(cfg.Tiers))
	for _, t := range cfg.Tiers {
		var oracle Oracle
		switch t.Chain {
		case "solana":
			oracle = NewSolanaOracle(t.RPCURL, cfg.RPCPerSec)
		default:
			oracle = NewEVMOracle(t.RPCURL, cfg.RPCPerSec)
		}
		tiers = append(tiers, Tier{BalanceTier: t, Oracle: oracle})
	}
	return NewGateWithTiers(tiers, production, cfg.CacheTTL)
}

// NewGateWithTiers creates a gate over prepared tiers. A zero cacheTTL disables caching.
func NewGateWithTiers(tiers []Tier, enforce bool, cacheTTL time.Duration) *Gate {
	g := &Gate{tiers: tiers, enforce: enforce}
	if cacheTTL > 0 {
		g.cache = cache.New(cacheTTL, 2*cacheTTL)
	}
	return g
}

// Enforced reports whether admission is actually checked
func (g *Gate) Enforced() bool {
	return g.enforce
}

// CheckAdmission passes when any tier reports a sufficient native or token
// balance for address. Outside production it always passes.
func (g *Gate) CheckAdmission(ctx context.Context, address string) error {
	if !g.enforce {
		metrics.RecordBalanceCheck("bypassed")
		return nil
	}

	var (
		requirements []string
		firstErr     error
	)

	for _, tier := range g.tiers {
		if !addressMatchesChain(tier.Chain, address) {
			continue
		}
		requirements = append(requirements, describeTier(tier))

		ok, err := g.checkTier(ctx, tier, address)
		if ok {
			metrics.RecordBalanceCheck("passed")
			return nil
		}
		if err != nil {
			log.Printf("⚠️  [BALANCE] Tier %s failed for %s: %v", tier.Name, logging.ShortAddress(address), err)
			if firstErr == nil {
				firstErr = fmt.Errorf("tier %s: %w", tier.Name, err)
			}
		}
	}

	if firstErr != nil {
		metrics.RecordBalanceCheck("error")
		return apperror.Wrap(apperror.ExternalServiceError, firstErr, "balance oracle unavailable")
	}

	metrics.RecordBalanceCheck("insufficient")
	if len(requirements) == 0 {
		return apperror.New(apperror.InsufficientBalance, "no balance tier is configured for address %s", address)
	}
	return apperror.New(apperror.InsufficientBalance, "insufficient balance: requires %s", strings.Join(requirements, " or "))
}

// checkTier queries native first and falls back to the token threshold.
// A tier with a token threshold and no native minimum is token-only.
func (g *Gate) checkTier(ctx context.Context, tier Tier, address string) (bool, error) {
	hasToken := tier.hasTokenThreshold()

	var nativeErr error
	if tier.MinNative > 0 || !hasToken {
		var native float64
		native, nativeErr = g.cached(tier.Name+":native:"+address, func() (float64, error) {
			return tier.Oracle.NativeBalance(ctx, address)
		})
		if nativeErr == nil && native >= tier.MinNative {
			return true, nil
		}
	}

	if !hasToken {
		return false, nativeErr
	}

	token, tokenErr := g.cached(tier.Name+":token:"+address, func() (float64, error) {
		return tier.Oracle.TokenBalance(ctx, tier.TokenAddress, address, tier.TokenDecimals)
	})
	if tokenErr == nil && token >= tier.MinToken {
		return true, nil
	}

	if tokenErr != nil {
		return false, tokenErr
	}
	return false, nativeErr
}

func (g *Gate) cached(key string, fetch func() (float64, error)) (float64, error) {
	if g.cache == nil {
		return fetch()
	}
	if v, found := g.cache.Get(key); found {
		return v.(float64), nil
	}
	value, err := fetch()
	if err != nil {
		return 0, err
	}
	g.cache.SetDefault(key, value)
	return value, nil
}

func (t Tier) hasTokenThreshold() bool {
	return t.TokenAddress != "" && t.MinToken > 0
}

func describeTier(tier Tier) string {
	token := fmt.Sprintf("%g of token %s on %s", tier.MinToken, tier.TokenAddress, tier.Name)
	switch {
	case !tier.hasTokenThreshold():
		return fmt.Sprintf("%g native on %s", tier.MinNative, tier.Name)
	case tier.MinNative <= 0:
		return token
	default:
		return fmt.Sprintf("%g native or %s", tier.MinNative, token)
	}
}

func addressMatchesChain(chain, address string) bool {
	switch chain {
	case "solana":
		key, err := base58.Decode(address)
		return err == nil && len(key) == 32
	default:
		return evmAddressPattern.MatchString(address)
	}
}
