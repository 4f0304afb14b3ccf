package amm

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// CurveKind enumerates the closed set of pricing formulas a strategy may use.
type CurveKind string

const (
	// CurveConcentrated prices against a range-constrained constant product.
	CurveConcentrated CurveKind = "concentrated"
	// CurveStableSwap prices against a hybrid constant-sum/constant-product blend.
	CurveStableSwap CurveKind = "stableswap"
)

// Direction selects which configured leg the taker supplies.
type Direction string

const (
	// DirectionInForOut means the taker supplies TokenIn and receives TokenOut.
	DirectionInForOut Direction = "in_for_out"
	// DirectionOutForIn means the taker supplies TokenOut and receives TokenIn.
	DirectionOutForIn Direction = "out_for_in"
)

func (d Direction) valid() bool {
	return d == DirectionInForOut || d == DirectionOutForIn
}

// StrategyConfig fixes the parameters of a strategy instance at creation time.
// It is never mutated afterwards.
type StrategyConfig struct {
	Maker    string
	TokenIn  string
	TokenOut string
	FeeBps   uint32
	Kind     CurveKind

	// Concentrated parameters: inclusive marginal-price bounds, scaled by
	// Precision, measured as TokenIn reserve per unit of TokenOut reserve.
	PriceLow  *big.Int
	PriceHigh *big.Int

	// StableSwap parameter: amplification factor A >= 1. Higher values bias
	// toward constant-sum behaviour.
	Amplification uint64

	// Precision is the fixed scaling constant for all ratio math. Defaults
	// to 1e18 when unset.
	Precision *big.Int
}

// Normalize trims identifiers, defaults the precision, and validates the
// configuration. It returns a sanitized copy.
func (c StrategyConfig) Normalize() (StrategyConfig, error) {
	cfg := c
	cfg.Maker = strings.TrimSpace(c.Maker)
	cfg.TokenIn = strings.ToUpper(strings.TrimSpace(c.TokenIn))
	cfg.TokenOut = strings.ToUpper(strings.TrimSpace(c.TokenOut))
	if cfg.Maker == "" {
		return cfg, fmt.Errorf("amm: maker required")
	}
	if cfg.TokenIn == "" || cfg.TokenOut == "" {
		return cfg, fmt.Errorf("amm: token pair required")
	}
	if cfg.TokenIn == cfg.TokenOut {
		return cfg, fmt.Errorf("amm: token legs must differ")
	}
	if cfg.FeeBps >= 10_000 {
		return cfg, fmt.Errorf("amm: fee bps out of range")
	}
	if cfg.Precision == nil {
		cfg.Precision = defaultPrecision
	} else if cfg.Precision.Sign() <= 0 {
		return cfg, fmt.Errorf("amm: precision must be positive")
	} else {
		cfg.Precision = cloneBigInt(cfg.Precision)
	}
	switch cfg.Kind {
	case CurveConcentrated:
		if !positive(cfg.PriceLow) || !positive(cfg.PriceHigh) {
			return cfg, fmt.Errorf("amm: price bounds must be positive")
		}
		if cfg.PriceLow.Cmp(cfg.PriceHigh) > 0 {
			return cfg, fmt.Errorf("amm: price bounds inverted")
		}
		cfg.PriceLow = cloneBigInt(cfg.PriceLow)
		cfg.PriceHigh = cloneBigInt(cfg.PriceHigh)
	case CurveStableSwap:
		if cfg.Amplification < 1 {
			return cfg, fmt.Errorf("amm: amplification must be at least 1")
		}
	default:
		return cfg, fmt.Errorf("amm: unknown curve kind %q", cfg.Kind)
	}
	return cfg, nil
}

// Balances is a committed snapshot of the two reserves on the configured legs.
type Balances struct {
	TokenIn  *big.Int
	TokenOut *big.Int
}

// Clone returns a deep copy of the snapshot.
func (b Balances) Clone() Balances {
	return Balances{TokenIn: cloneBigInt(b.TokenIn), TokenOut: cloneBigInt(b.TokenOut)}
}

// Quote is the ephemeral result of a pricing calculation. Acceptance is
// reported through the accompanying error.
type Quote struct {
	Direction Direction
	AmountIn  *big.Int
	AmountOut *big.Int
	// EffectiveMultiplier is the range multiplier (concentrated) or the
	// constant-sum weight (stableswap), scaled by the strategy precision.
	EffectiveMultiplier *big.Int
	// PriceAfter is the post-trade marginal price on real balances, scaled
	// by the strategy precision.
	PriceAfter *big.Int
}

// StrategyID derives the deterministic identifier for a strategy instance.
func StrategyID(maker, tokenIn, tokenOut string, nonce [32]byte) string {
	hash := ethcrypto.Keccak256Hash(
		[]byte(strings.TrimSpace(maker)),
		[]byte(strings.ToUpper(strings.TrimSpace(tokenIn))),
		[]byte(strings.ToUpper(strings.TrimSpace(tokenOut))),
		nonce[:],
	)
	return hex.EncodeToString(hash[:])
}
