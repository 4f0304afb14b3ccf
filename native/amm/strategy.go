package amm

import (
	"math/big"
	"sync/atomic"
)

// Strategy binds an immutable configuration, its pricing curve, and the
// maker's virtual balance account. At most one swap is in flight per instance
// at any time; quotes run concurrently against committed balances.
type Strategy struct {
	id        string
	cfg       StrategyConfig
	curve     Curve
	account   *VirtualBalanceAccount
	createdAt int64
	inFlight  atomic.Bool
}

// NewStrategy validates the configuration and funds the virtual account.
func NewStrategy(cfg StrategyConfig, initialIn, initialOut *big.Int, nonce [32]byte, createdAt int64) (*Strategy, error) {
	normalized, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}
	curve, err := newCurve(normalized)
	if err != nil {
		return nil, err
	}
	account, err := NewVirtualBalanceAccount(initialIn, initialOut)
	if err != nil {
		return nil, err
	}
	return &Strategy{
		id:        StrategyID(normalized.Maker, normalized.TokenIn, normalized.TokenOut, nonce),
		cfg:       normalized,
		curve:     curve,
		account:   account,
		createdAt: createdAt,
	}, nil
}

// ID returns the deterministic strategy identifier.
func (s *Strategy) ID() string { return s.id }

// Config returns a copy of the immutable configuration.
func (s *Strategy) Config() StrategyConfig {
	cfg := s.cfg
	cfg.PriceLow = cloneBigInt(s.cfg.PriceLow)
	cfg.PriceHigh = cloneBigInt(s.cfg.PriceHigh)
	cfg.Precision = cloneBigInt(s.cfg.Precision)
	return cfg
}

// CreatedAt returns the creation timestamp in unix seconds.
func (s *Strategy) CreatedAt() int64 { return s.createdAt }

// Balances returns a snapshot of the committed reserves.
func (s *Strategy) Balances() Balances { return s.account.Snapshot() }

// Quote prices the swap against committed balances with no side effects.
func (s *Strategy) Quote(dir Direction, amountIn *big.Int) (Quote, error) {
	return s.curve.Quote(dir, amountIn, s.account.Snapshot())
}

// legs resolves the token the taker must push and the token pulled to the
// taker for the given direction.
func (s *Strategy) legs(dir Direction) (push, pull string) {
	if dir == DirectionOutForIn {
		return s.cfg.TokenOut, s.cfg.TokenIn
	}
	return s.cfg.TokenIn, s.cfg.TokenOut
}

// beginSwap acquires the per-instance reentrancy lock without blocking.
func (s *Strategy) beginSwap() bool { return s.inFlight.CompareAndSwap(false, true) }

func (s *Strategy) endSwap() { s.inFlight.Store(false) }
