package amm

import (
	"errors"
	"math/big"
	"testing"
)

func TestVirtualBalanceAccountCommit(t *testing.T) {
	account, err := NewVirtualBalanceAccount(big.NewInt(1_000), big.NewInt(500))
	if err != nil {
		t.Fatalf("new account: %v", err)
	}
	if err := account.Commit(DirectionInForOut, big.NewInt(100), big.NewInt(40)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	snap := account.Snapshot()
	if snap.TokenIn.Cmp(big.NewInt(1_100)) != 0 || snap.TokenOut.Cmp(big.NewInt(460)) != 0 {
		t.Fatalf("snapshot = %s/%s", snap.TokenIn, snap.TokenOut)
	}

	// Mutating the snapshot must not leak into committed state.
	snap.TokenIn.SetInt64(0)
	if account.Snapshot().TokenIn.Cmp(big.NewInt(1_100)) != 0 {
		t.Fatalf("snapshot aliases internal state")
	}
}

func TestVirtualBalanceAccountRejectsOverdraw(t *testing.T) {
	account, err := NewVirtualBalanceAccount(big.NewInt(100), big.NewInt(100))
	if err != nil {
		t.Fatalf("new account: %v", err)
	}
	if err := account.Commit(DirectionInForOut, big.NewInt(10), big.NewInt(200)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
	// The whole mutation is rejected: neither side moved.
	snap := account.Snapshot()
	if snap.TokenIn.Cmp(big.NewInt(100)) != 0 || snap.TokenOut.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("partial commit observable: %s/%s", snap.TokenIn, snap.TokenOut)
	}
}

func TestVirtualBalanceAccountReverseDirection(t *testing.T) {
	account, err := NewVirtualBalanceAccount(big.NewInt(1_000), big.NewInt(1_000))
	if err != nil {
		t.Fatalf("new account: %v", err)
	}
	if err := account.Commit(DirectionOutForIn, big.NewInt(50), big.NewInt(30)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	snap := account.Snapshot()
	if snap.TokenOut.Cmp(big.NewInt(1_050)) != 0 || snap.TokenIn.Cmp(big.NewInt(970)) != 0 {
		t.Fatalf("snapshot = %s/%s", snap.TokenIn, snap.TokenOut)
	}
}

func TestNormalizeValidation(t *testing.T) {
	base := hybridConfig(10, 4)

	cases := []struct {
		name   string
		mutate func(*StrategyConfig)
	}{
		{"missing maker", func(c *StrategyConfig) { c.Maker = " " }},
		{"same legs", func(c *StrategyConfig) { c.TokenOut = c.TokenIn }},
		{"fee too high", func(c *StrategyConfig) { c.FeeBps = 10_000 }},
		{"zero amplification", func(c *StrategyConfig) { c.Amplification = 0 }},
		{"unknown curve", func(c *StrategyConfig) { c.Kind = CurveKind("parabolic") }},
	}
	for _, tc := range cases {
		cfg := base
		tc.mutate(&cfg)
		if _, err := cfg.Normalize(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}

	concentrated := concentratedConfig(scaled(12, 10), scaled(8, 10), 30)
	if _, err := concentrated.Normalize(); err == nil {
		t.Fatalf("inverted bounds: expected error")
	}

	normalized, err := StrategyConfig{
		Maker: " maker-1 ", TokenIn: "usdc", TokenOut: "eth",
		FeeBps: 30, Kind: CurveStableSwap, Amplification: 2,
	}.Normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if normalized.Maker != "maker-1" || normalized.TokenIn != "USDC" || normalized.TokenOut != "ETH" {
		t.Fatalf("identifiers not normalized: %+v", normalized)
	}
	if normalized.Precision.Cmp(defaultPrecision) != 0 {
		t.Fatalf("precision not defaulted")
	}
}

func TestStrategyIDStable(t *testing.T) {
	a := StrategyID("maker-1", "usdc", "eth", [32]byte{1})
	b := StrategyID(" maker-1 ", "USDC", "ETH", [32]byte{1})
	if a != b {
		t.Fatalf("id not stable under normalization: %s vs %s", a, b)
	}
	if a == StrategyID("maker-1", "usdc", "eth", [32]byte{2}) {
		t.Fatalf("nonce not part of id derivation")
	}
}
