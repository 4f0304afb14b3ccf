package amm

import (
	"errors"
	"math/big"
	"testing"
)

func scaled(n int64, den int64) *big.Int {
	v := new(big.Int).Mul(defaultPrecision, big.NewInt(n))
	return v.Quo(v, big.NewInt(den))
}

func concentratedConfig(low, high *big.Int, feeBps uint32) StrategyConfig {
	return StrategyConfig{
		Maker:     "maker-1",
		TokenIn:   "USDC",
		TokenOut:  "ETH",
		FeeBps:    feeBps,
		Kind:      CurveConcentrated,
		PriceLow:  low,
		PriceHigh: high,
	}
}

func mustCurve(t *testing.T, cfg StrategyConfig) Curve {
	t.Helper()
	normalized, err := cfg.Normalize()
	if err != nil {
		t.Fatalf("normalize config: %v", err)
	}
	curve, err := newCurve(normalized)
	if err != nil {
		t.Fatalf("new curve: %v", err)
	}
	return curve
}

func evenBalances(n int64) Balances {
	return Balances{TokenIn: big.NewInt(n), TokenOut: big.NewInt(n)}
}

func TestRangeMultiplierTiers(t *testing.T) {
	amountIn := big.NewInt(10_000)
	balances := evenBalances(1_000_000)

	cases := []struct {
		name     string
		low      *big.Int
		high     *big.Int
		wantMult *big.Int
	}{
		// width 8% -> 2.0x
		{"tight", scaled(96, 100), scaled(10368, 10000), new(big.Int).Lsh(defaultPrecision, 1)},
		// width exactly 50% -> 1.5x (boundary inclusive of the lower tier)
		{"moderate", scaled(8, 10), scaled(12, 10), scaled(3, 2)},
		// width 75% -> plain constant product
		{"wide", scaled(8, 10), scaled(14, 10), cloneBigInt(defaultPrecision)},
	}

	var outputs []*big.Int
	for _, tc := range cases {
		curve := mustCurve(t, concentratedConfig(tc.low, tc.high, 30))
		quote, err := curve.Quote(DirectionInForOut, amountIn, balances)
		if err != nil {
			t.Fatalf("%s: quote: %v", tc.name, err)
		}
		if quote.EffectiveMultiplier.Cmp(tc.wantMult) != 0 {
			t.Fatalf("%s: multiplier = %s, want %s", tc.name, quote.EffectiveMultiplier, tc.wantMult)
		}
		outputs = append(outputs, quote.AmountOut)
	}

	// Deeper effective liquidity must strictly improve the output for the
	// same input.
	if outputs[0].Cmp(outputs[1]) <= 0 || outputs[1].Cmp(outputs[2]) <= 0 {
		t.Fatalf("expected strictly better output for narrower ranges: %v", outputs)
	}
}

func TestConcentratedQuoteMatchesFormula(t *testing.T) {
	// Plain constant product tier: multiplier 1.0x keeps the arithmetic
	// auditable by hand.
	curve := mustCurve(t, concentratedConfig(scaled(8, 10), scaled(14, 10), 30))
	balances := evenBalances(1_000_000)
	amountIn := big.NewInt(10_000)

	quote, err := curve.Quote(DirectionInForOut, amountIn, balances)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	// amountInWithFee = 10_000 * 9970 / 10000 = 9_970
	// amountOut = 9_970 * 1_000_000 / 1_009_970 = 9_871 (floor)
	if quote.AmountOut.Cmp(big.NewInt(9_871)) != 0 {
		t.Fatalf("amountOut = %s, want 9871", quote.AmountOut)
	}
	// priceAfter = 1_010_000 * precision / 990_129
	wantPrice := mulDiv(big.NewInt(1_010_000), defaultPrecision, big.NewInt(990_129))
	if quote.PriceAfter.Cmp(wantPrice) != 0 {
		t.Fatalf("priceAfter = %s, want %s", quote.PriceAfter, wantPrice)
	}
}

func TestConcentratedOutOfRangeRejected(t *testing.T) {
	low := new(big.Int).Mul(defaultPrecision, big.NewInt(1900))
	high := new(big.Int).Mul(defaultPrecision, big.NewInt(2100))
	curve := mustCurve(t, concentratedConfig(low, high, 30))
	balances := Balances{
		TokenIn:  big.NewInt(2_000_000_000),
		TokenOut: big.NewInt(1_000_000),
	}

	// A small trade keeps the price inside the configured bounds.
	if _, err := curve.Quote(DirectionInForOut, big.NewInt(1_000_000), balances); err != nil {
		t.Fatalf("small trade should stay in range: %v", err)
	}

	// A large trade would push the marginal price past 2100; it must be
	// rejected rather than clamped.
	_, err := curve.Quote(DirectionInForOut, big.NewInt(200_000_000), balances)
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestConcentratedInsufficientLiquidity(t *testing.T) {
	curve := mustCurve(t, concentratedConfig(scaled(96, 100), scaled(10368, 10000), 30))
	balances := Balances{TokenIn: big.NewInt(1_000), TokenOut: big.NewInt(10)}
	// The 2x tier amplifies effective reserves enough that the raw formula
	// output would drain the real reserve.
	_, err := curve.Quote(DirectionInForOut, big.NewInt(100_000), balances)
	if !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
}

func TestQuoteRejectsInvalidAmount(t *testing.T) {
	curve := mustCurve(t, concentratedConfig(scaled(8, 10), scaled(14, 10), 30))
	balances := evenBalances(1_000_000)
	for _, amount := range []*big.Int{nil, big.NewInt(0), big.NewInt(-5)} {
		if _, err := curve.Quote(DirectionInForOut, amount, balances); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %v: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	if _, err := curve.Quote(Direction("sideways"), big.NewInt(10), balances); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for bad direction, got %v", err)
	}
}

func TestConcentratedConservation(t *testing.T) {
	curve := mustCurve(t, concentratedConfig(scaled(5, 10), scaled(20, 10), 30))
	balances := evenBalances(1_000_000)

	product := func(b Balances) *big.Int { return new(big.Int).Mul(b.TokenIn, b.TokenOut) }
	before := product(balances)
	for i := 0; i < 8; i++ {
		quote, err := curve.Quote(DirectionInForOut, big.NewInt(25_000), balances)
		if err != nil {
			t.Fatalf("swap %d: %v", i, err)
		}
		if err := curve.Conserves(DirectionInForOut, quote.AmountIn, quote, balances); err != nil {
			t.Fatalf("swap %d: conservation: %v", i, err)
		}
		balances = settledBalances(DirectionInForOut, balances, quote.AmountIn, quote.AmountOut)
		after := product(balances)
		if after.Cmp(before) < 0 {
			t.Fatalf("swap %d: product decreased: %s -> %s", i, before, after)
		}
		before = after
	}
}

func TestConcentratedReverseDirection(t *testing.T) {
	low := new(big.Int).Mul(defaultPrecision, big.NewInt(1900))
	high := new(big.Int).Mul(defaultPrecision, big.NewInt(2100))
	curve := mustCurve(t, concentratedConfig(low, high, 30))
	balances := Balances{
		TokenIn:  big.NewInt(2_000_000_000),
		TokenOut: big.NewInt(1_000_000),
	}
	quote, err := curve.Quote(DirectionOutForIn, big.NewInt(1_000), balances)
	if err != nil {
		t.Fatalf("reverse quote: %v", err)
	}
	// Selling TokenOut into the pool lowers the marginal price.
	priceBefore := marginalPrice(balances, defaultPrecision)
	if quote.PriceAfter.Cmp(priceBefore) >= 0 {
		t.Fatalf("reverse swap should lower price: before %s after %s", priceBefore, quote.PriceAfter)
	}
	if quote.PriceAfter.Cmp(low) < 0 {
		t.Fatalf("price unexpectedly out of range: %s", quote.PriceAfter)
	}
}
