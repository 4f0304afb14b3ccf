package amm

import "math/big"

// concentratedCurve implements the range-constrained constant product.
// Narrower configured price ranges amplify the effective reserves, deepening
// quoted liquidity without moving real custody.
type concentratedCurve struct {
	feeBps    uint32
	priceLow  *big.Int
	priceHigh *big.Int
	precision *big.Int
}

func (c *concentratedCurve) Kind() CurveKind { return CurveConcentrated }

// rangeMultiplier maps the normalized range width to the liquidity
// amplification tier. Boundaries are inclusive of the lower tier.
func (c *concentratedCurve) rangeMultiplier() *big.Int {
	width := new(big.Int).Sub(c.priceHigh, c.priceLow)
	width = mulDiv(width, c.precision, c.priceLow)

	tight := new(big.Int).Quo(c.precision, big.NewInt(10))
	moderate := new(big.Int).Quo(c.precision, big.NewInt(2))
	switch {
	case width.Cmp(tight) <= 0:
		return new(big.Int).Lsh(c.precision, 1) // 2.0x
	case width.Cmp(moderate) <= 0:
		mult := new(big.Int).Mul(c.precision, big.NewInt(3))
		return mult.Quo(mult, big.NewInt(2)) // 1.5x
	default:
		return cloneBigInt(c.precision) // plain constant product
	}
}

func (c *concentratedCurve) Quote(dir Direction, amountIn *big.Int, bal Balances) (Quote, error) {
	if err := validateQuoteInput(dir, amountIn, bal); err != nil {
		return Quote{}, err
	}
	amountInWithFee := applyFeeBps(amountIn, c.feeBps)
	if amountInWithFee.Sign() <= 0 {
		return Quote{}, ErrInvalidAmount
	}

	multiplier := c.rangeMultiplier()
	reserveIn, reserveOut := orient(dir, bal)
	effIn := mulDiv(reserveIn, multiplier, c.precision)
	effOut := mulDiv(reserveOut, multiplier, c.precision)

	denominator := new(big.Int).Add(effIn, amountInWithFee)
	amountOut := mulDiv(amountInWithFee, effOut, denominator)
	if amountOut.Cmp(reserveOut) >= 0 {
		return Quote{}, ErrInsufficientLiquidity
	}

	// The range is a statement about the actual tradeable price, so the
	// post-trade check runs on real balances with the full pre-fee input.
	post := settledBalances(dir, bal, amountIn, amountOut)
	priceAfter := marginalPrice(post, c.precision)
	if priceAfter.Cmp(c.priceLow) < 0 || priceAfter.Cmp(c.priceHigh) > 0 {
		return Quote{}, ErrOutOfRange
	}

	return Quote{
		Direction:           dir,
		AmountIn:            cloneBigInt(amountIn),
		AmountOut:           amountOut,
		EffectiveMultiplier: multiplier,
		PriceAfter:          priceAfter,
	}, nil
}

// Conserves checks that the swap cannot shrink the effective product tracked
// by the formula: (effIn + amountInWithFee) * (effOut - amountOut) must be at
// least effIn * effOut. Fee revenue and round-down output guarantee this for
// every quote the curve issues.
func (c *concentratedCurve) Conserves(dir Direction, amountIn *big.Int, q Quote, pre Balances) error {
	if amountIn == nil || q.AmountOut == nil {
		return ErrInvariantViolation
	}
	amountInWithFee := applyFeeBps(amountIn, c.feeBps)
	multiplier := c.rangeMultiplier()
	reserveIn, reserveOut := orient(dir, pre)
	effIn := mulDiv(reserveIn, multiplier, c.precision)
	effOut := mulDiv(reserveOut, multiplier, c.precision)

	before := new(big.Int).Mul(effIn, effOut)
	afterIn := new(big.Int).Add(effIn, amountInWithFee)
	afterOut := new(big.Int).Sub(effOut, q.AmountOut)
	if afterOut.Sign() <= 0 {
		return ErrInvariantViolation
	}
	after := new(big.Int).Mul(afterIn, afterOut)
	if after.Cmp(before) < 0 {
		return ErrInvariantViolation
	}
	return nil
}
