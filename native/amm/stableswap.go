package amm

import "math/big"

// hybridCurve blends a constant-sum leg with a constant-product leg. The
// amplification factor A sets the blend weight A/(A+1): high A approaches
// constant-sum pricing (near-zero slippage for pegged pairs), A near 1 falls
// back toward standard constant-product slippage.
type hybridCurve struct {
	feeBps        uint32
	amplification uint64
	precision     *big.Int
}

func (h *hybridCurve) Kind() CurveKind { return CurveStableSwap }

// weight returns A/(A+1) scaled by the strategy precision.
func (h *hybridCurve) weight() *big.Int {
	a := new(big.Int).SetUint64(h.amplification)
	num := new(big.Int).Mul(h.precision, a)
	return num.Quo(num, new(big.Int).Add(a, big.NewInt(1)))
}

func (h *hybridCurve) Quote(dir Direction, amountIn *big.Int, bal Balances) (Quote, error) {
	if err := validateQuoteInput(dir, amountIn, bal); err != nil {
		return Quote{}, err
	}
	amountInWithFee := applyFeeBps(amountIn, h.feeBps)
	if amountInWithFee.Sign() <= 0 {
		return Quote{}, ErrInvalidAmount
	}

	reserveIn, reserveOut := orient(dir, bal)
	weight := h.weight()

	constantSumOut := amountInWithFee
	denominator := new(big.Int).Add(reserveIn, amountInWithFee)
	constantProductOut := mulDiv(amountInWithFee, reserveOut, denominator)

	blended := new(big.Int).Mul(weight, constantSumOut)
	remainder := new(big.Int).Sub(h.precision, weight)
	blended.Add(blended, new(big.Int).Mul(remainder, constantProductOut))
	amountOut := blended.Quo(blended, h.precision)

	// When reserves are imbalanced toward the outgoing leg the product leg
	// can exceed the sum leg. The payout is capped at the post-fee input so
	// the sum of reserves never shrinks on a committed swap.
	if amountOut.Cmp(constantSumOut) > 0 {
		amountOut = cloneBigInt(constantSumOut)
	}

	// Full depletion is forbidden even when the blend would allow it.
	if amountOut.Cmp(reserveOut) >= 0 {
		return Quote{}, ErrInsufficientLiquidity
	}

	// No price-range constraint: the curve targets pegged pairs and accepts
	// any marginal price.
	post := settledBalances(dir, bal, amountIn, amountOut)
	return Quote{
		Direction:           dir,
		AmountIn:            cloneBigInt(amountIn),
		AmountOut:           amountOut,
		EffectiveMultiplier: weight,
		PriceAfter:          marginalPrice(post, h.precision),
	}, nil
}

// Conserves checks the blended invariant: the output can never exceed the
// constant-sum leg, so the sum of reserves net of fees is non-decreasing
// across every committed swap.
func (h *hybridCurve) Conserves(dir Direction, amountIn *big.Int, q Quote, pre Balances) error {
	if amountIn == nil || q.AmountOut == nil {
		return ErrInvariantViolation
	}
	amountInWithFee := applyFeeBps(amountIn, h.feeBps)
	if q.AmountOut.Cmp(amountInWithFee) > 0 {
		return ErrInvariantViolation
	}
	post := settledBalances(dir, pre, amountIn, q.AmountOut)
	if post.TokenIn.Sign() <= 0 || post.TokenOut.Sign() <= 0 {
		return ErrInvariantViolation
	}
	before := new(big.Int).Add(pre.TokenIn, pre.TokenOut)
	after := new(big.Int).Add(post.TokenIn, post.TokenOut)
	if after.Cmp(before) < 0 {
		return ErrInvariantViolation
	}
	return nil
}
