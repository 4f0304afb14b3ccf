package amm

import "math/big"

// Curve prices a swap for one strategy variant. Implementations are pure:
// they never mutate the supplied balances. The set is closed — a curve is
// selected once at strategy construction and never swapped out.
type Curve interface {
	Kind() CurveKind
	// Quote computes the output amount for the supplied input against the
	// committed balance snapshot. A non-nil error marks the quote rejected.
	Quote(dir Direction, amountIn *big.Int, bal Balances) (Quote, error)
	// Conserves re-checks that the accepted quote cannot worsen the curve's
	// implied constant net of fees. It backs the post-settlement
	// verification step and should never fail for a quote this curve issued.
	Conserves(dir Direction, amountIn *big.Int, q Quote, pre Balances) error
}

func newCurve(cfg StrategyConfig) (Curve, error) {
	switch cfg.Kind {
	case CurveConcentrated:
		return &concentratedCurve{
			feeBps:    cfg.FeeBps,
			priceLow:  cfg.PriceLow,
			priceHigh: cfg.PriceHigh,
			precision: cfg.Precision,
		}, nil
	case CurveStableSwap:
		return &hybridCurve{
			feeBps:        cfg.FeeBps,
			amplification: cfg.Amplification,
			precision:     cfg.Precision,
		}, nil
	default:
		return nil, ErrStrategyNotFound
	}
}

// orient resolves the reserve feeding the trade and the reserve being drained
// for the given direction.
func orient(dir Direction, bal Balances) (reserveIn, reserveOut *big.Int) {
	if dir == DirectionOutForIn {
		return bal.TokenOut, bal.TokenIn
	}
	return bal.TokenIn, bal.TokenOut
}

// settledBalances applies the agreed deltas to the snapshot on the configured
// legs, regardless of direction.
func settledBalances(dir Direction, bal Balances, amountIn, amountOut *big.Int) Balances {
	post := bal.Clone()
	if dir == DirectionOutForIn {
		post.TokenOut.Add(post.TokenOut, amountIn)
		post.TokenIn.Sub(post.TokenIn, amountOut)
		return post
	}
	post.TokenIn.Add(post.TokenIn, amountIn)
	post.TokenOut.Sub(post.TokenOut, amountOut)
	return post
}

// marginalPrice reports TokenIn reserve per unit of TokenOut reserve, scaled.
func marginalPrice(bal Balances, precision *big.Int) *big.Int {
	return mulDiv(bal.TokenIn, precision, bal.TokenOut)
}

func validateQuoteInput(dir Direction, amountIn *big.Int, bal Balances) error {
	if !dir.valid() {
		return ErrInvalidAmount
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if !positive(bal.TokenIn) || !positive(bal.TokenOut) {
		return ErrInsufficientLiquidity
	}
	return nil
}
