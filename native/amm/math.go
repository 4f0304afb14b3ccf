package amm

import "math/big"

var (
	basisPoints = big.NewInt(10_000)
	// defaultPrecision scales all ratio math to 1e18 fixed point.
	defaultPrecision = mustBigInt("1000000000000000000")
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// mulDiv computes a*b/den rounded down. The desk never pays out more than the
// formula implies, so every payout-facing quantity rounds toward zero.
func mulDiv(a, b, den *big.Int) *big.Int {
	if a == nil || b == nil || den == nil || den.Sign() == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, den)
}

// applyFeeBps strips the fee from the input amount before curve evaluation,
// rounding down so the fee retained by the pool is never understated.
func applyFeeBps(amount *big.Int, feeBps uint32) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	keep := new(big.Int).Sub(basisPoints, big.NewInt(int64(feeBps)))
	return mulDiv(amount, keep, basisPoints)
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
