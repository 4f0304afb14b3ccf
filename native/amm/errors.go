package amm

import "errors"

var (
	// ErrInvalidAmount rejects non-positive or missing input amounts.
	ErrInvalidAmount = errors.New("amm: amount must be positive")
	// ErrOutOfRange rejects swaps that would move the marginal price outside
	// the configured bounds of a concentrated strategy.
	ErrOutOfRange = errors.New("amm: post-trade price outside configured range")
	// ErrInsufficientLiquidity rejects swaps whose output would meet or exceed
	// the available reserve.
	ErrInsufficientLiquidity = errors.New("amm: insufficient liquidity")
	// ErrSlippageExceeded rejects swaps whose realized output falls below the
	// caller's floor.
	ErrSlippageExceeded = errors.New("amm: output below minimum amount out")
	// ErrReentrancy rejects overlapping swaps on the same strategy instance.
	ErrReentrancy = errors.New("amm: swap already in flight")
	// ErrCallbackFailed reports that the counter-party did not deliver the
	// expected input during the settlement callback.
	ErrCallbackFailed = errors.New("amm: settlement callback did not deliver input")
	// ErrInvariantViolation reports a post-settlement state that fails the
	// conservation check. It should never occur and always aborts.
	ErrInvariantViolation = errors.New("amm: conservation invariant violated")
	// ErrStrategyNotFound reports an unknown strategy identifier.
	ErrStrategyNotFound = errors.New("amm: strategy not found")
	// ErrStrategyExists reports a duplicate strategy identifier.
	ErrStrategyExists = errors.New("amm: strategy already exists")
)
