package amm

import (
	"fmt"
	"math/big"
	"sync"
)

// VirtualBalanceAccount tracks a maker's effective reserves for pricing,
// decoupled from real custody movement until settlement. It is mutated only
// by a committed swap; quotes read committed snapshots and never observe the
// provisional state of a pending swap.
type VirtualBalanceAccount struct {
	mu         sync.RWMutex
	balanceIn  *big.Int
	balanceOut *big.Int
}

// NewVirtualBalanceAccount initialises the account from the maker's funded
// amounts. Both reserves must be non-negative.
func NewVirtualBalanceAccount(balanceIn, balanceOut *big.Int) (*VirtualBalanceAccount, error) {
	if balanceIn == nil || balanceIn.Sign() < 0 || balanceOut == nil || balanceOut.Sign() < 0 {
		return nil, fmt.Errorf("amm: initial balances must be non-negative")
	}
	return &VirtualBalanceAccount{
		balanceIn:  new(big.Int).Set(balanceIn),
		balanceOut: new(big.Int).Set(balanceOut),
	}, nil
}

// Snapshot returns a deep copy of the committed reserves.
func (a *VirtualBalanceAccount) Snapshot() Balances {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Balances{
		TokenIn:  new(big.Int).Set(a.balanceIn),
		TokenOut: new(big.Int).Set(a.balanceOut),
	}
}

// Commit applies the agreed swap deltas. The whole mutation is rejected if
// either reserve would turn negative, so a failed commit leaves no partial
// change observable.
func (a *VirtualBalanceAccount) Commit(dir Direction, amountIn, amountOut *big.Int) error {
	if amountIn == nil || amountIn.Sign() <= 0 || amountOut == nil || amountOut.Sign() < 0 {
		return ErrInvalidAmount
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	nextIn := new(big.Int).Set(a.balanceIn)
	nextOut := new(big.Int).Set(a.balanceOut)
	if dir == DirectionOutForIn {
		nextOut.Add(nextOut, amountIn)
		nextIn.Sub(nextIn, amountOut)
	} else {
		nextIn.Add(nextIn, amountIn)
		nextOut.Sub(nextOut, amountOut)
	}
	if nextIn.Sign() < 0 || nextOut.Sign() < 0 {
		return ErrInsufficientLiquidity
	}
	a.balanceIn = nextIn
	a.balanceOut = nextOut
	return nil
}
