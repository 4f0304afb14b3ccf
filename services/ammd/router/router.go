package router

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"pooldesk/native/amm"
)

// Custody is an in-process liquidity router: a token custody ledger that the
// settlement controller instructs and verifies against. It implements
// amm.Router. Balances only move through Deposit, Withdraw, and Pull; the
// pricing core never touches the ledger directly.
type Custody struct {
	mu       sync.Mutex
	balances map[string]map[string]*big.Int
}

var (
	ErrInsufficientCustody = errors.New("router: insufficient custody balance")
	ErrInvalidTransfer     = errors.New("router: invalid transfer")
)

// NewCustody returns an empty custody ledger.
func NewCustody() *Custody {
	return &Custody{balances: make(map[string]map[string]*big.Int)}
}

func custodyKey(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

func accountKey(s string) string { return strings.TrimSpace(s) }

// Deposit credits custody for an account. Used to seed maker inventory and
// taker funds at startup.
func (c *Custody) Deposit(account, token string, amount *big.Int) error {
	account = accountKey(account)
	token = custodyKey(token)
	if account == "" || token == "" || amount == nil || amount.Sign() < 0 {
		return ErrInvalidTransfer
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credit(account, token, amount)
	return nil
}

// Withdraw debits custody for an account.
func (c *Custody) Withdraw(account, token string, amount *big.Int) error {
	account = accountKey(account)
	token = custodyKey(token)
	if account == "" || token == "" || amount == nil || amount.Sign() <= 0 {
		return ErrInvalidTransfer
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.debit(account, token, amount)
}

// Pull releases amount of token from the source account's custody to the
// destination. It satisfies the amm.Router contract.
func (c *Custody) Pull(ctx context.Context, maker, token string, amount *big.Int, destination string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	maker = accountKey(maker)
	destination = accountKey(destination)
	token = custodyKey(token)
	if maker == "" || destination == "" || token == "" {
		return ErrInvalidTransfer
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidTransfer
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.debit(maker, token, amount); err != nil {
		return err
	}
	c.credit(destination, token, amount)
	return nil
}

// BalanceOf reports the custodied balance of token for an account.
func (c *Custody) BalanceOf(ctx context.Context, account, token string) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	have := c.balances[accountKey(account)][custodyKey(token)]
	if have == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(have), nil
}

func (c *Custody) credit(account, token string, amount *big.Int) {
	if c.balances[account] == nil {
		c.balances[account] = make(map[string]*big.Int)
	}
	if c.balances[account][token] == nil {
		c.balances[account][token] = big.NewInt(0)
	}
	c.balances[account][token].Add(c.balances[account][token], amount)
}

func (c *Custody) debit(account, token string, amount *big.Int) error {
	have := c.balances[account][token]
	if have == nil || have.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s/%s", ErrInsufficientCustody, account, token)
	}
	have.Sub(have, amount)
	return nil
}

// PushCallback returns a settlement callback that pushes the agreed input
// amount from the taker's custody to the maker, the way a compliant taker
// contract settles its leg.
func PushCallback(c *Custody, taker, maker string) amm.CallbackFunc {
	return func(ctx context.Context, token string, amount *big.Int, swapID string) error {
		return c.Pull(ctx, taker, token, amount, maker)
	}
}

var _ amm.Router = (*Custody)(nil)
