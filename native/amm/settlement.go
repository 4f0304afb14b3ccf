package amm

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SwapPhase tracks the settlement state machine for one swap attempt.
type SwapPhase uint8

const (
	PhaseIdle SwapPhase = iota
	PhaseQuoted
	PhasePullRequested
	PhaseAwaitingCallback
	PhaseVerified
	PhaseCommitted
	PhaseAborted
)

func (p SwapPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseQuoted:
		return "quoted"
	case PhasePullRequested:
		return "pull_requested"
	case PhaseAwaitingCallback:
		return "awaiting_callback"
	case PhaseVerified:
		return "verified"
	case PhaseCommitted:
		return "committed"
	case PhaseAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Router is the external liquidity router holding real custody. The core
// never moves funds itself; it only instructs the router and verifies the
// resulting balances.
type Router interface {
	// Pull releases amount of token from the maker's custodied balance to
	// the destination account.
	Pull(ctx context.Context, maker, token string, amount *big.Int, destination string) error
	// BalanceOf reports the custodied balance of token for an account.
	BalanceOf(ctx context.Context, account, token string) (*big.Int, error)
}

// SettlementCallback is the contract the taker registers: invoked after the
// pull succeeds, it must push the agreed input amount to the maker's custody
// before returning.
type SettlementCallback interface {
	OnSettlementCallback(ctx context.Context, token string, amount *big.Int, swapID string) error
}

// CallbackFunc adapts a plain function to the SettlementCallback contract.
type CallbackFunc func(ctx context.Context, token string, amount *big.Int, swapID string) error

func (f CallbackFunc) OnSettlementCallback(ctx context.Context, token string, amount *big.Int, swapID string) error {
	return f(ctx, token, amount, swapID)
}

// SettlementController orchestrates one swap attempt: quote, router pull,
// taker callback, post-callback verification, then an atomic commit of the
// virtual balances. Everything between the quote and the commit is
// provisional; any failure discards the attempt with no balance mutation.
type SettlementController struct {
	router  Router
	emitter Emitter
	nowFn   func() int64
	seq     atomic.Uint64
}

// NewSettlementController binds the controller to the external router.
func NewSettlementController(router Router) *SettlementController {
	return &SettlementController{
		router:  router,
		emitter: NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter used by the controller.
func (c *SettlementController) SetEmitter(emitter Emitter) {
	if emitter == nil {
		c.emitter = NoopEmitter{}
		return
	}
	c.emitter = emitter
}

// SetNowFunc overrides the time source, primarily used in tests.
func (c *SettlementController) SetNowFunc(now func() int64) {
	if now == nil {
		c.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	c.nowFn = now
}

func (c *SettlementController) emit(evt Event) {
	if c == nil || c.emitter == nil {
		return
	}
	c.emitter.Emit(evt)
}

func (c *SettlementController) swapID(s *Strategy, taker string, amountIn *big.Int) string {
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], c.seq.Add(1))
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(c.nowFn()))
	hash := ethcrypto.Keccak256Hash([]byte(s.ID()), []byte(taker), amountIn.Bytes(), ts[:], seq[:])
	return hex.EncodeToString(hash[:])
}

// Settle runs the full state machine for one swap attempt and returns the
// realized quote. The per-strategy reentrancy lock is held for the whole
// attempt and released unconditionally, including across the untrusted
// callback window.
func (c *SettlementController) Settle(ctx context.Context, s *Strategy, dir Direction, amountIn, minAmountOut *big.Int, taker string, cb SettlementCallback) (Quote, error) {
	if c == nil || c.router == nil {
		return Quote{}, fmt.Errorf("amm: settlement controller not configured")
	}
	if s == nil {
		return Quote{}, ErrStrategyNotFound
	}
	if !s.beginSwap() {
		return Quote{}, ErrReentrancy
	}
	defer s.endSwap()

	phase := PhaseQuoted
	pre := s.account.Snapshot()
	quote, err := s.curve.Quote(dir, amountIn, pre)
	if err != nil {
		return Quote{}, c.abort(s, "", taker, phase, err)
	}
	if minAmountOut != nil && quote.AmountOut.Cmp(minAmountOut) < 0 {
		return Quote{}, c.abort(s, "", taker, phase, ErrSlippageExceeded)
	}

	pushToken, pullToken := s.legs(dir)
	swapID := c.swapID(s, taker, amountIn)

	makerBefore, err := c.router.BalanceOf(ctx, s.cfg.Maker, pushToken)
	if err != nil {
		return Quote{}, c.abort(s, swapID, taker, phase, err)
	}

	phase = PhasePullRequested
	if err := c.router.Pull(ctx, s.cfg.Maker, pullToken, quote.AmountOut, taker); err != nil {
		return Quote{}, c.abort(s, swapID, taker, phase, err)
	}
	// Once the pull lands, every abort path must also claw the released
	// output back so a failed attempt retains no partial transfer.
	reclaim := func(phase SwapPhase, reason error) error {
		if rerr := c.router.Pull(ctx, taker, pullToken, quote.AmountOut, s.cfg.Maker); rerr != nil {
			reason = fmt.Errorf("%w (reclaim failed: %v)", reason, rerr)
		}
		return c.abort(s, swapID, taker, phase, reason)
	}

	// Single suspension point: control transfers to untrusted code. Nothing
	// observed before this line may be trusted afterwards.
	phase = PhaseAwaitingCallback
	if cb == nil {
		return Quote{}, reclaim(phase, ErrCallbackFailed)
	}
	if err := cb.OnSettlementCallback(ctx, pushToken, amountIn, swapID); err != nil {
		return Quote{}, reclaim(phase, fmt.Errorf("%w: %v", ErrCallbackFailed, err))
	}

	phase = PhaseVerified
	makerAfter, err := c.router.BalanceOf(ctx, s.cfg.Maker, pushToken)
	if err != nil {
		return Quote{}, reclaim(phase, err)
	}
	received := new(big.Int).Sub(makerAfter, makerBefore)
	if received.Cmp(amountIn) < 0 {
		// Return any partial push before clawing back the output leg.
		if received.Sign() > 0 {
			if rerr := c.router.Pull(ctx, s.cfg.Maker, pushToken, received, taker); rerr != nil {
				return Quote{}, reclaim(phase, fmt.Errorf("%w (refund failed: %v)", ErrCallbackFailed, rerr))
			}
		}
		return Quote{}, reclaim(phase, ErrCallbackFailed)
	}
	if err := s.curve.Conserves(dir, amountIn, quote, pre); err != nil {
		return Quote{}, reclaim(phase, err)
	}

	if err := s.account.Commit(dir, amountIn, quote.AmountOut); err != nil {
		return Quote{}, reclaim(phase, fmt.Errorf("%w: %v", ErrInvariantViolation, err))
	}
	c.emit(newSwapCommittedEvent(s.ID(), swapID, taker, quote))
	return quote, nil
}

func (c *SettlementController) abort(s *Strategy, swapID, taker string, phase SwapPhase, reason error) error {
	c.emit(newSwapAbortedEvent(s.ID(), swapID, taker, phase, reason))
	return reason
}
