package amm

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"pooldesk/native/common"
)

const moduleName = "amm"

// Engine is the strategy registry and the single entry point for quoting and
// settling swaps. Strategies are registered at pool-deployment time and are
// never destroyed while the desk runs; they drain rather than disappear.
type Engine struct {
	mu         sync.RWMutex
	strategies map[string]*Strategy
	controller *SettlementController
	emitter    Emitter
	pauses     common.PauseView
	nowFn      func() int64
	quota      common.Quota
	usage      map[string]common.QuotaNow
}

// NewEngine constructs an engine settling through the supplied router.
func NewEngine(router Router) *Engine {
	controller := NewSettlementController(router)
	return &Engine{
		strategies: make(map[string]*Strategy),
		controller: controller,
		emitter:    NoopEmitter{},
		nowFn:      func() int64 { return time.Now().Unix() },
		usage:      make(map[string]common.QuotaNow),
	}
}

// SetEmitter configures the event emitter used by the engine and its
// settlement controller.
func (e *Engine) SetEmitter(emitter Emitter) {
	if emitter == nil {
		emitter = NoopEmitter{}
	}
	e.emitter = emitter
	e.controller.SetEmitter(emitter)
}

// SetPauses wires the administrative pause switches.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetQuota enforces per-taker swap limits. A zero quota disables enforcement.
func (e *Engine) SetQuota(q common.Quota) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.quota = q
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	e.nowFn = now
	e.controller.SetNowFunc(now)
}

// CreateStrategy registers a new strategy instance funded with the maker's
// initial amounts. The identifier is derived deterministically, so replaying
// the same creation is rejected rather than silently duplicated.
func (e *Engine) CreateStrategy(cfg StrategyConfig, initialIn, initialOut *big.Int, nonce [32]byte) (*Strategy, error) {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	strategy, err := NewStrategy(cfg, initialIn, initialOut, nonce, e.nowFn())
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	if _, exists := e.strategies[strategy.ID()]; exists {
		e.mu.Unlock()
		return nil, ErrStrategyExists
	}
	e.strategies[strategy.ID()] = strategy
	e.mu.Unlock()
	e.emitter.Emit(newStrategyCreatedEvent(strategy))
	return strategy, nil
}

// Strategy looks up a registered strategy instance.
func (e *Engine) Strategy(id string) (*Strategy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	strategy, ok := e.strategies[id]
	if !ok {
		return nil, ErrStrategyNotFound
	}
	return strategy, nil
}

// Strategies returns all registered instances in identifier order.
func (e *Engine) Strategies() []*Strategy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Strategy, 0, len(e.strategies))
	for _, s := range e.strategies {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Quote prices a swap with no side effects. It may run concurrently with an
// in-flight swap on the same strategy; it only ever observes committed state.
func (e *Engine) Quote(ctx context.Context, strategyID string, dir Direction, amountIn *big.Int) (Quote, error) {
	strategy, err := e.Strategy(strategyID)
	if err != nil {
		return Quote{}, err
	}
	return strategy.Quote(dir, amountIn)
}

// Swap settles a swap atomically through the settlement controller. Callers
// supply a slippage floor; a realized output below it aborts the attempt.
func (e *Engine) Swap(ctx context.Context, strategyID string, dir Direction, amountIn, minAmountOut *big.Int, taker string, cb SettlementCallback) (Quote, error) {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return Quote{}, err
	}
	strategy, err := e.Strategy(strategyID)
	if err != nil {
		return Quote{}, err
	}
	if err := e.consumeQuota(taker, amountIn); err != nil {
		return Quote{}, err
	}
	return e.controller.Settle(ctx, strategy, dir, amountIn, minAmountOut, taker, cb)
}

// consumeQuota charges the attempt against the taker's quota. Aborted swaps
// still count; the quota throttles attempts, not just commits.
func (e *Engine) consumeQuota(taker string, amountIn *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.quota.Enabled() {
		return nil
	}
	epochSeconds := int64(e.quota.EpochSeconds)
	if epochSeconds <= 0 {
		epochSeconds = 60
	}
	nowEpoch := uint64(e.nowFn() / epochSeconds)
	volume := uint64(0)
	if amountIn != nil && amountIn.Sign() > 0 {
		if !amountIn.IsUint64() {
			return common.ErrQuotaVolumeExceeded
		}
		volume = amountIn.Uint64()
	}
	next, err := common.CheckQuota(e.quota, nowEpoch, e.usage[taker], volume)
	if err != nil {
		return err
	}
	e.usage[taker] = next
	return nil
}
