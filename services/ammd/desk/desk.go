package desk

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pooldesk/native/amm"
	"pooldesk/observability"
	"pooldesk/observability/logging"
	"pooldesk/services/ammd/storage"
)

// Store is the persistence surface the desk needs. *storage.Storage satisfies
// it; tests substitute fakes.
type Store interface {
	SaveStrategy(ctx context.Context, rec storage.StrategyRecord) error
	UpdateBalances(ctx context.Context, strategyID, balanceIn, balanceOut string) error
	RecordSwap(ctx context.Context, rec storage.SwapRecord) error
	LoadStrategies(ctx context.Context) ([]storage.StrategyRecord, error)
	ListSwaps(ctx context.Context, strategyID string, limit int) ([]storage.SwapRecord, error)
}

// Desk is the instrumented facade over the pricing engine: it owns telemetry
// and persistence so the engine stays pure. The sqlite ledger mirrors
// committed state for restarts and audit; the engine remains authoritative
// while the process runs.
type Desk struct {
	engine  *amm.Engine
	store   Store
	logger  *slog.Logger
	metrics *observability.AMMMetrics
	tracer  trace.Tracer
	clock   func() time.Time
}

// New constructs a desk over the engine. The store may be nil for ephemeral
// deployments.
func New(engine *amm.Engine, store Store, logger *slog.Logger) (*Desk, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Desk{
		engine:  engine,
		store:   store,
		logger:  logger,
		metrics: observability.AMM(),
		tracer:  otel.Tracer("ammd/desk"),
		clock:   time.Now,
	}
	engine.SetEmitter(&eventBridge{logger: logger})
	return d, nil
}

// SetClock overrides the time source, primarily for tests.
func (d *Desk) SetClock(clock func() time.Time) {
	if clock == nil {
		clock = time.Now
	}
	d.clock = clock
}

// eventBridge forwards engine events into logs and the event counters.
type eventBridge struct {
	logger *slog.Logger
}

func (b *eventBridge) Emit(evt amm.Event) {
	observability.Events().RecordEngineEvent(evt.Type)
	if b.logger == nil {
		return
	}
	attrs := make([]any, 0, len(evt.Attributes))
	for key, value := range evt.Attributes {
		attrs = append(attrs, logging.MaskField(key, value))
	}
	b.logger.Info(evt.Type, attrs...)
}

// NonceBytes widens a configured numeric nonce into the 32-byte form the
// identifier derivation expects.
func NonceBytes(nonce uint64) [32]byte {
	var out [32]byte
	binary.BigEndian.PutUint64(out[24:], nonce)
	return out
}

// CreateStrategy registers and persists a strategy instance.
func (d *Desk) CreateStrategy(ctx context.Context, cfg amm.StrategyConfig, initialIn, initialOut *big.Int, nonce uint64) (*amm.Strategy, error) {
	start := d.clock()
	ctx, span := d.tracer.Start(ctx, "desk.create_strategy",
		trace.WithAttributes(attribute.String("curve", string(cfg.Kind))))
	defer span.End()

	strategy, err := d.engine.CreateStrategy(cfg, initialIn, initialOut, NonceBytes(nonce))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.metrics.Observe("create_strategy", d.clock().Sub(start), err)
		return nil, err
	}
	if d.store != nil {
		if err := d.store.SaveStrategy(ctx, strategyRecord(strategy, nonce)); err != nil {
			d.logger.Error("persist strategy", "strategyId", strategy.ID(), "error", err)
		}
	}
	d.metrics.SetStrategyCount(len(d.engine.Strategies()))
	d.observeReserves(strategy)
	span.SetAttributes(attribute.String("strategy.id", strategy.ID()))
	span.SetStatus(codes.Ok, "strategy registered")
	d.metrics.Observe("create_strategy", d.clock().Sub(start), nil)
	return strategy, nil
}

// Quote prices a swap with no side effects.
func (d *Desk) Quote(ctx context.Context, strategyID string, dir amm.Direction, amountIn *big.Int) (amm.Quote, error) {
	start := d.clock()
	ctx, span := d.tracer.Start(ctx, "desk.quote",
		trace.WithAttributes(attribute.String("strategy.id", strategyID), attribute.String("direction", string(dir))))
	defer span.End()

	quote, err := d.engine.Quote(ctx, strategyID, dir, amountIn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.metrics.Observe("quote", d.clock().Sub(start), err)
		return amm.Quote{}, err
	}
	span.SetStatus(codes.Ok, "quote ready")
	d.metrics.Observe("quote", d.clock().Sub(start), nil)
	return quote, nil
}

// Swap settles a swap and mirrors the committed result into the ledger.
func (d *Desk) Swap(ctx context.Context, strategyID string, dir amm.Direction, amountIn, minAmountOut *big.Int, taker string, cb amm.SettlementCallback) (amm.Quote, error) {
	start := d.clock()
	requestID := uuid.NewString()
	ctx, span := d.tracer.Start(ctx, "desk.swap",
		trace.WithAttributes(
			attribute.String("strategy.id", strategyID),
			attribute.String("direction", string(dir)),
			attribute.String("request.id", requestID),
		))
	defer span.End()

	quote, err := d.engine.Swap(ctx, strategyID, dir, amountIn, minAmountOut, taker, cb)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.metrics.Observe("swap", d.clock().Sub(start), err)
		d.logger.Warn("swap aborted",
			"requestId", requestID,
			"strategyId", strategyID,
			logging.MaskField("taker", taker),
			"error", err)
		return amm.Quote{}, err
	}

	if strategy, lookupErr := d.engine.Strategy(strategyID); lookupErr == nil {
		d.persistSettled(ctx, strategy, quote, taker, requestID)
		d.observeReserves(strategy)
	}
	span.SetStatus(codes.Ok, "swap committed")
	d.metrics.Observe("swap", d.clock().Sub(start), nil)
	return quote, nil
}

// persistSettled mirrors a committed swap into the ledger. Failures are
// logged rather than surfaced: the engine already committed, and the ledger
// is reconstructed from it on restart.
func (d *Desk) persistSettled(ctx context.Context, strategy *amm.Strategy, quote amm.Quote, taker, requestID string) {
	if d.store == nil {
		return
	}
	balances := strategy.Balances()
	if err := d.store.UpdateBalances(ctx, strategy.ID(), balances.TokenIn.String(), balances.TokenOut.String()); err != nil {
		d.logger.Error("persist balances", "requestId", requestID, "strategyId", strategy.ID(), "error", err)
	}
	rec := storage.SwapRecord{
		SwapID:      requestID,
		StrategyID:  strategy.ID(),
		Taker:       taker,
		Direction:   string(quote.Direction),
		AmountIn:    quote.AmountIn.String(),
		AmountOut:   quote.AmountOut.String(),
		PriceAfter:  quote.PriceAfter.String(),
		CommittedAt: d.clock().Unix(),
	}
	if err := d.store.RecordSwap(ctx, rec); err != nil {
		d.logger.Error("persist swap", "requestId", requestID, "strategyId", strategy.ID(), "error", err)
	}
}

// Strategies lists registered strategy instances.
func (d *Desk) Strategies() []*amm.Strategy {
	return d.engine.Strategies()
}

// Strategy looks up one instance.
func (d *Desk) Strategy(id string) (*amm.Strategy, error) {
	return d.engine.Strategy(id)
}

// Swaps returns the persisted settlement ledger for a strategy, newest first.
func (d *Desk) Swaps(ctx context.Context, strategyID string, limit int) ([]storage.SwapRecord, error) {
	if d.store == nil {
		return nil, fmt.Errorf("settlement ledger not configured")
	}
	return d.store.ListSwaps(ctx, strategyID, limit)
}

// Restore re-registers persisted strategies after a restart, seeding each
// virtual account with its last committed balances.
func (d *Desk) Restore(ctx context.Context) error {
	if d.store == nil {
		return nil
	}
	records, err := d.store.LoadStrategies(ctx)
	if err != nil {
		return fmt.Errorf("load strategies: %w", err)
	}
	for _, rec := range records {
		cfg, err := configFromRecord(rec)
		if err != nil {
			return fmt.Errorf("strategy %s: %w", rec.ID, err)
		}
		balanceIn, ok := new(big.Int).SetString(rec.BalanceIn, 10)
		if !ok {
			return fmt.Errorf("strategy %s: invalid balance_in", rec.ID)
		}
		balanceOut, ok := new(big.Int).SetString(rec.BalanceOut, 10)
		if !ok {
			return fmt.Errorf("strategy %s: invalid balance_out", rec.ID)
		}
		strategy, err := d.engine.CreateStrategy(cfg, balanceIn, balanceOut, NonceBytes(rec.Nonce))
		if err != nil {
			return fmt.Errorf("strategy %s: %w", rec.ID, err)
		}
		if strategy.ID() != rec.ID {
			return fmt.Errorf("strategy %s: identifier drift after restore", rec.ID)
		}
		d.observeReserves(strategy)
	}
	d.metrics.SetStrategyCount(len(d.engine.Strategies()))
	return nil
}

func (d *Desk) observeReserves(strategy *amm.Strategy) {
	cfg := strategy.Config()
	balances := strategy.Balances()
	inUnits, _ := new(big.Float).SetInt(balances.TokenIn).Float64()
	outUnits, _ := new(big.Float).SetInt(balances.TokenOut).Float64()
	d.metrics.SetReserve(strategy.ID(), cfg.TokenIn, inUnits)
	d.metrics.SetReserve(strategy.ID(), cfg.TokenOut, outUnits)
}

func strategyRecord(strategy *amm.Strategy, nonce uint64) storage.StrategyRecord {
	cfg := strategy.Config()
	balances := strategy.Balances()
	rec := storage.StrategyRecord{
		ID:            strategy.ID(),
		Maker:         cfg.Maker,
		TokenIn:       cfg.TokenIn,
		TokenOut:      cfg.TokenOut,
		Curve:         string(cfg.Kind),
		FeeBps:        cfg.FeeBps,
		PriceLow:      "0",
		PriceHigh:     "0",
		Amplification: cfg.Amplification,
		Nonce:         nonce,
		BalanceIn:     balances.TokenIn.String(),
		BalanceOut:    balances.TokenOut.String(),
		CreatedAt:     strategy.CreatedAt(),
	}
	if cfg.PriceLow != nil {
		rec.PriceLow = cfg.PriceLow.String()
	}
	if cfg.PriceHigh != nil {
		rec.PriceHigh = cfg.PriceHigh.String()
	}
	return rec
}

func configFromRecord(rec storage.StrategyRecord) (amm.StrategyConfig, error) {
	cfg := amm.StrategyConfig{
		Maker:         rec.Maker,
		TokenIn:       rec.TokenIn,
		TokenOut:      rec.TokenOut,
		FeeBps:        rec.FeeBps,
		Amplification: rec.Amplification,
	}
	switch strings.ToLower(strings.TrimSpace(rec.Curve)) {
	case string(amm.CurveConcentrated):
		cfg.Kind = amm.CurveConcentrated
		low, ok := new(big.Int).SetString(rec.PriceLow, 10)
		if !ok {
			return cfg, fmt.Errorf("invalid price_low")
		}
		high, ok := new(big.Int).SetString(rec.PriceHigh, 10)
		if !ok {
			return cfg, fmt.Errorf("invalid price_high")
		}
		cfg.PriceLow = low
		cfg.PriceHigh = high
	case string(amm.CurveStableSwap):
		cfg.Kind = amm.CurveStableSwap
	default:
		return cfg, fmt.Errorf("unknown curve %q", rec.Curve)
	}
	return cfg, nil
}
