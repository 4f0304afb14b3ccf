package desk

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"pooldesk/native/amm"
	"pooldesk/services/ammd/router"
	"pooldesk/services/ammd/storage"
)

type fakeStore struct {
	strategies map[string]storage.StrategyRecord
	swaps      []storage.SwapRecord
	saveErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{strategies: make(map[string]storage.StrategyRecord)}
}

func (f *fakeStore) SaveStrategy(ctx context.Context, rec storage.StrategyRecord) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.strategies[rec.ID] = rec
	return nil
}

func (f *fakeStore) UpdateBalances(ctx context.Context, strategyID, balanceIn, balanceOut string) error {
	rec, ok := f.strategies[strategyID]
	if !ok {
		return errors.New("not persisted")
	}
	rec.BalanceIn = balanceIn
	rec.BalanceOut = balanceOut
	f.strategies[strategyID] = rec
	return nil
}

func (f *fakeStore) RecordSwap(ctx context.Context, rec storage.SwapRecord) error {
	f.swaps = append(f.swaps, rec)
	return nil
}

func (f *fakeStore) LoadStrategies(ctx context.Context) ([]storage.StrategyRecord, error) {
	out := make([]storage.StrategyRecord, 0, len(f.strategies))
	for _, rec := range f.strategies {
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeStore) ListSwaps(ctx context.Context, strategyID string, limit int) ([]storage.SwapRecord, error) {
	out := make([]storage.SwapRecord, 0)
	for _, rec := range f.swaps {
		if rec.StrategyID == strategyID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func stableConfig() amm.StrategyConfig {
	return amm.StrategyConfig{
		Maker:         "desk-main",
		TokenIn:       "USDC",
		TokenOut:      "USDT",
		FeeBps:        4,
		Kind:          amm.CurveStableSwap,
		Amplification: 50,
	}
}

func newTestDesk(t *testing.T) (*Desk, *router.Custody, *fakeStore) {
	t.Helper()
	custody := router.NewCustody()
	engine := amm.NewEngine(custody)
	store := newFakeStore()
	d, err := New(engine, store, nil)
	if err != nil {
		t.Fatalf("new desk: %v", err)
	}
	d.SetClock(func() time.Time { return time.Unix(1_700_000_000, 0) })
	return d, custody, store
}

func fundCustody(t *testing.T, custody *router.Custody, account, token string, amount int64) {
	t.Helper()
	if err := custody.Deposit(account, token, big.NewInt(amount)); err != nil {
		t.Fatalf("deposit %s/%s: %v", account, token, err)
	}
}

func TestDeskCreateAndRestore(t *testing.T) {
	d, _, store := newTestDesk(t)
	ctx := context.Background()

	strategy, err := d.CreateStrategy(ctx, stableConfig(), big.NewInt(1_000_000), big.NewInt(1_000_000), 7)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	rec, ok := store.strategies[strategy.ID()]
	if !ok {
		t.Fatalf("strategy not persisted")
	}
	if rec.Nonce != 7 || rec.Curve != "stableswap" {
		t.Fatalf("record = %+v", rec)
	}

	// A fresh desk restores the same instance under the same identifier.
	restored, _, _ := newTestDesk(t)
	restored.store = store
	if err := restored.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, err := restored.Strategy(strategy.ID()); err != nil {
		t.Fatalf("restored lookup: %v", err)
	}
}

func TestDeskSwapPersistsLedger(t *testing.T) {
	d, custody, store := newTestDesk(t)
	ctx := context.Background()

	strategy, err := d.CreateStrategy(ctx, stableConfig(), big.NewInt(1_000_000), big.NewInt(1_000_000), 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	fundCustody(t, custody, "desk-main", "USDT", 1_000_000)
	fundCustody(t, custody, "taker-1", "USDC", 100_000)

	quote, err := d.Swap(ctx, strategy.ID(), amm.DirectionInForOut, big.NewInt(10_000), nil, "taker-1",
		router.PushCallback(custody, "taker-1", "desk-main"))
	if err != nil {
		t.Fatalf("swap: %v", err)
	}

	rec := store.strategies[strategy.ID()]
	if rec.BalanceIn != "1010000" {
		t.Fatalf("persisted balance_in = %s", rec.BalanceIn)
	}
	swaps, err := d.Swaps(ctx, strategy.ID(), 10)
	if err != nil {
		t.Fatalf("list swaps: %v", err)
	}
	if len(swaps) != 1 || swaps[0].AmountOut != quote.AmountOut.String() {
		t.Fatalf("ledger = %+v", swaps)
	}
}

func TestDeskSwapAbortLeavesLedger(t *testing.T) {
	d, custody, store := newTestDesk(t)
	ctx := context.Background()

	strategy, err := d.CreateStrategy(ctx, stableConfig(), big.NewInt(1_000_000), big.NewInt(1_000_000), 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	fundCustody(t, custody, "desk-main", "USDT", 1_000_000)
	// Taker holds nothing: the callback push fails and the attempt aborts.
	_, err = d.Swap(ctx, strategy.ID(), amm.DirectionInForOut, big.NewInt(10_000), nil, "taker-1",
		router.PushCallback(custody, "taker-1", "desk-main"))
	if !errors.Is(err, amm.ErrCallbackFailed) {
		t.Fatalf("expected ErrCallbackFailed, got %v", err)
	}
	if len(store.swaps) != 0 {
		t.Fatalf("aborted swap persisted: %+v", store.swaps)
	}
	if rec := store.strategies[strategy.ID()]; rec.BalanceIn != "1000000" {
		t.Fatalf("balances mutated on abort: %+v", rec)
	}
}
