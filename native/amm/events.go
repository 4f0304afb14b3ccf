package amm

import "math/big"

const (
	EventTypeStrategyCreated = "amm.strategy.created"
	EventTypeSwapCommitted   = "amm.swap.committed"
	EventTypeSwapAborted     = "amm.swap.aborted"
)

// Event is the canonical payload emitted after engine state changes.
type Event struct {
	Type       string
	Attributes map[string]string
}

// Emitter receives engine events. Implementations must not block.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards all events.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

func newStrategyCreatedEvent(s *Strategy) Event {
	cfg := s.Config()
	return Event{
		Type: EventTypeStrategyCreated,
		Attributes: map[string]string{
			"strategyId": s.ID(),
			"maker":      cfg.Maker,
			"tokenIn":    cfg.TokenIn,
			"tokenOut":   cfg.TokenOut,
			"curve":      string(cfg.Kind),
		},
	}
}

func newSwapCommittedEvent(strategyID, swapID, taker string, q Quote) Event {
	return Event{
		Type: EventTypeSwapCommitted,
		Attributes: map[string]string{
			"strategyId": strategyID,
			"swapId":     swapID,
			"taker":      taker,
			"direction":  string(q.Direction),
			"amountIn":   formatAmount(q.AmountIn),
			"amountOut":  formatAmount(q.AmountOut),
			"priceAfter": formatAmount(q.PriceAfter),
		},
	}
}

func newSwapAbortedEvent(strategyID, swapID, taker string, phase SwapPhase, reason error) Event {
	attrs := map[string]string{
		"strategyId": strategyID,
		"swapId":     swapID,
		"taker":      taker,
		"phase":      phase.String(),
	}
	if reason != nil {
		attrs["reason"] = reason.Error()
	}
	return Event{Type: EventTypeSwapAborted, Attributes: attrs}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
