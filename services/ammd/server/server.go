package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pooldesk/native/amm"
	"pooldesk/native/common"
	"pooldesk/services/ammd/config"
	"pooldesk/services/ammd/desk"
	"pooldesk/services/ammd/router"
)

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
	AdminToken    string
	RateLimits    map[string]RateLimit
}

// Server hosts the desk API: quoting, settlement, registry inspection, and
// operational endpoints.
type Server struct {
	cfg     Config
	desk    *desk.Desk
	custody *router.Custody
	logger  *slog.Logger
	limiter *RateLimiter
}

// New constructs the HTTP server over the desk.
func New(cfg Config, d *desk.Desk, custody *router.Custody, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, fmt.Errorf("desk required")
	}
	if custody == nil {
		return nil, fmt.Errorf("custody router required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		desk:    d,
		custody: custody,
		logger:  logger,
		limiter: NewRateLimiter(cfg.RateLimits),
	}, nil
}

// RateLimitsFromConfig translates service configuration into limiter buckets.
func RateLimitsFromConfig(cfg config.RateLimitConfig) map[string]RateLimit {
	return map[string]RateLimit{
		"quote": {RequestsPerMinute: cfg.QuotePerMinute, Burst: cfg.Burst},
		"swap":  {RequestsPerMinute: cfg.SwapPerMinute, Burst: cfg.Burst},
	}
}

// Handler builds the routed, instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/v1/amm/quote", s.limiter.Middleware("quote")(http.HandlerFunc(s.handleQuote)))
	mux.Handle("/v1/amm/swap", s.limiter.Middleware("swap")(http.HandlerFunc(s.handleSwap)))
	mux.HandleFunc("/v1/amm/strategies", s.handleStrategies)
	mux.HandleFunc("/v1/amm/swaps", s.handleSwaps)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return otelhttp.NewHandler(mux, "ammd")
}

// ListenAndServe runs the server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		StrategyID string `json:"strategy_id"`
		Direction  string `json:"direction"`
		AmountIn   string `json:"amount_in"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	strategyID := strings.TrimSpace(payload.StrategyID)
	if strategyID == "" {
		s.writeError(w, http.StatusBadRequest, "strategy_id required")
		return
	}
	direction, err := parseDirection(payload.Direction)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amountIn, err := config.ParseAmount(payload.AmountIn)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid amount_in")
		return
	}
	quote, err := s.desk.Quote(r.Context(), strategyID, direction, amountIn)
	if err != nil {
		status, message := errorStatus(err)
		s.writeError(w, status, message)
		return
	}
	s.writeJSON(w, http.StatusOK, quoteResponse(strategyID, quote))
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		StrategyID   string `json:"strategy_id"`
		Direction    string `json:"direction"`
		AmountIn     string `json:"amount_in"`
		MinAmountOut string `json:"min_amount_out"`
		Taker        string `json:"taker"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	strategyID := strings.TrimSpace(payload.StrategyID)
	taker := strings.TrimSpace(payload.Taker)
	if strategyID == "" || taker == "" {
		s.writeError(w, http.StatusBadRequest, "strategy_id and taker required")
		return
	}
	direction, err := parseDirection(payload.Direction)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amountIn, err := config.ParseAmount(payload.AmountIn)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid amount_in")
		return
	}
	var minAmountOut *big.Int
	if strings.TrimSpace(payload.MinAmountOut) != "" {
		minAmountOut, err = config.ParseAmount(payload.MinAmountOut)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid min_amount_out")
			return
		}
	}

	strategy, err := s.desk.Strategy(strategyID)
	if err != nil {
		status, message := errorStatus(err)
		s.writeError(w, status, message)
		return
	}
	callback := router.PushCallback(s.custody, taker, strategy.Config().Maker)
	quote, err := s.desk.Swap(r.Context(), strategyID, direction, amountIn, minAmountOut, taker, callback)
	if err != nil {
		status, message := errorStatus(err)
		s.writeError(w, status, message)
		return
	}
	s.writeJSON(w, http.StatusOK, quoteResponse(strategyID, quote))
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	strategies := s.desk.Strategies()
	out := make([]map[string]any, 0, len(strategies))
	for _, strategy := range strategies {
		cfg := strategy.Config()
		balances := strategy.Balances()
		entry := map[string]any{
			"strategy_id": strategy.ID(),
			"token_in":    cfg.TokenIn,
			"token_out":   cfg.TokenOut,
			"curve":       string(cfg.Kind),
			"fee_bps":     cfg.FeeBps,
			"balance_in":  balances.TokenIn.String(),
			"balance_out": balances.TokenOut.String(),
			"created_at":  strategy.CreatedAt(),
		}
		switch cfg.Kind {
		case amm.CurveConcentrated:
			entry["price_low"] = cfg.PriceLow.String()
			entry["price_high"] = cfg.PriceHigh.String()
		case amm.CurveStableSwap:
			entry["amplification"] = cfg.Amplification
		}
		out = append(out, entry)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"strategies": out})
}

func (s *Server) handleSwaps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorizeAdmin(r) {
		s.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	strategyID := strings.TrimSpace(r.URL.Query().Get("strategy"))
	if strategyID == "" {
		s.writeError(w, http.StatusBadRequest, "strategy query parameter required")
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	swaps, err := s.desk.Swaps(r.Context(), strategyID, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "settlement ledger unavailable")
		return
	}
	out := make([]map[string]any, 0, len(swaps))
	for _, rec := range swaps {
		out = append(out, map[string]any{
			"swap_id":      rec.SwapID,
			"direction":    rec.Direction,
			"amount_in":    rec.AmountIn,
			"amount_out":   rec.AmountOut,
			"price_after":  rec.PriceAfter,
			"committed_at": rec.CommittedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"swaps": out})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "strategies": len(s.desk.Strategies())})
}

func (s *Server) authorizeAdmin(r *http.Request) bool {
	token := strings.TrimSpace(s.cfg.AdminToken)
	if token == "" {
		return false
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	presented := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1
}

func parseDirection(raw string) (amm.Direction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(amm.DirectionInForOut):
		return amm.DirectionInForOut, nil
	case string(amm.DirectionOutForIn):
		return amm.DirectionOutForIn, nil
	default:
		return "", fmt.Errorf("invalid direction %q", raw)
	}
}

func quoteResponse(strategyID string, quote amm.Quote) map[string]any {
	return map[string]any{
		"strategy_id": strategyID,
		"direction":   string(quote.Direction),
		"amount_in":   quote.AmountIn.String(),
		"amount_out":  quote.AmountOut.String(),
		"price_after": quote.PriceAfter.String(),
	}
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, amm.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid amount"
	case errors.Is(err, amm.ErrStrategyNotFound):
		return http.StatusNotFound, "strategy not found"
	case errors.Is(err, amm.ErrStrategyExists):
		return http.StatusConflict, "strategy already exists"
	case errors.Is(err, amm.ErrReentrancy):
		return http.StatusConflict, "swap already in flight"
	case errors.Is(err, amm.ErrOutOfRange):
		return http.StatusUnprocessableEntity, "post-trade price out of range"
	case errors.Is(err, amm.ErrInsufficientLiquidity):
		return http.StatusUnprocessableEntity, "insufficient liquidity"
	case errors.Is(err, amm.ErrSlippageExceeded):
		return http.StatusUnprocessableEntity, "slippage floor exceeded"
	case errors.Is(err, amm.ErrCallbackFailed):
		return http.StatusUnprocessableEntity, "settlement callback failed"
	case errors.Is(err, common.ErrModulePaused):
		return http.StatusServiceUnavailable, "trading paused"
	case errors.Is(err, common.ErrQuotaSwapsExceeded), errors.Is(err, common.ErrQuotaVolumeExceeded):
		return http.StatusTooManyRequests, "quota exceeded"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
