package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"pooldesk/native/amm"
	"pooldesk/native/common"
	"pooldesk/observability/logging"
	telemetry "pooldesk/observability/otel"
	"pooldesk/services/ammd/config"
	"pooldesk/services/ammd/desk"
	"pooldesk/services/ammd/router"
	"pooldesk/services/ammd/server"
	"pooldesk/services/ammd/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/ammd/config.yaml", "path to ammd configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("POOLDESK_ENV"))
	logger := logging.Setup("ammd", env)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "ammd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		log.Fatalf("ammd: init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("ammd: load config: %v", err)
	}

	dsn, err := storage.FileDSN(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("ammd: resolve storage DSN: %v", err)
	}
	store, err := storage.Open(dsn)
	if err != nil {
		log.Fatalf("ammd: open storage: %v", err)
	}
	defer store.Close()

	custody := router.NewCustody()
	for _, funding := range cfg.Custody {
		amount, err := config.ParseAmount(funding.Amount)
		if err != nil {
			log.Fatalf("ammd: custody amount: %v", err)
		}
		if err := custody.Deposit(funding.Account, funding.Token, amount); err != nil {
			log.Fatalf("ammd: seed custody %s/%s: %v", funding.Account, funding.Token, err)
		}
	}

	engine := amm.NewEngine(custody)
	if cfg.Paused {
		engine.SetPauses(common.PauseSet{"amm": true})
	}
	if cfg.Quota.MaxSwapsPerEpoch > 0 || cfg.Quota.MaxVolumePerEpoch > 0 {
		engine.SetQuota(common.Quota{
			MaxSwapsPerEpoch:  cfg.Quota.MaxSwapsPerEpoch,
			MaxVolumePerEpoch: cfg.Quota.MaxVolumePerEpoch,
			EpochSeconds:      uint32(cfg.Quota.Epoch.Duration.Seconds()),
		})
	}

	d, err := desk.New(engine, store, logger)
	if err != nil {
		log.Fatalf("ammd: build desk: %v", err)
	}

	ctx := context.Background()
	if err := d.Restore(ctx); err != nil {
		log.Fatalf("ammd: restore strategies: %v", err)
	}
	if err := registerConfiguredStrategies(ctx, d, cfg); err != nil {
		log.Fatalf("ammd: register strategies: %v", err)
	}

	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		AdminToken:    cfg.AdminToken,
		RateLimits:    server.RateLimitsFromConfig(cfg.RateLimits),
	}, d, custody, logger)
	if err != nil {
		log.Fatalf("ammd: build server: %v", err)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("ammd listening", "address", cfg.ListenAddress, "strategies", len(d.Strategies()))
	if err := srv.ListenAndServe(runCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("ammd: serve: %v", err)
	}
}

// registerConfiguredStrategies registers declared strategies that are not
// already present from the restore pass. Existing instances are left alone so
// committed balances survive restarts.
func registerConfiguredStrategies(ctx context.Context, d *desk.Desk, cfg config.Config) error {
	for _, sc := range cfg.Strategies {
		strategyCfg := amm.StrategyConfig{
			Maker:         sc.Maker,
			TokenIn:       sc.TokenIn,
			TokenOut:      sc.TokenOut,
			FeeBps:        sc.FeeBps,
			Amplification: sc.Amplification,
		}
		switch strings.ToLower(strings.TrimSpace(sc.Curve)) {
		case string(amm.CurveConcentrated):
			strategyCfg.Kind = amm.CurveConcentrated
			low, err := config.ParseAmount(sc.PriceLow)
			if err != nil {
				return err
			}
			high, err := config.ParseAmount(sc.PriceHigh)
			if err != nil {
				return err
			}
			strategyCfg.PriceLow = low
			strategyCfg.PriceHigh = high
		case string(amm.CurveStableSwap):
			strategyCfg.Kind = amm.CurveStableSwap
		}
		initialIn, err := config.ParseAmount(sc.InitialIn)
		if err != nil {
			return err
		}
		initialOut, err := config.ParseAmount(sc.InitialOut)
		if err != nil {
			return err
		}
		if _, err := d.CreateStrategy(ctx, strategyCfg, initialIn, initialOut, sc.Nonce); err != nil {
			if errors.Is(err, amm.ErrStrategyExists) {
				continue
			}
			return err
		}
	}
	return nil
}
