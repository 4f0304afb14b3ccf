package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ammd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
strategies:
  - maker: desk-main
    token_in: USDC
    token_out: USDT
    curve: stableswap
    fee_bps: 4
    amplification: 50
    initial_in: "1000000"
    initial_out: "1000000"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7090", cfg.ListenAddress)
	require.Equal(t, time.Minute, cfg.Quota.Epoch.Duration)
	require.Equal(t, float64(60), cfg.RateLimits.SwapPerMinute)
	require.Equal(t, 10, cfg.RateLimits.Burst)
}

func TestLoadParsesFullConfig(t *testing.T) {
	path := writeConfig(t, `
listen: ":8080"
database: "/tmp/ammd.sqlite"
admin_token: secret
quota:
  max_swaps_per_epoch: 5
  epoch: 30s
rate_limits:
  swap_per_minute: 120
  burst: 20
custody:
  - account: desk-main
    token: ETH
    amount: "5000000"
strategies:
  - maker: desk-main
    token_in: USDC
    token_out: ETH
    curve: concentrated
    fee_bps: 30
    price_low: "1900000000000000000000"
    price_high: "2100000000000000000000"
    initial_in: "2000000000"
    initial_out: "1000000"
    nonce: 1
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint32(5), cfg.Quota.MaxSwapsPerEpoch)
	require.Equal(t, 30*time.Second, cfg.Quota.Epoch.Duration)
	require.Len(t, cfg.Strategies, 1)
	require.Equal(t, "concentrated", cfg.Strategies[0].Curve)
	require.Len(t, cfg.Custody, 1)
	require.Equal(t, "ETH", cfg.Custody[0].Token)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"no strategies", "listen: ':8080'\n"},
		{"bad curve", `
strategies:
  - maker: desk-main
    token_in: USDC
    token_out: ETH
    curve: parabolic
    initial_in: "1"
    initial_out: "1"
`},
		{"missing bounds", `
strategies:
  - maker: desk-main
    token_in: USDC
    token_out: ETH
    curve: concentrated
    initial_in: "1"
    initial_out: "1"
`},
		{"negative amount", `
strategies:
  - maker: desk-main
    token_in: USDC
    token_out: USDT
    curve: stableswap
    amplification: 10
    initial_in: "-5"
    initial_out: "1"
`},
	}
	for _, tc := range cases {
		_, err := Load(writeConfig(t, tc.body))
		require.Error(t, err, tc.name)
	}
}

func TestParseAmount(t *testing.T) {
	value, err := ParseAmount(" 42 ")
	require.NoError(t, err)
	require.Equal(t, "42", value.String())

	for _, raw := range []string{"", "abc", "-1", "1.5"} {
		_, err := ParseAmount(raw)
		require.Error(t, err, raw)
	}
}
