package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoadFeedPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "protocol.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("rpc: http://file\nmax-retries: 7\nfeed:\n  BLX: \"0x01\"\n"), 0o644))
	t.Setenv("PROTOCOL_MAX_RETRIES", "9")

	flags := pflag.NewFlagSet("feed", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	flags.Int("max-retries", 3, "")
	flags.Duration("retry-backoff", 500*time.Millisecond, "")
	require.NoError(t, flags.Parse([]string{"--rpc", "http://flag"}))

	cfg, err := LoadFeed(cfgFile, flags)
	require.NoError(t, err)
	require.Equal(t, "http://flag", cfg.RPCURL)
	require.Equal(t, 9, cfg.MaxRetries)
	require.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)
	require.Equal(t, map[string]string{"blx": "0x01"}, cfg.Feeds)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoadQuoteSplitsReserves(t *testing.T) {
	flags := pflag.NewFlagSet("quote", pflag.ContinueOnError)
	flags.StringSlice("reserves", nil, "")
	flags.String("amount-in", "", "")
	require.NoError(t, flags.Parse([]string{"--reserves", "1000e18:10e18, 10e18:500e18", "--amount-in", "1e18"}))

	cfg, err := LoadQuote(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)

	cfg, err = LoadQuote("", flags)
	require.NoError(t, err)
	require.Equal(t, []string{"1000e18:10e18", "10e18:500e18"}, cfg.Reserves)
	require.Equal(t, "1e18", cfg.AmountIn)
}

func TestParseTimestampAndWindow(t *testing.T) {
	ts, err := ParseTimestamp("1700000000")
	require.NoError(t, err)
	require.Equal(t, uint64(1_700_000_000), ts)

	ts, err = ParseTimestamp("2023-11-14T22:13:20Z")
	require.NoError(t, err)
	require.Equal(t, uint64(1_700_000_000), ts)

	_, err = ParseTimestamp("yesterday")
	require.Error(t, err)

	secs, err := WindowSeconds("5m")
	require.NoError(t, err)
	require.Equal(t, uint64(300), secs)

	_, err = WindowSeconds("10ms")
	require.Error(t, err)
}
