package config

import (
	"time"

	"github.com/spf13/pflag"
)

// FeedConfig holds configuration for the feed command.
type FeedConfig struct {
	RPCURL       string
	Feeds        map[string]string
	MaxRetries   int
	RetryBackoff time.Duration
	Log          LogConfig
}

// LoadFeed merges config file, environment variables, and flags into
// FeedConfig. Feeds are label=address pairs.
func LoadFeed(cfgFile string, flags *pflag.FlagSet) (FeedConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"max-retries":   3,
		"retry-backoff": 500 * time.Millisecond,
	})
	if err != nil {
		return FeedConfig{}, err
	}

	return FeedConfig{
		RPCURL:       v.GetString("rpc"),
		Feeds:        getStringMap(v, "feed"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		Log:          logConfig(v),
	}, nil
}
