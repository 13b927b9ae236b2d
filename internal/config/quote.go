package config

import (
	"github.com/spf13/pflag"
)

// QuoteConfig holds configuration for the quote command.
type QuoteConfig struct {
	Reserves  []string
	AmountIn  string
	AmountOut string
	Log       LogConfig
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := newViper(cfgFile, flags, nil)
	if err != nil {
		return QuoteConfig{}, err
	}

	return QuoteConfig{
		Reserves:  getStringSlice(v, "reserves"),
		AmountIn:  v.GetString("amount-in"),
		AmountOut: v.GetString("amount-out"),
		Log:       logConfig(v),
	}, nil
}
