package config

import (
	"github.com/spf13/pflag"
)

// SimulateConfig holds configuration for the simulate command.
type SimulateConfig struct {
	Scenario     string
	RunID        string
	EventsOut    string
	SnapshotsOut string
	MetricsOut   string
	Window       string
	PGDSN        string
	MetricsAddr  string
	Log          LogConfig
}

// LoadSimulate merges config file, environment variables, and flags into SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"events-out":    "./data/events.jsonl",
		"snapshots-out": "./data/snapshots.jsonl",
		"metrics-out":   "./data/window_metrics.jsonl",
		"window":        "1h",
	})
	if err != nil {
		return SimulateConfig{}, err
	}

	return SimulateConfig{
		Scenario:     v.GetString("scenario"),
		RunID:        v.GetString("run-id"),
		EventsOut:    v.GetString("events-out"),
		SnapshotsOut: v.GetString("snapshots-out"),
		MetricsOut:   v.GetString("metrics-out"),
		Window:       v.GetString("window"),
		PGDSN:        v.GetString("pg-dsn"),
		MetricsAddr:  v.GetString("metrics-addr"),
		Log:          logConfig(v),
	}, nil
}
