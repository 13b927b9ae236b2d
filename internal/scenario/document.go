// Package scenario loads YAML-described protocol deployments and replays
// their timed steps against the in-memory core.
package scenario

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"blxProtocol/internal/access"
	"blxProtocol/internal/mathx"
	"blxProtocol/internal/staking"
)

var ErrInvalidScenario = errors.New("scenario: invalid")

// Document is the top-level scenario document.
type Document struct {
	Name     string              `yaml:"name"`
	Start    uint64              `yaml:"start"`
	Native   *NativeConfig       `yaml:"native"`
	Tokens   []TokenConfig       `yaml:"tokens"`
	Accounts []AccountConfig     `yaml:"accounts"`
	Roles    map[string][]string `yaml:"roles"`
	AMM      AMMConfig           `yaml:"amm"`
	Oracle   *OracleConfig       `yaml:"oracle"`
	Staking  *StakingConfig      `yaml:"staking"`
	Vaults   *VaultsConfig       `yaml:"vaults"`
	Steps    []Step              `yaml:"steps"`
}

type NativeConfig struct {
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
}

type TokenConfig struct {
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
}

// AccountConfig funds a named account. Balances are keyed by token symbol.
type AccountConfig struct {
	Name     string            `yaml:"name"`
	Balances map[string]Amount `yaml:"balances"`
}

type AMMConfig struct {
	ProtocolFeeBps  uint64 `yaml:"protocol_fee_bps"`
	FeeReceiver     string `yaml:"fee_receiver"`
	MaxDeviationBps uint64 `yaml:"max_deviation_bps"`
}

// OracleConfig seeds prices before the first step. When Guard is set the
// oracle is attached to the factory and every swap is bounded by it.
type OracleConfig struct {
	Guard  bool                  `yaml:"guard"`
	Prices map[string]Amount     `yaml:"prices"`
	Feeds  map[string]FeedConfig `yaml:"feeds"`
}

// FeedConfig installs a static aggregator feed for a token.
type FeedConfig struct {
	Decimals uint8  `yaml:"decimals"`
	Answer   Amount `yaml:"answer"`
}

type StakingConfig struct {
	Token          string             `yaml:"token"`
	RewardRateBps  uint64             `yaml:"reward_rate_bps"`
	ProtocolFeeBps uint64             `yaml:"protocol_fee_bps"`
	FeeCollector   string             `yaml:"fee_collector"`
	Tiers          []staking.LockTier `yaml:"tiers"`
}

type VaultsConfig struct {
	Asset             string        `yaml:"asset"`
	CompoundFrequency uint64        `yaml:"compound_frequency"`
	Vaults            []VaultConfig `yaml:"vaults"`
}

type VaultConfig struct {
	Name          string `yaml:"name"`
	Description   string `yaml:"description"`
	YieldRateBps  uint64 `yaml:"yield_rate_bps"`
	RewardRateBps uint64 `yaml:"reward_rate_bps"`
}

// Step is one timed call. At is seconds after Start; Args is decoded by
// the operation itself.
type Step struct {
	At          uint64    `yaml:"at"`
	As          string    `yaml:"as"`
	Op          string    `yaml:"op"`
	Args        yaml.Node `yaml:"args"`
	ExpectError string    `yaml:"expect_error"`
}

// Amount is a decimal token amount as written in the file, e.g. "1000e18".
// The literal text is kept so YAML float resolution never loses precision.
type Amount string

// Value parses the amount; "all" and empty strings are rejected here and
// handled by the callers that accept them.
func (a Amount) Value() (*uint256.Int, error) {
	return mathx.ParseAmount(strings.TrimSpace(string(a)))
}

func (a Amount) IsAll() bool { return strings.EqualFold(strings.TrimSpace(string(a)), "all") }

func (a Amount) IsZero() bool { return strings.TrimSpace(string(a)) == "" }

// orZero parses the amount, treating an empty value as zero.
func (a Amount) orZero() (*uint256.Int, error) {
	if a.IsZero() {
		return mathx.Zero(), nil
	}
	return a.Value()
}

// Signed parses an amount that may carry a leading minus sign.
func (a Amount) Signed() (*big.Int, error) {
	text := strings.TrimSpace(string(a))
	negative := strings.HasPrefix(text, "-")
	value, err := mathx.ParseAmount(strings.TrimPrefix(text, "-"))
	if err != nil {
		return nil, err
	}
	out := value.ToBig()
	if negative {
		out.Neg(out)
	}
	return out, nil
}

// Load reads and validates a scenario file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a scenario document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *Document) validate() error {
	if s.Start == 0 {
		return fmt.Errorf("%w: start timestamp is required", ErrInvalidScenario)
	}
	symbols := make(map[string]bool)
	for _, token := range s.Tokens {
		if token.Symbol == "" {
			return fmt.Errorf("%w: token without symbol", ErrInvalidScenario)
		}
		if symbols[token.Symbol] {
			return fmt.Errorf("%w: duplicate token %s", ErrInvalidScenario, token.Symbol)
		}
		symbols[token.Symbol] = true
	}
	if s.Native != nil {
		if s.Native.Symbol == "" || symbols[s.Native.Symbol] || symbols["W"+s.Native.Symbol] {
			return fmt.Errorf("%w: native symbol %q", ErrInvalidScenario, s.Native.Symbol)
		}
		symbols[s.Native.Symbol] = true
		symbols["W"+s.Native.Symbol] = true
	}
	for _, account := range s.Accounts {
		if account.Name == "" {
			return fmt.Errorf("%w: account without name", ErrInvalidScenario)
		}
		for symbol, amount := range account.Balances {
			if !symbols[symbol] {
				return fmt.Errorf("%w: account %s holds unknown token %s", ErrInvalidScenario, account.Name, symbol)
			}
			if _, err := amount.Value(); err != nil {
				return fmt.Errorf("%w: account %s balance %s: %v", ErrInvalidScenario, account.Name, symbol, err)
			}
		}
	}
	for name := range s.Roles {
		if _, err := access.ParseRole(name); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidScenario, err)
		}
	}
	if s.Staking != nil && !symbols[s.Staking.Token] {
		return fmt.Errorf("%w: staking token %q", ErrInvalidScenario, s.Staking.Token)
	}
	if s.Vaults != nil {
		if !symbols[s.Vaults.Asset] {
			return fmt.Errorf("%w: vault asset %q", ErrInvalidScenario, s.Vaults.Asset)
		}
		if s.Native != nil && s.Vaults.Asset == "W"+s.Native.Symbol {
			return fmt.Errorf("%w: vault asset must be mintable", ErrInvalidScenario)
		}
	}
	var last uint64
	for i, step := range s.Steps {
		if step.Op == "" {
			return fmt.Errorf("%w: step %d has no op", ErrInvalidScenario, i)
		}
		if _, ok := operations[step.Op]; !ok {
			return fmt.Errorf("%w: step %d unknown op %q", ErrInvalidScenario, i, step.Op)
		}
		if step.At < last {
			return fmt.Errorf("%w: step %d goes back in time", ErrInvalidScenario, i)
		}
		last = step.At
	}
	return nil
}
