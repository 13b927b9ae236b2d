package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"blxProtocol/internal/oracle"
)

const aggregatorABIJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"internalType": "uint8", "name": "", "type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "description", "outputs": [{"internalType": "string", "name": "", "type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "latestRoundData", "outputs": [
    {"internalType": "uint80", "name": "roundId", "type": "uint80"},
    {"internalType": "int256", "name": "answer", "type": "int256"},
    {"internalType": "uint256", "name": "startedAt", "type": "uint256"},
    {"internalType": "uint256", "name": "updatedAt", "type": "uint256"},
    {"internalType": "uint80", "name": "answeredInRound", "type": "uint80"}
  ], "stateMutability": "view", "type": "function"}
]`

var (
	aggregatorABI     abi.ABI
	aggregatorABIOnce sync.Once
	aggregatorABIErr  error
)

// AggregatorABI returns the parsed price aggregator ABI.
func AggregatorABI() (abi.ABI, error) {
	aggregatorABIOnce.Do(func() {
		aggregatorABI, aggregatorABIErr = abi.JSON(strings.NewReader(aggregatorABIJSON))
	})
	return aggregatorABI, aggregatorABIErr
}

// Caller executes read-only contract calls. *Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// AggregatorFeed reads an on-chain price aggregator and satisfies
// oracle.Feed.
type AggregatorFeed struct {
	caller       Caller
	address      common.Address
	maxRetries   int
	retryBackoff time.Duration
	logger       *zap.Logger

	mu       sync.Mutex
	decimals *uint8
}

var _ oracle.Feed = (*AggregatorFeed)(nil)

func NewAggregatorFeed(caller Caller, address common.Address, maxRetries int, retryBackoff time.Duration, logger *zap.Logger) *AggregatorFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AggregatorFeed{
		caller:       caller,
		address:      address,
		maxRetries:   maxRetries,
		retryBackoff: retryBackoff,
		logger:       logger,
	}
}

func (f *AggregatorFeed) Address() common.Address { return f.address }

// LatestRoundData calls latestRoundData() on the aggregator.
func (f *AggregatorFeed) LatestRoundData(ctx context.Context) (oracle.RoundData, error) {
	values, err := f.call(ctx, "latestRoundData")
	if err != nil {
		return oracle.RoundData{}, err
	}
	if len(values) != 5 {
		return oracle.RoundData{}, fmt.Errorf("latestRoundData return size %d", len(values))
	}
	roundID, err := asBigInt(values[0])
	if err != nil {
		return oracle.RoundData{}, fmt.Errorf("roundId: %w", err)
	}
	answer, err := asBigInt(values[1])
	if err != nil {
		return oracle.RoundData{}, fmt.Errorf("answer: %w", err)
	}
	startedAt, err := asUint64(values[2])
	if err != nil {
		return oracle.RoundData{}, fmt.Errorf("startedAt: %w", err)
	}
	updatedAt, err := asUint64(values[3])
	if err != nil {
		return oracle.RoundData{}, fmt.Errorf("updatedAt: %w", err)
	}
	answeredIn, err := asBigInt(values[4])
	if err != nil {
		return oracle.RoundData{}, fmt.Errorf("answeredInRound: %w", err)
	}
	return oracle.RoundData{
		RoundID:         roundID,
		Answer:          answer,
		StartedAt:       startedAt,
		UpdatedAt:       updatedAt,
		AnsweredInRound: answeredIn,
	}, nil
}

// Decimals calls decimals() once and caches the result.
func (f *AggregatorFeed) Decimals(ctx context.Context) (uint8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.decimals != nil {
		return *f.decimals, nil
	}
	values, err := f.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("decimals return size %d", len(values))
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals unexpected type %T", values[0])
	}
	f.decimals = &decimals
	return decimals, nil
}

// Description returns the aggregator's pair label, e.g. "BNB / USD".
func (f *AggregatorFeed) Description(ctx context.Context) (string, error) {
	values, err := f.call(ctx, "description")
	if err != nil {
		return "", err
	}
	if len(values) != 1 {
		return "", fmt.Errorf("description return size %d", len(values))
	}
	desc, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("description unexpected type %T", values[0])
	}
	return desc, nil
}

func (f *AggregatorFeed) call(ctx context.Context, method string) ([]interface{}, error) {
	if f.caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	parsed, err := AggregatorABI()
	if err != nil {
		return nil, fmt.Errorf("parse aggregator abi: %w", err)
	}
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &f.address, Data: data}

	var resp []byte
	err = WithRetry(ctx, f.maxRetries, f.retryBackoff, func(ctx context.Context) error {
		var err error
		resp, err = f.caller.CallContract(ctx, msg, nil)
		if err != nil {
			f.logger.Warn("aggregator call failed", zap.String("feed", f.address.Hex()), zap.String("method", method), zap.Error(err))
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func asBigInt(v interface{}) (*big.Int, error) {
	value, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected type %T", v)
	}
	return value, nil
}

func asUint64(v interface{}) (uint64, error) {
	value, err := asBigInt(v)
	if err != nil {
		return 0, err
	}
	if !value.IsUint64() {
		return 0, fmt.Errorf("value %s overflows uint64", value)
	}
	return value.Uint64(), nil
}
