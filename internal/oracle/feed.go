package oracle

import (
	"context"
	"math/big"
	"sync"
)

// RoundData is one answer of a push-style aggregator feed.
type RoundData struct {
	RoundID         *big.Int
	Answer          *big.Int
	StartedAt       uint64
	UpdatedAt       uint64
	AnsweredInRound *big.Int
}

// Feed is the read-only aggregator contract consumed by the oracle.
type Feed interface {
	LatestRoundData(ctx context.Context) (RoundData, error)
	Decimals(ctx context.Context) (uint8, error)
}

// StaticFeed is an in-process Feed whose answer is pushed by the owner.
type StaticFeed struct {
	mu       sync.RWMutex
	decimals uint8
	round    RoundData
}

func NewStaticFeed(decimals uint8) *StaticFeed {
	return &StaticFeed{
		decimals: decimals,
		round: RoundData{
			RoundID:         new(big.Int),
			Answer:          new(big.Int),
			AnsweredInRound: new(big.Int),
		},
	}
}

// Push records a new answer as the next round.
func (f *StaticFeed) Push(answer *big.Int, updatedAt uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := new(big.Int).Add(f.round.RoundID, big.NewInt(1))
	f.round = RoundData{
		RoundID:         next,
		Answer:          new(big.Int).Set(answer),
		StartedAt:       updatedAt,
		UpdatedAt:       updatedAt,
		AnsweredInRound: new(big.Int).Set(next),
	}
}

func (f *StaticFeed) LatestRoundData(ctx context.Context) (RoundData, error) {
	if err := ctx.Err(); err != nil {
		return RoundData{}, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return RoundData{
		RoundID:         new(big.Int).Set(f.round.RoundID),
		Answer:          new(big.Int).Set(f.round.Answer),
		StartedAt:       f.round.StartedAt,
		UpdatedAt:       f.round.UpdatedAt,
		AnsweredInRound: new(big.Int).Set(f.round.AnsweredInRound),
	}, nil
}

func (f *StaticFeed) Decimals(context.Context) (uint8, error) {
	return f.decimals, nil
}
