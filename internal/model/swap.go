package model

import "github.com/holiman/uint256"

// SwapData is the decoded payload of a pair swap record.
type SwapData struct {
	Amount0In  *uint256.Int
	Amount1In  *uint256.Int
	Amount0Out *uint256.Int
	Amount1Out *uint256.Int
	FeeBps     uint64
}

// DecodeSwap reads the swap amounts from a pair.swap record.
func DecodeSwap(r EventRecord) (SwapData, error) {
	var (
		out SwapData
		err error
	)
	if out.Amount0In, err = r.Amount("amount0In"); err != nil {
		return SwapData{}, err
	}
	if out.Amount1In, err = r.Amount("amount1In"); err != nil {
		return SwapData{}, err
	}
	if out.Amount0Out, err = r.Amount("amount0Out"); err != nil {
		return SwapData{}, err
	}
	if out.Amount1Out, err = r.Amount("amount1Out"); err != nil {
		return SwapData{}, err
	}
	if out.FeeBps, err = r.Uint("feeBps"); err != nil {
		return SwapData{}, err
	}
	return out, nil
}

// SyncData is the decoded payload of a pair.sync record.
type SyncData struct {
	Reserve0 *uint256.Int
	Reserve1 *uint256.Int
}

func DecodeSync(r EventRecord) (SyncData, error) {
	reserve0, err := r.Amount("reserve0")
	if err != nil {
		return SyncData{}, err
	}
	reserve1, err := r.Amount("reserve1")
	if err != nil {
		return SyncData{}, err
	}
	return SyncData{Reserve0: reserve0, Reserve1: reserve1}, nil
}
