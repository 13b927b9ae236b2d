package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"blxProtocol/internal/amm"
	"blxProtocol/internal/config"
	"blxProtocol/internal/mathx"
)

func runQuote(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadQuote(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	hops, err := parseHops(cfg.Reserves)
	if err != nil {
		return err
	}
	amounts, err := quote(hops, cfg.AmountIn, cfg.AmountOut)
	if err != nil {
		return err
	}
	logger.Debug("quote", zap.Int("hops", len(hops)), zap.String("amount_in", cfg.AmountIn), zap.String("amount_out", cfg.AmountOut))
	return printAmounts(cmd.OutOrStdout(), amounts)
}

// parseHops reads "reserveIn:reserveOut" pairs in path order.
func parseHops(reserves []string) ([]amm.Hop, error) {
	if len(reserves) == 0 {
		return nil, fmt.Errorf("at least one hop reserve pair is required")
	}
	hops := make([]amm.Hop, 0, len(reserves))
	for i, item := range reserves {
		in, out, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("hop %d: expected reserveIn:reserveOut, got %q", i, item)
		}
		reserveIn, err := mathx.ParseAmount(in)
		if err != nil {
			return nil, fmt.Errorf("hop %d reserve in: %w", i, err)
		}
		reserveOut, err := mathx.ParseAmount(out)
		if err != nil {
			return nil, fmt.Errorf("hop %d reserve out: %w", i, err)
		}
		hops = append(hops, amm.Hop{ReserveIn: reserveIn, ReserveOut: reserveOut})
	}
	return hops, nil
}

// quote runs exactly one of the exact-in or exact-out chains.
func quote(hops []amm.Hop, amountIn, amountOut string) ([]*uint256.Int, error) {
	switch {
	case amountIn != "" && amountOut != "":
		return nil, fmt.Errorf("set only one of amount-in and amount-out")
	case amountIn != "":
		in, err := mathx.ParseAmount(amountIn)
		if err != nil {
			return nil, fmt.Errorf("amount-in: %w", err)
		}
		return amm.GetAmountsOut(in, hops)
	case amountOut != "":
		out, err := mathx.ParseAmount(amountOut)
		if err != nil {
			return nil, fmt.Errorf("amount-out: %w", err)
		}
		return amm.GetAmountsIn(out, hops)
	default:
		return nil, fmt.Errorf("amount-in or amount-out is required")
	}
}

func printAmounts(w io.Writer, amounts []*uint256.Int) error {
	for i, amount := range amounts {
		if _, err := fmt.Fprintf(w, "%d\t%s\n", i, amount.Dec()); err != nil {
			return err
		}
	}
	return nil
}
