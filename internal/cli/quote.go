package cli

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/atmx/debt-bridge/internal/bridge"
	"github.com/atmx/debt-bridge/internal/task"
	"github.com/atmx/debt-bridge/internal/wad"
)

type quoteOptions struct {
	collateral  string
	debt        string
	price       string
	pair        string
	sourceRatio string
	destRatio   string
	costPrice   string
	newPosition bool
}

// QuoteResult is the JSON form of a quote.
type QuoteResult struct {
	Mode                 string `json:"mode"`
	Source               string `json:"source"`
	Route                int    `json:"route"`
	CostUnits            uint64 `json:"cost_units"`
	Fee                  string `json:"fee"`
	CollateralToWithdraw string `json:"collateral_to_withdraw"`
	DebtToRepay          string `json:"debt_to_repay"`
	CollateralToDeposit  string `json:"collateral_to_deposit"`
	DebtToBorrow         string `json:"debt_to_borrow"`
}

// NewQuoteCommand creates the quote command.
func NewQuoteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &quoteOptions{}
	cmd := &cobra.Command{
		Use:   "quote <partial|full|liquidate>",
		Short: "Size a migration and pick its flash-liquidity source",
		Long: `Size a partial or full migration of a position, choose the first
configured source that can lend the debt, and deduct the execution fee
for that source from the moved collateral.

The collateral price is taken from --price, or from the configured feed
for --pair when --price is empty.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuote(cmd, rootOpts, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.collateral, "collateral", "", "collateral held by the source position")
	f.StringVar(&opts.debt, "debt", "", "debt owed by the source position")
	f.StringVar(&opts.price, "price", "", "collateral price in debt units")
	f.StringVar(&opts.pair, "pair", "ETH/USD", "configured price feed used when --price is empty")
	f.StringVar(&opts.sourceRatio, "source-ratio", "", "collateral ratio the source position is held at")
	f.StringVar(&opts.destRatio, "dest-ratio", "", "target collateral ratio at the destination")
	f.StringVar(&opts.costPrice, "cost-price", "0.0000001", "native units paid per cost unit")
	f.BoolVar(&opts.newPosition, "new-position", false, "the destination position must be opened")
	_ = cmd.MarkFlagRequired("collateral")
	_ = cmd.MarkFlagRequired("debt")
	_ = cmd.MarkFlagRequired("source-ratio")
	_ = cmd.MarkFlagRequired("dest-ratio")

	return cmd
}

func runQuote(cmd *cobra.Command, rootOpts *RootOptions, opts *quoteOptions, modeArg string) error {
	mode, err := bridge.ParseMode(modeArg)
	if err != nil {
		return err
	}
	_, parts, err := rootOpts.load()
	if err != nil {
		return err
	}

	amounts := map[string]*big.Int{}
	for name, s := range map[string]string{
		"collateral":   opts.collateral,
		"debt":         opts.debt,
		"source-ratio": opts.sourceRatio,
		"dest-ratio":   opts.destRatio,
		"cost-price":   opts.costPrice,
	} {
		v, err := wad.Parse(s)
		if err != nil {
			return fmt.Errorf("--%s: %w", name, err)
		}
		amounts[name] = v
	}

	targets := bridge.Targets{Source: amounts["source-ratio"], Destination: amounts["dest-ratio"]}

	var price *big.Int
	if opts.price != "" {
		if price, err = wad.Parse(opts.price); err != nil {
			return fmt.Errorf("--price: %w", err)
		}
	} else if price, err = parts.Prices.Price(context.Background(), opts.pair); err != nil {
		return err
	}

	q, err := task.QuotePlan(parts.Pool, mode, bridge.PlanInput{
		Collateral:      amounts["collateral"],
		Debt:            amounts["debt"],
		CollateralPrice: price,
		Targets:         targets,
	}, opts.newPosition, amounts["cost-price"])
	if err != nil {
		return err
	}

	res := QuoteResult{
		Mode:                 q.Plan.Mode.String(),
		Source:               q.Source,
		Route:                q.Route,
		CostUnits:            q.CostUnits,
		Fee:                  wad.Format(q.Plan.Fee),
		CollateralToWithdraw: wad.Format(q.Plan.CollateralToWithdraw),
		DebtToRepay:          wad.Format(q.Plan.DebtToRepay),
		CollateralToDeposit:  wad.Format(q.Plan.CollateralToDeposit),
		DebtToBorrow:         wad.Format(q.Plan.DebtToBorrow),
	}
	return rootOpts.emit(cmd.OutOrStdout(), res, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "mode\t%s\n", res.Mode)
		fmt.Fprintf(tw, "source\t%s (route %d, %d cost units)\n", res.Source, res.Route, res.CostUnits)
		fmt.Fprintf(tw, "fee\t%s\n", res.Fee)
		fmt.Fprintf(tw, "withdraw\t%s\n", res.CollateralToWithdraw)
		fmt.Fprintf(tw, "repay\t%s\n", res.DebtToRepay)
		fmt.Fprintf(tw, "deposit\t%s\n", res.CollateralToDeposit)
		fmt.Fprintf(tw, "borrow\t%s\n", res.DebtToBorrow)
		return tw.Flush()
	})
}
