package cli

import (
	"fmt"
	"io"
	"math/big"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/atmx/debt-bridge/internal/wad"
)

// SourceRow is one configured liquidity source.
type SourceRow struct {
	Route       int    `json:"route"`
	Name        string `json:"name"`
	Token       string `json:"token"`
	Capacity    string `json:"capacity"`
	Existing    uint64 `json:"existing"`
	NewPosition uint64 `json:"new_position"`
	Selected    bool   `json:"selected,omitempty"`
}

// NewSourcesCommand creates the sources command.
func NewSourcesCommand(rootOpts *RootOptions) *cobra.Command {
	var amount string
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List flash-liquidity sources in priority order",
		Long: `List the configured flash-liquidity sources in priority order.
With --amount, mark the source a loan of that size would be routed to.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, parts, err := rootOpts.load()
			if err != nil {
				return err
			}
			selected := -1
			if amount != "" {
				v, err := wad.Parse(amount)
				if err != nil {
					return fmt.Errorf("--amount: %w", err)
				}
				if selected, err = parts.Pool.Select(v); err != nil {
					return err
				}
			}

			var rows []SourceRow
			for i, s := range parts.Pool.Sources() {
				rows = append(rows, SourceRow{
					Route:       i,
					Name:        s.Name,
					Token:       s.Token,
					Capacity:    wad.Format(capacityOrZero(s.Capacity)),
					Existing:    s.Cost.Existing,
					NewPosition: s.Cost.NewPosition,
					Selected:    i == selected,
				})
			}
			return rootOpts.emit(cmd.OutOrStdout(), rows, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ROUTE\tNAME\tTOKEN\tCAPACITY\tEXISTING\tNEW\t")
				for _, r := range rows {
					mark := ""
					if r.Selected {
						mark = "*"
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%s\n", r.Route, r.Name, r.Token, r.Capacity, r.Existing, r.NewPosition, mark)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "loan size to route")
	return cmd
}

func capacityOrZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}
