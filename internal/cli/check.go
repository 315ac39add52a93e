package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// CheckResult summarises a configuration that loaded cleanly.
type CheckResult struct {
	Valid   bool     `json:"valid"`
	Service string   `json:"service"`
	Env     string   `json:"env"`
	Venues  []string `json:"venues"`
	Sources int      `json:"sources"`
	Pairs   []string `json:"pairs"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate a configuration file",
		Long: `Load and validate the configuration, then build its venues,
feeds and liquidity pool exactly as the server would.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, parts, err := rootOpts.load()
			if err != nil {
				return err
			}
			res := CheckResult{
				Valid:   true,
				Service: cfg.Service,
				Env:     cfg.Env,
				Venues:  parts.Venues.Names(),
				Sources: len(parts.Pool.Sources()),
				Pairs:   parts.Prices.Pairs(),
			}
			return rootOpts.emit(cmd.OutOrStdout(), res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "ok: %s (%s), venues %v, %d sources, pairs %v\n",
					res.Service, res.Env, res.Venues, res.Sources, res.Pairs)
				return err
			})
		},
	}
}
