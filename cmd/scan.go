package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/michaelpento.lv/flasharb/cmd/bot"
	"github.com/michaelpento.lv/flasharb/utils"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan every configured pair once and print the opportunities",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		b, err := bot.New(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		opportunities, err := b.Scan(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SOURCE\tTARGET\tBORROW\tGROSS\tLOAN FEE\tNET")
		for _, opp := range opportunities {
			symbol, decimals := opp.Token0.Hex(), int32(0)
			if t, ok := cfg.TokenByAddress(opp.Token0); ok {
				symbol, decimals = t.Symbol, t.Decimals
			}
			fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\t%s\t%s\n",
				opp.SourceVenue, opp.TargetVenue,
				utils.FormatUnits(opp.AmountIn, decimals), symbol,
				utils.FormatUnits(opp.ExpectedProfit, decimals),
				utils.FormatUnits(opp.LoanFee, decimals),
				utils.FormatUnits(opp.NetProfit, decimals))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d opportunities\n", len(opportunities))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
