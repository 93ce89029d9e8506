package cmd

import (
	"fmt"

	"github.com/michaelpento.lv/flasharb/cmd/bot"
	"github.com/michaelpento.lv/flasharb/utils"
	"github.com/spf13/cobra"
)

var quoteCmd = &cobra.Command{
	Use:   "quote <venue> <token-in> <token-out> <amount>",
	Short: "Quote an exact-input trade on one venue",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		b, err := bot.New(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		plan, err := b.Quote(cmd.Context(), args[0], args[1], args[2], args[3])
		if err != nil {
			return err
		}

		var decimals int32
		if t, ok := cfg.TokenByAddress(plan.TokenOut); ok {
			decimals = t.Decimals
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "venue:        %s\n", plan.Venue)
		fmt.Fprintf(out, "expected out: %s %s\n", utils.FormatUnits(plan.ExpectedOut, decimals), args[2])
		fmt.Fprintf(out, "minimum out:  %s %s\n", utils.FormatUnits(plan.MinOut, decimals), args[2])
		fmt.Fprintf(out, "deadline:     block %d\n", plan.Deadline)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(quoteCmd)
}
