package cmd

import (
	"github.com/michaelpento.lv/flasharb/cmd/bot"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the monitoring loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		b, err := bot.New(ctx, cfg, log)
		if err != nil {
			log.Error("Failed to create bot", zap.Error(err))
			return err
		}
		if err := b.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()
		log.Info("Shutting down gracefully...")
		b.Stop()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
