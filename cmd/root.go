package cmd

import (
	"context"

	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	envFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "flasharb",
	Short: "A flash-loan cross-venue arbitrage bot",
	Long: `A CLI bot that watches the same token pair on several venues, sizes
round trips that buy on one venue and sell on another, and settles them
atomically with borrowed capital.`,
	SilenceUsage: true,
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (.json, .yaml, .yml or .toml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file with NODE_URL, PRIVATE_KEY, TRUSTED_RELAY and ADMIN_SECRET")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig reads the environment and config file and initializes the
// process logger from the result
func loadConfig() (*config.Config, *zap.Logger, error) {
	if err := config.LoadEnv(envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	log := utils.InitLogger(utils.LogOptions{
		Level: cfg.Logging.Level,
		File:  cfg.Logging.File,
		Debug: debug,
	})
	return cfg, log, nil
}
