package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intake/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "lead-intake",
	Short: "Landing page lead intake service",
	Long:  "Receives quiz and popup submissions from the landing pages, creates amoCRM leads with attribution and tags, and posts a Telegram notification.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		source := cfg.File
		if source == "" {
			source = "defaults and environment"
		}
		zap.L().Debug("config loaded",
			zap.String("source", source),
			zap.Bool("crm_configured", cfg.AmoCRM.Configured()),
			zap.Bool("telegram_configured", cfg.Telegram.Configured()),
		)

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
