package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dealwatch/dealwatch/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "dealwatch",
	Short: "Price tracker for e-commerce product pages",
	Long:  "Tracks product pages on supported retail sites, checks prices on a schedule, and fires notifications when a price drops to an alert's target.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

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
