package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/dealwatch/dealwatch/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tracking and alerting counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close()

		stats, err := st.CollectStats(ctx, cfg.Scheduler.MaxFailures)
		if err != nil {
			return eris.Wrap(err, "collect stats")
		}

		fmt.Printf("products:       %d\n", stats.Products)
		fmt.Printf("alerts:         %d\n", stats.Alerts)
		fmt.Printf("active alerts:  %d\n", stats.ActiveAlerts)
		fmt.Printf("stale products: %d\n", stats.StaleProducts)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
