package main

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dealwatch/dealwatch/internal/model"
	"github.com/dealwatch/dealwatch/internal/store"
)

var (
	trackTarget string
	trackUser   string
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Manage tracked products and alerts",
}

var trackAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Track a product URL with a target price alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initCore(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		url := args[0]
		profile, err := env.Registry.Match(url)
		if err != nil {
			return eris.Wrapf(err, "no site profile for %s", url)
		}

		target, err := model.ParsePrice(trackTarget, profile.Currency, false)
		if err != nil {
			return eris.Wrapf(err, "invalid target price %q", trackTarget)
		}

		product, err := env.Store.GetProductByURL(ctx, url)
		if errors.Is(err, store.ErrNotFound) {
			product, err = env.Store.CreateProduct(ctx, url)
		}
		if err != nil {
			return eris.Wrap(err, "track product")
		}

		alert, err := env.Store.CreateAlert(ctx, product.ID, trackUser, target)
		if err != nil {
			return eris.Wrap(err, "create alert")
		}

		fmt.Printf("tracking %s\nalert %s at target %s\n", url, alert.ID, target)
		return nil
	},
}

var trackListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked products and their alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initCore(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		products, err := env.Store.ListProducts(ctx)
		if err != nil {
			return eris.Wrap(err, "list products")
		}
		if len(products) == 0 {
			fmt.Println("no tracked products")
			return nil
		}

		for _, p := range products {
			last := "never checked"
			if p.LastKnownPrice != nil {
				last = p.LastKnownPrice.String()
			}
			if p.Stale(cfg.Scheduler.MaxFailures) {
				last += fmt.Sprintf(" (stale, %d failed checks)", p.ConsecutiveFailures)
			}
			fmt.Printf("%s\t%s\t%s\n", p.ID, p.URL, last)

			alerts, err := env.Store.ListAlertsByProduct(ctx, p.ID)
			if err != nil {
				return eris.Wrap(err, "list alerts")
			}
			for _, a := range alerts {
				state := "armed"
				switch {
				case a.Triggered:
					state = "triggered"
				case !a.Active:
					state = "inactive"
				}
				fmt.Printf("  alert %s\ttarget %s\t%s\n", a.ID, a.TargetPrice, state)
			}
		}
		return nil
	},
}

var trackRmCmd = &cobra.Command{
	Use:   "rm <alert-id>",
	Short: "Remove an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initCore(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		productID, remaining, err := env.Store.DeleteAlert(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "delete alert %s", args[0])
		}
		fmt.Printf("alert %s removed\n", args[0])

		// Orphaned products are retained for price history unless the
		// deployment opts into deletion.
		if remaining == 0 && cfg.Track.DeleteOrphaned {
			if err := env.Store.DeleteProduct(ctx, productID); err != nil {
				return eris.Wrapf(err, "delete orphaned product %s", productID)
			}
			zap.L().Info("orphaned product removed",
				zap.String("product_id", productID),
			)
			fmt.Printf("product %s no longer tracked\n", productID)
		}
		return nil
	},
}

func init() {
	trackAddCmd.Flags().StringVar(&trackTarget, "target", "", "target price, e.g. 49.99")
	trackAddCmd.Flags().StringVar(&trackUser, "user", "", "user id owning the alert")
	_ = trackAddCmd.MarkFlagRequired("target")

	trackCmd.AddCommand(trackAddCmd)
	trackCmd.AddCommand(trackListCmd)
	trackCmd.AddCommand(trackRmCmd)
	rootCmd.AddCommand(trackCmd)
}
