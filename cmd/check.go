package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var checkCmd = &cobra.Command{
	Use:   "check [url]",
	Short: "Check one tracked product now, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initCore(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if len(args) == 1 {
			product, err := env.Store.GetProductByURL(ctx, args[0])
			if err != nil {
				return eris.Wrapf(err, "product not tracked: %s", args[0])
			}
			rec, err := env.Scheduler.CheckNow(ctx, product)
			if err != nil {
				return eris.Wrap(err, "check failed")
			}
			fmt.Printf("%s\t%s\n", product.URL, rec.Price)
			return nil
		}

		products, err := env.Store.ListProducts(ctx)
		if err != nil {
			return eris.Wrap(err, "list products")
		}
		if len(products) == 0 {
			fmt.Println("no tracked products")
			return nil
		}

		for _, p := range products {
			rec, err := env.Scheduler.CheckNow(ctx, &p)
			if err != nil {
				zap.L().Warn("check failed",
					zap.String("url", p.URL),
					zap.Error(err),
				)
				fmt.Printf("%s\tFAILED\n", p.URL)
				continue
			}
			fmt.Printf("%s\t%s\n", p.URL, rec.Price)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
