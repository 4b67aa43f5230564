package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/dealwatch/dealwatch/internal/report"
	"github.com/dealwatch/dealwatch/internal/store"
)

var (
	reportOut   string
	reportLimit int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export tracked products and their price history to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close()

		products, err := st.ListProducts(ctx)
		if err != nil {
			return eris.Wrap(err, "list products")
		}
		if len(products) == 0 {
			return eris.New("no tracked products to report on")
		}

		histories := make([]report.ProductHistory, 0, len(products))
		for _, p := range products {
			records, err := st.ListPriceHistory(ctx, p.ID, reportLimit)
			if err != nil {
				return eris.Wrapf(err, "price history for %s", p.URL)
			}
			histories = append(histories, report.ProductHistory{
				Product: p,
				Records: records,
			})
		}

		if err := report.WriteXLSX(reportOut, histories); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%d products)\n", reportOut, len(histories))
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "dealwatch-report.xlsx", "output file path")
	reportCmd.Flags().IntVar(&reportLimit, "limit", 500, "max history rows per product")
	rootCmd.AddCommand(reportCmd)
}
