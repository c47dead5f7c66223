package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/newthinker/skinquant/internal/collector"
)

var onsaleCmd = &cobra.Command{
	Use:   "onsale [symbol...]",
	Short: "Show on-sale listings and the supply level",
	Long:  "Fetch current on-sale counts per platform and compare them with recent daily volume. Without arguments the whole catalog is fetched.",
	RunE:  runOnSale,
}

var pricesCmd = &cobra.Command{
	Use:   "prices [symbol...]",
	Short: "Refresh and print current prices",
	RunE:  runPrices,
}

func init() {
	rootCmd.AddCommand(onsaleCmd)
	rootCmd.AddCommand(pricesCmd)
}

func symbolsOrCatalog(rt *runtime, args []string) ([]string, error) {
	if len(args) == 0 {
		return rt.catalog.Names(), nil
	}
	for _, s := range args {
		if _, err := rt.catalog.Lookup(s); err != nil {
			return nil, err
		}
	}
	return args, nil
}

func runOnSale(cmd *cobra.Command, args []string) error {
	return withRuntime(func(ctx context.Context, rt *runtime) error {
		symbols, err := symbolsOrCatalog(rt, args)
		if err != nil {
			return err
		}

		results, err := collector.BatchOnSale(ctx, rt.market, symbols, rt.pacer)
		if err != nil {
			return err
		}

		end := time.Now().UTC()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SYMBOL\tON SALE\tSUPPLY\tSCORE\tAVG VOLUME\tRATIO\tCONDITION\t")
		fmt.Fprintln(w, "------\t-------\t------\t-----\t----------\t-----\t---------\t")
		for _, symbol := range symbols {
			res := results[symbol]
			if res.Err != nil {
				fmt.Fprintf(w, "%s\terror: %v\t\t\t\t\t\t\n", symbol, res.Err)
				continue
			}
			supply := collector.AnalyzeSupply(res.Snapshot)

			avg, ratio, condition := "-", "-", "-"
			bars, err := rt.market.FetchHistory(ctx, symbol, end.AddDate(0, 0, -30), end)
			if err == nil {
				if vc, err := collector.CompareWithVolume(res.Snapshot, bars); err == nil {
					avg = fmt.Sprintf("%.1f", vc.AvgVolume)
					ratio = fmt.Sprintf("%.2f", vc.Ratio)
					condition = string(vc.Condition)
				}
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\t%s\t%s\t\n",
				symbol, supply.Total, supply.Level, supply.Score, avg, ratio, condition)
		}
		w.Flush()
		return nil
	})
}

func runPrices(cmd *cobra.Command, args []string) error {
	return withRuntime(func(ctx context.Context, rt *runtime) error {
		symbols, err := symbolsOrCatalog(rt, args)
		if err != nil {
			return err
		}

		quotes, err := rt.prices.RefreshAll(ctx, symbols)
		if err != nil {
			return err
		}
		sort.Strings(symbols)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SYMBOL\tPRICE\tUPDATED\tSOURCE\t")
		fmt.Fprintln(w, "------\t-----\t-------\t------\t")
		for _, symbol := range symbols {
			q, ok := quotes[symbol]
			if !ok {
				fmt.Fprintf(w, "%s\t-\t-\tunavailable\t\n", symbol)
				continue
			}
			source := "market"
			if q.Default {
				source = "default"
			}
			fmt.Fprintf(w, "%s\t%.2f\t%s\t%s\t\n", symbol, q.Price, q.UpdatedAt.Format("2006-01-02 15:04"), source)
		}
		w.Flush()
		return nil
	})
}
