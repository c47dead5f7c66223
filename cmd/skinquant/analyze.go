package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [symbol...]",
	Short: "Optimise, replay the live window and print the signals",
	Long: `Tune the bias strategy over the optimisation window, replay the best
parameters over the live window and store the resulting signals. Without
arguments the whole catalog is analysed.`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	symbols := args
	if len(symbols) == 0 {
		symbols = rt.catalog.Names()
	}
	for _, s := range symbols {
		if _, err := rt.catalog.Lookup(s); err != nil {
			return err
		}
	}

	failed := 0
	for _, symbol := range symbols {
		res, err := rt.analyzer.Analyze(ctx, symbol)
		if err != nil {
			failed++
			fmt.Printf("%s: %v\n\n", symbol, err)
			continue
		}

		fmt.Printf("=== %s ===\n", res.Symbol)
		fmt.Printf("Optimised:  %s to %s (%d trials)\n",
			res.OptimizeWindow.Start.Format(time.DateOnly), res.OptimizeWindow.End.Format(time.DateOnly), res.Optimization.Evaluated)
		fmt.Printf("Params:     %s\n", res.Optimization.BestParams)
		fmt.Printf("Live:       %s to %s, sharpe %.3f, return %+.2f%%\n",
			res.LiveWindow.Start.Format(time.DateOnly), res.LiveWindow.End.Format(time.DateOnly),
			res.Live.Metrics.Sharpe, res.Live.Metrics.TotalReturn*100)
		if res.ReportKey != "" {
			fmt.Printf("Report:     %s\n", res.ReportKey)
		}

		if len(res.Signals) == 0 {
			fmt.Print("No signals.\n\n")
			continue
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tSTRATEGY\tACTION\tCONFIDENCE\tPRICE\tREASON\t")
		fmt.Fprintln(w, "----\t--------\t------\t----------\t-----\t------\t")
		for _, s := range res.Signals {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.2f\t%s\t\n",
				s.GeneratedAt.Format(time.DateOnly), s.Strategy, s.Action, s.Confidence, s.Price, s.Reason)
		}
		w.Flush()
		fmt.Println()
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d analyses failed", failed, len(symbols))
	}
	return nil
}
