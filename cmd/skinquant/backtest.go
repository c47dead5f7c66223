package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/skinquant/internal/backtest"
)

var (
	runSymbol string
	runFrom   string
	runTo     string

	params     = backtest.DefaultParams()
	showTrace  bool
	topTrials  int
	searchDays int
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Simulate the bias strategy over a symbol's history",
	Long:  "Run the bias strategy with fixed parameters against daily bars and show its risk metrics",
	RunE:  runBacktest,
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Grid-search the bias strategy parameters",
	Long:  "Search the configured parameter grid for the combination with the best Sharpe ratio",
	RunE:  runOptimize,
}

func init() {
	for _, c := range []*cobra.Command{backtestCmd, optimizeCmd} {
		c.Flags().StringVar(&runSymbol, "symbol", "", "Catalog symbol (required)")
		c.Flags().StringVar(&runFrom, "from", "", "Start date YYYY-MM-DD (default: --days before --to)")
		c.Flags().StringVar(&runTo, "to", "", "End date YYYY-MM-DD (default: today)")
		c.Flags().IntVar(&searchDays, "days", 90, "Days of history when --from is not set")
		c.MarkFlagRequired("symbol")
	}

	backtestCmd.Flags().Float64Var(&params.K0, "k0", params.K0, "Profit-taking aggressiveness")
	backtestCmd.Flags().Float64Var(&params.BiasTh, "bias-th", params.BiasTh, "Bias threshold in (0,1)")
	backtestCmd.Flags().IntVar(&params.SellDays, "sell-days", params.SellDays, "Stop-loss lookback in bars")
	backtestCmd.Flags().Float64Var(&params.SellDropTh, "sell-drop-th", params.SellDropTh, "Stop-loss drop ratio, negative")
	backtestCmd.Flags().BoolVar(&showTrace, "trace", false, "Print the per-bar trace")

	optimizeCmd.Flags().IntVar(&topTrials, "top", 5, "Number of best trials to list")

	rootCmd.AddCommand(backtestCmd)
	rootCmd.AddCommand(optimizeCmd)
}

// dateRange resolves --from/--to/--days.
func dateRange() (time.Time, time.Time, error) {
	end := time.Now().UTC()
	if runTo != "" {
		t, err := time.Parse(time.DateOnly, runTo)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to date format (expected YYYY-MM-DD): %w", err)
		}
		end = t.Add(24*time.Hour - time.Nanosecond)
	}

	start := end.AddDate(0, 0, -searchDays)
	if runFrom != "" {
		t, err := time.Parse(time.DateOnly, runFrom)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from date format (expected YYYY-MM-DD): %w", err)
		}
		start = t
	}

	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date must be after start date")
	}
	return start, end, nil
}

func runBacktest(cmd *cobra.Command, args []string) error {
	start, end, err := dateRange()
	if err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}

	ctx := context.Background()
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.analyzer.Backtest(ctx, runSymbol, start, end, params)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	fmt.Println("=== Backtest ===")
	fmt.Printf("Symbol:   %s\n", res.Symbol)
	fmt.Printf("Period:   %s to %s\n", start.Format(time.DateOnly), end.Format(time.DateOnly))
	fmt.Printf("Params:   %s\n", res.Params)
	fmt.Println()
	printMetrics(res.Metrics)
	fmt.Printf("Buy bars:          %d\n", res.Summary.BuyBars)
	fmt.Printf("Sell bars:         %d\n", res.Summary.SellBars)
	fmt.Printf("Final position:    %.2f\n", res.Summary.FinalPosition)

	if showTrace {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tPRICE\tMA5\tBIAS\tBUY\tSELL\tPOSITION\tRETURN\t")
		fmt.Fprintln(w, "----\t-----\t---\t----\t---\t----\t--------\t------\t")
		for _, r := range res.Trace {
			fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%+.4f\t%.3f\t%.3f\t%.3f\t%+.4f\t\n",
				r.Time.Format(time.DateOnly), r.Price, r.MA5, r.Bias, r.Buy, r.Sell, r.Position, r.Return)
		}
		w.Flush()
	}

	rt.log.Info("backtest finished", zap.String("symbol", res.Symbol), zap.Int("rows", len(res.Trace)))
	return nil
}

func runOptimize(cmd *cobra.Command, args []string) error {
	start, end, err := dateRange()
	if err != nil {
		return err
	}

	ctx := context.Background()
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	lastPct := -1
	res, err := rt.analyzer.Optimize(ctx, runSymbol, start, end, backtest.SearchSpace{}, func(done, total int) {
		if pct := done * 100 / total; pct/10 != lastPct/10 {
			lastPct = pct
			fmt.Fprintf(os.Stderr, "\rsearching... %3d%%", pct)
		}
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("optimization failed: %w", err)
	}

	fmt.Println("=== Optimization ===")
	fmt.Printf("Symbol:     %s\n", runSymbol)
	fmt.Printf("Period:     %s to %s\n", start.Format(time.DateOnly), end.Format(time.DateOnly))
	fmt.Printf("Evaluated:  %d (skipped %d)\n", res.Evaluated, res.Skipped)
	fmt.Printf("Best:       %s\n", res.BestParams)
	fmt.Println()
	printMetrics(res.BestMetrics)

	if topTrials > 0 && len(res.Trials) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "K0\tBIAS TH\tSELL DAYS\tDROP TH\tSHARPE\tRETURN\tMAX DD\t")
		fmt.Fprintln(w, "--\t-------\t---------\t-------\t------\t------\t------\t")
		for _, tr := range backtest.TopTrials(res.Trials, topTrials) {
			fmt.Fprintf(w, "%.2f\t%.2f\t%d\t%.2f\t%.3f\t%+.2f%%\t%.2f%%\t\n",
				tr.Params.K0, tr.Params.BiasTh, tr.Params.SellDays, tr.Params.SellDropTh,
				tr.Metrics.Sharpe, tr.Metrics.TotalReturn*100, tr.Metrics.MaxDrawdown*100)
		}
		w.Flush()
	}

	rt.log.Info("optimization finished", zap.String("symbol", runSymbol), zap.String("best", res.BestParams.String()))
	return nil
}

func printMetrics(m backtest.Metrics) {
	fmt.Printf("Total return:      %+.2f%%\n", m.TotalReturn*100)
	fmt.Printf("Annualized return: %+.2f%%\n", m.AnnualizedReturn*100)
	fmt.Printf("Volatility:        %.2f%%\n", m.Volatility*100)
	fmt.Printf("Sharpe:            %.3f\n", m.Sharpe)
	fmt.Printf("Max drawdown:      %.2f%%\n", m.MaxDrawdown*100)
	fmt.Printf("Calmar:            %.3f\n", m.Calmar)
}
