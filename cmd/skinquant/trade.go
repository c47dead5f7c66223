package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/skinquant/internal/broker"
	"github.com/newthinker/skinquant/internal/core"
)

var (
	tradeUser  string
	tradePrice float64
	tradeLimit int
)

var tradeCmd = &cobra.Command{
	Use:   "trade",
	Short: "Paper-trading ledger operations",
	Long:  `Commands for buying and selling items and inspecting a user's paper portfolio.`,
}

var tradeBuyCmd = &cobra.Command{
	Use:   "buy <symbol> <quantity>",
	Short: "Buy units at --price or the current market price",
	Args:  cobra.ExactArgs(2),
	RunE:  func(cmd *cobra.Command, args []string) error { return runTrade(core.ActionBuy, args) },
}

var tradeSellCmd = &cobra.Command{
	Use:   "sell <symbol> <quantity>",
	Short: "Sell unlocked units at --price or the current market price",
	Args:  cobra.ExactArgs(2),
	RunE:  func(cmd *cobra.Command, args []string) error { return runTrade(core.ActionSell, args) },
}

var tradePortfolioCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Show cash, positions and lot locks",
	RunE:  runPortfolio,
}

var tradeHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent trades",
	RunE:  runTradeHistory,
}

var tradeStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show trading statistics",
	RunE:  runTradeStats,
}

func init() {
	rootCmd.AddCommand(tradeCmd)
	tradeCmd.AddCommand(tradeBuyCmd, tradeSellCmd, tradePortfolioCmd, tradeHistoryCmd, tradeStatsCmd)

	tradeCmd.PersistentFlags().StringVarP(&tradeUser, "user", "u", "local", "Account user id")
	tradeBuyCmd.Flags().Float64Var(&tradePrice, "price", 0, "Limit price (default: market)")
	tradeSellCmd.Flags().Float64Var(&tradePrice, "price", 0, "Limit price (default: market)")
	tradeHistoryCmd.Flags().IntVar(&tradeLimit, "limit", 20, "Number of trades to show (0 for all)")
}

// withRuntime handles common setup and teardown.
func withRuntime(fn func(ctx context.Context, rt *runtime) error) error {
	ctx := context.Background()
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func runTrade(action core.Action, args []string) error {
	symbol := args[0]
	qty, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid quantity %q: %w", args[1], err)
	}

	return withRuntime(func(ctx context.Context, rt *runtime) error {
		if _, err := rt.catalog.Lookup(symbol); err != nil {
			return err
		}

		var out broker.Outcome
		if action == core.ActionBuy {
			out, err = rt.sessions.Buy(ctx, tradeUser, symbol, qty, tradePrice)
		} else {
			out, err = rt.sessions.Sell(ctx, tradeUser, symbol, qty, tradePrice)
		}
		if err != nil {
			return err
		}
		if !out.Accepted {
			return out.Err()
		}

		t := out.Trade
		fmt.Printf("%s %d x %s @ %.2f = %.2f\n", t.Action, t.Quantity, t.Symbol, t.Price, t.Total)
		if t.Action == core.ActionSell {
			fmt.Printf("Cost basis: %.2f  P&L: %+.2f (%+.2f%%)\n", t.Cost, t.PnLAmount, t.PnLPercent)
		}
		rt.log.Info("trade executed",
			zap.String("user", tradeUser),
			zap.String("trade", t.ID),
			zap.String("action", string(t.Action)),
		)
		return nil
	})
}

func runPortfolio(cmd *cobra.Command, args []string) error {
	return withRuntime(func(ctx context.Context, rt *runtime) error {
		snap, err := rt.sessions.Portfolio(ctx, tradeUser)
		if err != nil {
			return err
		}
		v := snap.Valuation

		fmt.Println("Portfolio Summary")
		fmt.Println("-----------------")
		fmt.Printf("User:            %s\n", snap.UserID)
		fmt.Printf("Cash:            %.2f\n", v.Cash)
		fmt.Printf("Market value:    %.2f\n", v.MarketValue)
		fmt.Printf("Total value:     %.2f\n", v.TotalValue)
		fmt.Printf("Unrealized P&L:  %+.2f (%+.2f%%)\n", v.UnrealizedPL, v.UnrealizedPLPercent)
		fmt.Printf("Realized P&L:    %+.2f\n", v.RealizedPL)

		if len(v.Positions) == 0 {
			fmt.Println("\nNo positions found.")
			return nil
		}

		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SYMBOL\tQTY\tAVAILABLE\tLOCKED\tAVG PRICE\tPRICE\tMKT VALUE\tP&L\t")
		fmt.Fprintln(w, "------\t---\t---------\t------\t---------\t-----\t---------\t---\t")
		for _, p := range v.Positions {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.2f\t%.2f\t%.2f\t%+.2f\t\n",
				p.Symbol, p.Quantity, p.Available, p.Locked, p.AvgPrice, p.CurrentPrice, p.MarketValue, p.UnrealizedPL)
		}
		w.Flush()
		return nil
	})
}

func runTradeHistory(cmd *cobra.Command, args []string) error {
	return withRuntime(func(ctx context.Context, rt *runtime) error {
		trades, err := rt.sessions.Trades(ctx, tradeUser, tradeLimit)
		if err != nil {
			return err
		}
		if len(trades) == 0 {
			fmt.Println("No trades found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tACTION\tSYMBOL\tQTY\tPRICE\tTOTAL\tP&L\t")
		fmt.Fprintln(w, "----\t------\t------\t---\t-----\t-----\t---\t")
		for _, t := range trades {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f\t%.2f\t%+.2f\t\n",
				t.Time.Format("2006-01-02 15:04"), t.Action, t.Symbol, t.Quantity, t.Price, t.Total, t.PnLAmount)
		}
		w.Flush()
		return nil
	})
}

func runTradeStats(cmd *cobra.Command, args []string) error {
	return withRuntime(func(ctx context.Context, rt *runtime) error {
		s, err := rt.sessions.Stats(ctx, tradeUser)
		if err != nil {
			return err
		}
		fmt.Println("Trading Statistics")
		fmt.Println("------------------")
		fmt.Printf("Trades:          %d (%d buys, %d sells)\n", s.TotalTrades, s.BuyTrades, s.SellTrades)
		fmt.Printf("Profitable:      %d\n", s.ProfitableSells)
		fmt.Printf("Win rate:        %.1f%%\n", s.WinRate)
		fmt.Printf("Total P&L:       %+.2f\n", s.TotalPnL)
		return nil
	})
}

