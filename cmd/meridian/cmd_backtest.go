package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/aristath/meridian/internal/modules/backtest"
	"github.com/aristath/meridian/internal/modules/marketdata"
	"github.com/spf13/cobra"
)

var (
	backtestStrategy string
	backtestFrom     string
	backtestTo       string
	backtestCostsBps float64
	backtestLimit    int
)

// backtestCmd is the parent command for backtest operations
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run and inspect signal-driven backtests",
}

// backtestRunCmd implements 'meridian backtest run'
var backtestRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay a strategy's stored signals through the simulator",
	Long: `Rank the strategy's signals into equal-weight daily targets, replay them
against stored bars and persist the report in the runs database.

Examples:
  meridian backtest run --strategy momo --from 2024-01-01 --to 2024-06-30
  meridian backtest run --strategy momo --from 2024-01-01 --to 2024-06-30 --costs-bps 10`,
	RunE: runBacktestRun,
}

// backtestListCmd implements 'meridian backtest list'
var backtestListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored backtest runs, newest first",
	RunE:  runBacktestList,
}

// backtestShowCmd implements 'meridian backtest show'
var backtestShowCmd = &cobra.Command{
	Use:   "show RUN_ID",
	Short: "Print a stored backtest report",
	Args:  cobra.ExactArgs(1),
	RunE:  runBacktestShow,
}

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.AddCommand(backtestRunCmd, backtestListCmd, backtestShowCmd)

	backtestRunCmd.Flags().StringVar(&backtestStrategy, "strategy", "", "Strategy ID whose signals are replayed")
	backtestRunCmd.Flags().StringVar(&backtestFrom, "from", "", "First day (YYYY-MM-DD)")
	backtestRunCmd.Flags().StringVar(&backtestTo, "to", "", "Last day (YYYY-MM-DD)")
	backtestRunCmd.Flags().Float64Var(&backtestCostsBps, "costs-bps", -1, "Transaction cost override in basis points")
	_ = backtestRunCmd.MarkFlagRequired("strategy")
	_ = backtestRunCmd.MarkFlagRequired("from")
	_ = backtestRunCmd.MarkFlagRequired("to")

	backtestListCmd.Flags().StringVar(&backtestStrategy, "strategy", "", "Only runs of this strategy")
	backtestListCmd.Flags().IntVar(&backtestLimit, "limit", 20, "Maximum runs to list")
}

func runBacktestRun(cmd *cobra.Command, args []string) error {
	if err := validateFormat(); err != nil {
		return err
	}

	req := backtest.RunRequest{
		StrategyID: backtestStrategy,
		Start:      backtestFrom,
		End:        backtestTo,
	}
	if cmd.Flags().Changed("costs-bps") {
		costs := backtestCostsBps
		req.CostsBps = &costs
	}
	if _, _, err := req.Validate(); err != nil {
		return err
	}

	container, _, _, _, err := openContainer()
	if err != nil {
		return err
	}
	defer container.Close()

	report, err := container.BacktestService.RunBacktest(context.Background(), req)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}
	return printReport(cmd.OutOrStdout(), report)
}

func runBacktestList(cmd *cobra.Command, args []string) error {
	if err := validateFormat(); err != nil {
		return err
	}

	container, _, _, _, err := openContainer()
	if err != nil {
		return err
	}
	defer container.Close()

	runs, err := container.BacktestService.ListRuns(context.Background(), backtestStrategy, backtestLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		if runs == nil {
			runs = []backtest.RunSummary{}
		}
		return writeJSON(out, runs)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSTRATEGY\tSTART\tEND\tFINAL NAV\tSHARPE\tMAX DD\tCREATED")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%.3f\t%.4f\t%s\n",
			run.RunID, run.StrategyID,
			run.Start.Format(marketdata.DateLayout), run.End.Format(marketdata.DateLayout),
			run.FinalNAV, run.Sharpe, run.MaxDrawdown,
			run.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runBacktestShow(cmd *cobra.Command, args []string) error {
	if err := validateFormat(); err != nil {
		return err
	}

	container, _, _, _, err := openContainer()
	if err != nil {
		return err
	}
	defer container.Close()

	report, err := container.BacktestService.GetRun(context.Background(), args[0])
	if err != nil {
		return err
	}
	return printReport(cmd.OutOrStdout(), report)
}

func printReport(out io.Writer, report *backtest.Report) error {
	if outputFormat == "json" {
		return writeJSON(out, report)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Run\t%s\n", report.RunID)
	if report.StrategyID != "" {
		fmt.Fprintf(w, "Strategy\t%s\n", report.StrategyID)
	}
	fmt.Fprintf(w, "Period\t%s .. %s (%d days)\n",
		report.Start.Format(marketdata.DateLayout), report.End.Format(marketdata.DateLayout), len(report.EquityCurve))
	fmt.Fprintf(w, "NAV\t%.2f -> %.2f\n", report.StartNAV, report.FinalNAV)
	fmt.Fprintf(w, "Sharpe\t%.4f\n", report.Sharpe)
	fmt.Fprintf(w, "Max drawdown\t%.4f\n", report.MaxDrawdown)
	fmt.Fprintf(w, "Turnover\t%.4f\n", report.Turnover)
	fmt.Fprintf(w, "Costs\t%.2f\n", report.TransactionCosts)
	fmt.Fprintf(w, "Rebalances\t%d\n", report.Rebalances)
	fmt.Fprintf(w, "Prices\t%d lookups, %d stale, %d missing\n", report.PriceLookups, report.StalePrices, report.MissingPrices)
	return w.Flush()
}
