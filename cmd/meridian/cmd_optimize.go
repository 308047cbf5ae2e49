package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/aristath/meridian/internal/modules/optimization"
	"github.com/spf13/cobra"
)

var optimizeRequestPath string

// optimizeCmd implements 'meridian optimize'
var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Solve one constrained portfolio optimization",
	Long: `Read an optimization request (the JSON body accepted by POST /api/optimize)
and print the resulting weights, VaR and factor exposures.

When the request carries no returns matrix, closes are read from the history
database for the requested window.

Examples:
  meridian optimize --request request.json
  meridian optimize --request - --format json < request.json`,
	RunE: runOptimize,
}

func init() {
	rootCmd.AddCommand(optimizeCmd)

	optimizeCmd.Flags().StringVar(&optimizeRequestPath, "request", "", "Path to the request JSON (- for stdin)")
	_ = optimizeCmd.MarkFlagRequired("request")
}

func runOptimize(cmd *cobra.Command, args []string) error {
	if err := validateFormat(); err != nil {
		return err
	}

	req, err := readOptimizationRequest(optimizeRequestPath, cmd.InOrStdin())
	if err != nil {
		return err
	}

	container, _, _, _, err := openContainer()
	if err != nil {
		return err
	}
	defer container.Close()

	resp, err := container.OptimizationService.Optimize(context.Background(), req)
	if err != nil {
		return fmt.Errorf("optimization failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		return writeJSON(out, resp)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tWEIGHT")
	for _, sw := range resp.Weights {
		fmt.Fprintf(w, "%s\t%.6f\n", sw.Symbol, sw.Weight)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "VaR95\t%.6f\n", resp.VaR95)
	fmt.Fprintf(w, "Volatility\t%.6f\n", resp.Volatility)
	fmt.Fprintf(w, "Gross\t%.6f\n", resp.GrossExposure)
	fmt.Fprintf(w, "Iterations\t%d (converged=%t, degenerate=%t)\n", resp.Iterations, resp.Converged, resp.Degenerate)
	fmt.Fprintf(w, "Exposures\t%v\n", resp.Exposures)
	return w.Flush()
}

func readOptimizationRequest(path string, stdin io.Reader) (optimization.OptimizationRequest, error) {
	var req optimization.OptimizationRequest

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return req, fmt.Errorf("failed to read request: %w", err)
	}

	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("invalid request JSON: %w", err)
	}
	return req, nil
}
