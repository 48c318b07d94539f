// Command cascheck runs the replication smoke suite against a primary and a
// replica endpoint and prints a pass/fail report.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "cascheck:", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cascheck",
		Short:         "replication smoke tests for a Redis primary/replica pair",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "path to the YAML config (CASCHECK_* env overrides apply)")
	root.AddCommand(newRunCmd(), newListCmd(), newReportCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the scenario catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			return run(cmd.Context(), path, f, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringSliceVar(&f.only, "only", nil, "run only these scenarios")
	cmd.Flags().StringSliceVar(&f.skip, "skip", nil, "skip these scenarios")
	cmd.Flags().StringVar(&f.runID, "run-id", "", "run identifier (default: random)")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve metrics and progress on this address")
	cmd.Flags().BoolVar(&f.keepKeys, "keep-keys", false, "leave the run namespace in place")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list the scenario catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return list(cmd.OutOrStdout())
		},
	}
}

func newReportCmd() *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "print a recorded run (redis or bolt result store)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			return printReport(cmd.Context(), path, runID, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run identifier")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}
