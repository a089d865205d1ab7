package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloudvault/vaultd/scheduler"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Scheduler tick ledger operations",
}

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerTickCmd)
	schedulerCmd.AddCommand(schedulerNextCmd)
}

var (
	tickLastMs   int64
	tickLastCron string
)

var schedulerTickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Record a real platform-trigger invocation",
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		var cronPtr *string
		if tickLastCron != "" {
			cronPtr = &tickLastCron
		}
		if err := a.scheduler.Upsert(ctx, tickLastMs, cronPtr); err != nil {
			return err
		}
		fmt.Fprintf(c.OutOrStdout(), "recorded tick at %d\n", tickLastMs)
		return nil
	},
}

var schedulerNextCmd = &cobra.Command{
	Use:   "next <cron-expr>",
	Short: "Estimate the next scheduled invocation from the last recorded tick",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		state, err := a.scheduler.LastTick(ctx)
		if err != nil {
			return err
		}
		var lastMs *int64
		if state != nil {
			lastMs = &state.LastMs
		}

		estimate := scheduler.ComputeNextTick(args[0], time.Now().UTC(), lastMs)
		return printJSON(c, estimate)
	},
}

func init() {
	schedulerTickCmd.Flags().Int64Var(&tickLastMs, "last-ms", 0, "milliseconds-since-epoch of the real trigger (required)")
	schedulerTickCmd.Flags().StringVar(&tickLastCron, "cron", "", "the active cron expression at the time of the trigger")
	_ = schedulerTickCmd.MarkFlagRequired("last-ms")
}
