package cmd

import (
	"github.com/spf13/cobra"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Storage quota usage reporting",
}

func init() {
	rootCmd.AddCommand(quotaCmd)
	quotaCmd.AddCommand(quotaReportCmd)
}

var quotaReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print configured limit, computed usage and remaining headroom per config",
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.quota.UsageReport(ctx)
		if err != nil {
			return err
		}
		return printJSON(c, report)
	},
}
