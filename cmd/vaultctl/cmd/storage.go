package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloudvault/vaultd/storageconfig/registry"
)

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Inspect and test storage-config rows",
}

func init() {
	rootCmd.AddCommand(storageCmd)
	storageCmd.AddCommand(storageTypesCmd)
	storageCmd.AddCommand(storageListCmd)
	storageCmd.AddCommand(storageSetDefaultCmd)
	storageCmd.AddCommand(storageTestCmd)
}

var storageTypesCmd = &cobra.Command{
	Use:   "types",
	Short: "Describe every supported storage type, its config schema and capabilities",
	RunE: func(c *cobra.Command, args []string) error {
		return printJSON(c, registry.NewDefault().Metadata())
	},
}

var storageAdminID string

var storageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List storage configs owned by an admin",
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		configs, err := a.storage.List(ctx, storageAdminID)
		if err != nil {
			return err
		}
		return printJSON(c, configs)
	},
}

var (
	setDefaultAdminID string
	setDefaultID      string
)

var storageSetDefaultCmd = &cobra.Command{
	Use:   "set-default",
	Short: "Atomically set one config as the admin's default",
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.storage.SetDefault(ctx, setDefaultAdminID, setDefaultID); err != nil {
			return err
		}
		fmt.Fprintf(c.OutOrStdout(), "%s is now the default for admin %s\n", setDefaultID, setDefaultAdminID)
		return nil
	},
}

var (
	testConnID     string
	testConnOrigin string
)

var storageTestCmd = &cobra.Command{
	Use:   "test-connection",
	Short: "Run a config's registered connection tester",
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.storage.TestConnection(ctx, testConnID, testConnOrigin)
		if err != nil {
			return err
		}
		if err := printJSON(c, report); err != nil {
			return err
		}
		if !report.Passed() {
			return fmt.Errorf("connection test failed for %s", testConnID)
		}
		return nil
	},
}

func init() {
	storageListCmd.Flags().StringVar(&storageAdminID, "admin-id", "", "admin id to list configs for (required)")
	_ = storageListCmd.MarkFlagRequired("admin-id")

	storageSetDefaultCmd.Flags().StringVar(&setDefaultAdminID, "admin-id", "", "admin id (required)")
	storageSetDefaultCmd.Flags().StringVar(&setDefaultID, "id", "", "storage config id (required)")
	_ = storageSetDefaultCmd.MarkFlagRequired("admin-id")
	_ = storageSetDefaultCmd.MarkFlagRequired("id")

	storageTestCmd.Flags().StringVar(&testConnID, "id", "", "storage config id (required)")
	storageTestCmd.Flags().StringVar(&testConnOrigin, "origin", "", "request origin passed through to the tester callback")
	_ = storageTestCmd.MarkFlagRequired("id")
}
