package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// SeedCmd installs default categories and users.
func SeedCmd(verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create default categories, and default users when none exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, verbose, func(rt *Runtime) error {
				result, err := rt.Services.Seed.Seed(cmd.Context())
				if err != nil {
					return fmt.Errorf("seed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %d categories and %d users\n", result.Categories, result.Users)
				return nil
			})
		},
	}
}

// LogsCmd groups activity log commands.
func LogsCmd(verbose *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Manage the activity log",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete activity entries older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, verbose, func(rt *Runtime) error {
				result, err := rt.Services.Maintenance.PurgeActivityLogs(cmd.Context(), rt.Clock.Now())
				if err != nil {
					return fmt.Errorf("purge: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s entries older than %s\n",
					color.New(color.FgCyan).Sprint(result.Removed), result.Cutoff.Format("2006-01-02 15:04"))
				return nil
			})
		},
	})
	return cmd
}
