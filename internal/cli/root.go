package cli

import (
	"github.com/spf13/cobra"
)

// RootCmd returns the helpdeskctl command tree.
func RootCmd(version string) *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "helpdeskctl",
		Short:         "Operate the help desk: SLA sweeps, reports and maintenance",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "write service logs to stdout")

	root.AddCommand(SLACmd(&verbose))
	root.AddCommand(ReportCmd(&verbose))
	root.AddCommand(AnalyticsCmd(&verbose))
	root.AddCommand(SeedCmd(&verbose))
	root.AddCommand(LogsCmd(&verbose))
	root.AddCommand(TokenCmd(&verbose))
	return root
}

func withRuntime(cmd *cobra.Command, verbose *bool, fn func(rt *Runtime) error) error {
	rt, err := openRuntime(cmd.Context(), verbose != nil && *verbose)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}
