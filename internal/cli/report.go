package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/medsupport/helpdesk/internal/analytics"
	"github.com/medsupport/helpdesk/internal/service"
)

// ReportCmd prints the system overview report.
func ReportCmd(verbose *bool) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the system overview report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, verbose, func(rt *Runtime) error {
				report, err := rt.Services.Reports.GenerateReport(cmd.Context(), rt.Clock.Now())
				if err != nil {
					return fmt.Errorf("generate report: %w", err)
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), report)
				}
				printReport(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of text")
	return cmd
}

// AnalyticsCmd prints the windowed analytics report as JSON.
func AnalyticsCmd(verbose *bool) *cobra.Command {
	var rng string

	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Print the week or month analytics report as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rng != "week" && rng != "month" {
				return fmt.Errorf("range must be week or month, got %q", rng)
			}
			return withRuntime(cmd, verbose, func(rt *Runtime) error {
				report, err := rt.Services.Analytics.BuildReport(cmd.Context(), analytics.DaysForRange(rng), rt.Clock.Now())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().StringVar(&rng, "range", "week", "week or month")
	return cmd
}

func printReport(out io.Writer, r *service.SystemReport) {
	heading := color.New(color.Bold)
	heading.Fprintln(out, "Tickets")
	fmt.Fprintf(out, "  total %d, open %d, closed %d\n", r.TotalTickets, r.OpenTickets, r.ClosedTickets)
	fmt.Fprintf(out, "  new in the last 7 days: %d\n", r.NewTicketsLastWeek)
	fmt.Fprintf(out, "  average resolution: %.2fh\n", r.AvgResolutionHours)
	for _, p := range []string{"urgent", "high", "medium", "low"} {
		fmt.Fprintf(out, "  %-7s %d\n", p, r.ByPriority[p])
	}

	heading.Fprintln(out, "Categories")
	for _, c := range r.ByCategory {
		fmt.Fprintf(out, "  %-10s %d\n", c.Name, c.Count)
	}

	heading.Fprintln(out, "Users")
	fmt.Fprintf(out, "  total %d (admin %d, technician %d, user %d)\n",
		r.TotalUsers, r.ByRole["admin"], r.ByRole["technician"], r.ByRole["user"])
	fmt.Fprintf(out, "  activity in the last 7 days: %d\n", r.ActivityLastWeek)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
