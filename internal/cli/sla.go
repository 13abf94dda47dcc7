package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/medsupport/helpdesk/internal/domain"
	"github.com/medsupport/helpdesk/internal/repository"
	"github.com/medsupport/helpdesk/internal/sla"
)

// SLACmd groups SLA commands.
func SLACmd(verbose *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sla",
		Short: "Inspect and escalate SLA breaches",
	}
	cmd.AddCommand(slaSweepCmd(verbose))
	cmd.AddCommand(slaStatusCmd(verbose))
	return cmd
}

func slaSweepCmd(verbose *bool) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Escalate every breached ticket that has not been escalated yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, verbose, func(rt *Runtime) error {
				actorID := rt.Config.SLA.SystemActor()
				if actor != "" {
					actorID = &actor
				}
				summary, err := rt.Services.Escalation.Sweep(cmd.Context(), actorID, rt.Clock.Now())
				if err != nil {
					return fmt.Errorf("sla sweep: %w", err)
				}

				out := cmd.OutOrStdout()
				escalated := fmt.Sprint(summary.Escalated)
				if summary.Escalated > 0 {
					escalated = color.New(color.FgRed, color.Bold).Sprint(summary.Escalated)
				}
				fmt.Fprintf(out, "checked:           %d\n", summary.Checked)
				fmt.Fprintf(out, "escalated:         %s\n", escalated)
				fmt.Fprintf(out, "already escalated: %d\n", summary.AlreadyEscalated)
				fmt.Fprintf(out, "notifications:     %d sent, %d failed\n", summary.NotificationsOK, summary.NotificationsBad)
				if summary.Errors > 0 {
					fmt.Fprintf(out, "errors:            %s\n", color.New(color.FgYellow).Sprint(summary.Errors))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "user id recorded on escalation entries (defaults to SLA_SYSTEM_ACTOR_ID)")
	return cmd
}

func slaStatusCmd(verbose *bool) *cobra.Command {
	var breachedOnly bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List active tickets with their SLA deadline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, verbose, func(rt *Runtime) error {
				tickets, err := rt.Repos.Tickets.ListWithFilter(cmd.Context(), repository.TicketFilter{
					Statuses: []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusInProgress},
				})
				if err != nil {
					return fmt.Errorf("list tickets: %w", err)
				}

				now := rt.Clock.Now()
				out := cmd.OutOrStdout()
				shown := 0
				for i := range tickets {
					state := sla.Evaluate(&tickets[i], now)
					if breachedOnly && !state.IsBreached {
						continue
					}
					shown++
					label := color.New(color.FgGreen).Sprint("ok      ")
					if state.IsBreached {
						label = color.New(color.FgRed).Sprint("BREACHED")
					}
					remaining := time.Duration(state.RemainingSeconds) * time.Second
					fmt.Fprintf(out, "%s  %-36s  %-6s  %10s  %s\n", label, tickets[i].ID, tickets[i].Priority, remaining, tickets[i].Title)
				}
				if shown == 0 {
					fmt.Fprintln(out, "no matching tickets")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&breachedOnly, "breached", false, "only show breached tickets")
	return cmd
}
