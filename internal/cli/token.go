package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// TokenCmd issues an access token for an existing user.
func TokenCmd(verbose *bool) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				return fmt.Errorf("--user is required")
			}
			return withRuntime(cmd, verbose, func(rt *Runtime) error {
				user, err := rt.Repos.Users.GetByUsername(cmd.Context(), username)
				if err != nil {
					return fmt.Errorf("load user %s: %w", username, err)
				}
				token, exp, err := rt.Services.Auth.TokenManager().GenerateToken(user.ID, user.Role)
				if err != nil {
					return fmt.Errorf("issue token: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format("2006-01-02 15:04:05 MST"))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "username to issue the token for")
	return cmd
}
