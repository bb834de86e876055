package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"goodwill_sniper/internal/auth"
	"goodwill_sniper/internal/model"
)

func newAuthCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Account helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Resolve the configured accounts and report which credential worked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr := app.sessions(app.marketplace(false))
			out := cmd.OutOrStdout()
			roles := []model.AccountRole{model.RoleCommand}
			if app.Config.Auth.DualAccount() {
				roles = append(roles, model.RoleBid)
			}
			for _, role := range roles {
				s, err := mgr.Session(cmd.Context(), role)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s account: ok (%s)\n", role, s.Method)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "encrypt VALUE",
		Short: "Print the obfuscated form of a username or password for encrypted_* config keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), auth.Obfuscate(args[0]))
			return nil
		},
	})
	return cmd
}
