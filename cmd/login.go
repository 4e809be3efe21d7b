package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newLoginCmd(app *app) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Run the interactive cloud login and store the refresh token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			identity := username
			if identity == "" {
				identity = app.cfg.Username
			}
			secret := password
			if secret == "" {
				secret = app.cfg.Password
			}
			if identity == "" || secret == "" {
				return errors.New("username and password are required (flags, config file, or GROHE_USERNAME/GROHE_PASSWORD)")
			}

			err := runLoginSpinner(cmd.Context(), cmd.OutOrStdout(), func(ctx context.Context) error {
				// The rotation hook wired into the engine persists the
				// refresh token through the credential store.
				_, err := app.engine.Login(ctx, identity, secret)
				return err
			})
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Login succeeded; refresh token stored.")

			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Cloud account e-mail (defaults to config)")
	cmd.Flags().StringVar(&password, "password", "", "Cloud account password (defaults to config)")

	return cmd
}
