package main

import (
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newPasswdCommand(logger *logrus.Logger) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change an account password (rotates the bootstrap admin credential)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				return errors.New("--password is required")
			}
			app, err := newApplication(cmd.Context(), cmd.Flags(), logger)
			if err != nil {
				return err
			}
			defer app.Close()

			if username == "" {
				username = app.cfg.Auth.AdminUsername
			}
			// make sure the account exists on a fresh database
			if _, err := app.users.EnsureAdmin(cmd.Context(), app.cfg.Auth.AdminUsername, app.cfg.Auth.AdminPassword); err != nil {
				return err
			}
			return app.users.ChangePassword(cmd.Context(), username, password)
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account to update (default auth.adminusername)")
	cmd.Flags().StringVar(&password, "password", "", "new password, at least 8 characters")
	return cmd
}
