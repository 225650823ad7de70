package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"realreview/internal/app"
	"realreview/internal/auth/password"
	"realreview/internal/platform/config"
	"realreview/internal/platform/logger"
)

func newAdminCmd() *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrator accounts",
	}
	admin.AddCommand(newAdminCreateCmd())
	return admin
}

func newAdminCreateCmd() *cobra.Command {
	var email, pw string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an ADMIN account, or promote an existing one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("database.url is required; in-memory accounts do not outlive the process")
			}
			log := logger.New(cfg.Log.Level)

			generated := pw == ""
			if generated {
				if pw, err = password.Generate(); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			user, created, err := a.Auth.CreateAdmin(ctx, email, pw)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case !created:
				fmt.Fprintf(out, "promoted %s (%s) to ADMIN\n", user.Email, user.ID)
			case generated:
				fmt.Fprintf(out, "created admin %s (%s) with password %s\n", user.Email, user.ID, pw)
			default:
				fmt.Fprintf(out, "created admin %s (%s)\n", user.Email, user.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email address")
	cmd.Flags().StringVar(&pw, "password", "", "password; generated when empty")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
