package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/waabox/watchsweep/internal/credential"
	"github.com/waabox/watchsweep/internal/domain"
)

func newLoginCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize watchsweep with Trakt and store the credentials",
		Long:  "Runs the Trakt device authorization flow even when credentials are already stored, replacing them on success.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateTrakt(); err != nil {
				return err
			}
			log, err := ctx.logger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			s := ctx.newSession(cfg, log, cancel, cmd.ErrOrStderr())
			authz, err := s.coordinator.Authenticate(runCtx)
			s.closeScreen()
			if err != nil {
				return fmt.Errorf("trakt authentication: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Token saved to %s\n", s.store.Path())
			if exp := authz.Expiry(); !exp.IsZero() {
				fmt.Fprintf(out, "Expires %s\n", exp.Local().Format(time.RFC1123))
			}
			return nil
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether Trakt credentials are stored and when they expire",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store := credential.NewFileStore(cfg.Credentials.Path)
			authz, err := store.Load()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStatus(store.Path(), authz, time.Now()))
			return nil
		},
	}
}

func renderStatus(path string, authz *domain.Authorization, now time.Time) string {
	rows := [][]string{{"Credentials", path}}
	if authz == nil || !authz.Usable() {
		rows = append(rows, []string{"Stored", "no (run 'watchsweep login')"})
		return renderTable([]string{"Field", "Value"}, rows, nil)
	}

	rows = append(rows, []string{"Stored", "yes"})
	refresh := "no"
	if authz.RefreshToken != "" {
		refresh = "yes"
	}
	rows = append(rows, []string{"Refresh token", refresh})

	expiry := authz.Expiry()
	switch {
	case expiry.IsZero():
		rows = append(rows, []string{"Expires", "unknown"})
	case expiry.Before(now):
		rows = append(rows, []string{"Expires", expiry.Local().Format(time.RFC1123) + " (expired, refreshed on next run)"})
	default:
		rows = append(rows, []string{"Expires", expiry.Local().Format(time.RFC1123)})
	}
	return renderTable([]string{"Field", "Value"}, rows, nil)
}
