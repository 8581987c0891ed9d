package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/waabox/watchsweep/internal/auth"
	"github.com/waabox/watchsweep/internal/domain"
	"github.com/waabox/watchsweep/internal/provider"
	"github.com/waabox/watchsweep/internal/sonarr"
	"github.com/waabox/watchsweep/internal/sweep"
	"github.com/waabox/watchsweep/internal/trakt"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var logLevelFlag string
	var plainFlag bool
	var dryRunFlag bool

	ctx := newCommandContext(&configFlag, &logLevelFlag, &plainFlag)

	rootCmd := &cobra.Command{
		Use:           "watchsweep",
		Short:         "Delete Sonarr episode files you have already watched on Trakt",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, ctx, dryRunFlag)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&plainFlag, "plain", false, "Disable the interactive authorization screen")
	rootCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Report files that would be deleted without deleting them")

	rootCmd.AddCommand(newLoginCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}

func runSweep(cmd *cobra.Command, cc *commandContext, dryRun bool) error {
	cfg, err := cc.ensureConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := cc.logger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	s := cc.newSession(cfg, log, cancel, cmd.ErrOrStderr())
	authz, err := s.coordinator.Run(ctx)
	s.closeScreen()
	if err != nil {
		return fmt.Errorf("trakt authentication: %w", err)
	}

	tm := auth.NewTokenManager(s.flow, authz, s.coordinator.TokenRefreshed)
	source := provider.NewRefreshingSource(
		trakt.NewClient(cfg.Trakt.ClientID, cfg.Trakt.URL, tm.HTTPClient(nil), trakt.WithLogger(log)),
		"trakt",
		tm.Refresh,
	)

	now := time.Now()
	query := domain.HistoryQuery{
		StartAt: now.AddDate(0, 0, -cfg.HistoryDaysOrDefault()),
		EndAt:   now,
	}
	log.WithFields(logrus.Fields{
		"days":    cfg.HistoryDaysOrDefault(),
		"dry_run": dryRun || cfg.Sweep.DryRun,
	}).Info("sweeping watch history")

	library := sonarr.NewAdapter(cfg.Sonarr.URL, cfg.Sonarr.APIKey, time.Duration(cfg.Sonarr.TimeoutSeconds)*time.Second)
	sweeper := sweep.New(library,
		sweep.WithLogger(log),
		sweep.WithDryRun(dryRun || cfg.Sweep.DryRun),
	)

	report, err := sweeper.Run(ctx, trakt.NewHistoryIterator(ctx, source, query))
	fmt.Fprintln(cmd.OutOrStdout(), renderReport(report))
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	return nil
}
