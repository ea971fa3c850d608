package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"timebot/internal/config"
	"timebot/internal/feature/reset"
	"timebot/internal/feature/roster"
	"timebot/internal/logging"
	"timebot/internal/metrics"
	"timebot/internal/slackbot"
	"timebot/internal/store"
)

const actorCLI = "cli"

var errRosterUnsupported = errors.New("roster sync requires the slack platform")

var syncRosterCmd = &cobra.Command{
	Use:   "sync-roster",
	Short: "Register every workspace user as an inactive member",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		if a.cfg.ChatPlatform != config.PlatformSlack {
			return errRosterUnsupported
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), oneShotTimeout)
		defer cancel()

		client, err := slackbot.NewClient(ctx, a.cfg, a.logger)
		if err != nil {
			return fmt.Errorf("slack client setup error: %w", err)
		}

		result, err := roster.NewRegistrar(a.mongo.Members(), a.logger).Sync(ctx, client)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "seen: %d created: %d updated: %d\n", result.Seen, result.Created, result.Updated)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Write the weekly timesheet and zero the weekly standings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		loc, err := a.cfg.Location()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), oneShotTimeout)
		defer cancel()

		metrics.Init()
		resetter := reset.NewResetter(a.members, a.resets, a.cfg.TimesheetDir, loc, false, a.logger)
		record, err := resetter.Reset(ctx, actorCLI, actorCLI)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "reset %s: %d members, timesheet %s\n", record.ResetID, record.MemberCount, record.Timesheet)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print member and reset counts as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, cancel := context.WithTimeout(cmd.Context(), oneShotTimeout)
		defer cancel()

		stats, err := store.NewStatsProvider(a.mongo.Members(), a.mongo.Resets(), a.resets).Collect(ctx)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Load and print the configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Fprintln(cmd.OutOrStdout(), "configuration check: ok")
		fmt.Fprintln(cmd.OutOrStdout(), config.FormatRedacted(cfg))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncRosterCmd, resetCmd, statsCmd, configCmd)
}
