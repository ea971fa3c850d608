package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"timebot/internal/attendance"
	"timebot/internal/command"
	"timebot/internal/config"
	"timebot/internal/feature/admin"
	"timebot/internal/feature/reset"
	"timebot/internal/feature/roster"
	"timebot/internal/health"
	"timebot/internal/logging"
	"timebot/internal/metrics"
	"timebot/internal/scheduler"
	"timebot/internal/slackbot"
	"timebot/internal/store"
	"timebot/internal/telegram"
)

const (
	transportShutdownTimeout = 10 * time.Second
	healthShutdownTimeout    = 5 * time.Second
	schedulerStopTimeout     = 30 * time.Second
	rosterSyncTimeout        = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to chat and answer commands",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// transport is a connected chat platform.
type transport struct {
	replier   command.Replier
	directory command.Directory
	lister    roster.Lister
	run       func(ctx context.Context, h *command.Dispatcher) error
}

func connectTransport(ctx context.Context, a *app) (transport, error) {
	switch a.cfg.ChatPlatform {
	case config.PlatformTelegram:
		client, err := telegram.NewClient(a.cfg, a.logger)
		if err != nil {
			return transport{}, fmt.Errorf("telegram client setup error: %w", err)
		}
		return transport{
			replier: client,
			run: func(ctx context.Context, h *command.Dispatcher) error {
				return client.Run(ctx, h)
			},
		}, nil
	default:
		client, err := slackbot.NewClient(ctx, a.cfg, a.logger)
		if err != nil {
			return transport{}, fmt.Errorf("slack client setup error: %w", err)
		}
		return transport{
			replier:   client,
			directory: client,
			lister:    client,
			run: func(ctx context.Context, h *command.Dispatcher) error {
				return client.Run(ctx, h)
			},
		}, nil
	}
}

func serve() error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	logger := a.logger
	metrics.Init()

	adminCtx, cancelAdmin := context.WithTimeout(context.Background(), adminBootstrapTimeout)
	err = admin.NewRegistrar(a.mongo.Members(), logger).EnsureAdmins(adminCtx, a.cfg.Admins)
	cancelAdmin()
	if err != nil {
		logger.WithError(err).Error("admin bootstrap error")
		return fmt.Errorf("admin bootstrap error: %w", err)
	}

	schedule, err := attendance.ScheduleFromConfig(a.cfg)
	if err != nil {
		return fmt.Errorf("schedule error: %w", err)
	}

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), mongoConnectTimeout)
	chat, err := connectTransport(connectCtx, a)
	cancelConnect()
	if err != nil {
		logger.WithError(err).Error("chat transport setup error")
		return err
	}

	logger.WithFields(logging.Fields{
		"event":    "transport_ready",
		"platform": a.cfg.ChatPlatform,
	}).Info("chat transport initialized")

	if chat.lister != nil {
		syncCtx, cancelSync := context.WithTimeout(context.Background(), rosterSyncTimeout)
		if _, err := roster.NewRegistrar(a.mongo.Members(), logger).Sync(syncCtx, chat.lister); err != nil {
			logger.WithError(err).Warn("roster sync failed, continuing")
		}
		cancelSync()
	}

	service := attendance.NewService(a.members, schedule, logger)
	resetter := reset.NewResetter(a.members, a.resets, a.cfg.TimesheetDir, schedule.Location(), len(a.cfg.Admins) > 0, logger)
	dispatcher := command.NewDispatcher(service, resetter, chat.replier, chat.directory, logger)

	var weekly *scheduler.WeeklyReset
	if a.cfg.ResetSchedule != "" {
		weekly, err = scheduler.NewWeeklyReset(a.cfg.ResetSchedule, schedule.Location(), dispatcher.Serialized(), chat.replier, a.cfg.AnnounceChannel, logger)
		if err != nil {
			return fmt.Errorf("reset schedule error: %w", err)
		}
		weekly.Start()
	}

	healthServer := health.NewServer(a.cfg.HTTPPort, a.mongo, store.NewStatsProvider(a.mongo.Members(), a.mongo.Resets(), a.resets), logger)
	healthErr := make(chan error, 1)
	go func() {
		healthErr <- healthServer.ListenAndServe()
	}()

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chatCtx, cancelChat := context.WithCancel(context.Background())
	chatDone := make(chan error, 1)
	go func() {
		chatDone <- chat.run(chatCtx, dispatcher)
	}()

	var runErr error
	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping chat transport")
	case err := <-chatDone:
		if err != nil {
			runErr = fmt.Errorf("chat transport: %w", err)
			logger.WithError(err).Error("chat transport failed")
		} else {
			logger.WithField("event", "transport_stopped_early").Warn("chat transport stopped before shutdown signal")
		}
		chatDone = nil
	case err := <-healthErr:
		if err != nil {
			runErr = err
			logger.WithError(err).Error("health server failed")
		}
	}

	cancelChat()

	if chatDone != nil {
		waitCtx, cancelWait := context.WithTimeout(context.Background(), transportShutdownTimeout)
		select {
		case <-chatDone:
		case <-waitCtx.Done():
			logger.WithField("event", "transport_shutdown_timeout").Warn("timed out waiting for chat transport to stop")
		}
		cancelWait()
	}

	if weekly != nil {
		stopCtx, cancelStop := context.WithTimeout(context.Background(), schedulerStopTimeout)
		weekly.Stop(stopCtx)
		cancelStop()
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), healthShutdownTimeout)
	if err := healthServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.WithError(err).Error("health server shutdown error")
	}
	cancelShutdown()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
	return runErr
}
