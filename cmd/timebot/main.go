package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"timebot/internal/config"
	"timebot/internal/domain"
	"timebot/internal/logging"
	"timebot/internal/store"
)

const (
	mongoConnectTimeout    = 10 * time.Second
	mongoIndexTimeout      = 5 * time.Second
	mongoDisconnectTimeout = 5 * time.Second
	adminBootstrapTimeout  = 5 * time.Second
	oneShotTimeout         = time.Minute
)

var rootCmd = &cobra.Command{
	Use:   "timebot",
	Short: "Team check-in bot",
	Long: `timebot tracks when team members clock in and out from chat.

Members report with ! commands in Slack or Telegram; the bot records lateness
against the configured start of day, accumulates hours worked and resets the
weekly standings on demand or on a schedule.

Configuration is read from the environment (and .env in development).`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the dependencies every subcommand needs.
type app struct {
	cfg     config.Config
	logger  *logrus.Entry
	mongo   *store.Manager
	members *domain.MemberRepository
	resets  *domain.ResetRepository
}

func loadConfig() (config.Config, *logrus.Entry, error) {
	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		return config.Config{}, nil, fmt.Errorf("configuration error: %w", err)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		return config.Config{}, nil, fmt.Errorf("logger setup error: %w", err)
	}

	return cfg, logger, nil
}

// openApp loads configuration, connects to MongoDB and ensures indexes.
func openApp() (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger.WithFields(logging.Fields{
		"event":         "startup",
		"mongo_db":      cfg.MongoDB,
		"chat_platform": cfg.ChatPlatform,
	}).Info("configuration loaded")

	connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	manager, err := store.NewManager(connectCtx, cfg)
	cancel()
	if err != nil {
		logger.WithError(err).Error("mongo connection error")
		return nil, fmt.Errorf("mongo connection error: %w", err)
	}

	logger.WithField("event", "mongo_connect").Info("connected to mongo")

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
	err = manager.EnsureBaseIndexes(indexCtx)
	cancelIndexes()
	if err != nil {
		logger.WithError(err).Error("mongo index setup error")
		closeMongo(manager, logger)
		return nil, fmt.Errorf("mongo index setup error: %w", err)
	}

	logger.WithField("event", "mongo_indexes").Info("ensured base mongo indexes")

	return &app{
		cfg:     cfg,
		logger:  logger,
		mongo:   manager,
		members: domain.NewMemberRepository(manager.Members()),
		resets:  domain.NewResetRepository(manager.Resets()),
	}, nil
}

func (a *app) close() {
	closeMongo(a.mongo, a.logger)
}

func closeMongo(manager *store.Manager, logger *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
	defer cancel()

	if err := manager.Close(ctx); err != nil {
		logger.WithError(err).Error("mongo disconnect error")
		return
	}
	logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
}
