package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/pagepin/internal/config"
	"github.com/MarcoPoloResearchLab/pagepin/internal/database"
	"github.com/MarcoPoloResearchLab/pagepin/internal/logging"
	"github.com/MarcoPoloResearchLab/pagepin/internal/mirror"
	"github.com/MarcoPoloResearchLab/pagepin/internal/notion"
	"github.com/MarcoPoloResearchLab/pagepin/internal/server"
	"github.com/MarcoPoloResearchLab/pagepin/internal/telegram"
)

// skipTitlePrefixes keeps drafts and the service's own ledger database out
// of the mirrored page set.
var skipTitlePrefixes = []string{"[DRAFT]", "[TG_SYNC]"}

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pagepin-sync",
		Short: "Mirrors Notion pages into a Telegram chat",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address for the status API")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("notion-token", "", "Notion integration token (overrides env)")
	cmd.PersistentFlags().String("notion-root-page", "", "Root page id or URL whose child pages are mirrored")
	cmd.PersistentFlags().String("telegram-token", "", "Telegram bot token (overrides env)")
	cmd.PersistentFlags().Int64("telegram-chat-id", 0, "Destination chat id")
	cmd.PersistentFlags().Duration("poll-interval", defaults.GetDuration("poll.interval"), "Delay between sync cycles")
	cmd.PersistentFlags().String("timezone", defaults.GetString("timezone"), "Timezone for ledger timestamps")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "notion.token", "notion-token")
	bindFlag(cmd, "notion.root_page", "notion-root-page")
	bindFlag(cmd, "telegram.token", "telegram-token")
	bindFlag(cmd, "telegram.chat_id", "telegram-chat-id")
	bindFlag(cmd, "poll.interval", "poll-interval")
	bindFlag(cmd, "timezone", "timezone")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runService(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	store, err := mirror.NewStore(db, time.Now)
	if err != nil {
		return err
	}

	sourceClient := notion.NewClient(notion.ClientOptions{
		Token:      appConfig.NotionToken,
		RootPageID: appConfig.RootPageID,
		Timezone:   appConfig.Timezone,
		Logger:     logger,
	})
	chatClient := telegram.NewClient(telegram.ClientOptions{
		Token:  appConfig.TelegramToken,
		ChatID: appConfig.TelegramChatID,
		Logger: logger,
	})

	syncService, err := mirror.NewService(mirror.ServiceConfig{
		Source:            sourceClient,
		Chat:              chatClient,
		Store:             store,
		SkipTitlePrefixes: skipTitlePrefixes,
		Clock:             time.Now,
		IDProvider:        mirror.NewUUIDProvider(),
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Store:    store,
		Reporter: syncService,
		APIToken: appConfig.StatusAPIToken,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("status server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	go func() {
		logger.Info("sync loop starting", zap.Duration("interval", appConfig.PollInterval))
		syncService.Run(signalCtx, appConfig.PollInterval) //nolint:errcheck
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
