// Package main contains the entrypoint for the Arquivobot media archiver.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/edgard/arquivobot/internal/bot"
	"github.com/edgard/arquivobot/internal/config"
	"github.com/edgard/arquivobot/internal/database"
	"github.com/edgard/arquivobot/internal/logger"
	"github.com/edgard/arquivobot/internal/nextcloud"
	"github.com/edgard/arquivobot/internal/pipeline"
	"github.com/edgard/arquivobot/internal/telegram"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all application components (config, logger, database,
// transports, pipeline), executes the selected run mode, and returns an
// exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.New(cfg.Log.Level, cfg.Log.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	tg, err := telegram.New(cfg.Telegram.Token, log, cfg.Telegram.RequestTimeout, cfg.Telegram.DownloadTimeout)
	if err != nil {
		log.Error("Failed to create Telegram client", "error", err)
		return 1
	}

	me, err := tg.Me(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Retrieved bot info", "bot_id", me.ID, "bot_username", me.Username)

	// Mirror warnings and errors to the logs chat when one is configured.
	if chatID := cfg.Telegram.LogsChatID; chatID != 0 {
		log = logger.WithChatMirror(log, func(ctx context.Context, text string) error {
			return tg.SendText(ctx, chatID, text)
		})
		slog.SetDefault(log)
		log.Info("Log mirror enabled", "logs_chat_id", chatID)
	}

	nc, err := nextcloud.New(cfg.Nextcloud.BaseURL, cfg.Nextcloud.ShareID, log, cfg.Nextcloud.RequestTimeout)
	if err != nil {
		log.Error("Failed to create Nextcloud client", "error", err)
		return 1
	}

	pl := pipeline.New(tg, nc, store, cfg, log)
	app := bot.New(log, &cfg.Scheduler, pl)

	log.Info("Starting archiver...", "interval_mode", cfg.Scheduler.Enabled)
	runErr := app.Run(ctx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Archiver stopped due to error", "error", runErr)
		return 1
	}

	log.Info("Archiver finished.")
	return 0
}
