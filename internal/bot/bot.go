// Package bot manages the application run modes: a single one-shot
// pipeline pass, or interval mode where the pass repeats on a schedule
// inside one process.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"

	"github.com/edgard/arquivobot/internal/config"
	"github.com/edgard/arquivobot/internal/pipeline"
)

// Bot wires the pipeline into the selected run mode.
type Bot struct {
	logger   *slog.Logger
	cfg      *config.SchedulerConfig
	pipeline *pipeline.Pipeline
}

// New creates a Bot.
func New(logger *slog.Logger, cfg *config.SchedulerConfig, pl *pipeline.Pipeline) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		logger:   logger.With("component", "bot"),
		cfg:      cfg,
		pipeline: pl,
	}
}

// Run executes the pipeline. In one-shot mode it runs a single pass and
// returns its error. In interval mode it schedules the pass with gocron
// and blocks until the context is cancelled; pass failures are logged and
// the schedule keeps ticking, matching the external re-invocation model.
func (b *Bot) Run(ctx context.Context) error {
	if !b.cfg.Enabled {
		_, err := b.pipeline.Run(ctx)
		return err
	}
	return b.runScheduled(ctx)
}

func (b *Bot) runScheduled(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.CronJob(b.cfg.Schedule, false),
		gocron.NewTask(func() {
			b.logger.Info("Running scheduled archive pass")
			start := time.Now()
			if _, runErr := b.pipeline.Run(ctx); runErr != nil {
				b.logger.Error("Scheduled archive pass failed", "error", runErr)
			}
			b.logger.Info("Finished scheduled archive pass", "duration", time.Since(start))
		}),
		gocron.WithName("archive_pass"),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule archive pass: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scheduler.Start()
		b.logger.Info("Scheduler started", "schedule", b.cfg.Schedule)

		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping scheduler...")
		if err := scheduler.Shutdown(); err != nil {
			b.logger.Error("Error during scheduler shutdown", "error", err)
			return err
		}
		return nil
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
