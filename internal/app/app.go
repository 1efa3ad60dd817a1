// Package app wires configuration, storage, training and the HTTP surface
// into a runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"nutrition-planner/internal/api"
	"nutrition-planner/internal/catalog"
	"nutrition-planner/internal/classifier"
	"nutrition-planner/internal/config"
	"nutrition-planner/internal/database"
	"nutrition-planner/internal/features"
	"nutrition-planner/internal/logging"
	"nutrition-planner/internal/metrics"
	"nutrition-planner/internal/planner"
	"nutrition-planner/internal/storage"
	"nutrition-planner/internal/submission"
	"nutrition-planner/internal/telegram"
	"nutrition-planner/internal/training"
)

// App holds the application's dependencies.
type App struct {
	cfg     *config.Config
	db      *database.DB
	runs    *metrics.Store
	subs    *submission.Log
	store   *storage.ArtifactStore
	planner *planner.Planner
	logger  zerolog.Logger
}

// New opens the database, submission log and artifact store and builds the
// planner on top of them.
func New(cfg *config.Config) (*App, error) {
	db, err := database.NewDB(cfg.Paths.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	c := catalog.Default()

	subs, err := submission.NewLog(cfg.Paths.SubmissionLog, c)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open submission log: %w", err)
	}

	store, err := storage.NewArtifactStore(cfg.Paths.ModelDir, cfg.Training.RetainVersions)
	if err != nil {
		subs.Close()
		db.Close()
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}

	runs := metrics.NewStore(db.SQL)
	job := training.NewJob(c, subs, trainingConfig(cfg), logging.Component("training"))
	p := planner.NewPlanner(c, store, subs, job, runs, plannerConfig(cfg), logging.Component("planner"))

	return &App{
		cfg:     cfg,
		db:      db,
		runs:    runs,
		subs:    subs,
		store:   store,
		planner: p,
		logger:  logging.Component("app"),
	}, nil
}

func trainingConfig(cfg *config.Config) training.Config {
	t := cfg.Training
	return training.Config{
		SyntheticRows:      t.SyntheticRows,
		Seed:               t.Seed,
		ValidationFraction: t.ValidationFraction,
		IncludeSubmissions: t.IncludeSubmissions,
		Encoder: features.Options{
			MinFrequency: t.MinFrequency,
			Policy:       features.UnknownPolicy(t.UnknownPolicy),
		},
		Forest: classifier.Params{
			Trees:          t.Trees,
			MaxDepth:       t.MaxDepth,
			MinSamplesLeaf: t.MinSamplesLeaf,
			Seed:           t.Seed,
		},
	}
}

func plannerConfig(cfg *config.Config) planner.Config {
	return planner.Config{
		TopK:               cfg.Inference.TopK,
		PredictionTimeout:  cfg.Inference.Timeout,
		TrainingTimeout:    cfg.Training.Timeout,
		RetrainOnSelection: cfg.Training.OnSelection,
		BreakerFailures:    cfg.Inference.BreakerFailures,
		BreakerCooldown:    cfg.Inference.BreakerCooldown,
	}
}

// Planner returns the wired planner.
func (a *App) Planner() *planner.Planner {
	return a.planner
}

// Handler builds the HTTP handler, mounting the bot webhook when given.
func (a *App) Handler(bot *telegram.Bot) http.Handler {
	opts := api.Options{
		AllowedOrigins:    a.cfg.CORS.AllowedOrigins,
		RateLimitDisabled: a.cfg.RateLimit.Disabled,
		RateLimitRequests: a.cfg.RateLimit.Requests,
		RateLimitWindow:   a.cfg.RateLimit.Window,
		ModelDir:          a.cfg.Paths.ModelDir,
		AdminSecret:       a.cfg.Admin.JWTSecret,
		Runs:              a.runs,
	}
	if bot != nil {
		opts.TelegramWebhook = bot.Handler()
	}
	return api.NewServer(a.planner, opts, logging.Component("api")).Router()
}

// Serve loads (or trains) the model and serves HTTP until ctx is canceled or
// the process receives SIGINT/SIGTERM.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.planner.Bootstrap(ctx, a.cfg.Training.OnStartup); err != nil {
		a.logger.Warn().Err(err).Msg("starting without a model; serving rule-based plans")
	}

	var bot *telegram.Bot
	if a.cfg.Telegram.Enabled() {
		var err error
		bot, err = telegram.NewBot(a.cfg.Telegram, a.planner, a.runs, a.cfg.Paths.ModelDir, logging.Component("telegram"))
		if err != nil {
			return fmt.Errorf("failed to initialize telegram bot: %w", err)
		}
	}

	srv := &http.Server{
		Addr:         a.cfg.Server.Addr(),
		Handler:      a.Handler(bot),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info().Str("addr", srv.Addr).Bool("telegram", bot != nil).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info().Msg("server exited")
	return nil
}

// Train runs one training pass and publishes the result.
func (a *App) Train(ctx context.Context) (storage.Manifest, error) {
	return a.planner.Retrain(ctx, planner.TriggerCLI)
}

// CleanupRuns deletes training run history older than days.
func (a *App) CleanupRuns(ctx context.Context, days int) (int64, error) {
	return a.runs.Cleanup(ctx, days)
}

// Close releases the submission log and database.
func (a *App) Close() error {
	return errors.Join(a.subs.Close(), a.db.Close())
}
