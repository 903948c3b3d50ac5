package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/npezzotti/cryptoforum/internal/analysis"
	"github.com/npezzotti/cryptoforum/internal/api"
	"github.com/npezzotti/cryptoforum/internal/config"
	"github.com/npezzotti/cryptoforum/internal/database"
	"github.com/npezzotti/cryptoforum/internal/forum"
	"github.com/npezzotti/cryptoforum/internal/httpx"
	"github.com/npezzotti/cryptoforum/internal/logging"
	"github.com/npezzotti/cryptoforum/internal/news"
	"github.com/npezzotti/cryptoforum/internal/schedule"
	"github.com/npezzotti/cryptoforum/internal/server"
	"github.com/npezzotti/cryptoforum/internal/stats"
	"github.com/rs/zerolog"
)

var configPath string

func main() {
	flag.StringVar(&configPath, "config", "", "directory containing config.yaml")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("config")
	}

	logger := logging.New(cfg.Log)

	repo, err := database.Open(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("open storage")
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error().Err(err).Msg("storage close")
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.Run()
	defer statsUpdater.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	chatServer := server.NewChatServer(logger, statsUpdater)
	f := forum.New(forum.Options{
		Repo:       repo,
		Notifier:   chatServer,
		Stats:      statsUpdater,
		Logger:     logger,
		Moderators: cfg.Forum.Moderators,
	})
	f.Load(ctx)
	chatServer.SetForum(f)

	httpClient := httpx.NewClient(cfg.Analysis.Timeout, cfg.Analysis.MaxRetries)

	quota := analysis.NewQuota(repo, cfg.Analysis.DailyLimit, logger)
	quota.Load(ctx)
	cancel()
	analysisService := analysis.NewService(
		analysis.NewClient(httpClient, cfg.Analysis.URL),
		quota,
		statsUpdater,
		logger,
	)

	scheduler := schedule.NewScheduler(logger, tasks(cfg, f, httpClient, logger)...)

	go chatServer.Run()

	app := api.NewForumApp(mux, logger, f, chatServer, analysisService, repo, cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	scheduler.Start(context.Background())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info().Str("signal", sig.String()).Msg("received signal")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server")
		}
	}

	shutDownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer shutdownCancel()

	if err := app.Shutdown(shutDownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown")
	}

	logger.Info().Msg("stopping background tasks...")
	scheduler.Stop()

	logger.Info().Msg("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Error().Err(err).Msg("chat server shutdown")
	}

	logger.Info().Msg("shutdown complete")
}

// tasks builds the recurring jobs enabled by cfg.
func tasks(cfg *config.Config, f *forum.Forum, httpClient *httpx.Client, logger zerolog.Logger) []schedule.Task {
	var out []schedule.Task

	if cfg.News.Enabled {
		injector := forum.NewNewsInjector(
			f,
			news.NewClient(httpClient, cfg.News.URL, cfg.News.APIKey),
			cfg.News.MinInterval,
			logger,
		)
		out = append(out, schedule.Task{
			Name:       "news",
			Interval:   cfg.News.PollInterval,
			RunAtStart: true,
			Run: func(ctx context.Context, now time.Time) {
				outcome := injector.Cycle(ctx, now)
				logger.Debug().Str("outcome", outcome.String()).Msg("news cycle")
			},
		})
	}

	if cfg.Presence.Enabled {
		noise := forum.NewPresenceNoise(f, nil)
		out = append(out, schedule.Task{
			Name:     "presence",
			Interval: cfg.Presence.Interval,
			Run: func(_ context.Context, now time.Time) {
				noise.Tick(now)
			},
		})
	}

	return out
}
