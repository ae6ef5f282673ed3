package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/database"
	"github.com/noah-isme/gema-grader/internal/repository"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/pkg/passback"
)

// sweep runs a single release pass and exits. It is meant for cron-style schedulers.
func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("command", "sweep").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	redisClient, err := database.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var events service.EventPublisher
	if cfg.NATSURL != "" {
		conn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName+"-sweep")
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer conn.Drain()
		events = service.NewNATSEventPublisher(conn, cfg.EventSubjectPrefix, logger)
	}

	var poster passback.Poster
	client, err := passback.New(passback.Config{
		TokenURL:     cfg.AGSTokenURL,
		ClientID:     cfg.AGSClientID,
		ClientSecret: cfg.AGSClientSecret,
		Timeout:      cfg.PassbackTimeout,
	}, logger)
	switch {
	case err == nil:
		poster = client
	case !errors.Is(err, passback.ErrNotConfigured):
		logger.Fatal().Err(err).Msg("failed to create passback client")
	}

	dispatcher := service.NewPassbackDispatcher(poster, cfg.PassbackPlatforms, cfg.PassbackTimeout, logger)
	// Posts must finish before the process exits.
	dispatcher.RunInline()

	releases := service.NewReleaseService(repository.NewSubmissionRepository(db), redisClient, cfg.ReleaseLockTTL, cfg.ReleaseSweepInterval, dispatcher, events, logger)

	result, err := releases.RunOnce(ctx)
	if errors.Is(err, service.ErrSweepLocked) {
		logger.Info().Msg("another sweep holds the lock")
		return
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("release sweep failed")
	}

	logger.Info().
		Int("examined", result.Examined).
		Int("advanced", result.Advanced).
		Int("skipped", result.Skipped).
		Int("errors", result.Errors).
		Msg("release sweep finished")
}
