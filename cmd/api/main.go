package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/database"
	"github.com/noah-isme/gema-grader/internal/handler"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/repository"
	"github.com/noah-isme/gema-grader/internal/router"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/pkg/ai"
	cloud "github.com/noah-isme/gema-grader/pkg/cloudinary"
	"github.com/noah-isme/gema-grader/pkg/extract"
	"github.com/noah-isme/gema-grader/pkg/fetch"
	"github.com/noah-isme/gema-grader/pkg/passback"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := database.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	if redisClient == nil {
		logger.Warn().Msg("redis not configured, release sweeps run without a lock")
	} else {
		defer redisClient.Close()
	}

	natsConn := connectEvents(cfg, logger)
	if natsConn != nil {
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	usageRepo := repository.NewOracleUsageRepository(db)

	extractor := extract.NewDefaultExtractor(cfg.MaxUploadMB, logger)
	fetcher := fetch.NewHTTPFetcher(nil, cfg.FetchTimeout, cfg.FetchMaxBytes, logger)
	events := service.NewNATSEventPublisher(natsConn, cfg.EventSubjectPrefix, logger)
	dispatcher := service.NewPassbackDispatcher(buildPoster(cfg, logger), cfg.PassbackPlatforms, cfg.PassbackTimeout, logger)

	gradingService := service.NewGradingService(service.GradingDependencies{
		Resolver:      service.NewAssignmentResolver(assignmentRepo, logger),
		Submissions:   submissionRepo,
		Usage:         usageRepo,
		Extractor:     extractor,
		Fetcher:       fetcher,
		Oracle:        buildOracle(cfg, logger),
		Storage:       buildStorage(cfg, logger),
		Passback:      dispatcher,
		Events:        events,
		OracleTimeout: cfg.OracleTimeout,
		Logger:        logger,
	})
	reviewService := service.NewReviewService(submissionRepo, validate, dispatcher, events, logger)
	assignmentService := service.NewAssignmentService(assignmentRepo, extractor, validate, logger)
	releaseService := service.NewReleaseService(submissionRepo, redisClient, cfg.ReleaseLockTTL, cfg.ReleaseSweepInterval, dispatcher, events, logger)
	seedService := service.NewSeedService(assignmentRepo, validate, cfg.SeedEnabled, cfg.SeedToken, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.MaxUploadMB + 1) * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		GradingHandler:    handler.NewGradingHandler(gradingService, reviewService, validate, cfg.MaxUploadMB, logger),
		ReviewHandler:     handler.NewReviewHandler(reviewService, validate, logger),
		AssignmentHandler: handler.NewAssignmentHandler(assignmentService, validate, cfg.MaxUploadMB, logger),
		ReleaseHandler:    handler.NewReleaseHandler(releaseService, logger),
		SeedHandler:       handler.NewSeedHandler(seedService, logger),
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go releaseService.Run(ctx)

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(ctx, app, logger)
}

func connectEvents(cfg config.Config, logger zerolog.Logger) *nats.Conn {
	if cfg.NATSURL == "" {
		logger.Warn().Msg("nats not configured, submission events are dropped")
		return nil
	}
	conn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to nats")
	}
	return conn
}

func buildOracle(cfg config.Config, logger zerolog.Logger) ai.Oracle {
	if cfg.OpenAIAPIKey == "" {
		logger.Warn().Msg("openai api key missing, oracle assignments will fail")
		return nil
	}
	oracle, err := ai.NewOpenAIOracle(ai.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create oracle client")
	}
	return oracle
}

func buildStorage(cfg config.Config, logger zerolog.Logger) service.FileUploader {
	storageCfg := cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}
	if !storageCfg.Enabled() {
		logger.Info().Msg("cloudinary not configured, original files are not stored")
		return nil
	}
	storage, err := cloud.New(storageCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create cloudinary client")
	}
	return storage
}

func buildPoster(cfg config.Config, logger zerolog.Logger) passback.Poster {
	client, err := passback.New(passback.Config{
		TokenURL:     cfg.AGSTokenURL,
		ClientID:     cfg.AGSClientID,
		ClientSecret: cfg.AGSClientSecret,
		Timeout:      cfg.PassbackTimeout,
	}, logger)
	if errors.Is(err, passback.ErrNotConfigured) {
		logger.Info().Msg("grade passback not configured")
		return nil
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create passback client")
	}
	return client
}

func waitForShutdown(ctx context.Context, app *fiber.App, logger zerolog.Logger) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
