package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/captcha-corpus/internal/config"
	"github.com/noah-isme/captcha-corpus/internal/database"
	"github.com/noah-isme/captcha-corpus/internal/events"
	"github.com/noah-isme/captcha-corpus/internal/handler"
	"github.com/noah-isme/captcha-corpus/internal/middleware"
	"github.com/noah-isme/captcha-corpus/internal/repository"
	"github.com/noah-isme/captcha-corpus/internal/router"
	"github.com/noah-isme/captcha-corpus/internal/service"
	"github.com/noah-isme/captcha-corpus/pkg/ai"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "captcha-api").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.ValidateEvaluation(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabasePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer func() {
		if err := database.Close(db); err != nil {
			logger.Warn().Err(err).Msg("failed to close database")
		}
	}()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	captchaRepo := repository.NewCaptchaRepository(db)
	runRepo := repository.NewEvaluationRunRepository(db)
	if err := captchaRepo.Initialize(startupCtx); err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise captcha store")
	}
	if err := runRepo.Initialize(startupCtx); err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise evaluation run store")
	}

	redisClient, err := database.ConnectRedis(startupCtx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	publisher, err := events.Connect(cfg.NATSURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to nats")
	}
	defer publisher.Close()

	vision, err := ai.NewOpenAIVision(ai.OpenAIVisionConfig{
		APIKey:     cfg.OpenAIAPIKey,
		Model:      cfg.OpenAIModel,
		BaseURL:    cfg.OpenAIBaseURL,
		Timeout:    cfg.OracleTimeout,
		MaxRetries: cfg.OracleMaxRetries,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create vision oracle")
	}
	oracle := service.NewCachedOracle(vision, redisClient, cfg.CompletionCacheTTL, logger)

	validate := validator.New(validator.WithRequiredStructEnabled())
	labelingService := service.NewLabelingService(captchaRepo, logger)
	evaluationService := service.NewEvaluationService(captchaRepo, runRepo, oracle, validate, publisher, logger)

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to access database handle")
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    1 << 20,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		LabelHandler:      handler.NewLabelHandler(labelingService, logger),
		CaptchaHandler:    handler.NewCaptchaHandler(captchaRepo, logger),
		EvaluationHandler: handler.NewEvaluationHandler(evaluationService, logger),
		Database:          sqlDB,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
		EvaluationLimiter: middleware.RateLimit("evaluations", cfg.EvaluationRateMax, time.Minute),
	})

	go func() {
		logger.Info().Str("address", cfg.HTTPAddress()).Msg("starting http server")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
