package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/noah-isme/captcha-corpus/internal/browser"
	"github.com/noah-isme/captcha-corpus/internal/config"
	"github.com/noah-isme/captcha-corpus/internal/database"
	"github.com/noah-isme/captcha-corpus/internal/events"
	"github.com/noah-isme/captcha-corpus/internal/repository"
	"github.com/noah-isme/captcha-corpus/internal/service"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "captcha-harvest").Logger()
	if err := run(logger); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn().Msg("harvest interrupted")
			os.Exit(130)
		}
		logger.Error().Err(err).Msg("harvest failed")
		os.Exit(1)
	}
}

func run(logger zerolog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateHarvest(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			logger.Warn().Err(err).Msg("failed to close database")
		}
	}()

	store := repository.NewCaptchaRepository(db)
	if err := store.Initialize(ctx); err != nil {
		return err
	}

	publisher, err := events.Connect(cfg.NATSURL, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	sessionCfg := browser.SessionConfig{
		TargetURL:    cfg.TargetURL,
		CookieDomain: cfg.CookieDomain,
		Cookies: []browser.Cookie{
			{Name: cfg.CookieNameAUT, Value: cfg.SessionCookieAUT},
			{Name: cfg.CookieNameSES, Value: cfg.SessionCookieSES},
		},
		ImageID:     cfg.ImageElementID,
		QuestionID:  cfg.QuestionElementID,
		WaitTimeout: cfg.FetchTimeout,
		Headless:    cfg.BrowserHeadless,
	}

	return browser.WithSession(ctx, sessionCfg, logger, func(session *browser.Session) error {
		harvester := service.NewHarvester(session, store, publisher, service.HarvestConfig{
			TargetCount: cfg.HarvestCount,
			MinDelay:    cfg.HarvestMinDelay,
			MaxDelay:    cfg.HarvestMaxDelay,
		}, logger)

		report, err := harvester.Run(ctx)
		logger.Info().
			Int("attempted", report.Attempted).
			Int("saved", report.Saved).
			Int("failed", report.Failed).
			Msg("harvest report")
		return err
	})
}
