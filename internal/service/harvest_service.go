package service

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/captcha-corpus/internal/browser"
	"github.com/noah-isme/captcha-corpus/internal/events"
	"github.com/noah-isme/captcha-corpus/internal/observability"
	"github.com/noah-isme/captcha-corpus/internal/repository"
)

// ChallengeFetcher is the part of a browser session the harvest loop drives.
type ChallengeFetcher interface {
	FetchOne() (browser.Challenge, error)
	Refresh() error
}

// CaptchaWriter persists harvested challenges.
type CaptchaWriter interface {
	Insert(ctx context.Context, image []byte, question string) (uint, error)
}

// HarvestConfig bounds one harvest run.
type HarvestConfig struct {
	TargetCount   int
	MinDelay      time.Duration
	MaxDelay      time.Duration
	ProgressEvery int
}

// HarvestReport counts the outcome of a harvest run.
type HarvestReport struct {
	Attempted int `json:"attempted"`
	Saved     int `json:"saved"`
	Failed    int `json:"failed"`
}

// Harvester repeatedly fetches a challenge, stores it and refreshes the page.
type Harvester struct {
	fetcher   ChallengeFetcher
	store     CaptchaWriter
	publisher events.Publisher
	cfg       HarvestConfig
	logger    zerolog.Logger
	tracer    trace.Tracer

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(min, max time.Duration) time.Duration
}

// NewHarvester wires a harvest loop. A nil publisher disables events.
func NewHarvester(fetcher ChallengeFetcher, store CaptchaWriter, publisher events.Publisher, cfg HarvestConfig, logger zerolog.Logger) *Harvester {
	if cfg.TargetCount <= 0 {
		cfg.TargetCount = 500
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 25
	}
	if publisher == nil {
		publisher = events.Nop()
	}

	return &Harvester{
		fetcher:   fetcher,
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With().Str("component", "harvester").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/captcha-corpus/internal/service/harvest"),
		sleep:     sleepContext,
		jitter:    uniformDelay,
	}
}

// Run performs exactly TargetCount fetch attempts. Individual failures are
// logged and skipped; only context cancellation ends the run early.
func (h *Harvester) Run(ctx context.Context) (HarvestReport, error) {
	ctx, span := h.tracer.Start(ctx, "harvest.run")
	defer span.End()
	span.SetAttributes(attribute.Int("harvest.target", h.cfg.TargetCount))

	var report HarvestReport
	for i := 1; i <= h.cfg.TargetCount; i++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		report.Attempted++
		if h.harvestOne(ctx, i) {
			report.Saved++
		} else {
			report.Failed++
		}

		if i%h.cfg.ProgressEvery == 0 {
			h.logger.Info().
				Int("iteration", i).
				Int("target", h.cfg.TargetCount).
				Int("saved", report.Saved).
				Int("failed", report.Failed).
				Msg("harvest progress")
		}

		if i == h.cfg.TargetCount {
			break
		}
		if err := h.cooldown(ctx); err != nil {
			return report, err
		}
	}

	span.SetAttributes(attribute.Int("harvest.saved", report.Saved), attribute.Int("harvest.failed", report.Failed))
	h.logger.Info().Int("saved", report.Saved).Int("failed", report.Failed).Msg("harvest finished")
	return report, nil
}

func (h *Harvester) harvestOne(ctx context.Context, iteration int) bool {
	challenge, err := h.fetcher.FetchOne()
	if err != nil {
		outcome := "fetch_error"
		switch {
		case errors.Is(err, browser.ErrFetchTimeout):
			outcome = "fetch_timeout"
		case errors.Is(err, browser.ErrExtraction):
			outcome = "extraction_error"
		}
		observability.HarvestAttempts().WithLabelValues(outcome).Inc()
		h.logger.Warn().Err(err).Int("iteration", iteration).Str("outcome", outcome).Msg("captcha fetch failed")
		return false
	}

	id, err := h.store.Insert(ctx, challenge.Image, challenge.Question)
	if err != nil {
		observability.HarvestAttempts().WithLabelValues("persist_error").Inc()
		h.logger.Error().Err(err).Int("iteration", iteration).Msg("failed to store captcha")
		return false
	}

	observability.HarvestAttempts().WithLabelValues("saved").Inc()
	h.logger.Debug().Uint("captcha_id", id).Int("iteration", iteration).Msg("captcha stored")

	event := events.CaptchaHarvested{
		CaptchaID: id,
		Iteration: iteration,
		Question:  challenge.Question,
		StoredAt:  time.Now().UTC(),
	}
	if err := h.publisher.Publish(ctx, events.SubjectCaptchaHarvested, event); err != nil {
		h.logger.Warn().Err(err).Uint("captcha_id", id).Msg("failed to publish harvest event")
	}
	return true
}

func (h *Harvester) cooldown(ctx context.Context) error {
	if err := h.sleep(ctx, h.jitter(h.cfg.MinDelay, h.cfg.MaxDelay)); err != nil {
		return err
	}
	if err := h.fetcher.Refresh(); err != nil {
		h.logger.Warn().Err(err).Msg("page refresh failed")
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func uniformDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)+1))
}

var _ CaptchaWriter = repository.CaptchaRepository(nil)
