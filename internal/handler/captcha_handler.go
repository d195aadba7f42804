package handler

import (
	"context"
	"errors"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/captcha-corpus/internal/models"
	"github.com/noah-isme/captcha-corpus/internal/repository"
	"github.com/noah-isme/captcha-corpus/internal/utils"
)

// CaptchaReader loads a stored captcha by id.
type CaptchaReader interface {
	Get(ctx context.Context, id uint) (models.CaptchaItem, error)
}

// CaptchaHandler serves stored challenge images.
type CaptchaHandler struct {
	repo   CaptchaReader
	logger zerolog.Logger
}

// NewCaptchaHandler constructs a captcha handler.
func NewCaptchaHandler(repo CaptchaReader, logger zerolog.Logger) *CaptchaHandler {
	return &CaptchaHandler{
		repo:   repo,
		logger: logger.With().Str("component", "captcha_handler").Logger(),
	}
}

// Register wires captcha routes.
func (h *CaptchaHandler) Register(router fiber.Router) {
	router.Get("/captchas/:id/image", h.image)
}

func (h *CaptchaHandler) image(c *fiber.Ctx) error {
	id, err := parseCaptchaID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid captcha id")
	}

	item, err := h.repo.Get(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, repository.ErrCaptchaNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "captcha not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("captcha_id", id).Msg("failed to load captcha image")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load captcha image")
	}

	c.Set(fiber.HeaderContentType, mimetype.Detect(item.Image).String())
	c.Set(fiber.HeaderCacheControl, "private, max-age=86400")
	return c.Send(item.Image)
}
