package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/captcha-corpus/internal/dto"
	"github.com/noah-isme/captcha-corpus/internal/repository"
	"github.com/noah-isme/captcha-corpus/internal/service"
	"github.com/noah-isme/captcha-corpus/internal/utils"
)

// LabelHandler exposes the labeling workflow over HTTP.
type LabelHandler struct {
	service service.LabelingService
	logger  zerolog.Logger
}

// NewLabelHandler constructs a label handler.
func NewLabelHandler(service service.LabelingService, logger zerolog.Logger) *LabelHandler {
	return &LabelHandler{
		service: service,
		logger:  logger.With().Str("component", "label_handler").Logger(),
	}
}

// Register wires labeling routes.
func (h *LabelHandler) Register(router fiber.Router) {
	router.Get("/labels/next", h.next)
	router.Post("/labels/:id/answer", h.answer)
	router.Get("/corpus/stats", h.stats)
}

func (h *LabelHandler) next(c *fiber.Ctx) error {
	task, err := h.service.LoadNext(c.UserContext())
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "next captcha loaded", task)
}

func (h *LabelHandler) answer(c *fiber.Ctx) error {
	id, err := parseCaptchaID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid captcha id")
	}

	var payload dto.LabelAnswerRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.SubmitAnswer(c.UserContext(), id, payload.Answer)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, result.Message, result)
}

func (h *LabelHandler) stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext())
	if err != nil {
		return h.handleError(c, err)
	}
	var labeled float64
	if stats.Total > 0 {
		labeled = float64(stats.Answered) * 100 / float64(stats.Total)
	}
	return utils.OK(c, dto.CorpusStatsResponse{CorpusStats: stats}, "corpus stats", fiber.Map{
		"labeled_percent": labeled,
		"complete":        stats.Total > 0 && stats.Unanswered == 0,
	})
}

func (h *LabelHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrEmptyAnswer):
		return utils.SendError(c, fiber.StatusBadRequest, service.ErrEmptyAnswer.Error())
	case errors.Is(err, service.ErrNoUnlabeled):
		return utils.SendError(c, fiber.StatusNotFound, service.ErrNoUnlabeled.Error())
	case errors.Is(err, repository.ErrCaptchaNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "captcha not found")
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("labeling request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to process labeling request")
	}
}
