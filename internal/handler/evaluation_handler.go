package handler

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/captcha-corpus/internal/dto"
	"github.com/noah-isme/captcha-corpus/internal/repository"
	"github.com/noah-isme/captcha-corpus/internal/service"
	"github.com/noah-isme/captcha-corpus/internal/utils"
	"github.com/noah-isme/captcha-corpus/pkg/ai"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// EvaluationHandler exposes evaluation runs over HTTP.
type EvaluationHandler struct {
	service service.EvaluationService
	logger  zerolog.Logger
}

// NewEvaluationHandler constructs an evaluation handler.
func NewEvaluationHandler(service service.EvaluationService, logger zerolog.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		service: service,
		logger:  logger.With().Str("component", "evaluation_handler").Logger(),
	}
}

// Register wires evaluation routes. limiter guards the run endpoint and may be nil.
func (h *EvaluationHandler) Register(router fiber.Router, limiter fiber.Handler) {
	if limiter != nil {
		router.Post("/evaluations", limiter, h.evaluate)
	} else {
		router.Post("/evaluations", h.evaluate)
	}
	router.Get("/evaluations/:id", h.get)
	router.Get("/evaluations/:id/export", h.export)
}

func (h *EvaluationHandler) evaluate(c *fiber.Ctx) error {
	var payload dto.EvaluationRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.Evaluate(c.UserContext(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	requestLogger(h.logger, c).Info().
		Str("run_id", result.RunID).
		Int("items", result.ItemCount).
		Float64("average_similarity", result.AverageSimilarity).
		Msg("evaluation completed")
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "evaluation completed", result)
}

func (h *EvaluationHandler) get(c *fiber.Ctx) error {
	result, err := h.service.GetRun(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "evaluation run loaded", result)
}

func (h *EvaluationHandler) export(c *fiber.Ctx) error {
	id := c.Params("id")
	var buf bytes.Buffer
	if err := h.service.Export(c.UserContext(), id, &buf); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendAttachment(c, xlsxContentType, fmt.Sprintf("evaluation-%s.xlsx", id), buf.Bytes())
}

func (h *EvaluationHandler) handleError(c *fiber.Ctx, err error) error {
	var evalErr *service.EvaluationError
	switch {
	case errors.Is(err, service.ErrInvalidEvaluation):
		if isValidationError(err) {
			return utils.Fail(c, fiber.StatusUnprocessableEntity, "invalid evaluation request", validationDetails(err))
		}
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrEmptyWindow):
		return utils.SendError(c, fiber.StatusNotFound, service.ErrEmptyWindow.Error())
	case errors.Is(err, repository.ErrEvaluationRunNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "evaluation run not found")
	case errors.As(err, &evalErr) && errors.Is(err, ai.ErrOracle):
		requestLogger(h.logger, c).Error().Err(err).Int("position", evalErr.Position).Uint("captcha_id", evalErr.CaptchaID).Msg("oracle failed during evaluation")
		return utils.Fail(c, fiber.StatusBadGateway, "oracle request failed", map[string]interface{}{
			"position":   evalErr.Position,
			"captcha_id": evalErr.CaptchaID,
			"stage":      evalErr.Stage,
		})
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("evaluation request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to process evaluation request")
	}
}
