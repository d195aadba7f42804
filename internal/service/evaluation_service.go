package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/captcha-corpus/internal/dto"
	"github.com/noah-isme/captcha-corpus/internal/events"
	"github.com/noah-isme/captcha-corpus/internal/models"
	"github.com/noah-isme/captcha-corpus/internal/observability"
	"github.com/noah-isme/captcha-corpus/internal/repository"
	"github.com/noah-isme/captcha-corpus/internal/similarity"
	"github.com/noah-isme/captcha-corpus/pkg/ai"
)

var (
	// ErrInvalidEvaluation wraps request validation failures.
	ErrInvalidEvaluation = errors.New("invalid evaluation request")
	// ErrEmptyWindow indicates the requested window holds no answered items.
	ErrEmptyWindow = errors.New("no answered items in the requested window")
)

// Evaluation stages reported by EvaluationError.
const (
	StageOracle     = "oracle"
	StageSimilarity = "similarity"
)

// EvaluationError aborts a batch and names the item that caused it.
type EvaluationError struct {
	Position  int
	CaptchaID uint
	Stage     string
	Err       error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation aborted at position %d (captcha %d) during %s: %v", e.Position, e.CaptchaID, e.Stage, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// CaptchaWindowReader reads the answered window evaluated in one run.
type CaptchaWindowReader interface {
	FetchWindow(ctx context.Context, offset, count int) ([]models.CaptchaItem, error)
}

// EvaluationService scores the vision oracle against human answers.
type EvaluationService interface {
	Evaluate(ctx context.Context, req dto.EvaluationRequest) (dto.EvaluationResponse, error)
	GetRun(ctx context.Context, id string) (dto.EvaluationResponse, error)
	Export(ctx context.Context, id string, w io.Writer) error
}

type evaluationService struct {
	captchas  CaptchaWindowReader
	runs      repository.EvaluationRunRepository
	oracle    ai.VisionOracle
	validator *validator.Validate
	publisher events.Publisher
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewEvaluationService constructs the evaluation harness. runs and publisher are optional.
func NewEvaluationService(captchas CaptchaWindowReader, runs repository.EvaluationRunRepository, oracle ai.VisionOracle, validate *validator.Validate, publisher events.Publisher, logger zerolog.Logger) EvaluationService {
	if validate == nil {
		validate = validator.New()
	}
	if publisher == nil {
		publisher = events.Nop()
	}
	return &evaluationService{
		captchas:  captchas,
		runs:      runs,
		oracle:    oracle,
		validator: validate,
		publisher: publisher,
		logger:    logger.With().Str("component", "evaluation_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/captcha-corpus/internal/service/evaluation"),
		now:       time.Now,
	}
}

func (s *evaluationService) Evaluate(ctx context.Context, req dto.EvaluationRequest) (dto.EvaluationResponse, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.run")
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return dto.EvaluationResponse{}, fmt.Errorf("%w: %w", ErrInvalidEvaluation, err)
	}
	detail, err := ai.ParseDetail(req.Detail)
	if err != nil {
		return dto.EvaluationResponse{}, fmt.Errorf("%w: %w", ErrInvalidEvaluation, err)
	}

	span.SetAttributes(
		attribute.Int("evaluation.offset", req.Offset),
		attribute.Int("evaluation.count", req.Count),
		attribute.String("evaluation.detail", string(detail)),
		attribute.String("evaluation.model", s.oracle.Model()),
	)

	items, err := s.captchas.FetchWindow(ctx, req.Offset, req.Count)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "window read failed")
		return dto.EvaluationResponse{}, err
	}
	if len(items) == 0 {
		span.SetStatus(codes.Error, "empty window")
		return dto.EvaluationResponse{}, fmt.Errorf("%w: offset %d count %d", ErrEmptyWindow, req.Offset, req.Count)
	}
	if len(items) < req.Count {
		s.logger.Warn().Int("requested", req.Count).Int("available", len(items)).Msg("evaluation window shorter than requested")
	}

	completions := make([]string, 0, len(items))
	for i, item := range items {
		completion, err := s.oracle.Complete(ctx, ai.VisionRequest{
			Prompt:    req.Prompt,
			Question:  item.Question,
			Image:     item.Image,
			Detail:    detail,
			MaxTokens: req.MaxTokens,
		})
		if err != nil {
			evalErr := &EvaluationError{Position: req.Offset + i, CaptchaID: item.ID, Stage: StageOracle, Err: err}
			span.RecordError(evalErr)
			span.SetStatus(codes.Error, "oracle failed")
			return dto.EvaluationResponse{}, evalErr
		}
		completions = append(completions, completion)
	}

	answers := make([]string, len(items))
	for i, item := range items {
		answers[i] = item.AnswerText()
	}
	scores, err := similarity.PairwiseCosine(answers, completions)
	if err != nil {
		evalErr := &EvaluationError{Position: req.Offset, CaptchaID: items[0].ID, Stage: StageSimilarity, Err: err}
		span.RecordError(evalErr)
		return dto.EvaluationResponse{}, evalErr
	}
	average, _ := similarity.Mean(scores)

	detailed, summary := BuildRows(req.Offset, items, completions, scores)
	model := s.oracle.Model()
	for _, row := range summary {
		observability.EvaluationItems().WithLabelValues(model, strconv.FormatBool(row.ContainsAnswer)).Inc()
	}
	observability.EvaluationAverage().WithLabelValues(model, string(detail)).Set(average)

	resp := dto.EvaluationResponse{
		RunID:             uuid.NewString(),
		Model:             model,
		Detail:            string(detail),
		MaxTokens:         req.MaxTokens,
		ItemCount:         len(items),
		AverageSimilarity: average,
		AveragePercent:    average * 100,
		Detailed:          detailed,
		Summary:           summary,
		CreatedAt:         s.now().UTC(),
	}
	span.SetAttributes(attribute.String("evaluation.run_id", resp.RunID), attribute.Float64("evaluation.average", average))

	if err := s.saveRun(ctx, req, resp); err != nil {
		span.RecordError(err)
		return dto.EvaluationResponse{}, err
	}

	completed := events.EvaluationCompleted{
		RunID:             resp.RunID,
		Model:             model,
		ItemCount:         resp.ItemCount,
		AverageSimilarity: average,
		FinishedAt:        resp.CreatedAt,
	}
	if err := s.publisher.Publish(ctx, events.SubjectEvaluationCompleted, completed); err != nil {
		s.logger.Warn().Err(err).Str("run_id", resp.RunID).Msg("failed to publish evaluation event")
	}

	s.logger.Info().
		Str("run_id", resp.RunID).
		Str("model", model).
		Int("items", resp.ItemCount).
		Float64("average_similarity", average).
		Msg("evaluation finished")
	return resp, nil
}

func (s *evaluationService) saveRun(ctx context.Context, req dto.EvaluationRequest, resp dto.EvaluationResponse) error {
	if s.runs == nil {
		return nil
	}
	summary, err := json.Marshal(resp.Summary)
	if err != nil {
		return fmt.Errorf("encode evaluation summary: %w", err)
	}
	run := models.EvaluationRun{
		ID:                resp.RunID,
		Offset:            req.Offset,
		Count:             req.Count,
		Prompt:            req.Prompt,
		Detail:            resp.Detail,
		MaxTokens:         resp.MaxTokens,
		Model:             resp.Model,
		ItemCount:         resp.ItemCount,
		AverageSimilarity: resp.AverageSimilarity,
		Summary:           datatypes.JSON(summary),
		CreatedAt:         resp.CreatedAt,
	}
	return s.runs.Create(ctx, &run)
}

func (s *evaluationService) GetRun(ctx context.Context, id string) (dto.EvaluationResponse, error) {
	if s.runs == nil {
		return dto.EvaluationResponse{}, repository.ErrEvaluationRunNotFound
	}
	run, err := s.runs.Get(ctx, id)
	if err != nil {
		return dto.EvaluationResponse{}, err
	}

	var summary []dto.SummaryRow
	if len(run.Summary) > 0 {
		if err := json.Unmarshal(run.Summary, &summary); err != nil {
			return dto.EvaluationResponse{}, fmt.Errorf("decode evaluation summary: %w", err)
		}
	}

	return dto.EvaluationResponse{
		RunID:             run.ID,
		Model:             run.Model,
		Detail:            run.Detail,
		MaxTokens:         run.MaxTokens,
		ItemCount:         run.ItemCount,
		AverageSimilarity: run.AverageSimilarity,
		AveragePercent:    run.AverageSimilarity * 100,
		Summary:           summary,
		CreatedAt:         run.CreatedAt,
	}, nil
}

func (s *evaluationService) Export(ctx context.Context, id string, w io.Writer) error {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return err
	}
	return WriteSummaryXLSX(w, run.Summary)
}
