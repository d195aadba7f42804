package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/captcha-corpus/internal/dto"
	"github.com/noah-isme/captcha-corpus/internal/models"
	"github.com/noah-isme/captcha-corpus/internal/repository"
)

var (
	// ErrEmptyAnswer indicates a blank answer was submitted.
	ErrEmptyAnswer = errors.New("no answer provided")
	// ErrNoUnlabeled indicates every stored item already carries an answer.
	ErrNoUnlabeled = errors.New("no more questions")
)

// LabelingService drives the human labeling workflow.
type LabelingService interface {
	LoadNext(ctx context.Context) (dto.LabelTask, error)
	SubmitAnswer(ctx context.Context, id uint, answer string) (dto.LabelResult, error)
	Stats(ctx context.Context) (repository.CorpusStats, error)
}

type labelingService struct {
	repo   repository.CaptchaRepository
	logger zerolog.Logger
	tracer trace.Tracer
}

// NewLabelingService constructs the labeling workflow over the captcha store.
func NewLabelingService(repo repository.CaptchaRepository, logger zerolog.Logger) LabelingService {
	return &labelingService{
		repo:   repo,
		logger: logger.With().Str("component", "labeling_service").Logger(),
		tracer: otel.Tracer("github.com/noah-isme/captcha-corpus/internal/service/labeling"),
	}
}

func (s *labelingService) LoadNext(ctx context.Context) (dto.LabelTask, error) {
	ctx, span := s.tracer.Start(ctx, "labeling.load_next")
	defer span.End()

	item, err := s.repo.FetchUnanswered(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch unanswered failed")
		return dto.LabelTask{}, err
	}
	if item == nil {
		return dto.LabelTask{}, ErrNoUnlabeled
	}

	stats, err := s.repo.Stats(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stats failed")
		return dto.LabelTask{}, err
	}

	span.SetAttributes(attribute.Int("captcha.id", int(item.ID)))
	return newLabelTask(*item, stats.Total), nil
}

func (s *labelingService) SubmitAnswer(ctx context.Context, id uint, answer string) (dto.LabelResult, error) {
	ctx, span := s.tracer.Start(ctx, "labeling.submit_answer")
	defer span.End()
	span.SetAttributes(attribute.Int("captcha.id", int(id)))

	answer = strings.TrimSpace(answer)
	if answer == "" {
		span.SetStatus(codes.Error, "empty answer")
		return dto.LabelResult{}, ErrEmptyAnswer
	}

	if err := s.repo.SetAnswer(ctx, id, answer); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "set answer failed")
		return dto.LabelResult{}, err
	}

	message := fmt.Sprintf("answer saved for %d as %s", id, answer)
	s.logger.Info().Uint("captcha_id", id).Msg(message)

	result := dto.LabelResult{Message: message}
	next, err := s.LoadNext(ctx)
	switch {
	case err == nil:
		result.Next = &next
	case errors.Is(err, ErrNoUnlabeled):
	default:
		return dto.LabelResult{}, err
	}
	return result, nil
}

func (s *labelingService) Stats(ctx context.Context) (repository.CorpusStats, error) {
	return s.repo.Stats(ctx)
}

func newLabelTask(item models.CaptchaItem, total int64) dto.LabelTask {
	return dto.LabelTask{
		ID:          item.ID,
		Position:    fmt.Sprintf("%d / %d", item.ID, total),
		Total:       total,
		Question:    item.Question,
		ImageBase64: base64.StdEncoding.EncodeToString(item.Image),
		MimeType:    mimetype.Detect(item.Image).String(),
	}
}
