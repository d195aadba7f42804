package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	oracleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "captcha",
		Subsystem: "oracle",
		Name:      "request_duration_seconds",
		Help:      "Duration of vision oracle requests, per attempt.",
	}, []string{"model"})

	oracleFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "captcha",
		Subsystem: "oracle",
		Name:      "failures_total",
		Help:      "Number of vision oracle requests that failed after retries.",
	}, []string{"model"})

	oracleRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "captcha",
		Subsystem: "oracle",
		Name:      "retries_total",
		Help:      "Number of retried vision oracle attempts.",
	}, []string{"model"})
)

// OpenAIVisionConfig defines configuration options for the OpenAI vision oracle.
type OpenAIVisionConfig struct {
	APIKey         string
	Model          string
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	Logger         zerolog.Logger
}

// OpenAIVision implements VisionOracle against the OpenAI chat completion API.
type OpenAIVision struct {
	client *openai.Client
	cfg    OpenAIVisionConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIVision builds a new oracle using the provided configuration.
func NewOpenAIVision(cfg OpenAIVisionConfig) (*OpenAIVision, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIVision{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/captcha-corpus/pkg/ai/openai"),
		logger: logger.With().Str("component", "openai_vision").Logger(),
	}, nil
}

// Model returns the model name requests are sent to.
func (o *OpenAIVision) Model() string {
	return o.cfg.Model
}

// Complete sends the image and question to OpenAI and returns the completion text.
// Transport errors, 429 and 5xx responses are retried with exponential backoff up to
// MaxRetries attempts; malformed responses fail immediately.
func (o *OpenAIVision) Complete(parent context.Context, req VisionRequest) (string, error) {
	ctx, span := o.tracer.Start(parent, "openai.vision.complete", trace.WithAttributes(
		attribute.String("model", o.cfg.Model),
		attribute.String("detail", string(req.Detail)),
		attribute.Int("max_tokens", req.MaxTokens),
	))
	defer span.End()

	request, err := o.buildRequest(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: %w", ErrOracle, err)
	}

	var completion string
	attempt := 0
	operation := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()

		start := time.Now()
		resp, err := o.client.CreateChatCompletion(attemptCtx, request)
		oracleDuration.WithLabelValues(o.cfg.Model).Observe(time.Since(start).Seconds())
		if err != nil {
			if ctx.Err() != nil || !isRetryable(err) {
				return backoff.Permanent(err)
			}
			oracleRetries.WithLabelValues(o.cfg.Model).Inc()
			o.logger.Warn().Err(err).Int("attempt", attempt).Msg("oracle request failed, retrying")
			return err
		}

		text, err := extractCompletion(resp)
		if err != nil {
			return backoff.Permanent(err)
		}
		completion = text
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = o.cfg.InitialBackoff
	policy.MaxElapsedTime = 0
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(o.cfg.MaxRetries-1)), ctx)

	if err := backoff.Retry(operation, retry); err != nil {
		oracleFailures.WithLabelValues(o.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: after %d attempt(s): %w", ErrOracle, attempt, err)
	}

	span.SetAttributes(attribute.Int("attempts", attempt))
	return completion, nil
}

func (o *OpenAIVision) buildRequest(req VisionRequest) (openai.ChatCompletionRequest, error) {
	if len(req.Image) == 0 {
		return openai.ChatCompletionRequest{}, errors.New("image payload is empty")
	}
	if req.MaxTokens <= 0 {
		return openai.ChatCompletionRequest{}, fmt.Errorf("max tokens must be positive, got %d", req.MaxTokens)
	}

	var detail openai.ImageURLDetail
	switch req.Detail {
	case DetailHigh:
		detail = openai.ImageURLDetailHigh
	case DetailLow:
		detail = openai.ImageURLDetailLow
	default:
		return openai.ChatCompletionRequest{}, fmt.Errorf("unknown detail level %q", req.Detail)
	}

	return openai.ChatCompletionRequest{
		Model:     o.cfg.Model,
		MaxTokens: req.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: req.Text()},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    DataURI(req.Image, req.MimeType),
							Detail: detail,
						},
					},
				},
			},
		},
	}, nil
}

// DataURI encodes image as an inline base64 data URI, sniffing the MIME type when absent.
func DataURI(image []byte, mimeType string) string {
	if mimeType == "" {
		mimeType = mimetype.Detect(image).String()
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
}

func extractCompletion(resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrMalformedResponse)
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: first choice has no content", ErrMalformedResponse)
	}
	return content, nil
}

func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
