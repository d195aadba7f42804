package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const (
	// SubjectCaptchaHarvested is published once per persisted challenge.
	SubjectCaptchaHarvested = "captcha.harvested"
	// SubjectEvaluationCompleted is published once per finished evaluation run.
	SubjectEvaluationCompleted = "captcha.evaluation.completed"
)

// CaptchaHarvested describes a newly stored challenge.
type CaptchaHarvested struct {
	CaptchaID uint      `json:"captcha_id"`
	Iteration int       `json:"iteration"`
	Question  string    `json:"question"`
	StoredAt  time.Time `json:"stored_at"`
}

// EvaluationCompleted describes a finished evaluation run.
type EvaluationCompleted struct {
	RunID             string    `json:"run_id"`
	Model             string    `json:"model"`
	ItemCount         int       `json:"item_count"`
	AverageSimilarity float64   `json:"average_similarity"`
	FinishedAt        time.Time `json:"finished_at"`
}

// Publisher emits pipeline events. Publishing is best effort for callers.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload interface{}) error
	Close()
}

// Connect dials NATS when url is set and returns a no-op publisher otherwise.
func Connect(url string, logger zerolog.Logger) (Publisher, error) {
	if url == "" {
		return Nop(), nil
	}

	log := logger.With().Str("component", "event_publisher").Logger()
	conn, err := nats.Connect(url,
		nats.Name("captcha-corpus"),
		nats.MaxReconnects(5),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return &natsPublisher{conn: conn, logger: log}, nil
}

type natsPublisher struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

func (p *natsPublisher) Publish(ctx context.Context, subject string, payload interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", subject, err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s event: %w", subject, err)
	}
	return nil
}

func (p *natsPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn().Err(err).Msg("failed to drain nats connection")
	}
}

type nopPublisher struct{}

// Nop returns a publisher that drops every event.
func Nop() Publisher {
	return nopPublisher{}
}

func (nopPublisher) Publish(context.Context, string, interface{}) error { return nil }

func (nopPublisher) Close() {}
