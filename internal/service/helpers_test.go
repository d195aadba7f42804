package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/captcha-corpus/internal/repository"
	"github.com/noah-isme/captcha-corpus/pkg/ai"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func setupServiceTestDB(t *testing.T) (repository.CaptchaRepository, repository.EvaluationRunRepository) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	captchas := repository.NewCaptchaRepository(db)
	runs := repository.NewEvaluationRunRepository(db)
	require.NoError(t, captchas.Initialize(context.Background()))
	require.NoError(t, runs.Initialize(context.Background()))
	return captchas, runs
}

func seedAnswered(t *testing.T, repo repository.CaptchaRepository, questions, answers []string) []uint {
	t.Helper()
	ids := make([]uint, 0, len(questions))
	for i, question := range questions {
		id, err := repo.Insert(context.Background(), pngMagic, question)
		require.NoError(t, err)
		if i < len(answers) && answers[i] != "" {
			require.NoError(t, repo.SetAnswer(context.Background(), id, answers[i]))
		}
		ids = append(ids, id)
	}
	return ids
}

// oracleStub answers by question and records every request it receives.
type oracleStub struct {
	mu       sync.Mutex
	model    string
	answers  map[string]string
	failOn   string
	requests []ai.VisionRequest
}

func (o *oracleStub) Model() string {
	if o.model == "" {
		return "gpt-4o"
	}
	return o.model
}

func (o *oracleStub) Complete(_ context.Context, req ai.VisionRequest) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests = append(o.requests, req)
	if o.failOn != "" && req.Question == o.failOn {
		return "", fmt.Errorf("%w: upstream unavailable", ai.ErrOracle)
	}
	return o.answers[req.Question], nil
}

func (o *oracleStub) calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.requests)
}
