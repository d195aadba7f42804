package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/captcha-corpus/internal/dto"
	"github.com/noah-isme/captcha-corpus/internal/repository"
	"github.com/noah-isme/captcha-corpus/internal/service"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
	Details map[string]any  `json:"details"`
}

type mockLabelingService struct {
	task       dto.LabelTask
	result     dto.LabelResult
	stats      repository.CorpusStats
	err        error
	lastID     uint
	lastAnswer string
}

func (m *mockLabelingService) LoadNext(context.Context) (dto.LabelTask, error) {
	return m.task, m.err
}

func (m *mockLabelingService) SubmitAnswer(_ context.Context, id uint, answer string) (dto.LabelResult, error) {
	m.lastID = id
	m.lastAnswer = answer
	return m.result, m.err
}

func (m *mockLabelingService) Stats(context.Context) (repository.CorpusStats, error) {
	return m.stats, m.err
}

type mockEvaluationService struct {
	response dto.EvaluationResponse
	err      error
	lastReq  dto.EvaluationRequest
	export   []byte
}

func (m *mockEvaluationService) Evaluate(_ context.Context, req dto.EvaluationRequest) (dto.EvaluationResponse, error) {
	m.lastReq = req
	return m.response, m.err
}

func (m *mockEvaluationService) GetRun(context.Context, string) (dto.EvaluationResponse, error) {
	return m.response, m.err
}

func (m *mockEvaluationService) Export(_ context.Context, _ string, w io.Writer) error {
	if m.err != nil {
		return m.err
	}
	_, err := w.Write(m.export)
	return err
}

var (
	_ service.LabelingService   = (*mockLabelingService)(nil)
	_ service.EvaluationService = (*mockEvaluationService)(nil)
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func doRequest(t *testing.T, app *fiber.App, method, path string, payload interface{}) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}
