package observability

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestHarvestAttemptsCounter(t *testing.T) {
	before := testutil.ToFloat64(HarvestAttempts().WithLabelValues("saved"))
	HarvestAttempts().WithLabelValues("saved").Inc()
	require.Equal(t, before+1, testutil.ToFloat64(HarvestAttempts().WithLabelValues("saved")))
}

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	EvaluationAverage().WithLabelValues("gpt-4o", "low").Set(0.75)

	app := fiber.New()
	app.Get("/metrics", MetricsHandler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `captcha_evaluation_average_similarity{detail="low",model="gpt-4o"} 0.75`)
}
