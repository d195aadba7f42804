package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/captcha-corpus/pkg/ai"
)

func TestCachedOracleHitSkipsUpstream(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer redisClient.Close()

	upstream := scenarioOracle()
	oracle := NewCachedOracle(upstream, redisClient, time.Hour, testLogger())
	require.Equal(t, "gpt-4o", oracle.Model())

	req := ai.VisionRequest{Prompt: "Answer briefly.", Question: "What city is shown?", Image: pngMagic, Detail: ai.DetailLow, MaxTokens: 50}
	first, err := oracle.Complete(context.Background(), req)
	require.NoError(t, err)
	second, err := oracle.Complete(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, "Seoul", first)
	require.Equal(t, first, second)
	require.Equal(t, 1, upstream.calls())

	key := completionKey("gpt-4o", req)
	require.True(t, server.Exists(key))
	require.Equal(t, time.Hour, server.TTL(key))

	req.Detail = ai.DetailHigh
	_, err = oracle.Complete(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 2, upstream.calls())
}

func TestCachedOracleBypassesBrokenCache(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)

	redisClient := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	defer redisClient.Close()
	server.Close()

	upstream := scenarioOracle()
	oracle := NewCachedOracle(upstream, redisClient, time.Hour, testLogger())

	completion, err := oracle.Complete(context.Background(), ai.VisionRequest{Question: "Which port city is this?", Image: pngMagic, Detail: ai.DetailLow, MaxTokens: 5})
	require.NoError(t, err)
	require.Equal(t, "Busan", completion)
	require.Equal(t, 1, upstream.calls())
}

func TestCachedOracleDoesNotStoreFailures(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer redisClient.Close()

	upstream := scenarioOracle()
	upstream.failOn = "What city is shown?"
	oracle := NewCachedOracle(upstream, redisClient, 0, testLogger())

	_, err = oracle.Complete(context.Background(), ai.VisionRequest{Question: "What city is shown?", Image: pngMagic, Detail: ai.DetailLow, MaxTokens: 5})
	require.ErrorIs(t, err, ai.ErrOracle)
	require.Empty(t, server.Keys())
}

func TestNewCachedOracleWithoutClient(t *testing.T) {
	upstream := scenarioOracle()
	require.Same(t, upstream, NewCachedOracle(upstream, nil, time.Hour, testLogger()))
}
