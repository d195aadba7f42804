package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/captcha-corpus/pkg/ai"
)

const completionCachePrefix = "captcha:completion:"

type cachedOracle struct {
	next   ai.VisionOracle
	cache  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedOracle memoizes oracle completions in Redis. A nil client returns
// next unchanged. Cache failures are logged and never fail the call.
func NewCachedOracle(next ai.VisionOracle, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) ai.VisionOracle {
	if cache == nil {
		return next
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &cachedOracle{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With().Str("component", "completion_cache").Logger(),
	}
}

func (c *cachedOracle) Model() string {
	return c.next.Model()
}

func (c *cachedOracle) Complete(ctx context.Context, req ai.VisionRequest) (string, error) {
	key := completionKey(c.next.Model(), req)

	cached, err := c.cache.Get(ctx, key).Result()
	switch {
	case err == nil:
		return cached, nil
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn().Err(err).Msg("completion cache read failed")
	}

	completion, err := c.next.Complete(ctx, req)
	if err != nil {
		return "", err
	}

	if err := c.cache.Set(ctx, key, completion, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("completion cache write failed")
	}
	return completion, nil
}

func completionKey(model string, req ai.VisionRequest) string {
	hash := sha256.New()
	for _, part := range []string{model, string(req.Detail), strconv.Itoa(req.MaxTokens), req.Prompt, req.Question} {
		hash.Write([]byte(part))
		hash.Write([]byte{0})
	}
	hash.Write(req.Image)
	return completionCachePrefix + hex.EncodeToString(hash.Sum(nil))
}
