package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrConfiguration reports a required external input that is missing or invalid.
var ErrConfiguration = errors.New("configuration error")

// Config holds runtime configuration values for the harvester and the API service.
type Config struct {
	AppName string
	AppEnv  string
	AppPort string

	DatabaseDriver string
	DatabasePath   string
	RedisURL       string
	NATSURL        string
	JWTSecret      string

	TargetURL         string
	CookieDomain      string
	CookieNameAUT     string
	CookieNameSES     string
	SessionCookieAUT  string
	SessionCookieSES  string
	ImageElementID    string
	QuestionElementID string
	BrowserHeadless   bool
	FetchTimeout      time.Duration
	HarvestCount      int
	HarvestMinDelay   time.Duration
	HarvestMaxDelay   time.Duration

	OpenAIAPIKey       string
	OpenAIModel        string
	OpenAIBaseURL      string
	OracleTimeout      time.Duration
	OracleMaxRetries   int
	CompletionCacheTTL time.Duration
	EvaluationRateMax  int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// ValidateHarvest checks the inputs the harvester cannot run without.
func (c Config) ValidateHarvest() error {
	return requireAll(map[string]string{
		"CAPTCHA_TARGET_URL":    c.TargetURL,
		"CAPTCHA_DATABASE_PATH": c.DatabasePath,
		"CAPTCHA_NID_AUT":       c.SessionCookieAUT,
		"CAPTCHA_NID_SES":       c.SessionCookieSES,
	})
}

// ValidateEvaluation checks the inputs the labeling and evaluation API needs.
func (c Config) ValidateEvaluation() error {
	return requireAll(map[string]string{
		"CAPTCHA_DATABASE_PATH":  c.DatabasePath,
		"CAPTCHA_OPENAI_API_KEY": c.OpenAIAPIKey,
	})
}

func requireAll(values map[string]string) error {
	missing := make([]string, 0, len(values))
	for key, value := range values {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: missing %s", ErrConfiguration, strings.Join(missing, ", "))
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CAPTCHA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Names used by the original crawling scripts stay accepted.
	_ = v.BindEnv("target.url", "CAPTCHA_TARGET_URL", "CAPTCHA_URL")
	_ = v.BindEnv("database.path", "CAPTCHA_DATABASE_PATH", "DATABASE_NAME")
	_ = v.BindEnv("nid_aut", "CAPTCHA_NID_AUT", "NID_AUT")
	_ = v.BindEnv("nid_ses", "CAPTCHA_NID_SES", "NID_SES")
	_ = v.BindEnv("openai_api_key", "CAPTCHA_OPENAI_API_KEY", "OPENAI_API_KEY")

	v.SetDefault("app.name", "CAPTCHA Corpus API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("auth_cookie.domain", ".naver.com")
	v.SetDefault("auth_cookie.aut_name", "NID_AUT")
	v.SetDefault("auth_cookie.ses_name", "NID_SES")
	v.SetDefault("element.image_id", "captchaimg")
	v.SetDefault("element.question_id", "captcha_info")
	v.SetDefault("browser.headless", true)
	v.SetDefault("fetch.timeout", "10s")
	v.SetDefault("harvest.count", 500)
	v.SetDefault("harvest.min_delay", "500ms")
	v.SetDefault("harvest.max_delay", "1s")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("oracle.timeout", "60s")
	v.SetDefault("oracle.max_retries", 3)
	v.SetDefault("completion_cache.ttl", "24h")
	v.SetDefault("evaluation.rate_limit", 5)

	durations := map[string]time.Duration{}
	for _, key := range []string{"fetch.timeout", "harvest.min_delay", "harvest.max_delay", "oracle.timeout", "completion_cache.ttl"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("%w: invalid %s: %v", ErrConfiguration, key, err)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:            v.GetString("app.name"),
		AppEnv:             v.GetString("app.env"),
		AppPort:            v.GetString("app.port"),
		DatabaseDriver:     strings.ToLower(v.GetString("database.driver")),
		DatabasePath:       v.GetString("database.path"),
		RedisURL:           v.GetString("redis.url"),
		NATSURL:            v.GetString("nats.url"),
		JWTSecret:          v.GetString("jwt.secret"),
		TargetURL:          v.GetString("target.url"),
		CookieDomain:       v.GetString("auth_cookie.domain"),
		CookieNameAUT:      v.GetString("auth_cookie.aut_name"),
		CookieNameSES:      v.GetString("auth_cookie.ses_name"),
		ImageElementID:     v.GetString("element.image_id"),
		QuestionElementID:  v.GetString("element.question_id"),
		SessionCookieAUT:   v.GetString("nid_aut"),
		SessionCookieSES:   v.GetString("nid_ses"),
		BrowserHeadless:    v.GetBool("browser.headless"),
		FetchTimeout:       durations["fetch.timeout"],
		HarvestCount:       v.GetInt("harvest.count"),
		HarvestMinDelay:    durations["harvest.min_delay"],
		HarvestMaxDelay:    durations["harvest.max_delay"],
		OpenAIAPIKey:       v.GetString("openai_api_key"),
		OpenAIModel:        v.GetString("openai.model"),
		OpenAIBaseURL:      v.GetString("openai.base_url"),
		OracleTimeout:      durations["oracle.timeout"],
		OracleMaxRetries:   v.GetInt("oracle.max_retries"),
		CompletionCacheTTL: durations["completion_cache.ttl"],
		EvaluationRateMax:  v.GetInt("evaluation.rate_limit"),
	}

	switch cfg.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return Config{}, fmt.Errorf("%w: unsupported database driver %q", ErrConfiguration, cfg.DatabaseDriver)
	}

	if cfg.HarvestCount <= 0 {
		cfg.HarvestCount = 500
	}
	if cfg.HarvestMaxDelay < cfg.HarvestMinDelay {
		return Config{}, fmt.Errorf("%w: harvest max delay %s is below min delay %s", ErrConfiguration, cfg.HarvestMaxDelay, cfg.HarvestMinDelay)
	}
	if cfg.OracleMaxRetries <= 0 {
		cfg.OracleMaxRetries = 1
	}

	return cfg, nil
}
