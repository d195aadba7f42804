package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

var (
	// ErrFetchTimeout means the challenge image did not appear within the wait timeout.
	ErrFetchTimeout = errors.New("captcha element wait timed out")
	// ErrExtraction means the challenge elements were present but malformed.
	ErrExtraction = errors.New("captcha extraction failed")
)

// Cookie is an authentication cookie injected before the first navigation.
type Cookie struct {
	Name  string
	Value string
}

// SessionConfig describes the authenticated target.
type SessionConfig struct {
	TargetURL     string
	CookieDomain  string
	Cookies       []Cookie
	ImageID       string
	QuestionID    string
	WaitTimeout   time.Duration
	Headless      bool
	ExecAllocOpts []chromedp.ExecAllocatorOption
}

func (c *SessionConfig) applyDefaults() {
	if c.ImageID == "" {
		c.ImageID = "captchaimg"
	}
	if c.QuestionID == "" {
		c.QuestionID = "captcha_info"
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 10 * time.Second
	}
}

// Session drives one cookie-authenticated browser tab.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    SessionConfig
	logger zerolog.Logger
}

// Open starts a browser, injects the auth cookies and loads the challenge page.
// Callers own the session and must Close it.
func Open(parent context.Context, cfg SessionConfig, logger zerolog.Logger) (*Session, error) {
	cfg.applyDefaults()
	if strings.TrimSpace(cfg.TargetURL) == "" {
		return nil, fmt.Errorf("browser session: target url must not be empty")
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
	)
	opts = append(opts, cfg.ExecAllocOpts...)

	log := logger.With().Str("component", "browser_session").Logger()
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, opts...)
	ctx, cancelCtx := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			log.Debug().Msgf(format, args...)
		}),
		chromedp.WithErrorf(func(format string, args ...interface{}) {
			log.Warn().Msgf(format, args...)
		}),
	)

	s := &Session{
		ctx: ctx,
		cancel: func() {
			cancelCtx()
			cancelAlloc()
		},
		cfg:    cfg,
		logger: log,
	}

	if err := chromedp.Run(ctx, s.injectCookies(), chromedp.Navigate(cfg.TargetURL)); err != nil {
		s.Close()
		return nil, fmt.Errorf("browser session: establish: %w", err)
	}

	s.logger.Info().Str("target", cfg.TargetURL).Int("cookies", len(cfg.Cookies)).Msg("browser session established")
	return s, nil
}

// WithSession scopes a session to fn and tears the browser down on every exit path.
func WithSession(ctx context.Context, cfg SessionConfig, logger zerolog.Logger, fn func(*Session) error) error {
	session, err := Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer session.Close()
	return fn(session)
}

func (s *Session) injectCookies() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for _, cookie := range s.cfg.Cookies {
			err := network.SetCookie(cookie.Name, cookie.Value).
				WithDomain(s.cfg.CookieDomain).
				WithPath("/").
				Do(ctx)
			if err != nil {
				return fmt.Errorf("set cookie %s: %w", cookie.Name, err)
			}
		}
		return nil
	})
}

// FetchOne waits for the challenge image and extracts it with its question.
// Only the image is waited for; once it is ready a missing question element is
// an extraction failure. The page state is consumed; call Refresh before
// fetching again.
func (s *Session) FetchOne() (Challenge, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.WaitTimeout)
	defer cancel()

	imageSel := "#" + s.cfg.ImageID
	questionSel := "#" + s.cfg.QuestionID
	if err := chromedp.Run(ctx, chromedp.WaitReady(imageSel, chromedp.ByQuery)); err != nil {
		if parentErr := s.ctx.Err(); parentErr != nil {
			return Challenge{}, parentErr
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Challenge{}, fmt.Errorf("%w after %s", ErrFetchTimeout, s.cfg.WaitTimeout)
		}
		return Challenge{}, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	var (
		src           string
		hasSrc        bool
		question      string
		questionNodes []*cdp.Node
	)
	err := chromedp.Run(ctx,
		chromedp.AttributeValue(imageSel, "src", &src, &hasSrc, chromedp.ByQuery),
		chromedp.Nodes(questionSel, &questionNodes, chromedp.ByQuery, chromedp.AtLeast(0)),
	)
	if err != nil {
		return Challenge{}, s.extractionError(err)
	}
	if !hasSrc {
		return Challenge{}, fmt.Errorf("%w: %s has no src attribute", ErrExtraction, imageSel)
	}
	if len(questionNodes) == 0 {
		return Challenge{}, fmt.Errorf("%w: %s not found", ErrExtraction, questionSel)
	}
	if err := chromedp.Run(ctx, chromedp.TextContent(questionSel, &question, chromedp.ByQuery)); err != nil {
		return Challenge{}, s.extractionError(err)
	}

	return ParseChallenge(src, question)
}

func (s *Session) extractionError(err error) error {
	if parentErr := s.ctx.Err(); parentErr != nil {
		return parentErr
	}
	return fmt.Errorf("%w: %w", ErrExtraction, err)
}

// Refresh reloads the challenge page, which advances the remote challenge state.
func (s *Session) Refresh() error {
	if err := chromedp.Run(s.ctx, chromedp.Reload()); err != nil {
		return fmt.Errorf("browser session: refresh: %w", err)
	}
	return nil
}

// Close tears down the tab and the browser process.
func (s *Session) Close() {
	if s == nil || s.cancel == nil {
		return
	}
	s.cancel()
	s.logger.Info().Msg("browser session closed")
}
