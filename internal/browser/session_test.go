package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func chromePath(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"headless-shell", "chromium", "chromium-browser", "google-chrome", "google-chrome-stable"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no chrome binary on PATH")
	return ""
}

type challengeSite struct {
	server *httptest.Server
	mu     sync.Mutex
	cookie string
}

func newChallengeSite(t *testing.T, src string) *challengeSite {
	t.Helper()
	site := &challengeSite{}

	mux := http.NewServeMux()
	mux.HandleFunc("/challenge", func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		site.cookie = r.Header.Get("Cookie")
		site.mu.Unlock()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<html><body><img id="captchaimg" src="%s"><p id="captcha_info">Which <b>city</b> is shown?</p></body></html>`, src)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><p id="captcha_info">Which city?</p></body></html>`)
	})
	mux.HandleFunc("/nosrc", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><img id="captchaimg"><p id="captcha_info">Which city?</p></body></html>`)
	})
	mux.HandleFunc("/noquestion", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<html><body><img id="captchaimg" src="%s"></body></html>`, src)
	})

	site.server = httptest.NewServer(mux)
	t.Cleanup(site.server.Close)
	return site
}

// url addresses the server by name so the cookie domain matches the request host.
func (s *challengeSite) url(path string) string {
	return strings.Replace(s.server.URL, "127.0.0.1", "localhost", 1) + path
}

func (s *challengeSite) lastCookie() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cookie
}

func sessionConfig(t *testing.T, target string, wait time.Duration) SessionConfig {
	t.Helper()
	return SessionConfig{
		TargetURL:    target,
		CookieDomain: "localhost",
		Cookies: []Cookie{
			{Name: "NID_AUT", Value: "aut-token"},
			{Name: "NID_SES", Value: "ses-token"},
		},
		WaitTimeout: wait,
		Headless:    true,
		ExecAllocOpts: []chromedp.ExecAllocatorOption{
			chromedp.ExecPath(chromePath(t)),
			chromedp.NoSandbox,
		},
	}
}

func TestOpenRejectsEmptyTarget(t *testing.T) {
	_, err := Open(context.Background(), SessionConfig{TargetURL: "  "}, zerolog.Nop())
	require.Error(t, err)
}

func TestSessionFetchOneSendsCookiesAndExtracts(t *testing.T) {
	raw := tinyPNG(t)
	site := newChallengeSite(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(raw))
	cfg := sessionConfig(t, site.url("/challenge"), 5*time.Second)

	err := WithSession(context.Background(), cfg, zerolog.Nop(), func(session *Session) error {
		challenge, err := session.FetchOne()
		require.NoError(t, err)
		require.Equal(t, raw, challenge.Image)
		require.Equal(t, "image/png", challenge.MimeType)
		require.Equal(t, "Which city is shown?", challenge.Question)

		require.NoError(t, session.Refresh())
		_, err = session.FetchOne()
		return err
	})
	require.NoError(t, err)

	cookie := site.lastCookie()
	require.Contains(t, cookie, "NID_AUT=aut-token")
	require.Contains(t, cookie, "NID_SES=ses-token")
}

func TestSessionFetchOneTimesOutWithoutImage(t *testing.T) {
	site := newChallengeSite(t, "")
	cfg := sessionConfig(t, site.url("/missing"), 500*time.Millisecond)

	err := WithSession(context.Background(), cfg, zerolog.Nop(), func(session *Session) error {
		_, err := session.FetchOne()
		return err
	})
	require.ErrorIs(t, err, ErrFetchTimeout)
	require.False(t, errors.Is(err, ErrExtraction))
}

func TestSessionFetchOneClassifiesMalformedPages(t *testing.T) {
	src := "data:image/png;base64," + base64.StdEncoding.EncodeToString(tinyPNG(t))
	site := newChallengeSite(t, src)

	for _, path := range []string{"/nosrc", "/noquestion"} {
		t.Run(strings.TrimPrefix(path, "/"), func(t *testing.T) {
			wait := 5 * time.Second
			cfg := sessionConfig(t, site.url(path), wait)

			var elapsed time.Duration
			err := WithSession(context.Background(), cfg, zerolog.Nop(), func(session *Session) error {
				start := time.Now()
				_, err := session.FetchOne()
				elapsed = time.Since(start)
				return err
			})
			require.ErrorIs(t, err, ErrExtraction)
			require.False(t, errors.Is(err, ErrFetchTimeout))
			require.Less(t, elapsed, wait)
		})
	}
}

func TestWithSessionReturnsCallbackError(t *testing.T) {
	site := newChallengeSite(t, "")
	cfg := sessionConfig(t, site.url("/missing"), time.Second)
	boom := errors.New("boom")

	err := WithSession(context.Background(), cfg, zerolog.Nop(), func(*Session) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
}
