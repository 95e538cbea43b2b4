// Copyright (c) 2025, hui-shao and the byre contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package nexus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/avast/retry-go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/net/publicsuffix"
)

const sessionUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/103.0.9999.0 Safari/537.36"

// CaptchaSolver decodes the login CAPTCHA image. Solving is an external
// collaborator concern; the session only knows how to feed it bytes.
type CaptchaSolver interface {
	Solve(ctx context.Context, image []byte) (string, error)
}

// Session holds an authenticated HTTP session against one site. Cookies
// persist across runs in a JSON cache file keyed by username, so a login
// (and its CAPTCHA round-trip) only happens when the cache goes stale.
type Session struct {
	Site Site

	username string
	password string

	cookiePath string
	fs         afero.Fs
	httpClient *http.Client
	solver     CaptchaSolver

	retries    uint
	retryDelay time.Duration
}

type SessionOption func(*Session)

// WithFs overrides the filesystem used for the cookie cache.
func WithFs(fs afero.Fs) SessionOption {
	return func(s *Session) { s.fs = fs }
}

// WithHTTPClient overrides the HTTP client (tests point it at a stub server).
func WithHTTPClient(client *http.Client) SessionOption {
	return func(s *Session) { s.httpClient = client }
}

// WithCaptchaSolver installs the login CAPTCHA collaborator.
func WithCaptchaSolver(solver CaptchaSolver) SessionOption {
	return func(s *Session) { s.solver = solver }
}

// WithRetryPolicy tunes FetchPage's retry count and delay.
func WithRetryPolicy(retries uint, delay time.Duration) SessionOption {
	return func(s *Session) {
		s.retries = retries
		s.retryDelay = delay
	}
}

func NewSession(site Site, username, password, cookiePath string, opts ...SessionOption) (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	s := &Session{
		Site:       site,
		username:   username,
		password:   password,
		cookiePath: cookiePath,
		fs:         afero.NewOsFs(),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Logged-out pages redirect to login.php; surfacing the 302
				// instead of following it is how staleness is detected.
				return http.ErrUseLastResponse
			},
		},
		retries:    3,
		retryDelay: time.Second,
	}

	for _, opt := range opts {
		opt(s)
	}
	s.httpClient.Jar = jar

	return s, nil
}

// cookieCache is the on-disk session state. The username guards against
// reusing another account's cookies after a config change.
type cookieCache struct {
	Username string            `json:"username"`
	Cookies  map[string]string `json:"cookies"`
}

// Login establishes an authenticated session, preferring cached cookies.
func (s *Session) Login(ctx context.Context) error {
	if s.restoreCookies(ctx) {
		log.Info().Str("site", s.Site.Key).Msg("Restored session from cookie cache")
		return nil
	}

	if err := s.authorize(ctx); err != nil {
		return err
	}
	log.Info().Str("site", s.Site.Key).Str("username", s.username).Msg("Logged in")

	if err := s.persistCookies(); err != nil {
		log.Warn().Err(err).Str("site", s.Site.Key).Msg("Failed to persist session cookies")
	}
	return nil
}

// FetchPage requests a site-relative path and parses the response body.
// Retries are exhausted here; callers treat a returned error as fatal
// for the current extraction and never retry themselves.
func (s *Session) FetchPage(ctx context.Context, path string) (*goquery.Document, error) {
	var doc *goquery.Document

	err := retry.Do(
		func() error {
			body, err := s.get(ctx, path)
			if err != nil {
				return err
			}
			defer body.Close()

			d, err := goquery.NewDocumentFromReader(body)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to parse page %s: %w", path, err))
			}
			doc = d
			return nil
		},
		retry.Attempts(s.retries),
		retry.Delay(s.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.Info().Err(err).Uint("attempt", n+1).Str("path", path).Msg("Page fetch failed, retrying")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("all fetch attempts for %s failed: %w", path, err)
	}
	return doc, nil
}

// FetchBytes requests a site-relative path and returns the raw body,
// used for .torrent payloads and CAPTCHA images. It exhausts the same
// retry policy as FetchPage.
func (s *Session) FetchBytes(ctx context.Context, path string) ([]byte, error) {
	var payload []byte

	err := retry.Do(
		func() error {
			body, err := s.get(ctx, path)
			if err != nil {
				return err
			}
			defer body.Close()

			data, err := io.ReadAll(io.LimitReader(body, 16<<20))
			if err != nil {
				return err
			}
			payload = data
			return nil
		},
		retry.Attempts(s.retries),
		retry.Delay(s.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.Info().Err(err).Uint("attempt", n+1).Str("path", path).Msg("Byte fetch failed, retrying")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("all fetch attempts for %s failed: %w", path, err)
	}
	return payload, nil
}

// LoggedIn probes the index page; logged-out sessions get redirected.
func (s *Session) LoggedIn(ctx context.Context) bool {
	body, err := s.get(ctx, "")
	if err != nil {
		return false
	}
	body.Close()
	return true
}

func (s *Session) get(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.Site.URL(path), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", sessionUserAgent)

	log.Debug().Str("site", s.Site.Key).Str("path", path).Msg("Requesting page")

	res, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		// Redirects here almost always mean an expired session.
		return nil, fmt.Errorf("unexpected status %d for %s", res.StatusCode, path)
	}
	return res.Body, nil
}

func (s *Session) restoreCookies(ctx context.Context) bool {
	data, err := afero.ReadFile(s.fs, s.cookiePath)
	if err != nil {
		return false
	}

	var cache cookieCache
	if err := json.Unmarshal(data, &cache); err != nil {
		log.Warn().Err(err).Str("path", s.cookiePath).Msg("Malformed cookie cache")
		return false
	}
	if cache.Username != s.username {
		log.Debug().Str("site", s.Site.Key).Msg("Cookie cache belongs to a different user")
		return false
	}

	base, err := url.Parse(s.Site.BaseURL)
	if err != nil {
		return false
	}
	cookies := make([]*http.Cookie, 0, len(cache.Cookies))
	for name, value := range cache.Cookies {
		cookies = append(cookies, &http.Cookie{Name: name, Value: value})
	}
	s.httpClient.Jar.SetCookies(base, cookies)

	if !s.LoggedIn(ctx) {
		log.Debug().Str("site", s.Site.Key).Msg("Cached session expired")
		return false
	}
	return true
}

func (s *Session) persistCookies() error {
	base, err := url.Parse(s.Site.BaseURL)
	if err != nil {
		return err
	}

	cache := cookieCache{Username: s.username, Cookies: map[string]string{}}
	for _, c := range s.httpClient.Jar.Cookies(base) {
		cache.Cookies[c.Name] = c.Value
	}

	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.cookiePath); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return afero.WriteFile(s.fs, s.cookiePath, data, os.FileMode(0o600))
}

// authorize performs the CAPTCHA-gated login round-trip.
func (s *Session) authorize(ctx context.Context) error {
	if s.solver == nil {
		return fmt.Errorf("no cached session for %s and no captcha solver configured", s.Site.Key)
	}

	loginPage, err := s.FetchPage(ctx, "login.php")
	if err != nil {
		return fmt.Errorf("failed to load login page: %w", err)
	}

	imgSrc := loginPage.Find("form img[src*='image.php']").First().AttrOr("src", "")
	if imgSrc == "" {
		return fmt.Errorf("login page has no captcha image")
	}

	image, err := s.FetchBytes(ctx, imgSrc)
	if err != nil {
		return fmt.Errorf("failed to fetch captcha image: %w", err)
	}

	captcha, err := s.solver.Solve(ctx, image)
	if err != nil {
		return fmt.Errorf("captcha solving failed: %w", err)
	}
	log.Debug().Str("captcha", captcha).Msg("Captcha decoded")

	imageHash := imgSrc
	if i := strings.LastIndex(imgSrc, "="); i >= 0 {
		imageHash = imgSrc[i+1:]
	}

	form := url.Values{
		"username":    {s.username},
		"password":    {s.password},
		"imagestring": {captcha},
		"imagehash":   {imageHash},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Site.URL("takelogin.php"), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", sessionUserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer res.Body.Close()

	// A successful login redirects to the index.
	if res.StatusCode != http.StatusFound {
		return fmt.Errorf("login rejected with status %d (repeated failures may get the IP banned)", res.StatusCode)
	}
	return nil
}
