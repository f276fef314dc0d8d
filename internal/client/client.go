// Package client provides a typed client for the Sitecast REST API
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/bobmcallan/sitecast/internal/common"
	"github.com/bobmcallan/sitecast/internal/models"
)

const (
	DefaultBaseURL      = "http://localhost:8080/api"
	DefaultTimeout      = 30 * time.Second
	DefaultRateLimit    = 10 // requests per second
	DefaultPollInterval = 2 * time.Second
	DefaultPollCeiling  = 5 * time.Minute

	// EnvBaseURL overrides DefaultBaseURL.
	EnvBaseURL = "SITECAST_API_URL"
)

// Client talks to the Sitecast REST API.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	logger       *common.Logger
	limiter      *rate.Limiter
	tokens       TokenStore
	pollInterval time.Duration
	pollCeiling  time.Duration
	timeout      time.Duration

	Sites      *SitesService
	Portfolios *PortfoliosService
	Forecasts  *ForecastsService
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient replaces the underlying HTTP client. A nil client keeps
// the default.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTokenStore sets where the bearer token is kept
func WithTokenStore(store TokenStore) ClientOption {
	return func(c *Client) {
		c.tokens = store
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit. Zero or less disables limiting.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout. It applies to a copy of the HTTP
// client, so a client passed to WithHTTPClient is never modified.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithPollInterval sets how often job status is checked
func WithPollInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.pollInterval = d
	}
}

// WithPollCeiling bounds how long a job is polled
func WithPollCeiling(d time.Duration) ClientOption {
	return func(c *Client) {
		c.pollCeiling = d
	}
}

// LoadEnv loads .env files into the process environment. Missing files are
// ignored; variables already set win.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// NewClient creates a new API client. The base URL defaults to
// SITECAST_API_URL, then DefaultBaseURL.
func NewClient(opts ...ClientOption) *Client {
	baseURL := DefaultBaseURL
	if v := os.Getenv(EnvBaseURL); v != "" {
		baseURL = strings.TrimRight(v, "/")
	}

	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter:      rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:       common.NewSilentLogger(),
		tokens:       NewMemoryTokenStore(),
		pollInterval: DefaultPollInterval,
		pollCeiling:  DefaultPollCeiling,
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}

	c.Sites = &SitesService{c: c}
	c.Portfolios = &PortfoliosService{c: c}
	c.Forecasts = &ForecastsService{c: c}
	return c
}

// BaseURL returns the API root requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login exchanges credentials for a bearer token and stores it.
func (c *Client) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	var resp models.LoginResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", nil, models.LoginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	if err := c.tokens.Save(resp.Token); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}
	c.logger.Info().Str("email", resp.User.Email).Msg("Signed in")
	return &resp, nil
}

// Logout forgets the stored token.
func (c *Client) Logout() error {
	return c.tokens.Clear()
}

// Me returns the profile of the signed-in user.
func (c *Client) Me(ctx context.Context) (*models.Profile, error) {
	var p models.Profile
	if err := c.do(ctx, http.MethodGet, "/me", nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// TokenExpiry reports when the stored token expires. The signature is not
// verified; the server remains authoritative.
func (c *Client) TokenExpiry() (time.Time, bool) {
	token, err := c.tokens.Load()
	if err != nil || token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// do performs a rate-limited JSON request. Failures are returned as *Error.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return newTransportError(ctxErr)
		}
		// The limiter refuses waits that would outlast the deadline
		return newError(CodeTimeout, 0, fmt.Errorf("rate limit wait: %w", err))
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, err := c.tokens.Load(); err == nil && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug().Str("method", method).Str("path", path).Msg("Sitecast API request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", path).Dur("elapsed", elapsed).Msg("Sitecast API request failed")
		return newTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return newTransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized {
			if err := c.tokens.Clear(); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to clear stored token")
			}
		}
		c.logger.Debug().Str("path", path).Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("Sitecast API non-OK response")
		return newHTTPError(resp.StatusCode, data)
	}

	if result == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if raw, ok := result.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// unwrapList accepts a pagination envelope or a bare array.
func unwrapList[T any](data json.RawMessage) ([]T, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []T{}, nil
	}

	var items []T
	if data[0] == '[' {
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("failed to decode list: %w", err)
		}
	} else {
		var page models.Page[T]
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("failed to decode page: %w", err)
		}
		items = page.Results
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// ErrNotSignedIn is returned by RequireToken when no token is stored.
var ErrNotSignedIn = errors.New("not signed in: run 'sitecast login'")

// RequireToken returns ErrNotSignedIn when no token is stored.
func (c *Client) RequireToken() error {
	token, err := c.tokens.Load()
	if err != nil {
		return err
	}
	if token == "" {
		return ErrNotSignedIn
	}
	return nil
}
