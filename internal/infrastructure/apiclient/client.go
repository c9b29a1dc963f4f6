// Package apiclient is the HTTP client of the business REST API. It resolves
// paths against the configured base URL, injects the bearer token, and turns
// non-2xx responses into *APIError.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/erp/appinv/internal/infrastructure/config"
	"github.com/erp/appinv/internal/infrastructure/logger"
	"github.com/erp/appinv/internal/infrastructure/telemetry"
)

// maxBodySize bounds how much of a response is read
const maxBodySize = 16 << 20

// TokenSource supplies the bearer token. Generation must change whenever the
// session changes (login, logout) so stale responses can be discarded.
type TokenSource interface {
	Bearer() (token string, generation uint64)
	Generation() uint64
}

// StaticToken is a fixed TokenSource
type StaticToken string

func (t StaticToken) Bearer() (string, uint64) { return string(t), 0 }
func (t StaticToken) Generation() uint64       { return 0 }

// Options configures a Client
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	UserAgent      string
	RateLimitQPS   float64
	RateLimitBurst int

	Tokens     TokenSource
	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *telemetry.ClientMetrics
}

// Client performs requests against the API.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	tokens     TokenSource
	logger     *zap.Logger
	metrics    *telemetry.ClientMetrics
}

// Request describes one API call
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Headers map[string]string
	Body    any // JSON encoded when non-nil
}

// New creates a client
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", opts.BaseURL)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "appinv-client/1.0"
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: opts.Timeout,
		}
	}

	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		userAgent:  opts.UserAgent,
		httpClient: httpClient,
		tokens:     opts.Tokens,
		logger:     logger.OrNop(opts.Logger),
		metrics:    opts.Metrics,
	}
	if opts.RateLimitQPS > 0 {
		burst := opts.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitQPS), burst)
	}
	return c, nil
}

// NewFromConfig creates a client from the api section of the configuration
func NewFromConfig(cfg config.APIConfig, tokens TokenSource, log *zap.Logger, metrics *telemetry.ClientMetrics) (*Client, error) {
	return New(Options{
		BaseURL:        cfg.BaseURL,
		Timeout:        cfg.Timeout,
		UserAgent:      cfg.UserAgent,
		RateLimitQPS:   cfg.RateLimitQPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Tokens:         tokens,
		Logger:         log,
		Metrics:        metrics,
	})
}

// BaseURL returns the resolved base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do performs req and decodes a 2xx JSON body into out.
// A 204 or empty body leaves out untouched. out may be nil.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	raw, err := c.execute(ctx, req, body, "application/json")
	if err != nil {
		return err
	}
	return decode(raw, out)
}

// DoRaw performs req and returns the body. A 204 yields the empty object "{}".
func (c *Client) DoRaw(ctx context.Context, req Request) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.Do(ctx, req, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return json.RawMessage("{}"), nil
	}
	return raw, nil
}

// Get performs a GET request
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// Post performs a POST request
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Put performs a PUT request
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

// Delete performs a DELETE request
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path}, out)
}

// execute sends the request and returns the body of a 2xx response (nil for 204)
func (c *Client) execute(ctx context.Context, req Request, body io.Reader, contentType string) (_ []byte, err error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	u, err := c.buildURL(req.Path, req.Query)
	if err != nil {
		return nil, fmt.Errorf("building URL: %w", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	ctx, span := telemetry.StartRequestSpan(ctx, req.Method, u.String())
	defer func() { telemetry.Finish(span, err) }()

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}

	requestID := logger.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx, _ = logger.WithRequestID(ctx, nil, requestID)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set(logger.RequestIDHeader, requestID)

	var generation uint64
	if c.tokens != nil {
		var token string
		token, generation = c.tokens.Bearer()
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	telemetry.InjectHeaders(ctx, httpReq.Header)

	log := logger.ForContext(ctx, c.logger).With(
		zap.String("method", req.Method),
		zap.String("path", req.Path),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.ObserveRequest(req.Method, req.Path, 0, time.Since(start))
		log.Debug("request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %s %s: %w", ErrNetwork, req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	duration := time.Since(start)
	c.metrics.ObserveRequest(req.Method, req.Path, resp.StatusCode, duration)
	telemetry.SetStatusCode(span, resp.StatusCode)

	log.Debug("request completed",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration),
	)

	// the session changed while this request was in flight: the response
	// belongs to someone who is no longer signed in
	if c.tokens != nil && c.tokens.Generation() != generation {
		log.Debug("discarding response from a previous session")
		return nil, ErrUnauthenticated
	}

	if readErr != nil {
		return nil, fmt.Errorf("%w: reading response body: %w", ErrNetwork, readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(resp.StatusCode, resp.Status, raw)
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	return raw, nil
}

// buildURL joins the base URL and path, keeping any path prefix of the base ("/api")
func (c *Client) buildURL(path string, query url.Values) (*url.URL, error) {
	if strings.Contains(path, "://") {
		return nil, fmt.Errorf("path must be relative, got %q", path)
	}
	rawPath, rawQuery, _ := strings.Cut(path, "?")

	u, err := url.Parse(c.baseURL + "/" + strings.TrimLeft(rawPath, "/"))
	if err != nil {
		return nil, err
	}

	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("invalid query in path: %w", err)
	}
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u, nil
}

func decode(raw []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if rm, ok := out.(*json.RawMessage); ok {
		*rm = append((*rm)[:0], raw...)
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return fmt.Errorf("response is not valid JSON: %w", err)
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
