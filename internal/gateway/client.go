// Package gateway is the HTTP client for the messaging gateway.
package gateway

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
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tOgg1/gatechat/internal/logging"
)

const (
	defaultTimeout   = 20 * time.Second
	defaultRateLimit = 10
	defaultBurst     = 20
	maxErrorBody     = 4 << 10

	// RequestIDHeader carries a per-request uuid.
	RequestIDHeader = "X-Request-ID"
)

// Options configures a Client.
type Options struct {
	BaseURL   string
	Token     string
	Session   string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
	Logger     *zerolog.Logger
	// Observe, when set, is called after every round trip. status is 0 on
	// transport errors.
	Observe func(method string, status int, elapsed time.Duration)
}

// Client talks to the gateway's REST surface.
type Client struct {
	baseURL    *url.URL
	token      string
	session    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
	observe    func(method string, status int, elapsed time.Duration)
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, errors.New("gateway base url is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid gateway base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("gateway base url must be absolute: %q", raw)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	limit := opts.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	logger := logging.Component("gateway")
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Client{
		baseURL:    base,
		token:      strings.TrimSpace(opts.Token),
		session:    strings.TrimSpace(opts.Session),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(limit), burst),
		logger:     logger,
		observe:    opts.Observe,
	}, nil
}

// BaseURL returns the gateway root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.baseURL.String() + "/" + strings.Join(escaped, "/")
}

// doJSON sends body as JSON and decodes the response into out when out is
// non-nil.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", endpoint, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.observe != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		c.observe(req.Method, status, time.Since(start))
	}
	if err != nil {
		c.logger.Debug().
			Err(err).
			Str("request_id", requestID).
			Str("method", req.Method).
			Str("url", logging.RedactURL(req.URL.String())).
			Msg("gateway request failed")
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("request_id", requestID).
		Str("method", req.Method).
		Str("url", logging.RedactURL(req.URL.String())).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("gateway request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			StatusCode: resp.StatusCode,
			Method:     req.Method,
			Path:       req.URL.Path,
			RequestID:  requestID,
			Body:       strings.TrimSpace(logging.Redact(string(payload))),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
