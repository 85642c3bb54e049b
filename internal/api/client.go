// Package api is the HTTP client for the onCare backend.
//
// Authentication is cookie based: the backend sets an HttpOnly
// session_token cookie on login and every later request presents it
// through the client's cookie jar.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/on-cure/oncare/internal/errors"
	"github.com/on-cure/oncare/internal/log"
	"github.com/on-cure/oncare/internal/metrics"
	"github.com/on-cure/oncare/internal/version"
)

const (
	// ClientIDHeader identifies this client process in backend logs.
	ClientIDHeader = "X-Client-ID"

	// SessionCookie is the name of the backend session cookie.
	SessionCookie = "session_token"

	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 4 << 20

	tracerName = "github.com/on-cure/oncare/internal/api"
)

// Client is the onCare backend API client
type Client struct {
	baseURL    *url.URL
	wsURL      string
	httpClient *http.Client
	jar        http.CookieJar
	timeout    time.Duration
	clientID   string
	logger     *log.Logger
	metrics    *metrics.Metrics
	contract   *Contract
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithJar sets the cookie jar used for the session cookie.
func WithJar(jar http.CookieJar) Option {
	return func(c *Client) { c.jar = jar }
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger for request diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records request counts and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithContract validates every response against the API contract.
func WithContract(contract *Contract) Option {
	return func(c *Client) { c.contract = contract }
}

// WithWebSocketURL overrides the realtime endpoint derived from the base URL.
func WithWebSocketURL(raw string) Option {
	return func(c *Client) { c.wsURL = raw }
}

// NewClient creates a new API client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.ConfigInvalid("api.base_url", err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.ConfigInvalid("api.base_url", fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{},
		timeout:    defaultTimeout,
		clientID:   uuid.NewString(),
		logger:     log.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.jar != nil {
		c.httpClient.Jar = c.jar
	}
	if c.httpClient.Timeout == 0 {
		c.httpClient.Timeout = c.timeout
	}
	return c, nil
}

// BaseURL returns the backend origin.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// ClientID returns the identifier sent in ClientIDHeader.
func (c *Client) ClientID() string {
	return c.clientID
}

// Jar returns the cookie jar holding the session cookie.
func (c *Client) Jar() http.CookieJar {
	return c.httpClient.Jar
}

// WebSocketURL returns the realtime endpoint: the configured override, or
// the base URL with a ws/wss scheme and the /ws path.
func (c *Client) WebSocketURL() string {
	if c.wsURL != "" {
		return c.wsURL
	}
	u := c.BaseURL()
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

// response is a fully read backend reply.
type response struct {
	status int
	header http.Header
	body   []byte
}

// do performs a request and reads the whole response. route is the path
// template used for metrics and span names; path is the concrete path.
func (c *Client) do(ctx context.Context, method, route, path string, body any) (*response, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, method+" "+route,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("http.route", route),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := c.roundTrip(ctx, method, path, body)

	status := 0
	if resp != nil {
		status = resp.status
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	c.metrics.RecordAPIRequest(method, route, status, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.WithContext(ctx).WithError(err).Debug("api request failed", "method", method, "path", path)
		return nil, err
	}

	c.logger.WithContext(ctx).Debug("api request", "method", method, "path", path, "status", status, "duration", time.Since(start))
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body any) (*response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeRequestFailed, "failed to marshal request body", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reqBody)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeRequestFailed, "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(ClientIDHeader, c.clientID)
	req.Header.Set("User-Agent", version.UserAgent())

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, c.baseURL.String(), method+" "+path, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, transportError(ctx, c.baseURL.String(), method+" "+path, err)
	}

	resp := &response{status: httpResp.StatusCode, header: httpResp.Header, body: data}

	if c.contract != nil {
		if err := c.contract.ValidateResponse(ctx, req, resp.status, resp.header, resp.body); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

func transportError(ctx context.Context, baseURL, op string, err error) error {
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return errors.Timeout(op, err)
	}
	var netErr interface{ Timeout() bool }
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.Timeout(op, err)
	}
	return errors.NetworkFailure(baseURL, err)
}

// ErrorResponse is the backend's error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// parseResponse turns non-2xx replies into coded errors and decodes 2xx
// bodies into target when target is non-nil.
func parseResponse(resp *response, target any) error {
	if resp.status < 200 || resp.status >= 300 {
		var errResp ErrorResponse
		msg := ""
		if err := json.Unmarshal(resp.body, &errResp); err == nil {
			msg = errResp.Error
			if msg == "" {
				msg = errResp.Message
			}
		}
		if msg == "" {
			msg = strings.TrimSpace(string(resp.body))
		}
		return errors.StatusError(resp.status, msg)
	}

	if target == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, target); err != nil {
		return errors.DecodeFailed("response", err).WithStatus(resp.status)
	}
	return nil
}
