// Package remote talks to the REST interface of the stream processing server.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/timzifer/tsconsole/config"
	"github.com/timzifer/tsconsole/model"
	"github.com/timzifer/tsconsole/telemetry"
)

const (
	requestIDHeader = "X-Request-ID"
	maxResponseSize = 8 << 20
	maxArchiveSize  = 64 << 20
)

// ErrUnavailable is returned while the circuit breaker rejects requests.
var ErrUnavailable = errors.New("stream processor unavailable")

// API is the subset of the server interface the console uses. Paths are
// server relative resource paths such as "/demuxers/0.json".
type API interface {
	Get(ctx context.Context, path string, out any) error
	Put(ctx context.Context, path string, query url.Values, body any) error
	Post(ctx context.Context, path string, query url.Values) error
	Delete(ctx context.Context, path string) error
	// Download returns the raw body of path, used for archives.
	Download(ctx context.Context, path string) ([]byte, error)
	// Upload posts data as the raw request body of path.
	Upload(ctx context.Context, path, contentType string, data []byte) error
}

// APIError is a request the server answered with a failure envelope.
type APIError struct {
	Method string
	Path   string
	Status int
	Code   string
	// Message is the text shown to the operator.
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Message)
}

// HTTPClient implements API over HTTP.
type HTTPClient struct {
	baseURL   string
	prefix    string
	timeout   time.Duration
	client    *http.Client
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker[*reply]
	logger    zerolog.Logger
	telemetry telemetry.Collector
}

// Option customises an HTTPClient.
type Option func(*HTTPClient)

// WithLogger sets the logger used for request and breaker events.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *HTTPClient) {
		c.logger = logger
	}
}

// WithTelemetry records request outcomes and breaker state.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(c *HTTPClient) {
		if collector != nil {
			c.telemetry = collector
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		if client != nil {
			c.client = client
		}
	}
}

// NewHTTPClient creates a client for the server configured in cfg.
func NewHTTPClient(cfg *config.Config, opts ...Option) (*HTTPClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	base := cfg.BaseURL()
	if base == "" {
		return nil, fmt.Errorf("server url is required")
	}
	limit, burst := cfg.RateLimit()
	c := &HTTPClient{
		baseURL:   base,
		prefix:    cfg.APIPrefix(),
		timeout:   cfg.RequestTimeout(),
		client:    &http.Client{},
		limiter:   rate.NewLimiter(rate.Limit(limit), burst),
		logger:    zerolog.Nop(),
		telemetry: telemetry.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	name := breakerName(base)
	maxFailures := cfg.BreakerMaxFailures()
	c.breaker = gobreaker.NewCircuitBreaker[*reply](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// the server answered; only transport failures and 5xx trip the breaker
			var apiErr *APIError
			return errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			c.telemetry.SetBreakerState(name, int(to))
		},
	})
	c.telemetry.SetBreakerState(name, int(gobreaker.StateClosed))
	return c, nil
}

func breakerName(base string) string {
	if parsed, err := url.Parse(base); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return base
}

// request describes one call to the server.
type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string

	// archive requests exchange raw bodies instead of JSON envelopes.
	archive bool
}

// reply is the decoded answer to a request. Archive downloads carry the raw
// body, every other request the envelope.
type reply struct {
	env *model.Envelope
	raw []byte
}

// Get fetches path and decodes the envelope data into out.
func (c *HTTPClient) Get(ctx context.Context, path string, out any) error {
	rep, err := c.do(ctx, request{method: http.MethodGet, path: path})
	if err != nil {
		return err
	}
	env := rep.env
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Put submits query and, when body is not nil, a JSON body.
func (c *HTTPClient) Put(ctx context.Context, path string, query url.Values, body any) error {
	req := request{method: http.MethodPut, path: path, query: query}
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		req.body = encoded
		req.contentType = "application/json"
	}
	_, err := c.do(ctx, req)
	return err
}

// Post creates a resource below path.
func (c *HTTPClient) Post(ctx context.Context, path string, query url.Values) error {
	_, err := c.do(ctx, request{method: http.MethodPost, path: path, query: query})
	return err
}

// Delete removes the resource at path. A resource that is already gone,
// whether reported by the HTTP status or by the envelope code, counts as
// deleted.
func (c *HTTPClient) Delete(ctx context.Context, path string) error {
	_, err := c.do(ctx, request{method: http.MethodDelete, path: path})
	return err
}

// Download fetches the archive at path.
func (c *HTTPClient) Download(ctx context.Context, path string) ([]byte, error) {
	rep, err := c.do(ctx, request{method: http.MethodGet, path: path, archive: true})
	if err != nil {
		return nil, err
	}
	return rep.raw, nil
}

// Upload sends data to path. The server answers with an envelope.
func (c *HTTPClient) Upload(ctx context.Context, path, contentType string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("upload %s: empty body", path)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := c.do(ctx, request{method: http.MethodPost, path: path, body: data, contentType: contentType})
	return err
}

func (c *HTTPClient) do(ctx context.Context, req request) (*reply, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	start := time.Now()
	rep, err := c.breaker.Execute(func() (*reply, error) {
		return c.roundTrip(ctx, req)
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "rejected"
			err = fmt.Errorf("%w: %s %s: %v", ErrUnavailable, req.method, req.path, err)
		}
	}
	c.telemetry.ObserveRequest(req.method, outcome, time.Since(start))
	return rep, err
}

func (c *HTTPClient) roundTrip(ctx context.Context, req request) (*reply, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	method, path := req.method, req.path

	var payload io.Reader
	if req.body != nil {
		payload = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, req.query), payload)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set(requestIDHeader, requestID)
	if req.archive {
		httpReq.Header.Set("Accept", "application/zip, application/octet-stream")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", req.contentType)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	limit := int64(maxResponseSize)
	if req.archive {
		limit = maxArchiveSize
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	c.logger.Debug().
		Str("request_id", requestID).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Int("bytes", len(raw)).
		Msg("api request")

	if method == http.MethodDelete && resp.StatusCode == http.StatusNotFound {
		return &reply{env: &model.Envelope{Code: "404"}}, nil
	}
	if req.archive && resp.StatusCode < http.StatusBadRequest && !isJSON(resp.Header.Get("Content-Type")) {
		return &reply{raw: raw}, nil
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, statusError(req, resp.StatusCode)
		}
		return &reply{env: &model.Envelope{Code: "200"}}, nil
	}

	var env model.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, statusError(req, resp.StatusCode)
		}
		return nil, fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	if method == http.MethodDelete && env.Code == "404" {
		return &reply{env: &env}, nil
	}
	if !env.OK(method) {
		return nil, &APIError{Method: method, Path: path, Status: resp.StatusCode, Code: env.Code, Message: env.Describe()}
	}
	return &reply{env: &env}, nil
}

func isJSON(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "application/json")
}

func statusError(req request, status int) *APIError {
	return &APIError{Method: req.method, Path: req.path, Status: status, Message: "Error: " + http.StatusText(status) + "."}
}

func (c *HTTPClient) endpoint(path string, query url.Values) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := c.baseURL + c.prefix + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

// ResourcePath reduces a self href to the server relative resource path the
// API methods expect. Hrefs may carry a scheme, the server host and the API
// prefix.
func ResourcePath(href, prefix string) string {
	path := strings.TrimSpace(href)
	for _, scheme := range []string{"http://", "https://"} {
		path = strings.TrimPrefix(path, scheme)
	}
	if prefix != "" {
		if idx := strings.Index(path, prefix+"/"); idx >= 0 {
			return path[idx+len(prefix):]
		}
	}
	if !strings.HasPrefix(path, "/") {
		if idx := strings.Index(path, "/"); idx >= 0 {
			return path[idx:]
		}
		return "/" + path
	}
	return path
}
