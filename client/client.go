// Package client is the tenant rules API client.
//
// Every call is scoped to a tenant and returns either a decoded result or a
// *services.DomainError describing the failure (not found, validation,
// conflict, unauthorized, network, server, aborted). A 401 triggers exactly
// one forced credential refresh and a replay of the identical request.
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
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/upb/tenant-rules-admin/auth"
	"github.com/upb/tenant-rules-admin/internal/observability"
	"github.com/upb/tenant-rules-admin/models"
	"github.com/upb/tenant-rules-admin/services"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds each call, including the credential replay
	DefaultTimeout = 10 * time.Second

	apiPrefix        = "/api/v1/tenants/"
	maxResponseBytes = 32 << 20
	defaultUserAgent = "tenant-rules-client/1.0"
)

// Config holds the client settings. Only BaseURL is required.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client

	// Timeout applies per call. Zero means DefaultTimeout; negative disables it.
	Timeout time.Duration

	Credentials auth.CredentialProvider
	Logger      *zap.Logger
	Metrics     observability.Metrics
	UserAgent   string

	// Headers are added to every request
	Headers http.Header

	// ValidateLocally runs models.Validate before CreateRule and fails fast
	// without a network call when the input has errors
	ValidateLocally bool
}

// Client talks to the rules API. It is safe for concurrent use.
type Client struct {
	baseURL         *url.URL
	httpClient      *http.Client
	timeout         time.Duration
	creds           auth.CredentialProvider
	logger          *zap.Logger
	metrics         observability.Metrics
	userAgent       string
	headers         http.Header
	validateLocally bool
}

// New creates a client from cfg
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("BaseURL is required")
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid BaseURL %q: scheme must be http or https", cfg.BaseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid BaseURL %q: host is required", cfg.BaseURL)
	}
	u.RawQuery = ""
	u.Fragment = ""

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var metrics observability.Metrics = observability.NopMetrics{}
	if cfg.Metrics != nil {
		metrics = cfg.Metrics
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	return &Client{
		baseURL:         u,
		httpClient:      hc,
		timeout:         timeout,
		creds:           cfg.Credentials,
		logger:          logger,
		metrics:         metrics,
		userAgent:       ua,
		headers:         cfg.Headers.Clone(),
		validateLocally: cfg.ValidateLocally,
	}, nil
}

// call describes one logical API operation
type call struct {
	op     string
	method string
	url    *url.URL
	body   any
	header http.Header
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// endpoint builds /api/v1/tenants/{tenantID}/rules[/segment...] with each
// segment path-escaped
func (c *Client) endpoint(tenantID string, segments ...string) *url.URL {
	var b strings.Builder
	b.WriteString(strings.TrimRight(c.baseURL.EscapedPath(), "/"))
	b.WriteString(apiPrefix)
	b.WriteString(url.PathEscape(tenantID))
	b.WriteString("/rules")
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}

	u := *c.baseURL
	u.RawPath = b.String()
	u.Path, _ = url.PathUnescape(u.RawPath)
	return &u
}

func (c *Client) send(ctx context.Context, cl call) (*response, error) {
	start := time.Now()
	resp, err := c.exchange(ctx, cl)

	status := "ok"
	if err != nil {
		status = string(services.GetErrorType(err))
	}
	c.metrics.RecordRequest(cl.op, status, time.Since(start))
	return resp, err
}

func (c *Client) exchange(ctx context.Context, cl call) (*response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var payload []byte
	if cl.body != nil {
		b, err := json.Marshal(cl.body)
		if err != nil {
			return nil, services.NewDomainError(services.ErrorTypeValidation, "failed to encode request body", err)
		}
		payload = b
	}

	requestID := uuid.NewString()

	token, err := c.token(ctx, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.roundTrip(ctx, cl, payload, token, requestID)
	if err != nil {
		return nil, err
	}

	if resp.status == http.StatusUnauthorized && c.creds != nil {
		c.log(ctx).Warn("credentials rejected, refreshing once",
			zap.String("operation", cl.op),
			zap.String("request_id", requestID))

		token, err = c.token(ctx, true)
		if err != nil {
			c.metrics.RecordTokenRefresh("failure")
			return nil, err
		}
		c.metrics.RecordTokenRefresh("success")

		resp, err = c.roundTrip(ctx, cl, payload, token, requestID)
		if err != nil {
			return nil, err
		}
	}

	if resp.status < 200 || resp.status >= 300 {
		return nil, statusError(resp)
	}
	return resp, nil
}

// log prefers a logger carried by ctx (observability.WithLogger)
func (c *Client) log(ctx context.Context) *zap.Logger {
	return observability.LoggerFromContext(ctx, c.logger)
}

func (c *Client) token(ctx context.Context, forceRefresh bool) (string, error) {
	if c.creds == nil {
		return "", nil
	}

	tok, err := c.creds.AcquireToken(ctx, forceRefresh)
	if err != nil {
		if ctx.Err() != nil {
			return "", services.FromTransport(ctx, err)
		}
		message := "failed to acquire credentials"
		if errors.Is(err, auth.ErrInteractionRequired) {
			message = "credentials require user interaction"
		}
		return "", services.NewDomainError(services.ErrorTypeUnauthorized, message, err)
	}
	return tok, nil
}

func (c *Client) roundTrip(ctx context.Context, cl call, payload []byte, token, requestID string) (*response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, cl.url.String(), body)
	if err != nil {
		return nil, services.NewDomainError(services.ErrorTypeUnexpected, "failed to create request", err)
	}

	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-Id", requestID)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, vs := range cl.header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log(ctx).Debug("rules api request failed",
			zap.String("method", cl.method),
			zap.String("path", cl.url.Path),
			zap.String("request_id", requestID),
			zap.Error(err))
		return nil, services.FromTransport(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, services.FromTransport(ctx, err)
	}

	c.log(ctx).Debug("rules api request",
		zap.String("method", cl.method),
		zap.String("path", cl.url.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
		zap.String("request_id", requestID))

	return &response{status: resp.StatusCode, header: resp.Header, body: respBody}, nil
}

// statusError decodes the error envelope. Both {"error":{...}} and the flat
// {"error":"code","message":"..."} shapes are accepted.
func statusError(resp *response) error {
	var env struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Details map[string]any  `json:"details"`
	}

	var body *models.ErrorBody
	if err := json.Unmarshal(resp.body, &env); err == nil {
		raw := bytes.TrimSpace(env.Error)
		switch {
		case len(raw) > 0 && raw[0] == '{':
			var eb models.ErrorBody
			if json.Unmarshal(raw, &eb) == nil {
				body = &eb
			}
		case len(raw) > 0 && raw[0] == '"':
			var code string
			_ = json.Unmarshal(raw, &code)
			body = &models.ErrorBody{Code: code, Message: env.Message, Details: env.Details}
		case env.Message != "":
			body = &models.ErrorBody{Message: env.Message, Details: env.Details}
		}
	}

	return services.FromStatus(resp.status, body)
}

// decode unmarshals a success body into out, unwrapping a {"data": ...} envelope
func decode(resp *response, out any) error {
	if err := json.Unmarshal(unwrapData(resp.body), out); err != nil {
		e := services.NewDomainError(services.ErrorTypeUnexpected, "failed to decode response body", err)
		e.StatusCode = resp.status
		return e
	}
	return nil
}

func unwrapData(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return trimmed
	}
	data, ok := env["data"]
	if !ok {
		return trimmed
	}
	for k := range env {
		switch k {
		case "data", "message", "success", "meta":
		default:
			return trimmed
		}
	}
	return data
}

func doJSON[T any](ctx context.Context, c *Client, cl call) (*T, error) {
	resp, err := c.send(ctx, cl)
	if err != nil {
		return nil, err
	}

	var out T
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func requireID(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return services.NewValidationError(field+" is required", []models.FieldMessage{
			{Field: field, Message: field + " is required"},
		})
	}
	return nil
}
