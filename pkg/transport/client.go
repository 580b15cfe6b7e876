package transport

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

	log "github.com/sirupsen/logrus"

	"modeldb-client/pkg/domain"
)

// Identity headers attached to every call.
const (
	HeaderEmail  = "Grpc-Metadata-email"
	HeaderDevKey = "Grpc-Metadata-developer_key"
	HeaderSource = "Grpc-Metadata-source"
)

// Request describes one logical call. Path may be relative to the client's
// base URL or an absolute URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	JSON   any
	Body   []byte
	Header http.Header

	// NonCritical requests have transport failures swallowed when the
	// client suppresses connection errors.
	NonCritical bool
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &domain.Error{Kind: domain.ErrTransport, StatusCode: r.StatusCode, Message: "malformed response body", Err: err}
	}
	return nil
}

type Client struct {
	httpClient         *http.Client
	baseURL            string
	header             http.Header
	policy             Policy
	timeout            time.Duration
	suppressConnErrors bool
	sleep              Sleeper
	log                *log.Entry
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.header.Set(key, value) }
}

func WithPolicy(p Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithTimeout bounds each attempt. Zero disables the per-attempt deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithSuppressConnErrors(on bool) Option {
	return func(c *Client) { c.suppressConnErrors = on }
}

func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

func WithLogger(l *log.Entry) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a transport rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		header:     make(http.Header),
		policy:     DefaultPolicy(),
		timeout:    30 * time.Second,
		sleep:      Sleep,
		log:        log.WithField("component", "transport"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Policy() Policy { return c.policy }

// Do sends req, retrying network failures and retryable statuses up to
// MaxRetries times. A nil response with a nil error is returned only for
// NonCritical requests when connection errors are suppressed.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.do(ctx, req)
	if err != nil && req.NonCritical && c.suppressConnErrors && errors.Is(err, domain.ErrTransport) {
		c.log.WithFields(log.Fields{
			"method": req.Method,
			"path":   req.Path,
		}).WithError(err).Warn("suppressed connection error")
		return nil, nil
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, req Request) (*Response, error) {
	target, err := c.resolve(req)
	if err != nil {
		return nil, &domain.Error{Kind: domain.ErrValidation, Message: "invalid request url", Err: err}
	}

	body := req.Body
	if req.JSON != nil {
		body, err = json.Marshal(req.JSON)
		if err != nil {
			return nil, &domain.Error{Kind: domain.ErrValidation, Message: "encode request body", Err: err}
		}
	}

	attempts := c.policy.MaxRetries + 1
	var lastStatus int
	var lastBody []byte
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := c.policy.Delay(attempt - 1)
			c.log.WithFields(log.Fields{
				"method":  req.Method,
				"url":     target,
				"attempt": attempt + 1,
				"status":  lastStatus,
				"delay":   delay.String(),
			}).Warn("retrying request")
			if err := c.sleep(ctx, delay); err != nil {
				return nil, &domain.Error{Kind: domain.ErrTransport, StatusCode: lastStatus, Message: "interrupted while waiting to retry", Err: err}
			}
		}

		resp, err := c.attempt(ctx, req, target, body, attempt+1)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &domain.Error{Kind: domain.ErrTransport, Message: "request canceled", Err: ctx.Err()}
			}
			lastStatus, lastBody, lastErr = 0, nil, err
			continue
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		if c.policy.Retryable(resp.StatusCode) {
			lastStatus, lastBody, lastErr = resp.StatusCode, resp.Body, nil
			continue
		}
		return nil, translate(resp)
	}

	msg := fmt.Sprintf("giving up after %d attempts", attempts)
	if server := ServerMessage(lastBody); server != "" {
		msg += ": " + server
	}
	return nil, &domain.Error{
		Kind:       domain.ErrTransport,
		StatusCode: lastStatus,
		Message:    msg,
		Err:        lastErr,
	}
}

func (c *Client) attempt(ctx context.Context, req Request, target string, body []byte, n int) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for key, values := range c.header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	for key, values := range req.Header {
		httpReq.Header.Del(key)
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if req.JSON != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	c.log.WithFields(log.Fields{
		"method":  req.Method,
		"url":     target,
		"attempt": n,
	}).Debug("sending request")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: data}, nil
}

func (c *Client) resolve(req Request) (string, error) {
	raw := req.Path
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = c.baseURL + "/" + strings.TrimLeft(raw, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for key, values := range req.Query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// translate maps a non-retryable, non-2xx response to a typed error.
func translate(resp *Response) error {
	e := &domain.Error{StatusCode: resp.StatusCode, Message: ServerMessage(resp.Body)}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		e.Kind = domain.ErrAuthentication
	case http.StatusNotFound:
		e.Kind = domain.ErrNotFound
	case http.StatusConflict:
		e.Kind = domain.ErrConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		e.Kind = domain.ErrValidation
	default:
		e.Kind = domain.ErrTransport
	}
	return e
}

// ServerMessage extracts a human-readable message from an error body:
// the "message" or "error" JSON field when present, else the trimmed text.
func ServerMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 512 {
		text = text[:512]
	}
	return text
}
