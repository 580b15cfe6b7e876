// Package deployment sends prediction requests to a deployed model.
package deployment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"

	"modeldb-client/pkg/api"
	"modeldb-client/pkg/domain"
	"modeldb-client/pkg/ports"
	"modeldb-client/pkg/tracking"
	"modeldb-client/pkg/transport"
)

// HeaderAccessToken carries the deployment's access token.
const HeaderAccessToken = "Access-Token"

// DefaultPolicy retries model warm-up (404) and overload statuses. 502 is
// never retried; the server reports prediction failures with it.
func DefaultPolicy() transport.Policy {
	p := transport.DefaultPolicy()
	p.RetryStatus = []int{
		http.StatusNotFound,
		http.StatusTooManyRequests,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
	}
	return p
}

// DeployedModel is a prediction endpoint. It is safe for concurrent use.
type DeployedModel struct {
	url   string
	token string
	http  ports.Requester
	log   *log.Entry
}

type options struct {
	requester  ports.Requester
	httpClient *http.Client
	policy     transport.Policy
	timeout    time.Duration
	sleeper    transport.Sleeper
	logger     *log.Entry
}

type Option func(*options)

// WithRequester replaces the transport. Policy, timeout and sleeper options
// are then ignored.
func WithRequester(r ports.Requester) Option {
	return func(o *options) { o.requester = r }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

func WithPolicy(p transport.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithMaxRetries keeps the default retry statuses with a different budget.
func WithMaxRetries(n int) Option {
	return func(o *options) { o.policy.MaxRetries = n }
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithSleeper(s transport.Sleeper) Option {
	return func(o *options) { o.sleeper = s }
}

func WithLogger(l *log.Entry) Option {
	return func(o *options) { o.logger = l }
}

// FromURL targets an absolute prediction URL. An empty token sends no
// access token header.
func FromURL(predictURL, token string, opts ...Option) (*DeployedModel, error) {
	u, err := url.Parse(predictURL)
	if err != nil || !u.IsAbs() {
		return nil, domain.Validationf("deployment", predictURL, "prediction url must be absolute")
	}

	o := options{policy: DefaultPolicy(), timeout: 30 * time.Second, sleeper: transport.Sleep}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.WithField("component", "deployment")
	}

	requester := o.requester
	if requester == nil {
		topts := []transport.Option{
			transport.WithPolicy(o.policy),
			transport.WithTimeout(o.timeout),
			transport.WithSleeper(o.sleeper),
			transport.WithLogger(o.logger),
		}
		if o.httpClient != nil {
			topts = append(topts, transport.WithHTTPClient(o.httpClient))
		}
		requester = transport.NewClient("", topts...)
	}

	return &DeployedModel{
		url:   u.String(),
		token: token,
		http:  requester,
		log:   o.logger.WithField("url", u.String()),
	}, nil
}

// FromRun resolves the run's endpoint and token through the tracking
// service's deployment status. The run must already be deployed.
func FromRun(ctx context.Context, run *tracking.ExperimentRun, baseURL string, opts ...Option) (*DeployedModel, error) {
	st, err := run.DeploymentStatus(ctx)
	if err != nil {
		return nil, err
	}
	if st.Status != api.StatusDeployed {
		return nil, &domain.Error{Kind: domain.ErrPrediction, Resource: "deployment", Key: run.Name(), Message: "model is " + st.Status}
	}
	if st.API == "" {
		return nil, domain.NewError(domain.ErrPrediction, "deployment", run.Name(), "status carries no prediction path")
	}

	target := st.API
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(target, "/")
	}
	return FromURL(target, st.Token, opts...)
}

// FromRunID looks up runID in c and resolves it as FromRun does. The
// session's retry budget and timeout apply unless overridden by opts.
func FromRunID(ctx context.Context, c *tracking.Client, runID string, opts ...Option) (*DeployedModel, error) {
	run, err := c.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	cfg := c.Config()
	base := []Option{WithMaxRetries(cfg.MaxRetries), WithTimeout(cfg.Timeout)}
	return FromRun(ctx, run, cfg.BaseURL(), append(base, opts...)...)
}

// FromResolver asks an external resolver, such as the KServe adapter, for
// the endpoint of runID.
func FromResolver(ctx context.Context, r ports.EndpointResolver, runID string, opts ...Option) (*DeployedModel, error) {
	ep, err := r.Resolve(ctx, runID)
	if err != nil {
		return nil, err
	}
	return FromURL(ep.URL, ep.Token, opts...)
}

// URL returns the prediction endpoint.
func (m *DeployedModel) URL() string { return m.url }

type predictOptions struct {
	compress bool
}

type PredictOption func(*predictOptions)

// WithCompression gzips the request body.
func WithCompression() PredictOption {
	return func(o *predictOptions) { o.compress = true }
}

// Predict posts payload as JSON and returns the raw response body.
func (m *DeployedModel) Predict(ctx context.Context, payload any, opts ...PredictOption) (json.RawMessage, error) {
	var o predictOptions
	for _, opt := range opts {
		opt(&o)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &domain.Error{Kind: domain.ErrValidation, Resource: "prediction", Key: m.url, Message: "encode payload", Err: err}
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	if m.token != "" {
		header.Set(HeaderAccessToken, m.token)
	}
	if o.compress {
		if body, err = compress(body); err != nil {
			return nil, &domain.Error{Kind: domain.ErrValidation, Resource: "prediction", Key: m.url, Message: "compress payload", Err: err}
		}
		header.Set("Content-Encoding", "gzip")
	}

	resp, err := m.http.Do(ctx, transport.Request{Method: http.MethodPost, Path: m.url, Body: body, Header: header})
	if err != nil {
		return nil, m.predictionError(err)
	}
	m.log.WithFields(log.Fields{
		"status":     resp.StatusCode,
		"compressed": o.compress,
		"bytes":      len(resp.Body),
	}).Debug("prediction served")
	return json.RawMessage(resp.Body), nil
}

// PredictInto decodes the prediction into out.
func (m *DeployedModel) PredictInto(ctx context.Context, payload, out any, opts ...PredictOption) error {
	raw, err := m.Predict(ctx, payload, opts...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.Error{Kind: domain.ErrDeserialization, Resource: "prediction", Key: m.url, Err: err}
	}
	return nil
}

// predictionError reports any response the endpoint rejected as a
// prediction failure. Failures that never produced a response keep their
// transport kind.
func (m *DeployedModel) predictionError(err error) error {
	var de *domain.Error
	if !errors.As(err, &de) || de.StatusCode == 0 {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	m.log.WithField("status", de.StatusCode).WithError(err).Warn("prediction failed")
	return &domain.Error{
		Kind:       domain.ErrPrediction,
		Resource:   "prediction",
		Key:        m.url,
		StatusCode: de.StatusCode,
		Message:    de.Message,
	}
}

func compress(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
