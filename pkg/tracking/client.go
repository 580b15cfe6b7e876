// Package tracking is the session and entity layer of the client: projects,
// experiments, runs and datasets backed by the tracking service.
package tracking

import (
	"context"
	"net/http"
	"net/url"

	log "github.com/sirupsen/logrus"

	"modeldb-client/pkg/api"
	"modeldb-client/pkg/artifact"
	"modeldb-client/pkg/config"
	"modeldb-client/pkg/domain"
	"modeldb-client/pkg/ports"
	"modeldb-client/pkg/transport"
)

// SourceName identifies this client to the service.
const SourceName = "GoClient"

// Client is a session against one tracking service. Its configuration is
// fixed at construction.
type Client struct {
	cfg       *config.Config
	http      ports.Requester
	artifacts *artifact.Client
	sleep     transport.Sleeper
	log       *log.Entry
}

type clientOptions struct {
	requester     ports.Requester
	store         ports.BlobStore
	cache         ports.BlobCache
	logger        *log.Entry
	sleeper       transport.Sleeper
	transportOpts []transport.Option
	skipVerify    bool
}

type Option func(*clientOptions)

// WithRequester replaces the HTTP transport.
func WithRequester(r ports.Requester) Option {
	return func(o *clientOptions) { o.requester = r }
}

// WithBlobStore replaces the presigned-URL artifact store.
func WithBlobStore(s ports.BlobStore) Option {
	return func(o *clientOptions) { o.store = s }
}

// WithBlobCache consults cache before downloading artifacts.
func WithBlobCache(c ports.BlobCache) Option {
	return func(o *clientOptions) { o.cache = c }
}

func WithLogger(l *log.Entry) Option {
	return func(o *clientOptions) { o.logger = l }
}

// WithSleeper replaces the wait used between retries and deployment polls.
func WithSleeper(s transport.Sleeper) Option {
	return func(o *clientOptions) { o.sleeper = s }
}

// WithTransportOptions passes extra options to the HTTP transport.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(o *clientOptions) { o.transportOpts = append(o.transportOpts, opts...) }
}

// WithoutVerify skips the connection check in NewClient.
func WithoutVerify() Option {
	return func(o *clientOptions) { o.skipVerify = true }
}

// NewClient validates cfg, builds the transport and verifies the service
// accepts the configured credentials.
func NewClient(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &domain.Error{Kind: domain.ErrValidation, Resource: "config", Err: err}
	}

	o := clientOptions{sleeper: transport.Sleep}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		if cfg.Debug {
			l := log.New()
			config.ApplyLogger(l, config.LoggerConfig{Level: "debug", Format: cfg.Logger.Format})
			logger = log.NewEntry(l)
		} else {
			logger = log.NewEntry(log.StandardLogger())
		}
	}
	logger = logger.WithField("component", "tracking")

	requester := o.requester
	if requester == nil {
		topts := []transport.Option{
			transport.WithHeader(transport.HeaderSource, SourceName),
			transport.WithPolicy(transport.PolicyFromConfig(cfg)),
			transport.WithTimeout(cfg.Timeout),
			transport.WithSuppressConnErrors(cfg.IgnoreConnErr),
			transport.WithSleeper(o.sleeper),
			transport.WithLogger(logger.WithField("component", "transport")),
		}
		if cfg.Email != "" {
			topts = append(topts,
				transport.WithHeader(transport.HeaderEmail, cfg.Email),
				transport.WithHeader(transport.HeaderDevKey, cfg.DevKey),
			)
		}
		requester = transport.NewClient(cfg.BaseURL(), append(topts, o.transportOpts...)...)
	}

	store := o.store
	if store == nil {
		store = artifact.NewRemoteStore(requester)
	}
	aopts := []artifact.Option{artifact.WithLogger(logger.WithField("component", "artifact"))}
	if o.cache != nil {
		aopts = append(aopts, artifact.WithCache(o.cache))
	}

	c := &Client{
		cfg:       cfg,
		http:      requester,
		artifacts: artifact.NewClient(store, aopts...),
		sleep:     o.sleeper,
		log:       logger,
	}

	if !o.skipVerify {
		if err := c.verifyConnection(ctx); err != nil {
			return nil, err
		}
	}
	logger.WithField("host", cfg.BaseURL()).Debug("connected to tracking service")
	return c, nil
}

// Config returns the session configuration.
func (c *Client) Config() *config.Config { return c.cfg }

func (c *Client) verifyConnection(ctx context.Context) error {
	_, err := c.http.Do(ctx, transport.Request{Method: http.MethodGet, Path: api.PathVerifyConnection})
	return domain.Annotate(err, "connection", c.cfg.Host)
}

// ============================================================================
// Request Helpers
// ============================================================================

// call sends a request and decodes a JSON response into out when non-nil.
// A suppressed connection error leaves out untouched and reports false.
func (c *Client) call(ctx context.Context, req transport.Request, out any) (bool, error) {
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return false, err
	}
	if resp == nil {
		return false, nil
	}
	if out != nil {
		if err := resp.Decode(out); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	_, err := c.call(ctx, transport.Request{Method: http.MethodPost, Path: path, JSON: body}, out)
	return err
}

// get issues a read. Reads are non-critical: with connection errors
// suppressed a failure yields ok=false and no error.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) (bool, error) {
	return c.call(ctx, transport.Request{Method: http.MethodGet, Path: path, Query: query, NonCritical: true}, out)
}

// lookup is a read whose failure must surface, used while resolving entities.
func (c *Client) lookup(ctx context.Context, path string, query url.Values, out any) error {
	_, err := c.call(ctx, transport.Request{Method: http.MethodGet, Path: path, Query: query}, out)
	return err
}

func (c *Client) download(ctx context.Context, key string) ([]byte, error) {
	return c.artifacts.Get(ctx, key)
}
