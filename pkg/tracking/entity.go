package tracking

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"modeldb-client/pkg/config"
	"modeldb-client/pkg/domain"
)

type entityState int

const (
	unbound entityState = iota
	bound
)

// proxy is the lazy handle behind every entity. An unbound proxy has no id;
// resolve binds it. A bound proxy always targets the same remote resource and
// caches the last record fetched, which mutations invalidate.
type proxy[T any] struct {
	state   entityState
	id      string
	cache   *T
	resolve func(ctx context.Context) (string, T, error)
	fetch   func(ctx context.Context, id string) (T, error)
}

func (p *proxy[T]) bind(id string, rec T) {
	p.state = bound
	p.id = id
	p.cache = &rec
}

// attach binds to id without a cached record.
func (p *proxy[T]) attach(id string) {
	p.state = bound
	p.id = id
	p.cache = nil
}

// ensure returns the id, resolving the entity first when unbound.
func (p *proxy[T]) ensure(ctx context.Context) (string, error) {
	if p.state == bound {
		return p.id, nil
	}
	id, rec, err := p.resolve(ctx)
	if err != nil {
		return "", err
	}
	p.bind(id, rec)
	return id, nil
}

// record returns the cached record, fetching it when the cache is empty.
func (p *proxy[T]) record(ctx context.Context) (T, error) {
	var zero T
	id, err := p.ensure(ctx)
	if err != nil {
		return zero, err
	}
	if p.cache != nil {
		return *p.cache, nil
	}
	rec, err := p.fetch(ctx, id)
	if err != nil {
		return zero, err
	}
	p.cache = &rec
	return rec, nil
}

func (p *proxy[T]) invalidate() { p.cache = nil }

// ============================================================================
// Get-or-Create
// ============================================================================

type entityOptions struct {
	id          string
	description string
	tags        []string
	attributes  map[string]any
}

func (o entityOptions) hasMetadata() bool {
	return o.description != "" || len(o.tags) > 0 || len(o.attributes) > 0
}

func (o entityOptions) keyValues(resource string) ([]domain.KeyValue, error) {
	if len(o.attributes) == 0 {
		return nil, nil
	}
	m := make(map[string]domain.Value, len(o.attributes))
	for k, raw := range o.attributes {
		if err := domain.ValidateFlatKey(resource+" attribute", k); err != nil {
			return nil, err
		}
		v, err := domain.NewValue(raw)
		if err != nil {
			return nil, invalidValue(resource+" attribute", k, err)
		}
		m[k] = v
	}
	return domain.KeyValues(m), nil
}

// EntityOption configures get-or-create. Metadata options only apply when
// the entity is created.
type EntityOption func(*entityOptions)

// WithID fetches the entity by id instead of by name.
func WithID(id string) EntityOption {
	return func(o *entityOptions) { o.id = id }
}

func WithDescription(desc string) EntityOption {
	return func(o *entityOptions) { o.description = desc }
}

func WithTags(tags ...string) EntityOption {
	return func(o *entityOptions) { o.tags = append(o.tags, tags...) }
}

// WithAttributes attaches attributes at creation. Values follow the same
// rules as LogAttribute.
func WithAttributes(attrs map[string]any) EntityOption {
	return func(o *entityOptions) {
		if o.attributes == nil {
			o.attributes = make(map[string]any, len(attrs))
		}
		for k, v := range attrs {
			o.attributes[k] = v
		}
	}
}

func applyEntityOptions(opts []EntityOption) entityOptions {
	var o entityOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// defaultName produces a unique name for an entity created without one.
func defaultName(resource string) string {
	return strings.ReplaceAll(resource, " ", "-") + "-" + uuid.NewString()
}

type resolver[T any] struct {
	resource string
	name     string
	opts     entityOptions
	byID     func(ctx context.Context, id string) (T, error)
	byName   func(ctx context.Context, name string) (T, error)
	create   func(ctx context.Context, name string) (T, error)
}

// getOrCreate looks the entity up by id, else by name, creating it when
// absent. A create that reports the name taken is resolved per onConflict.
func getOrCreate[T any](ctx context.Context, c *Client, r resolver[T]) (T, error) {
	var zero T
	logger := c.log.WithFields(log.Fields{"resource": r.resource, "name": r.name})

	if r.opts.id != "" {
		rec, err := r.byID(ctx, r.opts.id)
		return rec, domain.Annotate(err, r.resource, r.opts.id)
	}

	name := r.name
	if name == "" {
		name = defaultName(r.resource)
		logger = logger.WithField("name", name)
	} else {
		rec, err := r.byName(ctx, name)
		if err == nil {
			if r.opts.hasMetadata() {
				logger.Warn("entity already exists; ignoring creation metadata")
			}
			return rec, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return zero, domain.Annotate(err, r.resource, name)
		}
	}

	rec, err := r.create(ctx, name)
	if err == nil {
		logger.Debug("created entity")
		return rec, nil
	}
	if !errors.Is(err, domain.ErrConflict) || c.cfg.OnConflict == config.OnConflictFail {
		return zero, domain.Annotate(err, r.resource, name)
	}

	logger.Debug("create raced with another writer; looking up existing entity")
	rec, err = r.byName(ctx, name)
	return rec, domain.Annotate(err, r.resource, name)
}
