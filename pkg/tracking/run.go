package tracking

import (
	"context"
	"net/url"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"modeldb-client/pkg/api"
	"modeldb-client/pkg/domain"
)

// ExperimentRun is one execution within an experiment. Runs are not safe
// for concurrent use.
type ExperimentRun struct {
	client     *Client
	experiment *Experiment
	name       string
	proxy[domain.ExperimentRun]
}

func newRun(c *Client, e *Experiment, name string, o entityOptions) *ExperimentRun {
	r := &ExperimentRun{client: c, experiment: e, name: name}
	r.fetch = c.runByID
	r.resolve = func(ctx context.Context) (string, domain.ExperimentRun, error) {
		var experimentID, projectID string
		if o.id == "" {
			var err error
			if experimentID, err = e.ensure(ctx); err != nil {
				return "", domain.ExperimentRun{}, err
			}
			exp, err := e.record(ctx)
			if err != nil {
				return "", domain.ExperimentRun{}, err
			}
			projectID = exp.ProjectID
		}
		rec, err := c.resolveRun(ctx, projectID, experimentID, r.name, o)
		if err == nil {
			r.name = rec.Name
		}
		return rec.ID, rec, err
	}
	return r
}

// GetRun fetches an existing run by id.
func (c *Client) GetRun(ctx context.Context, id string) (*ExperimentRun, error) {
	rec, err := c.runByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.boundRun(rec), nil
}

func (c *Client) boundRun(rec domain.ExperimentRun) *ExperimentRun {
	e := &Experiment{client: c, project: &Project{client: c}}
	e.project.fetch = c.projectByID
	e.project.attach(rec.ProjectID)
	e.fetch = c.experimentByID
	e.attach(rec.ExperimentID)

	r := &ExperimentRun{client: c, experiment: e, name: rec.Name}
	r.fetch = c.runByID
	r.bind(rec.ID, rec)
	return r
}

func (c *Client) boundRuns(recs []domain.ExperimentRun) []*ExperimentRun {
	out := make([]*ExperimentRun, 0, len(recs))
	for _, rec := range recs {
		out = append(out, c.boundRun(rec))
	}
	return out
}

func (c *Client) resolveRun(ctx context.Context, projectID, experimentID, name string, o entityOptions) (domain.ExperimentRun, error) {
	return getOrCreate(ctx, c, resolver[domain.ExperimentRun]{
		resource: "experiment run",
		name:     name,
		opts:     o,
		byID:     c.runByID,
		byName: func(ctx context.Context, name string) (domain.ExperimentRun, error) {
			var out api.RunResponse
			err := c.lookup(ctx, api.PathGetRunByName, url.Values{"experiment_id": {experimentID}, "name": {name}}, &out)
			return out.ExperimentRun, err
		},
		create: func(ctx context.Context, name string) (domain.ExperimentRun, error) {
			attrs, err := o.keyValues("experiment run")
			if err != nil {
				return domain.ExperimentRun{}, err
			}
			var out api.RunResponse
			err = c.post(ctx, api.PathCreateRun, api.CreateRunRequest{
				ProjectID:    projectID,
				ExperimentID: experimentID,
				Name:         name,
				Description:  o.description,
				Tags:         o.tags,
				Attributes:   attrs,
			}, &out)
			return out.ExperimentRun, err
		},
	})
}

func (c *Client) runByID(ctx context.Context, id string) (domain.ExperimentRun, error) {
	var out api.RunResponse
	err := c.lookup(ctx, api.PathGetRunByID, url.Values{"id": {id}}, &out)
	return out.ExperimentRun, domain.Annotate(err, "experiment run", id)
}

func (r *ExperimentRun) ID() string { return r.id }

func (r *ExperimentRun) Name() string { return r.name }

func (r *ExperimentRun) Experiment() *Experiment { return r.experiment }

// Record returns the run's server fields, fetching them after any mutation.
func (r *ExperimentRun) Record(ctx context.Context) (domain.ExperimentRun, error) {
	return r.record(ctx)
}

func (r *ExperimentRun) logger() *log.Entry {
	return r.client.log.WithFields(log.Fields{"run_id": r.id, "run": r.name})
}

// ============================================================================
// Key-Value Logging
// ============================================================================

type kvKind struct {
	resource string
	logOne   string
	logMany  string
	get      string
	scalar   bool
}

var (
	attributes      = kvKind{"attribute", api.PathLogAttribute, api.PathLogAttributes, api.PathGetAttributes, false}
	metrics         = kvKind{"metric", api.PathLogMetric, api.PathLogMetrics, api.PathGetMetrics, true}
	hyperparameters = kvKind{"hyperparameter", api.PathLogHyperparameter, api.PathLogHyperparameters, api.PathGetHyperparameters, true}
)

type logOptions struct {
	overwrite bool
	timestamp time.Time
}

// LogOption configures a logging call.
type LogOption func(*logOptions)

// WithOverwrite replaces an existing value under the same key.
func WithOverwrite() LogOption {
	return func(o *logOptions) { o.overwrite = true }
}

// WithTimestamp sets an observation's timestamp. Defaults to now.
func WithTimestamp(t time.Time) LogOption {
	return func(o *logOptions) { o.timestamp = t }
}

func applyLogOptions(opts []LogOption) logOptions {
	var o logOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (k kvKind) convert(key string, raw any) (domain.Value, error) {
	if err := domain.ValidateFlatKey(k.resource, key); err != nil {
		return domain.Value{}, err
	}
	var (
		v   domain.Value
		err error
	)
	if k.scalar {
		v, err = domain.NewScalar(raw)
	} else {
		v, err = domain.NewValue(raw)
	}
	if err != nil {
		return domain.Value{}, invalidValue(k.resource, key, err)
	}
	return v, nil
}

func invalidValue(resource, key string, err error) error {
	return &domain.Error{Kind: domain.ErrValidation, Resource: resource, Key: key, Err: err}
}

func (r *ExperimentRun) logKeyValue(ctx context.Context, k kvKind, key string, raw any, opts []LogOption) error {
	v, err := k.convert(key, raw)
	if err != nil {
		return err
	}
	id, err := r.ensure(ctx)
	if err != nil {
		return err
	}
	o := applyLogOptions(opts)
	err = r.client.post(ctx, k.logOne, api.LogKeyValueRequest{
		ID:        id,
		Entry:     domain.KeyValue{Key: key, Value: v},
		Overwrite: o.overwrite,
	}, nil)
	if err != nil {
		return domain.Annotate(err, k.resource, key)
	}
	r.invalidate()
	r.logger().WithField(k.resource, key).Debug("logged " + k.resource)
	return nil
}

// logKeyValues validates every entry before sending one all-or-nothing batch.
func (r *ExperimentRun) logKeyValues(ctx context.Context, k kvKind, entries map[string]any, opts []LogOption) error {
	converted := make(map[string]domain.Value, len(entries))
	for key, raw := range entries {
		v, err := k.convert(key, raw)
		if err != nil {
			return err
		}
		converted[key] = v
	}
	if len(converted) == 0 {
		return nil
	}
	id, err := r.ensure(ctx)
	if err != nil {
		return err
	}
	o := applyLogOptions(opts)
	err = r.client.post(ctx, k.logMany, api.LogKeyValuesRequest{
		ID:        id,
		Entries:   domain.KeyValues(converted),
		Overwrite: o.overwrite,
	}, nil)
	if err != nil {
		return domain.Annotate(err, k.resource+"s", r.name)
	}
	r.invalidate()
	return nil
}

func (r *ExperimentRun) getKeyValues(ctx context.Context, k kvKind, keys ...string) (map[string]domain.Value, error) {
	m, _, err := r.fetchKeyValues(ctx, k, keys...)
	return m, err
}

// fetchKeyValues reports ok=false when a suppressed connection error
// swallowed the read.
func (r *ExperimentRun) fetchKeyValues(ctx context.Context, k kvKind, keys ...string) (map[string]domain.Value, bool, error) {
	id, err := r.ensure(ctx)
	if err != nil {
		return nil, false, err
	}
	var out api.KeyValuesResponse
	ok, err := r.client.get(ctx, k.get, url.Values{"id": {id}, "keys": keys}, &out)
	if err != nil {
		return nil, false, domain.Annotate(err, k.resource+"s", r.name)
	}
	return domain.KeyValueMap(out.Entries), ok, nil
}

// getKeyValue returns Null without an error when the read was suppressed.
func (r *ExperimentRun) getKeyValue(ctx context.Context, k kvKind, key string) (domain.Value, error) {
	m, fetched, err := r.fetchKeyValues(ctx, k, key)
	if err != nil {
		return domain.Value{}, err
	}
	if !fetched {
		r.logger().WithFields(log.Fields{"resource": k.resource, "key": key}).Warn("read suppressed, returning null")
		return domain.Null(), nil
	}
	v, ok := m[key]
	if !ok {
		return domain.Value{}, domain.NewError(domain.ErrNotFound, k.resource, key, "no value logged")
	}
	return v, nil
}

// LogAttribute records a descriptive value. Attributes may be lists or maps.
func (r *ExperimentRun) LogAttribute(ctx context.Context, key string, value any, opts ...LogOption) error {
	return r.logKeyValue(ctx, attributes, key, value, opts)
}

func (r *ExperimentRun) LogAttributes(ctx context.Context, attrs map[string]any, opts ...LogOption) error {
	return r.logKeyValues(ctx, attributes, attrs, opts)
}

func (r *ExperimentRun) GetAttribute(ctx context.Context, key string) (domain.Value, error) {
	return r.getKeyValue(ctx, attributes, key)
}

func (r *ExperimentRun) GetAttributes(ctx context.Context) (map[string]domain.Value, error) {
	return r.getKeyValues(ctx, attributes)
}

// LogMetric records a scalar result of the run.
func (r *ExperimentRun) LogMetric(ctx context.Context, key string, value any, opts ...LogOption) error {
	return r.logKeyValue(ctx, metrics, key, value, opts)
}

func (r *ExperimentRun) LogMetrics(ctx context.Context, values map[string]any, opts ...LogOption) error {
	return r.logKeyValues(ctx, metrics, values, opts)
}

func (r *ExperimentRun) GetMetric(ctx context.Context, key string) (domain.Value, error) {
	return r.getKeyValue(ctx, metrics, key)
}

func (r *ExperimentRun) GetMetrics(ctx context.Context) (map[string]domain.Value, error) {
	return r.getKeyValues(ctx, metrics)
}

// LogHyperparameter records a scalar input of the run.
func (r *ExperimentRun) LogHyperparameter(ctx context.Context, key string, value any, opts ...LogOption) error {
	return r.logKeyValue(ctx, hyperparameters, key, value, opts)
}

func (r *ExperimentRun) LogHyperparameters(ctx context.Context, values map[string]any, opts ...LogOption) error {
	return r.logKeyValues(ctx, hyperparameters, values, opts)
}

func (r *ExperimentRun) GetHyperparameter(ctx context.Context, key string) (domain.Value, error) {
	return r.getKeyValue(ctx, hyperparameters, key)
}

func (r *ExperimentRun) GetHyperparameters(ctx context.Context) (map[string]domain.Value, error) {
	return r.getKeyValues(ctx, hyperparameters)
}

// ============================================================================
// Observations
// ============================================================================

// LogObservation appends a scalar to the key's sequence.
func (r *ExperimentRun) LogObservation(ctx context.Context, key string, value any, opts ...LogOption) error {
	if err := domain.ValidateFlatKey("observation", key); err != nil {
		return err
	}
	v, err := domain.NewScalar(value)
	if err != nil {
		return invalidValue("observation", key, err)
	}
	o := applyLogOptions(opts)
	if o.timestamp.IsZero() {
		o.timestamp = time.Now()
	}
	id, err := r.ensure(ctx)
	if err != nil {
		return err
	}
	err = r.client.post(ctx, api.PathLogObservation, api.LogObservationRequest{
		ID:          id,
		Observation: domain.Observation{Key: key, Value: v, Timestamp: domain.ToMillis(o.timestamp)},
	}, nil)
	if err != nil {
		return domain.Annotate(err, "observation", key)
	}
	r.invalidate()
	return nil
}

// GetObservation returns the key's observations in logging order.
func (r *ExperimentRun) GetObservation(ctx context.Context, key string) ([]domain.Observation, error) {
	id, err := r.ensure(ctx)
	if err != nil {
		return nil, err
	}
	var out api.ObservationsResponse
	if _, err := r.client.get(ctx, api.PathGetObservations, url.Values{"id": {id}, "key": {key}}, &out); err != nil {
		return nil, domain.Annotate(err, "observation", key)
	}
	return out.Observations, nil
}

// GetObservations groups every observation by key.
func (r *ExperimentRun) GetObservations(ctx context.Context) (map[string][]domain.Observation, error) {
	all, err := r.GetObservation(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make(map[string][]domain.Observation)
	for _, o := range all {
		out[o.Key] = append(out[o.Key], o)
	}
	return out, nil
}

// ============================================================================
// Tags
// ============================================================================

func (r *ExperimentRun) LogTag(ctx context.Context, tag string) error {
	return r.LogTags(ctx, tag)
}

// LogTags adds tags to the run's tag set.
func (r *ExperimentRun) LogTags(ctx context.Context, tags ...string) error {
	for _, t := range tags {
		if t == "" {
			return domain.Validationf("tag", t, "tags must be non-empty")
		}
	}
	id, err := r.ensure(ctx)
	if err != nil {
		return err
	}
	if err := r.client.post(ctx, api.PathAddTags, api.AddTagsRequest{ID: id, Tags: tags}, nil); err != nil {
		return domain.Annotate(err, "tags", r.name)
	}
	r.invalidate()
	return nil
}

// GetTags returns the run's tags sorted.
func (r *ExperimentRun) GetTags(ctx context.Context) ([]string, error) {
	id, err := r.ensure(ctx)
	if err != nil {
		return nil, err
	}
	var out api.TagsResponse
	if _, err := r.client.get(ctx, api.PathGetTags, url.Values{"id": {id}}, &out); err != nil {
		return nil, domain.Annotate(err, "tags", r.name)
	}
	sort.Strings(out.Tags)
	return out.Tags, nil
}
