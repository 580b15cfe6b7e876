package tracking

import (
	"context"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"modeldb-client/pkg/api"
	"modeldb-client/pkg/domain"
	"modeldb-client/pkg/ports"
)

// ============================================================================
// Dataset
// ============================================================================

// Dataset is a named, typed collection of immutable versions.
type Dataset struct {
	client      *Client
	name        string
	datasetType domain.DatasetType
	proxy[domain.Dataset]
}

// Dataset returns an unbound handle. The dataset is fetched or created on
// first use.
func (c *Client) Dataset(name string, typ domain.DatasetType, opts ...EntityOption) *Dataset {
	d := &Dataset{client: c, name: name, datasetType: typ}
	o := applyEntityOptions(opts)
	d.fetch = c.datasetByID
	d.resolve = func(ctx context.Context) (string, domain.Dataset, error) {
		rec, err := c.resolveDataset(ctx, d.name, d.datasetType, o)
		if err != nil {
			return "", rec, err
		}
		if o.id == "" && rec.DatasetType != d.datasetType {
			return "", rec, domain.NewError(domain.ErrConflict, "dataset", rec.Name, "exists with type "+string(rec.DatasetType))
		}
		d.name, d.datasetType = rec.Name, rec.DatasetType
		return rec.ID, rec, nil
	}
	return d
}

// GetOrCreateDataset returns the named dataset, creating it with typ when
// absent. An existing dataset of another type is a conflict.
func (c *Client) GetOrCreateDataset(ctx context.Context, name string, typ domain.DatasetType, opts ...EntityOption) (*Dataset, error) {
	if !typ.Valid() {
		return nil, domain.Validationf("dataset", name, "unknown dataset type %q", typ)
	}
	d := c.Dataset(name, typ, opts...)
	if _, err := d.ensure(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// GetDataset fetches an existing dataset by id.
func (c *Client) GetDataset(ctx context.Context, id string) (*Dataset, error) {
	rec, err := c.datasetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.boundDataset(rec), nil
}

func (c *Client) boundDataset(rec domain.Dataset) *Dataset {
	d := &Dataset{client: c, name: rec.Name, datasetType: rec.DatasetType}
	d.fetch = c.datasetByID
	d.bind(rec.ID, rec)
	return d
}

// DatasetQuery filters FindDatasets. Empty fields match everything.
type DatasetQuery struct {
	IDs  []string
	Name string
	Tags []string
}

// FindDatasets returns datasets matching q, sorted by name.
func (c *Client) FindDatasets(ctx context.Context, q DatasetQuery) ([]*Dataset, error) {
	var out api.DatasetsResponse
	err := c.post(ctx, api.PathFindDatasets, api.FindDatasetsRequest{DatasetIDs: q.IDs, Name: q.Name, Tags: q.Tags}, &out)
	if err != nil {
		return nil, domain.Annotate(err, "datasets", q.Name)
	}
	found := make([]*Dataset, 0, len(out.Datasets))
	for _, rec := range out.Datasets {
		found = append(found, c.boundDataset(rec))
	}
	return found, nil
}

func (c *Client) resolveDataset(ctx context.Context, name string, typ domain.DatasetType, o entityOptions) (domain.Dataset, error) {
	return getOrCreate(ctx, c, resolver[domain.Dataset]{
		resource: "dataset",
		name:     name,
		opts:     o,
		byID:     c.datasetByID,
		byName: func(ctx context.Context, name string) (domain.Dataset, error) {
			var out api.DatasetResponse
			err := c.lookup(ctx, api.PathGetDatasetByName, url.Values{"name": {name}}, &out)
			return out.Dataset, err
		},
		create: func(ctx context.Context, name string) (domain.Dataset, error) {
			attrs, err := o.keyValues("dataset")
			if err != nil {
				return domain.Dataset{}, err
			}
			var out api.DatasetResponse
			err = c.post(ctx, api.PathCreateDataset, api.CreateDatasetRequest{
				Name:        name,
				DatasetType: typ,
				Description: o.description,
				Tags:        o.tags,
				Attributes:  attrs,
			}, &out)
			return out.Dataset, err
		},
	})
}

func (c *Client) datasetByID(ctx context.Context, id string) (domain.Dataset, error) {
	var out api.DatasetResponse
	err := c.lookup(ctx, api.PathGetDatasetByID, url.Values{"id": {id}}, &out)
	return out.Dataset, domain.Annotate(err, "dataset", id)
}

func (d *Dataset) ID() string { return d.id }

func (d *Dataset) Name() string { return d.name }

func (d *Dataset) Type() domain.DatasetType { return d.datasetType }

func (d *Dataset) Record(ctx context.Context) (domain.Dataset, error) {
	return d.record(ctx)
}

type versionOptions struct {
	description string
	tags        []string
	timeLogged  time.Time
}

type VersionOption func(*versionOptions)

func WithVersionDescription(desc string) VersionOption {
	return func(o *versionOptions) { o.description = desc }
}

func WithVersionTags(tags ...string) VersionOption {
	return func(o *versionOptions) { o.tags = append(o.tags, tags...) }
}

// WithTimeLogged sets the version's logging time. Defaults to now.
func WithTimeLogged(t time.Time) VersionOption {
	return func(o *versionOptions) { o.timeLogged = t }
}

// CreateVersion snapshots src into a new version of the dataset.
func (d *Dataset) CreateVersion(ctx context.Context, src ports.DatasetSource, opts ...VersionOption) (*DatasetVersion, error) {
	if src.Type() != d.datasetType {
		return nil, domain.Validationf("dataset version", d.name, "source type %s does not match dataset type %s", src.Type(), d.datasetType)
	}
	info, err := src.Describe(ctx)
	if err != nil {
		return nil, domain.Annotate(err, "dataset version", d.name)
	}
	return d.CreateVersionFromInfo(ctx, info, opts...)
}

// CreateVersionFromInfo records an explicit descriptor as a new version.
func (d *Dataset) CreateVersionFromInfo(ctx context.Context, info domain.DatasetVersionInfo, opts ...VersionOption) (*DatasetVersion, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	id, err := d.ensure(ctx)
	if err != nil {
		return nil, err
	}
	var o versionOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeLogged.IsZero() {
		o.timeLogged = time.Now()
	}

	v := domain.DatasetVersion{
		DatasetID:   id,
		DatasetType: info.Type,
		Description: o.description,
		Tags:        o.tags,
		TimeLogged:  domain.ToMillis(o.timeLogged),
		Fingerprint: info.Fingerprint(),
		PathInfo:    info.Path,
		QueryInfo:   info.Query,
	}
	var out api.DatasetVersionResponse
	if err := d.client.post(ctx, api.PathCreateVersion, api.CreateVersionRequest{DatasetVersion: v}, &out); err != nil {
		return nil, domain.Annotate(err, "dataset version", d.name)
	}
	d.invalidate()
	d.client.log.WithFields(log.Fields{
		"dataset":     d.name,
		"version":     out.DatasetVersion.Version,
		"fingerprint": out.DatasetVersion.Fingerprint,
	}).Debug("created dataset version")
	return &DatasetVersion{client: d.client, rec: out.DatasetVersion}, nil
}

// LatestVersion returns the most recently created version.
func (d *Dataset) LatestVersion(ctx context.Context) (*DatasetVersion, error) {
	id, err := d.ensure(ctx)
	if err != nil {
		return nil, err
	}
	var out api.DatasetVersionResponse
	if err := d.client.lookup(ctx, api.PathGetLatestVersion, url.Values{"dataset_id": {id}}, &out); err != nil {
		return nil, domain.Annotate(err, "dataset version", d.name)
	}
	return &DatasetVersion{client: d.client, rec: out.DatasetVersion}, nil
}

// Versions lists every version oldest first.
func (d *Dataset) Versions(ctx context.Context) ([]*DatasetVersion, error) {
	id, err := d.ensure(ctx)
	if err != nil {
		return nil, err
	}
	var out api.DatasetVersionsResponse
	if err := d.client.lookup(ctx, api.PathGetAllVersions, url.Values{"dataset_id": {id}}, &out); err != nil {
		return nil, domain.Annotate(err, "dataset versions", d.name)
	}
	versions := make([]*DatasetVersion, 0, len(out.DatasetVersions))
	for _, rec := range out.DatasetVersions {
		versions = append(versions, &DatasetVersion{client: d.client, rec: rec})
	}
	return versions, nil
}

// ============================================================================
// DatasetVersion
// ============================================================================

// DatasetVersion is immutable once created, so it is always bound and its
// record never goes stale.
type DatasetVersion struct {
	client *Client
	rec    domain.DatasetVersion
}

// GetDatasetVersion fetches a version by id.
func (c *Client) GetDatasetVersion(ctx context.Context, id string) (*DatasetVersion, error) {
	var out api.DatasetVersionResponse
	if err := c.lookup(ctx, api.PathGetVersionByID, url.Values{"id": {id}}, &out); err != nil {
		return nil, domain.Annotate(err, "dataset version", id)
	}
	return &DatasetVersion{client: c, rec: out.DatasetVersion}, nil
}

func (v *DatasetVersion) ID() string { return v.rec.ID }

func (v *DatasetVersion) DatasetID() string { return v.rec.DatasetID }

func (v *DatasetVersion) Version() int64 { return v.rec.Version }

func (v *DatasetVersion) Fingerprint() string { return v.rec.Fingerprint }

func (v *DatasetVersion) TimeLogged() time.Time { return domain.FromMillis(v.rec.TimeLogged) }

func (v *DatasetVersion) Record() domain.DatasetVersion { return v.rec }

// Dataset returns the dataset the version belongs to.
func (v *DatasetVersion) Dataset(ctx context.Context) (*Dataset, error) {
	return v.client.GetDataset(ctx, v.rec.DatasetID)
}

// ============================================================================
// Run Linking
// ============================================================================

// LogDatasetVersion links a dataset version to the run under key.
func (r *ExperimentRun) LogDatasetVersion(ctx context.Context, key string, v *DatasetVersion, opts ...ArtifactOption) (domain.ArtifactRef, error) {
	if err := domain.ValidateFlatKey("dataset", key); err != nil {
		return domain.ArtifactRef{}, err
	}
	o := applyArtifactOptions(opts, domain.ArtifactTypeData)
	ref := domain.ArtifactRef{
		Key:              key,
		Path:             v.pathHint(),
		PathOnly:         true,
		ArtifactType:     o.artifactType,
		LinkedArtifactID: v.ID(),
	}
	if err := r.recordRef(ctx, ref, true, o.overwrite); err != nil {
		return domain.ArtifactRef{}, err
	}
	return ref, nil
}

// GetDatasetVersion returns the dataset version linked under key, or nil
// when a suppressed read hid the run's datasets.
func (r *ExperimentRun) GetDatasetVersion(ctx context.Context, key string) (*DatasetVersion, error) {
	refs, ok, err := r.listRefs(ctx, api.PathGetDatasets)
	if err != nil {
		return nil, err
	}
	if !ok {
		r.logger().WithField("key", key).Warn("dataset lookup suppressed, returning no result")
		return nil, nil
	}
	for _, ref := range refs {
		if ref.Key != key {
			continue
		}
		if ref.LinkedArtifactID == "" {
			return nil, domain.NewError(domain.ErrNotFound, "dataset version", key, "dataset is not linked to a version")
		}
		return r.client.GetDatasetVersion(ctx, ref.LinkedArtifactID)
	}
	return nil, domain.NewError(domain.ErrNotFound, "dataset", key, "not logged on run "+r.name)
}

func (v *DatasetVersion) pathHint() string {
	switch {
	case v.rec.PathInfo != nil:
		return v.rec.PathInfo.BasePath
	case v.rec.QueryInfo != nil:
		return v.rec.QueryInfo.DataSourceURI
	}
	return ""
}
