package tracking

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"modeldb-client/pkg/api"
	"modeldb-client/pkg/artifact"
	"modeldb-client/pkg/domain"
	"modeldb-client/pkg/modelapi"
	"modeldb-client/pkg/ports"
	"modeldb-client/pkg/transport"
)

// ModelKey is the artifact key a run's model is logged under.
const ModelKey = "model"

type artifactOptions struct {
	overwrite    bool
	artifactType domain.ArtifactType
}

// ArtifactOption configures an artifact upload.
type ArtifactOption func(*artifactOptions)

// OverwriteArtifact replaces an artifact already logged under the key.
func OverwriteArtifact() ArtifactOption {
	return func(o *artifactOptions) { o.overwrite = true }
}

// WithArtifactType overrides the recorded artifact type. Defaults to BLOB.
func WithArtifactType(t domain.ArtifactType) ArtifactOption {
	return func(o *artifactOptions) { o.artifactType = t }
}

func applyArtifactOptions(opts []ArtifactOption, def domain.ArtifactType) artifactOptions {
	o := artifactOptions{artifactType: def}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ============================================================================
// Upload
// ============================================================================

// LogArtifact serializes obj and stores it content-addressed under key.
// A nil serializer accepts []byte or string as-is.
func (r *ExperimentRun) LogArtifact(ctx context.Context, key string, obj any, ser ports.Serializer, opts ...ArtifactOption) (domain.ArtifactRef, error) {
	if err := domain.ValidateFlatKey("artifact", key); err != nil {
		return domain.ArtifactRef{}, err
	}
	return r.logObject(ctx, key, obj, ser, applyArtifactOptions(opts, domain.ArtifactTypeBlob))
}

func (r *ExperimentRun) logObject(ctx context.Context, key string, obj any, ser ports.Serializer, o artifactOptions) (domain.ArtifactRef, error) {
	if ser == nil {
		ser = artifact.Raw{}
	}
	blob, err := ser.Serialize(obj)
	if err != nil {
		return domain.ArtifactRef{}, &domain.Error{Kind: domain.ErrValidation, Resource: "artifact", Key: key, Message: "serialize", Err: err}
	}
	return r.logBlob(ctx, key, blob, ser.Extension(), false, o)
}

// LogImage stores an encoded image. ext is its format, such as "png".
func (r *ExperimentRun) LogImage(ctx context.Context, key string, image []byte, ext string, opts ...ArtifactOption) (domain.ArtifactRef, error) {
	if err := domain.ValidateFlatKey("image", key); err != nil {
		return domain.ArtifactRef{}, err
	}
	return r.logBlob(ctx, key, image, ext, false, applyArtifactOptions(opts, domain.ArtifactTypeImage))
}

// LogArtifactPath records only the location of an artifact; nothing is uploaded.
func (r *ExperimentRun) LogArtifactPath(ctx context.Context, key, path string, opts ...ArtifactOption) (domain.ArtifactRef, error) {
	return r.logPath(ctx, key, path, false, applyArtifactOptions(opts, domain.ArtifactTypeBlob))
}

func (r *ExperimentRun) LogImagePath(ctx context.Context, key, path string, opts ...ArtifactOption) (domain.ArtifactRef, error) {
	return r.logPath(ctx, key, path, false, applyArtifactOptions(opts, domain.ArtifactTypeImage))
}

// LogDataset stores raw dataset bytes as a DATA artifact of the run.
func (r *ExperimentRun) LogDataset(ctx context.Context, key string, data []byte, ext string, opts ...ArtifactOption) (domain.ArtifactRef, error) {
	if err := domain.ValidateFlatKey("dataset", key); err != nil {
		return domain.ArtifactRef{}, err
	}
	return r.logBlob(ctx, key, data, ext, true, applyArtifactOptions(opts, domain.ArtifactTypeData))
}

// LogDatasetPath records a dataset location on the run without uploading it.
func (r *ExperimentRun) LogDatasetPath(ctx context.Context, key, path string, opts ...ArtifactOption) (domain.ArtifactRef, error) {
	return r.logPath(ctx, key, path, true, applyArtifactOptions(opts, domain.ArtifactTypeData))
}

func (r *ExperimentRun) logBlob(ctx context.Context, key string, blob []byte, ext string, dataset bool, o artifactOptions) (domain.ArtifactRef, error) {
	if _, err := r.ensure(ctx); err != nil {
		return domain.ArtifactRef{}, err
	}

	res, err := r.client.artifacts.Put(ctx, blob)
	if err != nil {
		return domain.ArtifactRef{}, domain.Annotate(err, "artifact", key)
	}
	ref := domain.ArtifactRef{
		Key:               key,
		Path:              res.Key,
		ArtifactType:      o.artifactType,
		FilenameExtension: ext,
		Checksum:          res.Checksum,
	}
	if err := r.recordRef(ctx, ref, dataset, o.overwrite); err != nil {
		return domain.ArtifactRef{}, err
	}
	r.logger().WithFields(log.Fields{"key": key, "path": res.Key, "uploaded": res.Uploaded}).Debug("logged artifact")
	return ref, nil
}

func (r *ExperimentRun) logPath(ctx context.Context, key, path string, dataset bool, o artifactOptions) (domain.ArtifactRef, error) {
	if err := domain.ValidateFlatKey("artifact", key); err != nil {
		return domain.ArtifactRef{}, err
	}
	if path == "" {
		return domain.ArtifactRef{}, domain.Validationf("artifact", key, "path is required")
	}
	ref := domain.ArtifactRef{
		Key:               key,
		Path:              path,
		PathOnly:          true,
		ArtifactType:      o.artifactType,
		FilenameExtension: strings.TrimPrefix(filepath.Ext(path), "."),
	}
	if err := r.recordRef(ctx, ref, dataset, o.overwrite); err != nil {
		return domain.ArtifactRef{}, err
	}
	return ref, nil
}

// recordRef records ref on the run. Overwriting deletes any existing reference
// under the same key first.
func (r *ExperimentRun) recordRef(ctx context.Context, ref domain.ArtifactRef, dataset, overwrite bool) error {
	id, err := r.ensure(ctx)
	if err != nil {
		return err
	}
	if overwrite {
		if err := r.DeleteArtifact(ctx, ref.Key); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	path := api.PathLogArtifact
	if dataset {
		path = api.PathLogDataset
	}
	if err := r.client.post(ctx, path, api.LogArtifactRequest{ID: id, Artifact: ref}, nil); err != nil {
		return domain.Annotate(err, "artifact", ref.Key)
	}
	r.invalidate()
	return nil
}

// DeleteArtifact removes the reference under key. The stored blob is kept.
func (r *ExperimentRun) DeleteArtifact(ctx context.Context, key string) error {
	id, err := r.ensure(ctx)
	if err != nil {
		return err
	}
	_, err = r.client.call(ctx, transport.Request{
		Method: http.MethodDelete,
		Path:   api.PathDeleteArtifact,
		Query:  url.Values{"id": {id}, "key": {key}},
	}, nil)
	if err != nil {
		return domain.Annotate(err, "artifact", key)
	}
	r.invalidate()
	return nil
}

// ============================================================================
// Download
// ============================================================================

// Artifacts lists the run's artifact references, datasets excluded.
func (r *ExperimentRun) Artifacts(ctx context.Context) ([]domain.ArtifactRef, error) {
	return r.refs(ctx, api.PathGetArtifacts)
}

// Datasets lists the run's dataset references.
func (r *ExperimentRun) Datasets(ctx context.Context) ([]domain.ArtifactRef, error) {
	return r.refs(ctx, api.PathGetDatasets)
}

func (r *ExperimentRun) refs(ctx context.Context, path string) ([]domain.ArtifactRef, error) {
	refs, _, err := r.listRefs(ctx, path)
	return refs, err
}

// listRefs reports ok=false when a suppressed connection error swallowed
// the read.
func (r *ExperimentRun) listRefs(ctx context.Context, path string) ([]domain.ArtifactRef, bool, error) {
	id, err := r.ensure(ctx)
	if err != nil {
		return nil, false, err
	}
	var out api.ArtifactsResponse
	ok, err := r.client.get(ctx, path, url.Values{"id": {id}}, &out)
	if err != nil {
		return nil, false, domain.Annotate(err, "artifacts", r.name)
	}
	return out.Artifacts, ok, nil
}

// findRef searches artifacts, then datasets. found=false with a nil error
// means a suppressed read hid the answer.
func (r *ExperimentRun) findRef(ctx context.Context, key string) (ref domain.ArtifactRef, found bool, err error) {
	complete := true
	for _, path := range []string{api.PathGetArtifacts, api.PathGetDatasets} {
		refs, ok, err := r.listRefs(ctx, path)
		if err != nil {
			return domain.ArtifactRef{}, false, err
		}
		complete = complete && ok
		for _, ref := range refs {
			if ref.Key == key {
				return ref, true, nil
			}
		}
	}
	if !complete {
		r.logger().WithField("key", key).Warn("artifact lookup suppressed, returning no result")
		return domain.ArtifactRef{}, false, nil
	}
	return domain.ArtifactRef{}, false, domain.NewError(domain.ErrNotFound, "artifact", key, "not logged on run "+r.name)
}

// GetArtifact downloads the artifact under key. Path-only artifacts return
// their reference and a nil blob. A suppressed lookup returns a zero
// reference, a nil blob and no error.
func (r *ExperimentRun) GetArtifact(ctx context.Context, key string) ([]byte, domain.ArtifactRef, error) {
	ref, found, err := r.findRef(ctx, key)
	if err != nil || !found {
		return nil, ref, err
	}
	if ref.PathOnly {
		return nil, ref, nil
	}
	blob, err := r.client.download(ctx, ref.Path)
	if err != nil {
		return nil, ref, domain.Annotate(err, "artifact", key)
	}
	return blob, ref, nil
}

// LoadArtifact downloads and decodes the artifact under key, trying each
// deserializer in turn.
func (r *ExperimentRun) LoadArtifact(ctx context.Context, key string, deserializers ...ports.Deserializer) (any, error) {
	blob, ref, err := r.GetArtifact(ctx, key)
	if err != nil || ref.Key == "" {
		return nil, err
	}
	if ref.PathOnly {
		return nil, domain.Validationf("artifact", key, "path-only artifact has no stored content")
	}
	if len(deserializers) == 0 {
		return blob, nil
	}
	return artifact.Decode(bytes.NewReader(blob), deserializers...)
}

// ============================================================================
// Models
// ============================================================================

type modelOptions struct {
	api       *modelapi.ModelAPI
	input     any
	output    any
	hasSample bool
	modelType string
	overwrite bool
}

type ModelOption func(*modelOptions)

// WithModelAPI attaches a prepared ModelAPI.
func WithModelAPI(m *modelapi.ModelAPI) ModelOption {
	return func(o *modelOptions) { o.api = m }
}

// WithSamples infers the ModelAPI from an input and output sample.
func WithSamples(input, output any) ModelOption {
	return func(o *modelOptions) {
		o.input, o.output, o.hasSample = input, output, true
	}
}

// WithModelType tags an inferred ModelAPI.
func WithModelType(t string) ModelOption {
	return func(o *modelOptions) { o.modelType = t }
}

// OverwriteModel replaces a model already logged on the run.
func OverwriteModel() ModelOption {
	return func(o *modelOptions) { o.overwrite = true }
}

// LogModel serializes and stores model under ModelKey. When a ModelAPI is
// given or inferred it is recorded as modelapi.FileName before the model.
// Overwriting without a ModelAPI removes the previous one. Schema and
// serialization errors are reported before anything is recorded.
func (r *ExperimentRun) LogModel(ctx context.Context, model any, ser ports.Serializer, opts ...ModelOption) (domain.ArtifactRef, error) {
	var o modelOptions
	for _, opt := range opts {
		opt(&o)
	}

	schema := o.api
	if schema == nil && o.hasSample {
		var err error
		schema, err = modelapi.Infer(o.input, o.output, modelapi.WithModelType(o.modelType))
		if err != nil {
			return domain.ArtifactRef{}, &domain.Error{Kind: domain.ErrValidation, Resource: "model api", Key: modelapi.FileName, Err: err}
		}
	}

	if ser == nil {
		ser = artifact.Raw{}
	}
	blob, err := ser.Serialize(model)
	if err != nil {
		return domain.ArtifactRef{}, &domain.Error{Kind: domain.ErrValidation, Resource: "artifact", Key: ModelKey, Message: "serialize", Err: err}
	}

	if !o.overwrite {
		_, found, err := r.findRef(ctx, ModelKey)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return domain.ArtifactRef{}, err
		}
		if found {
			return domain.ArtifactRef{}, domain.NewError(domain.ErrConflict, "artifact", ModelKey, "model already logged on run "+r.name)
		}
	}

	switch {
	case schema != nil:
		if _, err := r.logObject(ctx, modelapi.FileName, schema, artifact.JSON{}, artifactOptions{overwrite: o.overwrite, artifactType: domain.ArtifactTypeBlob}); err != nil {
			return domain.ArtifactRef{}, err
		}
	case o.overwrite:
		if err := r.DeleteArtifact(ctx, modelapi.FileName); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return domain.ArtifactRef{}, err
		}
	}

	return r.logBlob(ctx, ModelKey, blob, ser.Extension(), false, artifactOptions{overwrite: o.overwrite, artifactType: domain.ArtifactTypeModel})
}

// GetModel downloads the logged model and decodes it.
func (r *ExperimentRun) GetModel(ctx context.Context, deserializers ...ports.Deserializer) (any, error) {
	return r.LoadArtifact(ctx, ModelKey, deserializers...)
}

// GetModelAPI returns the ModelAPI stored with the model.
func (r *ExperimentRun) GetModelAPI(ctx context.Context) (*modelapi.ModelAPI, error) {
	blob, ref, err := r.GetArtifact(ctx, modelapi.FileName)
	if err != nil || ref.Key == "" {
		return nil, err
	}
	m, err := modelapi.ParseBytes(blob)
	if err != nil {
		return nil, &domain.Error{Kind: domain.ErrDeserialization, Resource: "model api", Key: modelapi.FileName, Err: err}
	}
	return m, nil
}

// ============================================================================
// Code
// ============================================================================

// Code describes the source a run was produced from.
type Code struct {
	Git *domain.GitSnapshot
	// Archive is uploaded content-addressed. Ext names its format, such as "zip".
	Archive    []byte
	ArchiveExt string
}

// LogCode records the run's code version. Only one is kept per run unless
// WithOverwrite is passed.
func (r *ExperimentRun) LogCode(ctx context.Context, code Code, opts ...LogOption) error {
	if code.Git == nil && code.Archive == nil {
		return domain.Validationf("code version", r.name, "git snapshot or archive is required")
	}
	id, err := r.ensure(ctx)
	if err != nil {
		return err
	}

	cv := domain.CodeVersion{GitSnapshot: code.Git}
	if code.Archive != nil {
		res, err := r.client.artifacts.Put(ctx, code.Archive)
		if err != nil {
			return domain.Annotate(err, "code version", r.name)
		}
		cv.CodeArchive = &domain.ArtifactRef{
			Key:               "code",
			Path:              res.Key,
			ArtifactType:      domain.ArtifactTypeCode,
			FilenameExtension: code.ArchiveExt,
			Checksum:          res.Checksum,
		}
	}

	o := applyLogOptions(opts)
	err = r.client.post(ctx, api.PathLogCodeVersion, api.LogCodeVersionRequest{ID: id, CodeVersion: cv, Overwrite: o.overwrite}, nil)
	if err != nil {
		return domain.Annotate(err, "code version", r.name)
	}
	r.invalidate()
	return nil
}

// GetCode returns the run's code version.
func (r *ExperimentRun) GetCode(ctx context.Context) (domain.CodeVersion, error) {
	id, err := r.ensure(ctx)
	if err != nil {
		return domain.CodeVersion{}, err
	}
	var out api.CodeVersionResponse
	if err := r.client.lookup(ctx, api.PathGetCodeVersion, url.Values{"id": {id}}, &out); err != nil {
		return domain.CodeVersion{}, domain.Annotate(err, "code version", r.name)
	}
	return out.CodeVersion, nil
}

// GetCodeArchive downloads the archive of the run's code version.
func (r *ExperimentRun) GetCodeArchive(ctx context.Context) ([]byte, error) {
	cv, err := r.GetCode(ctx)
	if err != nil {
		return nil, err
	}
	if cv.CodeArchive == nil {
		return nil, domain.NewError(domain.ErrNotFound, "code archive", r.name, "code version has no archive")
	}
	return r.client.download(ctx, cv.CodeArchive.Path)
}
