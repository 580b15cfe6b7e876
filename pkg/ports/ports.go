package ports

import (
	"context"
	"io"

	"modeldb-client/pkg/domain"
	"modeldb-client/pkg/transport"
)

// Requester issues a single logical request, retries included.
type Requester interface {
	Do(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// BlobStore holds content-addressed blobs.
type BlobStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, blob []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// BlobCache is an optional read-through cache for downloaded blobs.
type BlobCache interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, blob []byte) error
}

// Serializer turns an in-memory object into bytes for upload.
type Serializer interface {
	Serialize(obj any) ([]byte, error)
	Extension() string
}

// Deserializer decodes a downloaded artifact.
type Deserializer interface {
	Deserialize(r io.Reader) (any, error)
}

// DatasetSource describes the current state of some data location.
type DatasetSource interface {
	Type() domain.DatasetType
	Describe(ctx context.Context) (domain.DatasetVersionInfo, error)
}

// Endpoint is a resolved prediction target.
type Endpoint struct {
	URL   string
	Token string
}

// EndpointResolver looks up where a deployed model answers predictions.
type EndpointResolver interface {
	Resolve(ctx context.Context, modelID string) (Endpoint, error)
}
