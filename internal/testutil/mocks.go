package testutil

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"modeldb-client/pkg/domain"
	"modeldb-client/pkg/ports"
	"modeldb-client/pkg/transport"
)

// MockRequester is a mock of ports.Requester.
type MockRequester struct {
	mock.Mock
}

func (m *MockRequester) Do(ctx context.Context, req transport.Request) (*transport.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transport.Response), args.Error(1)
}

// MockBlobStore is a mock of ports.BlobStore.
type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockBlobStore) Put(ctx context.Context, key string, blob []byte) error {
	args := m.Called(ctx, key, blob)
	return args.Error(0)
}

func (m *MockBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// MockBlobCache is a mock of ports.BlobCache.
type MockBlobCache struct {
	mock.Mock
}

func (m *MockBlobCache) Get(key string) ([]byte, bool, error) {
	args := m.Called(key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.Bool(1), args.Error(2)
}

func (m *MockBlobCache) Set(key string, blob []byte) error {
	args := m.Called(key, blob)
	return args.Error(0)
}

// MockDeserializer is a mock of ports.Deserializer. When ReadAll is set the
// mock drains the reader before answering, as a real decoder would.
type MockDeserializer struct {
	mock.Mock
	ReadAll bool
}

func (m *MockDeserializer) Deserialize(r io.Reader) (any, error) {
	if m.ReadAll {
		_, _ = io.ReadAll(r)
	}
	args := m.Called(r)
	return args.Get(0), args.Error(1)
}

// MockDatasetSource is a mock of ports.DatasetSource.
type MockDatasetSource struct {
	mock.Mock
}

func (m *MockDatasetSource) Type() domain.DatasetType {
	args := m.Called()
	return args.Get(0).(domain.DatasetType)
}

func (m *MockDatasetSource) Describe(ctx context.Context) (domain.DatasetVersionInfo, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.DatasetVersionInfo), args.Error(1)
}

// MockEndpointResolver is a mock of ports.EndpointResolver.
type MockEndpointResolver struct {
	mock.Mock
}

func (m *MockEndpointResolver) Resolve(ctx context.Context, modelID string) (ports.Endpoint, error) {
	args := m.Called(ctx, modelID)
	return args.Get(0).(ports.Endpoint), args.Error(1)
}

var (
	_ ports.Requester        = (*MockRequester)(nil)
	_ ports.BlobStore        = (*MockBlobStore)(nil)
	_ ports.BlobCache        = (*MockBlobCache)(nil)
	_ ports.Deserializer     = (*MockDeserializer)(nil)
	_ ports.DatasetSource    = (*MockDatasetSource)(nil)
	_ ports.EndpointResolver = (*MockEndpointResolver)(nil)
)
