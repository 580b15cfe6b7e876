package artifact

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"modeldb-client/internal/testutil"
	"modeldb-client/pkg/domain"
)

func TestStorageKey_Deterministic(t *testing.T) {
	a := StorageKey(Checksum([]byte("hello")))
	b := StorageKey(Checksum([]byte("hello")))
	assert.Equal(t, a, b)
	assert.Equal(t, "sha256/2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", a)

	sum, ok := ChecksumFromKey(a)
	assert.True(t, ok)
	assert.Equal(t, Checksum([]byte("hello")), sum)

	_, ok = ChecksumFromKey("other/abc")
	assert.False(t, ok)
}

func TestClient_PutUploadsOnce(t *testing.T) {
	store := NewMemoryStore()
	c := NewClient(store)
	ctx := context.Background()

	first, err := c.Put(ctx, []byte("weights"))
	require.NoError(t, err)
	assert.True(t, first.Uploaded)

	second, err := c.Put(ctx, []byte("weights"))
	require.NoError(t, err)
	assert.False(t, second.Uploaded)
	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, 1, store.Puts())
}

func TestClient_PutEmptyBlob(t *testing.T) {
	store := NewMemoryStore()
	c := NewClient(store)

	res, err := c.Put(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "sha256/e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", res.Key)
	assert.Equal(t, int64(0), res.Size)

	res, err = c.Put(context.Background(), []byte{})
	require.NoError(t, err)
	assert.False(t, res.Uploaded)
	assert.Equal(t, 1, store.Puts())
}

func TestClient_PutSkipsTransferWhenPresent(t *testing.T) {
	store := new(testutil.MockBlobStore)
	c := NewClient(store)

	store.On("Exists", mock.Anything, StorageKey(Checksum([]byte("x")))).Return(true, nil)

	res, err := c.Put(context.Background(), []byte("x"))
	require.NoError(t, err)
	assert.False(t, res.Uploaded)
	store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestClient_PutPropagatesStoreError(t *testing.T) {
	store := new(testutil.MockBlobStore)
	c := NewClient(store)
	boom := &domain.Error{Kind: domain.ErrTransport, Message: "down"}

	store.On("Exists", mock.Anything, mock.Anything).Return(false, nil)
	store.On("Put", mock.Anything, mock.Anything, mock.Anything).Return(boom)

	_, err := c.Put(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestClient_GetNotFound(t *testing.T) {
	c := NewClient(NewMemoryStore())
	_, err := c.Get(context.Background(), StorageKey(Checksum([]byte("missing"))))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClient_GetChecksumMismatch(t *testing.T) {
	store := NewMemoryStore()
	key := StorageKey(Checksum([]byte("original")))
	require.NoError(t, store.Put(context.Background(), key, []byte("tampered")))

	_, err := NewClient(store).Get(context.Background(), key)
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestClient_GetUsesCache(t *testing.T) {
	store := new(testutil.MockBlobStore)
	cache := new(testutil.MockBlobCache)
	c := NewClient(store, WithCache(cache))

	blob := []byte("cached")
	key := StorageKey(Checksum(blob))
	cache.On("Get", key).Return(blob, true, nil)

	got, err := c.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, blob, got)
	store.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestClient_GetFillsCache(t *testing.T) {
	store := NewMemoryStore()
	cache := new(testutil.MockBlobCache)
	c := NewClient(store, WithCache(cache))

	blob := []byte("fresh")
	res, err := c.Put(context.Background(), blob)
	require.NoError(t, err)

	cache.On("Get", res.Key).Return(nil, false, nil)
	cache.On("Set", res.Key, blob).Return(nil)

	got, err := c.Get(context.Background(), res.Key)
	require.NoError(t, err)
	assert.Equal(t, blob, got)
	cache.AssertExpectations(t)
}

func TestDecode_FirstSuccessWins(t *testing.T) {
	first := &testutil.MockDeserializer{ReadAll: true}
	second := &testutil.MockDeserializer{ReadAll: true}
	first.On("Deserialize", mock.Anything).Return(nil, errors.New("not keras"))
	second.On("Deserialize", mock.Anything).Return("model", nil)

	obj, err := Decode(bytes.NewReader([]byte("payload")), first, second)
	require.NoError(t, err)
	assert.Equal(t, "model", obj)
}

func TestDecode_FailureRewindsStream(t *testing.T) {
	d := &testutil.MockDeserializer{ReadAll: true}
	d.On("Deserialize", mock.Anything).Return(nil, errors.New("bad format"))

	_, err := Decode(bytes.NewReader([]byte("payload")), d, d)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDeserialization)

	var derr *DeserializationError
	require.True(t, errors.As(err, &derr))
	assert.Len(t, derr.Errs, 2)
	rest, rerr := io.ReadAll(derr.Reader)
	require.NoError(t, rerr)
	assert.Equal(t, "payload", string(rest))
}

func TestJSONSerializer(t *testing.T) {
	b, err := JSON{}.Serialize(map[string]int{"a": 1})
	require.NoError(t, err)

	obj, err := JSON{}.Deserialize(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.0}, obj)

	_, err = JSON{}.Serialize(func() {})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRawSerializer(t *testing.T) {
	b, err := Raw{Ext: "bin"}.Serialize([]byte{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, b)

	_, err = Raw{}.Serialize(3)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
