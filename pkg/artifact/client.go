package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"modeldb-client/pkg/domain"
	"modeldb-client/pkg/ports"
)

// PutResult describes a stored blob.
type PutResult struct {
	Key      string
	Checksum string
	Size     int64
	Uploaded bool
}

// Client stores blobs under checksum-derived keys and skips uploads of
// content that is already present.
type Client struct {
	store ports.BlobStore
	cache ports.BlobCache
	log   *log.Entry
}

type Option func(*Client)

// WithCache consults cache before downloading.
func WithCache(cache ports.BlobCache) Option {
	return func(c *Client) { c.cache = cache }
}

func WithLogger(l *log.Entry) Option {
	return func(c *Client) { c.log = l }
}

func NewClient(store ports.BlobStore, opts ...Option) *Client {
	c := &Client{
		store: store,
		log:   log.WithField("component", "artifact"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Put uploads blob unless a blob with the same checksum is already stored.
func (c *Client) Put(ctx context.Context, blob []byte) (PutResult, error) {
	sum := Checksum(blob)
	res := PutResult{Key: StorageKey(sum), Checksum: sum, Size: int64(len(blob))}

	exists, err := c.store.Exists(ctx, res.Key)
	if err != nil {
		return res, fmt.Errorf("check artifact: %w", err)
	}
	if exists {
		c.log.WithFields(log.Fields{"key": res.Key, "size": res.Size}).Debug("artifact already stored, skipping upload")
		return res, nil
	}

	if err := c.store.Put(ctx, res.Key, blob); err != nil {
		return res, fmt.Errorf("upload artifact: %w", err)
	}
	res.Uploaded = true
	c.log.WithFields(log.Fields{"key": res.Key, "size": res.Size}).Debug("artifact uploaded")
	return res, nil
}

// Get downloads the blob stored under key and verifies its checksum.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	want, checked := ChecksumFromKey(key)

	if c.cache != nil {
		blob, ok, err := c.cache.Get(key)
		if err != nil {
			c.log.WithError(err).WithField("key", key).Warn("artifact cache read failed")
		} else if ok && (!checked || Checksum(blob) == want) {
			return blob, nil
		}
	}

	blob, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if checked && Checksum(blob) != want {
		return nil, &domain.Error{Kind: domain.ErrTransport, Resource: "artifact", Key: key, Message: "checksum mismatch"}
	}

	if c.cache != nil {
		if err := c.cache.Set(key, blob); err != nil {
			c.log.WithError(err).WithField("key", key).Warn("artifact cache write failed")
		}
	}
	return blob, nil
}

// DeserializationError reports that no deserializer accepted a stream.
// Reader is positioned at the start of the data.
type DeserializationError struct {
	Reader io.ReadSeeker
	Errs   []error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("%v: all %d deserializers failed: %v", domain.ErrDeserialization, len(e.Errs), errors.Join(e.Errs...))
}

func (e *DeserializationError) Unwrap() error { return domain.ErrDeserialization }

// Decode tries each deserializer in order, rewinding r after every failure.
// On total failure r is rewound and returned inside a *DeserializationError.
func Decode(r io.ReadSeeker, deserializers ...ports.Deserializer) (any, error) {
	var errs []error
	for _, d := range deserializers {
		obj, err := d.Deserialize(r)
		if err == nil {
			return obj, nil
		}
		errs = append(errs, err)
		if _, serr := r.Seek(0, io.SeekStart); serr != nil {
			return nil, fmt.Errorf("rewind stream: %w", serr)
		}
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind stream: %w", err)
	}
	return nil, &DeserializationError{Reader: r, Errs: errs}
}
