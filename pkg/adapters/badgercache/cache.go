package badgercache

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"

	"modeldb-client/pkg/ports"
)

// Cache is an in-memory BadgerDB holding downloaded artifact blobs for the
// lifetime of the process. Nothing is written to disk.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

type Options struct {
	// TTL expires entries after the given duration. Zero keeps them until Close.
	TTL time.Duration
	// Logger receives badger's internal messages. Nil disables them.
	Logger *log.Entry
}

var _ ports.BlobCache = (*Cache)(nil)

func New(opts Options) (*Cache, error) {
	badgerOpts := badger.DefaultOptions("").WithInMemory(true)
	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(opts.Logger)
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	return &Cache{db: db, ttl: opts.TTL}, nil
}

func (c *Cache) Get(key string) ([]byte, bool, error) {
	var blob []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		blob, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache: %w", err)
	}
	return blob, true, nil
}

func (c *Cache) Set(key string, blob []byte) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), blob)
		if c.ttl > 0 {
			entry = entry.WithTTL(c.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}

// Delete drops a single entry.
func (c *Cache) Delete(key string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}
