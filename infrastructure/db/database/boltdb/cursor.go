package boltdb

import (
	"bytes"

	"github.com/coinchain/coinchaind/infrastructure/db/database"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// cursor adapts a bbolt cursor to prefix iteration over a single bucket
// path. Like leveldb iterators, it starts positioned before the first key.
type cursor struct {
	boltCursor *bolt.Cursor
	bucket     *database.Bucket
	prefix     []byte
	readTx     *bolt.Tx

	started      bool
	currentKey   []byte
	currentValue []byte
	isClosed     bool
}

func newCursor(boltCursor *bolt.Cursor, bucket *database.Bucket, readTx *bolt.Tx) *cursor {
	return &cursor{
		boltCursor: boltCursor,
		bucket:     bucket,
		prefix:     bucket.Path(),
		readTx:     readTx,
	}
}

func (c *cursor) setCurrent(key, value []byte) bool {
	if key == nil || !bytes.HasPrefix(key, c.prefix) {
		c.currentKey, c.currentValue = nil, nil
		return false
	}
	c.currentKey = append([]byte(nil), key...)
	c.currentValue = append([]byte{}, value...)
	return true
}

// Next moves the iterator to the next key/value pair. It returns whether the
// iterator is exhausted. Panics if the cursor is closed.
func (c *cursor) Next() bool {
	if c.isClosed {
		panic("cannot call next on a closed cursor")
	}
	if !c.started {
		c.started = true
		return c.setCurrent(c.boltCursor.Seek(c.prefix))
	}
	if c.currentKey == nil {
		return false
	}
	return c.setCurrent(c.boltCursor.Next())
}

// First moves the iterator to the first key/value pair. It returns false if
// such a pair does not exist. Panics if the cursor is closed.
func (c *cursor) First() bool {
	if c.isClosed {
		panic("cannot call first on a closed cursor")
	}
	c.started = true
	return c.setCurrent(c.boltCursor.Seek(c.prefix))
}

// Seek moves the iterator to the given key. It returns ErrNotFound if the
// key does not exist in the bucket.
func (c *cursor) Seek(key *database.Key) error {
	if c.isClosed {
		return errors.New("cannot seek a closed cursor")
	}
	c.started = true
	keyBytes := key.Bytes()
	foundKey, foundValue := c.boltCursor.Seek(keyBytes)
	if !c.setCurrent(foundKey, foundValue) || !bytes.Equal(foundKey, keyBytes) {
		return errors.Wrapf(database.ErrNotFound, "key %s not found", key)
	}
	return nil
}

// Key returns the key of the current key/value pair, or ErrNotFound if done.
func (c *cursor) Key() (*database.Key, error) {
	if c.isClosed {
		return nil, errors.New("cannot get the key of a closed cursor")
	}
	if c.currentKey == nil {
		return nil, errors.Wrapf(database.ErrNotFound, "cannot get the "+
			"key of an exhausted cursor")
	}
	return c.bucket.Key(bytes.TrimPrefix(c.currentKey, c.prefix)), nil
}

// Value returns the value of the current key/value pair, or ErrNotFound if done.
func (c *cursor) Value() ([]byte, error) {
	if c.isClosed {
		return nil, errors.New("cannot get the value of a closed cursor")
	}
	if c.currentKey == nil {
		return nil, errors.Wrapf(database.ErrNotFound, "cannot get the "+
			"value of an exhausted cursor")
	}
	return c.currentValue, nil
}

// Close releases associated resources.
func (c *cursor) Close() error {
	if c.isClosed {
		return errors.New("cannot close an already closed cursor")
	}
	c.isClosed = true
	c.boltCursor = nil
	if c.readTx != nil {
		return errors.WithStack(c.readTx.Rollback())
	}
	return nil
}
