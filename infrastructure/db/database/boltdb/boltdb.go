package boltdb

import (
	"time"

	"github.com/coinchain/coinchaind/infrastructure/db/database"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// rootBucket holds every key. Bucket paths from the database package are
// kept as key prefixes so both backends share one key layout.
var rootBucket = []byte("coinchaind")

const openTimeout = 5 * time.Second

// BoltDB defines a thin wrapper around a bbolt database.
type BoltDB struct {
	db *bolt.DB
}

// NewBoltDB opens the bbolt file at path, creating it if needed.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open bolt database %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.WithStack(err)
	}
	log.Debugf("Opened bolt database at %s", path)
	return &BoltDB{db: db}, nil
}

// Close closes the bbolt database.
func (b *BoltDB) Close() error {
	return errors.WithStack(b.db.Close())
}

// Put sets the value for the given key. It overwrites
// any previous value for that key.
func (b *BoltDB) Put(key *database.Key, value []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return put(tx, key, value)
	})
	return errors.WithStack(err)
}

// Get gets the value for the given key. It returns
// ErrNotFound if the given key does not exist.
func (b *BoltDB) Get(key *database.Key) ([]byte, error) {
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		var err error
		data, err = get(tx, key)
		return err
	})
	return data, err
}

// Has returns true if the database does contains the
// given key.
func (b *BoltDB) Has(key *database.Key) (bool, error) {
	var exists bool
	err := b.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(rootBucket).Get(key.Bytes()) != nil
		return nil
	})
	return exists, errors.WithStack(err)
}

// Delete deletes the value for the given key. Will not
// return an error if the key doesn't exist.
func (b *BoltDB) Delete(key *database.Key) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(rootBucket).Delete(key.Bytes())
	})
	return errors.WithStack(err)
}

// Cursor begins a new cursor over the given bucket. The cursor holds a
// read-only bbolt transaction open until it is closed.
func (b *BoltDB) Cursor(bucket *database.Bucket) (database.Cursor, error) {
	readTx, err := b.db.Begin(false)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return newCursor(readTx.Bucket(rootBucket).Cursor(), bucket, readTx), nil
}

// Begin begins a new writable transaction. bbolt allows a single writer, so
// Begin blocks while another transaction is open.
func (b *BoltDB) Begin() (database.Transaction, error) {
	boltTx, err := b.db.Begin(true)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &transaction{boltTx: boltTx}, nil
}

func put(tx *bolt.Tx, key *database.Key, value []byte) error {
	// bbolt requires the value to stay untouched until the transaction ends.
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	return tx.Bucket(rootBucket).Put(key.Bytes(), valueCopy)
}

func get(tx *bolt.Tx, key *database.Key) ([]byte, error) {
	value := tx.Bucket(rootBucket).Get(key.Bytes())
	if value == nil {
		return nil, errors.Wrapf(database.ErrNotFound, "key %s not found", key)
	}
	// The returned slice is only valid while the transaction is open.
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	return valueCopy, nil
}
