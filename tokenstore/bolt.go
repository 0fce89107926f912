package tokenstore

import (
	"fmt"

	"go.etcd.io/bbolt"
)

// BoltStore keeps tokens in a bbolt database, one bucket per profile.
type BoltStore struct {
	db      *bbolt.DB
	profile string
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore returns a BoltStore for profile on an already open database.
func NewBoltStore(db *bbolt.DB, profile string) *BoltStore {
	return &BoltStore{db: db, profile: profile}
}

// OpenBoltStore opens (or creates) the database at path and returns a
// BoltStore for profile. The caller owns the returned store and must Close it.
func OpenBoltStore(path, profile string, options *bbolt.Options) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewBoltStore(db, profile), nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Get(key string) (string, error) {
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(s.profile))
		if b == nil {
			return ErrNotFound
		}
		v := b.Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		// v is only valid inside the transaction
		value = append([]byte(nil), v...)
		return nil
	})
	if IsNotFound(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", &StoreError{Op: "get", Key: key, Err: err}
	}
	return string(value), nil
}

func (s *BoltStore) Set(key, value string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(s.profile))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), []byte(value))
	})
	if err != nil {
		return &StoreError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (s *BoltStore) Remove(key string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(s.profile))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return &StoreError{Op: "remove", Key: key, Err: err}
	}
	return nil
}
