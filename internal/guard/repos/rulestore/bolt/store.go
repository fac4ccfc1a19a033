package bolt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"
	bberrors "go.etcd.io/bbolt/errors"

	"github.com/haukened/rr-guard/internal/guard/domain"
)

var (
	bucketLists = []byte("lists")
	bucketMeta  = []byte("meta")
)

// Store persists each filter list's parsed rules so a restart can serve the
// last good rules before any fetch completes. One list is rewritten per
// transaction, so a crash leaves either the old or the new rules.
type Store struct {
	db *bbolt.DB
}

// bucketCreator is the subset of *bbolt.Tx used to ensure buckets.
type bucketCreator interface {
	CreateBucketIfNotExists(name []byte) (*bbolt.Bucket, error)
}

func ensureBuckets(tx bucketCreator) error {
	if _, err := tx.CreateBucketIfNotExists(bucketLists); err != nil {
		return err
	}
	if _, err := tx.CreateBucketIfNotExists(bucketMeta); err != nil {
		return err
	}
	return nil
}

// ensureBucketsFn is a seam for tests.
var ensureBucketsFn = func(tx bucketCreator) error { return ensureBuckets(tx) }

// New opens (or creates) a Bolt database at path and ensures buckets exist.
func New(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error { return ensureBucketsFn(tx) }); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database file lock.
func (s *Store) Close() error { return s.db.Close() }

// SaveList replaces the cached rules for name and records when they were loaded.
func (s *Store) SaveList(name string, rules []domain.Rule, updated time.Time) error {
	if name == "" {
		return fmt.Errorf("list name must not be empty")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		lists := tx.Bucket(bucketLists)
		if err := lists.DeleteBucket([]byte(name)); err != nil && !errors.Is(err, bberrors.ErrBucketNotFound) {
			return err
		}
		b, err := lists.CreateBucket([]byte(name))
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		for i, r := range rules {
			binary.BigEndian.PutUint64(key, uint64(i))
			if err := b.Put(key, encodeRule(r)); err != nil {
				return err
			}
		}
		meta := make([]byte, 16)
		binary.BigEndian.PutUint64(meta[:8], uint64(updated.UnixNano()))
		binary.BigEndian.PutUint64(meta[8:], uint64(len(rules)))
		return tx.Bucket(bucketMeta).Put([]byte(name), meta)
	})
}

// LoadList returns the cached rules for name in their original order. ok is
// false when nothing has been saved for the list.
func (s *Store) LoadList(name string) (rules []domain.Rule, updated time.Time, ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta).Get([]byte(name))
		b := tx.Bucket(bucketLists).Bucket([]byte(name))
		if len(meta) != 16 || b == nil {
			return nil
		}
		updated = time.Unix(0, int64(binary.BigEndian.Uint64(meta[:8])))
		rules = make([]domain.Rule, 0, binary.BigEndian.Uint64(meta[8:]))
		if err := b.ForEach(func(_, v []byte) error {
			r, err := decodeRule(v, name)
			if err != nil {
				return err
			}
			rules = append(rules, r)
			return nil
		}); err != nil {
			return err
		}
		ok = true
		return nil
	})
	if err != nil {
		return nil, time.Time{}, false, err
	}
	return rules, updated, ok, nil
}

// DeleteList drops the cached rules for name. Missing lists are not an error.
func (s *Store) DeleteList(name string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketLists).DeleteBucket([]byte(name)); err != nil && !errors.Is(err, bberrors.ErrBucketNotFound) {
			return err
		}
		return tx.Bucket(bucketMeta).Delete([]byte(name))
	})
}

// Lists returns the names of every cached list.
func (s *Store) Lists() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

// encodeRule lays a rule out as one kind byte followed by the pattern.
func encodeRule(r domain.Rule) []byte {
	buf := make([]byte, 1+len(r.Pattern))
	buf[0] = byte(r.Kind)
	copy(buf[1:], r.Pattern)
	return buf
}

func decodeRule(v []byte, source string) (domain.Rule, error) {
	if len(v) < 2 {
		return domain.Rule{}, fmt.Errorf("corrupt rule record of %d bytes", len(v))
	}
	return domain.NewRule(domain.RuleKind(v[0]), string(v[1:]), source)
}
