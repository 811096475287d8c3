// Package bbolt provides a BBolt-backed session.Store. Records are JSON
// encoded and, when a sealing key is configured, encrypted at rest with
// AES-256-GCM bound to the session id.
package bbolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"go.etcd.io/bbolt"

	"github.com/jmcleod/storefront/internal/util"
	"github.com/jmcleod/storefront/session"
)

const (
	bucketName       = "sessions"
	sessionAADPrefix = "session:"
	// DefaultSweepInterval is how often expired records are purged.
	DefaultSweepInterval = 5 * time.Minute
)

// Options configures a Store.
type Options struct {
	// SealingKey, when set, must be 32 bytes. Records are encrypted with it.
	SealingKey []byte
	// SweepInterval controls the expiry sweep. Zero uses DefaultSweepInterval;
	// a negative value disables the background sweep.
	SweepInterval time.Duration
}

// Store implements session.Store backed by a BBolt database.
type Store struct {
	db       *bbolt.DB
	ownsDB   bool
	key      *memguard.Enclave
	openKey  func() (*memguard.LockedBuffer, error)
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

var _ session.Store = (*Store)(nil)

// New returns a Store using db. The caller keeps ownership of db.
func New(db *bbolt.DB, opts Options) (*Store, error) {
	if opts.SealingKey != nil && len(opts.SealingKey) != util.AESKeySize {
		return nil, fmt.Errorf("sealing key must be exactly %d bytes, got %d", util.AESKeySize, len(opts.SealingKey))
	}
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating sessions bucket: %w", err)
	}
	s := &Store{
		db:     db,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	if opts.SealingKey != nil {
		// NewEnclave wipes its argument.
		s.key = memguard.NewEnclave(util.CopyBytes(opts.SealingKey))
		s.openKey = s.key.Open
	}
	interval := opts.SweepInterval
	if interval == 0 {
		interval = DefaultSweepInterval
	}
	if interval > 0 {
		go s.sweepLoop(interval)
	} else {
		close(s.done)
	}
	return s, nil
}

// NewFromFile opens a BBolt database at path and returns a Store that owns it.
func NewFromFile(path string, opts Options) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := New(db, opts)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// Close stops the sweep goroutine and closes the database if the Store
// opened it.
func (s *Store) Close() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.done
		if s.ownsDB {
			err = s.db.Close()
		}
	})
	return err
}

func (s *Store) Load(_ context.Context, id string) (*session.Session, error) {
	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket([]byte(bucketName)).Get([]byte(id)); v != nil {
			raw = util.CopyBytes(v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", session.ErrStoreUnavailable, err)
	}
	if raw == nil {
		return nil, session.ErrNotFound
	}
	sess, err := s.decode(id, raw)
	if errors.Is(err, session.ErrStoreUnavailable) {
		return nil, err
	}
	if err != nil {
		// Unreadable entries (corrupt, or sealed under a rotated key) are
		// treated as absent and removed.
		_ = s.Delete(context.Background(), id)
		return nil, session.ErrNotFound
	}
	if sess.Expired(time.Now()) {
		_ = s.Delete(context.Background(), id)
		return nil, session.ErrNotFound
	}
	return sess, nil
}

func (s *Store) Save(_ context.Context, sess *session.Session) error {
	data, err := s.encode(sess)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(sess.ID), data)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", session.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("%w: %w", session.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) encode(sess *session.Session) ([]byte, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("encoding session: %w", err)
	}
	if s.key == nil {
		return data, nil
	}
	defer util.WipeBytes(data)
	key, err := s.openKey()
	if err != nil {
		return nil, fmt.Errorf("%w: opening sealing key: %w", session.ErrStoreUnavailable, err)
	}
	defer key.Destroy()
	return util.Seal(data, key.Bytes(), []byte(sessionAADPrefix+sess.ID))
}

func (s *Store) decode(id string, raw []byte) (*session.Session, error) {
	data := raw
	if s.key != nil {
		key, err := s.openKey()
		if err != nil {
			return nil, fmt.Errorf("%w: opening sealing key: %w", session.ErrStoreUnavailable, err)
		}
		data, err = util.Open(raw, key.Bytes(), []byte(sessionAADPrefix+id))
		key.Destroy()
		if err != nil {
			return nil, err
		}
		defer util.WipeBytes(data)
	}
	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	if sess.ID != id {
		return nil, errors.New("session id mismatch")
	}
	return &sess, nil
}

func (s *Store) sweepLoop(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			_, _ = s.Sweep()
		}
	}
}

// Sweep removes expired and unreadable records and returns how many were
// deleted.
func (s *Store) Sweep() (int, error) {
	now := time.Now()
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			sess, err := s.decode(string(k), v)
			if errors.Is(err, session.ErrStoreUnavailable) {
				return err
			}
			if err != nil || sess.Expired(now) {
				stale = append(stale, util.CopyBytes(k))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}
