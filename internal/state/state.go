// Package state persists the small amount of pipeline state that must
// survive restarts: the active whisper model and one-time advisory flags.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var settingsBucket = []byte("settings")

const (
	keyActiveModel       = "active_model"
	keyPermissionAdvised = "permission_advisory_shown"
)

var (
	// ErrNotSet is returned when a key has never been written.
	ErrNotSet = errors.New("state: not set")
	// ErrLocked is returned when another process holds the database, such
	// as a running listen or serve command.
	ErrLocked = errors.New("state: database in use by another gostt-overlay process")
)

// lockTimeout bounds the wait for the database file lock.
var lockTimeout = time.Second

// Store is a bbolt-backed key/value store.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the state database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("state: creating dir: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: lockTimeout})
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, fmt.Errorf("state: open %s: %w", path, ErrLocked)
	}
	if err != nil {
		return nil, fmt.Errorf("state: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(settingsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("state: init bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) get(key string) (string, error) {
	var val []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(settingsBucket).Get([]byte(key)); v != nil {
			val = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("state: read %s: %w", key, err)
	}
	if val == nil {
		return "", ErrNotSet
	}
	return string(val), nil
}

func (s *Store) put(key, value string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(settingsBucket).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("state: write %s: %w", key, err)
	}
	return nil
}

// ActiveModel returns the persisted active whisper model name.
func (s *Store) ActiveModel() (string, error) {
	return s.get(keyActiveModel)
}

// SetActiveModel persists the active whisper model name.
func (s *Store) SetActiveModel(name string) error {
	return s.put(keyActiveModel, name)
}

// PermissionAdvised reports whether the microphone advisory was already shown.
func (s *Store) PermissionAdvised() bool {
	v, err := s.get(keyPermissionAdvised)
	return err == nil && v == "1"
}

// MarkPermissionAdvised records that the advisory was shown.
func (s *Store) MarkPermissionAdvised() error {
	return s.put(keyPermissionAdvised, "1")
}
