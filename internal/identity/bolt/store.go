// Package bolt persists the local identity in a BoltDB file, the on-disk
// equivalent of browser local storage: one bucket holding two string keys.
package bolt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/mmynk/splitclaim/internal/identity"
	"github.com/mmynk/splitclaim/internal/models"
)

const (
	identityBucket = "identity"
	userIDKey      = "user_id"
	userNameKey    = "user_name"
)

// Ensure Store implements identity.Store
var _ identity.Store = (*Store)(nil)

// Store provides a BoltDB-backed identity store.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store at the provided path, creating the file
// and its parent directory when missing.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("identity path is required")
	}

	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o700); err != nil {
		return nil, fmt.Errorf("create identity directory: %w", err)
	}

	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open identity db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(identityBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create identity bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Read returns the stored identity. Either key missing means no identity.
func (s *Store) Read(ctx context.Context) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user *models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(identityBucket))
		if bucket == nil {
			return fmt.Errorf("identity bucket is missing")
		}
		id := bucket.Get([]byte(userIDKey))
		name := bucket.Get([]byte(userNameKey))
		if id == nil || name == nil {
			return nil
		}
		// Values are only valid inside the transaction.
		user = &models.User{ID: string(id), Name: string(name)}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read identity: %w", err)
	}
	return user, nil
}

// Write stores both keys in one transaction.
func (s *Store) Write(ctx context.Context, user models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(user.ID) == "" {
		return fmt.Errorf("user id is required")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(identityBucket))
		if bucket == nil {
			return fmt.Errorf("identity bucket is missing")
		}
		if err := bucket.Put([]byte(userIDKey), []byte(user.ID)); err != nil {
			return fmt.Errorf("write user id: %w", err)
		}
		if err := bucket.Put([]byte(userNameKey), []byte(user.Name)); err != nil {
			return fmt.Errorf("write user name: %w", err)
		}
		return nil
	})
}
