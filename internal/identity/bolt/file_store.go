package bolt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/mmynk/splitclaim/internal/identity"
	"github.com/mmynk/splitclaim/internal/models"
)

// Ensure FileStore implements identity.Store
var _ identity.Store = (*FileStore)(nil)

// FileStore opens the identity file only for the duration of each call. Reads
// take bbolt's shared lock, so any number of processes can resolve the
// identity while none of them keeps the file open.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore for the file at path. Nothing is opened
// until the first call.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Read returns the stored identity. A missing file means no identity.
func (s *FileStore) Read(ctx context.Context) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Clean(s.path)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open identity db: %w", err)
	}
	defer db.Close()

	return (&Store{db: db}).Read(ctx)
}

// Write creates the file if needed and stores the identity.
func (s *FileStore) Write(ctx context.Context, user models.User) error {
	store, err := Open(s.path)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.Write(ctx, user)
}
