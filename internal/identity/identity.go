// Package identity resolves or creates the (id, name) pair that identifies
// the person claiming items on this device.
//
// Identities live only in local storage: there is no network call, no
// server-side record, and no way to change or delete one once created.
package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mmynk/splitclaim/internal/models"
)

// Store persists the identity locally.
type Store interface {
	// Read returns the stored user, or nil and no error when none is stored.
	Read(ctx context.Context) (*models.User, error)

	// Write persists the user, replacing anything stored before.
	Write(ctx context.Context, user models.User) error
}

// Provider resolves and registers the local identity.
type Provider struct {
	store  Store
	logger *slog.Logger
}

// NewProvider creates a Provider backed by store. A nil logger uses slog's
// default.
func NewProvider(store Store, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{store: store, logger: logger}
}

// Resolve returns the stored identity. It reports false when nothing is
// stored, and also when the store cannot be read, so an unreadable store
// leads to re-registration rather than an error.
func (p *Provider) Resolve(ctx context.Context) (*models.User, bool) {
	user, err := p.store.Read(ctx)
	if err != nil {
		p.logger.Warn("Identity storage unavailable, treating as unregistered", "error", err)
		return nil, false
	}
	if user == nil {
		return nil, false
	}
	return user, true
}

// Register creates a new identity with a random ID and persists it.
// The name is stored as given; callers are expected to trim it and reject
// empty names before calling.
func (p *Provider) Register(ctx context.Context, name string) (*models.User, error) {
	user := models.User{
		ID:   uuid.New().String(),
		Name: name,
	}
	if err := p.store.Write(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to persist identity: %w", err)
	}

	p.logger.Info("Identity registered", "user_id", user.ID, "name", user.Name)
	return &user, nil
}
