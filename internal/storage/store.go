// Package storage provides abstractions for the bill data store.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/splitclaim/internal/models"
)

// ErrNotFound is returned when a bill or item does not exist.
var ErrNotFound = errors.New("not found")

// Reader is the read contract the client relies on.
// The three reads are independent and not transactional with each other.
type Reader interface {
	// GetBill retrieves a single bill by ID.
	// Returns ErrNotFound (wrapped) if the bill does not exist.
	GetBill(ctx context.Context, billID string) (*models.Bill, error)

	// ListItems returns the items of a bill ordered by unit price, highest first.
	ListItems(ctx context.Context, billID string) ([]models.Item, error)

	// ListClaims returns every claim referencing one of the given item IDs.
	// An empty itemIDs slice yields no claims.
	ListClaims(ctx context.Context, itemIDs []string) ([]models.Claim, error)
}

// ToggleResult describes the outcome of a claim toggle.
// Exactly one of Inserted and Deleted is set.
type ToggleResult struct {
	Inserted *models.Claim
	Deleted  *models.Claim

	// Count is the number of claims left on the item after the toggle.
	Count int
}

// Store defines the full bill store used by the server.
// This abstraction allows swapping storage backends without changing the
// service layer.
type Store interface {
	Reader

	// CreateBill persists a bill and its items.
	// Empty IDs are generated by the store, as is CreatedAt.
	CreateBill(ctx context.Context, bill *models.Bill, items []models.Item) error

	// ToggleClaim adds the user's claim on an item, or removes it if one exists,
	// and rewrites the percentage of every remaining claim on that item.
	// Returns ErrNotFound (wrapped) if the item does not belong to the bill.
	ToggleClaim(ctx context.Context, billID, itemID, userID, userName string) (*ToggleResult, error)

	// Close releases any resources held by the store.
	Close() error
}
