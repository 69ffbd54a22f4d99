// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/splitclaim/internal/models"
	"github.com/mmynk/splitclaim/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas in the DSN apply to every pooled connection.
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; claim toggles run in a transaction.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateBill persists a bill and its items in one transaction.
func (s *SQLiteStore) CreateBill(ctx context.Context, bill *models.Bill, items []models.Item) (err error) {
	ctx, span := startSpan(ctx, "CreateBill")
	defer func() { endSpan(span, err) }()

	if bill.ID == "" {
		bill.ID = uuid.New().String()
	}
	if bill.CreatedAt == 0 {
		bill.CreatedAt = time.Now().Unix()
	}
	if bill.Status == "" {
		bill.Status = models.BillStatusOpen
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var externalID any
	if bill.ExternalID != "" {
		externalID = bill.ExternalID
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO bills (id, status, currency, total_amount, tax_amount, tip_amount, external_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		bill.ID, bill.Status, bill.Currency, bill.TotalAmount, bill.TaxAmount, bill.TipAmount, externalID, bill.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bill: %w", err)
	}

	for i := range items {
		item := &items[i]
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.BillID = bill.ID
		if item.Quantity == 0 {
			item.Quantity = 1
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO items (id, bill_id, name, quantity, unit_price, category) VALUES (?, ?, ?, ?, ?, ?)",
			item.ID, item.BillID, item.Name, item.Quantity, item.UnitPrice, item.Category,
		)
		if err != nil {
			return fmt.Errorf("failed to insert item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetBill retrieves a bill by ID.
func (s *SQLiteStore) GetBill(ctx context.Context, billID string) (_ *models.Bill, err error) {
	ctx, span := startSpan(ctx, "GetBill")
	defer func() { endSpan(span, err) }()

	bill := &models.Bill{}
	var externalID sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT id, status, currency, total_amount, tax_amount, tip_amount, external_id, created_at
		 FROM bills WHERE id = ?`,
		billID,
	).Scan(&bill.ID, &bill.Status, &bill.Currency, &bill.TotalAmount, &bill.TaxAmount, &bill.TipAmount, &externalID, &bill.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bill %s: %w", billID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}

	if externalID.Valid {
		bill.ExternalID = externalID.String
	}

	return bill, nil
}

// ListItems retrieves the items of a bill, most expensive first.
func (s *SQLiteStore) ListItems(ctx context.Context, billID string) (_ []models.Item, err error) {
	ctx, span := startSpan(ctx, "ListItems")
	defer func() { endSpan(span, err) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, bill_id, name, quantity, unit_price, category
		 FROM items WHERE bill_id = ? ORDER BY unit_price DESC, id`,
		billID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		var item models.Item
		if err := rows.Scan(&item.ID, &item.BillID, &item.Name, &item.Quantity, &item.UnitPrice, &item.Category); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}

	return items, nil
}
