package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitclaim/internal/calculator"
	"github.com/mmynk/splitclaim/internal/models"
	"github.com/mmynk/splitclaim/internal/storage"
)

const claimColumns = "id, item_id, user_id, user_name, percentage, created_at"

// ListClaims retrieves every claim on the given items.
func (s *SQLiteStore) ListClaims(ctx context.Context, itemIDs []string) (_ []models.Claim, err error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}

	ctx, span := startSpan(ctx, "ListClaims")
	defer func() { endSpan(span, err) }()

	query := `SELECT ` + claimColumns + ` FROM claims
		WHERE item_id IN (` + placeholders(len(itemIDs)) + `)
		ORDER BY created_at, id`

	args := make([]any, len(itemIDs))
	for i, id := range itemIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	var claims []models.Claim
	for rows.Next() {
		var c models.Claim
		if err := rows.Scan(&c.ID, &c.ItemID, &c.UserID, &c.UserName, &c.Percentage, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claims = append(claims, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate claims: %w", err)
	}

	return claims, nil
}

// ToggleClaim joins the user to the item's split, or removes them if they were
// already on it, then rebalances every remaining claim's percentage.
func (s *SQLiteStore) ToggleClaim(ctx context.Context, billID, itemID, userID, userName string) (_ *storage.ToggleResult, err error) {
	ctx, span := startSpan(ctx, "ToggleClaim")
	defer func() { endSpan(span, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM items WHERE id = ? AND bill_id = ?", itemID, billID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s on bill %s: %w", itemID, billID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check item: %w", err)
	}

	result := &storage.ToggleResult{}

	var existing models.Claim
	err = tx.QueryRowContext(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE item_id = ? AND user_id = ?`,
		itemID, userID,
	).Scan(&existing.ID, &existing.ItemID, &existing.UserID, &existing.UserName, &existing.Percentage, &existing.CreatedAt)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx, "DELETE FROM claims WHERE id = ?", existing.ID); err != nil {
			return nil, fmt.Errorf("failed to delete claim: %w", err)
		}
		result.Deleted = &existing
	case errors.Is(err, sql.ErrNoRows):
		claim := models.Claim{
			ID:        uuid.New().String(),
			ItemID:    itemID,
			UserID:    userID,
			UserName:  userName,
			CreatedAt: time.Now().Unix(),
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO claims (`+claimColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
			claim.ID, claim.ItemID, claim.UserID, claim.UserName, claim.Percentage, claim.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert claim: %w", err)
		}
		result.Inserted = &claim
	default:
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}

	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM claims WHERE item_id = ?", itemID).Scan(&result.Count); err != nil {
		return nil, fmt.Errorf("failed to count claims: %w", err)
	}

	percentage := calculator.Rebalance(result.Count)
	if result.Count > 0 {
		if _, err := tx.ExecContext(ctx, "UPDATE claims SET percentage = ? WHERE item_id = ?", percentage, itemID); err != nil {
			return nil, fmt.Errorf("failed to rebalance claims: %w", err)
		}
	}
	if result.Inserted != nil {
		result.Inserted.Percentage = percentage
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}

// placeholders returns n comma-separated "?" for an IN clause.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
