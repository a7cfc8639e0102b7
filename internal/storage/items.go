package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"networth/internal/core"
)

var ErrItemNotFound = errors.New("linked item not found")

const itemColumns = `id, item_id, access_token, institution_id, institution_name,
	status, sync_cursor, last_successful_sync, created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }) (core.LinkedItem, error) {
	var (
		item     core.LinkedItem
		status   string
		lastSync sql.NullTime
	)
	err := row.Scan(
		&item.ID, &item.ItemID, &item.AccessToken, &item.InstitutionID,
		&item.InstitutionName, &status, &item.SyncCursor,
		&lastSync, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return core.LinkedItem{}, err
	}
	item.Status = core.ItemStatus(status)
	if lastSync.Valid {
		t := lastSync.Time
		item.LastSuccessfulSync = &t
	}
	return item, nil
}

// CreateItem persists a newly linked item. The provider item identifier is
// the natural key; linking the same institution twice reuses the row and
// refreshes the credential.
func (r *SQLiteRepository) CreateItem(ctx context.Context, item core.LinkedItem) (core.LinkedItem, error) {
	if err := item.Validate(); err != nil {
		return core.LinkedItem{}, fmt.Errorf("validate item: %w", err)
	}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var existingID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM linked_items WHERE item_id = ?`, item.ItemID,
		).Scan(&existingID)
		switch {
		case err == sql.ErrNoRows:
			res, err := tx.ExecContext(ctx, `
				INSERT INTO linked_items (item_id, access_token, institution_id, institution_name, status)
				VALUES (?, ?, ?, ?, ?)`,
				item.ItemID, item.AccessToken, item.InstitutionID, item.InstitutionName, string(core.ItemStatusActive))
			if err != nil {
				return fmt.Errorf("insert item: %w", err)
			}
			item.ID, err = res.LastInsertId()
			if err != nil {
				return fmt.Errorf("item insert id: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("query item: %w", err)
		default:
			_, err := tx.ExecContext(ctx, `
				UPDATE linked_items
				SET access_token = ?, institution_name = ?, status = ?, updated_at = CURRENT_TIMESTAMP
				WHERE id = ?`,
				item.AccessToken, item.InstitutionName, string(core.ItemStatusActive), existingID)
			if err != nil {
				return fmt.Errorf("update item: %w", err)
			}
			item.ID = existingID
			return nil
		}
	})
	if err != nil {
		return core.LinkedItem{}, err
	}

	item.Status = core.ItemStatusActive
	return item, nil
}

// GetItem returns the item with the given provider item identifier.
func (r *SQLiteRepository) GetItem(ctx context.Context, itemID string) (core.LinkedItem, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM linked_items WHERE item_id = ?`, itemID)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return core.LinkedItem{}, ErrItemNotFound
	}
	if err != nil {
		return core.LinkedItem{}, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ListActiveItems returns all items eligible for reconciliation.
func (r *SQLiteRepository) ListActiveItems(ctx context.Context) ([]core.LinkedItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM linked_items WHERE status = ? ORDER BY id`,
		string(core.ItemStatusActive))
	if err != nil {
		return nil, fmt.Errorf("list active items: %w", err)
	}
	defer rows.Close()

	var items []core.LinkedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SetItemStatus transitions an item. Items are never deleted.
func (r *SQLiteRepository) SetItemStatus(ctx context.Context, itemID string, status core.ItemStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE linked_items SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE item_id = ?`,
		string(status), itemID)
	if err != nil {
		return fmt.Errorf("set item status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set item status: %w", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// MarkItemSynced stamps the last successful sync time.
func (r *SQLiteRepository) MarkItemSynced(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE linked_items SET last_successful_sync = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		at.UTC(), id)
	if err != nil {
		return fmt.Errorf("mark item synced: %w", err)
	}
	return nil
}
