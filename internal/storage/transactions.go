package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"networth/internal/core"

	"github.com/shopspring/decimal"
)

// TransactionUpsert carries one provider transaction record ready for
// persistence. The external identifier is the only immutable field; every
// other attribute is re-derived and overwritten on re-sync.
type TransactionUpsert struct {
	AccountID        int64
	ExternalID       string
	Date             time.Time
	Amount           decimal.Decimal
	MerchantName     string
	Description      string
	CategoryPrimary  string
	CategoryDetailed string
	Pending          bool
	IsDiscretionary  bool
}

// FrivolousUpdate sets the classifier's verdict for one transaction.
type FrivolousUpdate struct {
	ID          int64
	IsFrivolous bool
}

const transactionColumns = `id, account_id, external_id, date, amount, merchant_name, description,
	category_primary, category_detailed, custom_category, is_discretionary, is_frivolous, pending`

func scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var (
		t       core.Transaction
		dateStr string
	)
	err := row.Scan(
		&t.ID, &t.AccountID, &t.ExternalID, &dateStr, &t.Amount,
		&t.MerchantName, &t.Description, &t.CategoryPrimary, &t.CategoryDetailed,
		&t.CustomCategory, &t.IsDiscretionary, &t.IsFrivolous, &t.Pending,
	)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Date, err = parseDate(dateStr)
	if err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

func upsertTransactionTx(ctx context.Context, tx *sql.Tx, u TransactionUpsert) error {
	if u.ExternalID == "" {
		return core.ErrEmptyExternalID
	}

	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM transactions WHERE external_id = ?`, u.ExternalID,
	).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (account_id, external_id, date, amount, merchant_name, description,
				category_primary, category_detailed, pending, is_discretionary)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			u.AccountID, u.ExternalID, dateString(u.Date), u.Amount, u.MerchantName, u.Description,
			u.CategoryPrimary, u.CategoryDetailed, u.Pending, u.IsDiscretionary)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("query transaction: %w", err)
	default:
		// Frivolous flag and user category override survive re-syncs; the
		// classifier and the user own those fields.
		_, err := tx.ExecContext(ctx, `
			UPDATE transactions
			SET date = ?, amount = ?, merchant_name = ?, description = ?,
				category_primary = ?, category_detailed = ?, pending = ?, is_discretionary = ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			dateString(u.Date), u.Amount, u.MerchantName, u.Description,
			u.CategoryPrimary, u.CategoryDetailed, u.Pending, u.IsDiscretionary, id)
		if err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		return nil
	}
}

// ApplyTransactionsSync upserts one run's worth of transaction records and
// advances the item's sync cursor, atomically. A crash before this commit
// leaves the old cursor in place so the next run safely re-fetches.
func (r *SQLiteRepository) ApplyTransactionsSync(ctx context.Context, itemRowID int64, nextCursor string, upserts []TransactionUpsert) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		for _, u := range upserts {
			if err := upsertTransactionTx(ctx, tx, u); err != nil {
				return fmt.Errorf("upsert transaction %s: %w", u.ExternalID, err)
			}
		}

		_, err := tx.ExecContext(ctx,
			`UPDATE linked_items SET sync_cursor = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			nextCursor, itemRowID)
		if err != nil {
			return fmt.Errorf("advance sync cursor: %w", err)
		}
		return nil
	})
}

// ListTransactionsForMonth returns the month's transactions ordered by
// (date, id) ascending. The classifier depends on this ordering being
// stable across runs.
func (r *SQLiteRepository) ListTransactionsForMonth(ctx context.Context, year, month int) ([]core.Transaction, error) {
	start, end := core.MonthRange(year, month)

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE date >= ? AND date < ?
		ORDER BY date ASC, id ASC`,
		dateString(start), dateString(end))
	if err != nil {
		return nil, fmt.Errorf("list transactions for month: %w", err)
	}
	defer rows.Close()

	var txns []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// SetFrivolousFlags applies one classification run's verdicts in a single
// transaction so a rerun never observes a half-written month.
func (r *SQLiteRepository) SetFrivolousFlags(ctx context.Context, updates []FrivolousUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		for _, u := range updates {
			_, err := tx.ExecContext(ctx,
				`UPDATE transactions SET is_frivolous = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
				u.IsFrivolous, u.ID)
			if err != nil {
				return fmt.Errorf("set frivolous flag for %d: %w", u.ID, err)
			}
		}
		return nil
	})
}

// SetCustomCategory records a user category override for one transaction.
func (r *SQLiteRepository) SetCustomCategory(ctx context.Context, id int64, category string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET custom_category = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		category, id)
	if err != nil {
		return fmt.Errorf("set custom category: %w", err)
	}
	return nil
}
