package storage

import (
	"context"
	"database/sql"
	"fmt"

	"networth/internal/core"
)

const netWorthColumns = `id, date, total_cash, total_investments, total_assets,
	total_credit_card_debt, total_liabilities, net_worth`

func scanNetWorth(row interface{ Scan(...any) error }) (core.NetWorthSnapshot, error) {
	var s core.NetWorthSnapshot
	var date string
	err := row.Scan(&s.ID, &date, &s.TotalCash, &s.TotalInvestments,
		&s.TotalAssets, &s.TotalCreditCardDebt, &s.TotalLiabilities, &s.NetWorth)
	if err != nil {
		return core.NetWorthSnapshot{}, err
	}
	s.Date, err = parseDate(date)
	if err != nil {
		return core.NetWorthSnapshot{}, err
	}
	return s, nil
}

// UpsertNetWorthSnapshot writes the snapshot for its date, replacing any
// earlier snapshot taken the same day.
func (r *SQLiteRepository) UpsertNetWorthSnapshot(ctx context.Context, s core.NetWorthSnapshot) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		date := dateString(s.Date)

		var id int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM net_worth_history WHERE date = ?`, date).Scan(&id)
		switch {
		case err == sql.ErrNoRows:
			_, err = tx.ExecContext(ctx, `
				INSERT INTO net_worth_history
					(date, total_cash, total_investments, total_assets,
					 total_credit_card_debt, total_liabilities, net_worth)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				date, s.TotalCash, s.TotalInvestments, s.TotalAssets,
				s.TotalCreditCardDebt, s.TotalLiabilities, s.NetWorth)
			if err != nil {
				return fmt.Errorf("insert net worth snapshot: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("lookup net worth snapshot: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE net_worth_history
			SET total_cash = ?, total_investments = ?, total_assets = ?,
			    total_credit_card_debt = ?, total_liabilities = ?, net_worth = ?
			WHERE id = ?`,
			s.TotalCash, s.TotalInvestments, s.TotalAssets,
			s.TotalCreditCardDebt, s.TotalLiabilities, s.NetWorth, id)
		if err != nil {
			return fmt.Errorf("update net worth snapshot: %w", err)
		}
		return nil
	})
}

// GetNetWorthSnapshot returns the snapshot for a date, if one was recorded.
func (r *SQLiteRepository) GetNetWorthSnapshot(ctx context.Context, date string) (core.NetWorthSnapshot, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+netWorthColumns+`
		FROM net_worth_history
		WHERE date = ?`, date)
	s, err := scanNetWorth(row)
	if err == sql.ErrNoRows {
		return core.NetWorthSnapshot{}, false, nil
	}
	if err != nil {
		return core.NetWorthSnapshot{}, false, fmt.Errorf("get net worth snapshot: %w", err)
	}
	return s, true, nil
}

// LatestNetWorthSnapshot returns the most recent snapshot, if any exist.
func (r *SQLiteRepository) LatestNetWorthSnapshot(ctx context.Context) (core.NetWorthSnapshot, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+netWorthColumns+`
		FROM net_worth_history
		ORDER BY date DESC
		LIMIT 1`)
	s, err := scanNetWorth(row)
	if err == sql.ErrNoRows {
		return core.NetWorthSnapshot{}, false, nil
	}
	if err != nil {
		return core.NetWorthSnapshot{}, false, fmt.Errorf("latest net worth snapshot: %w", err)
	}
	return s, true, nil
}

// ListNetWorthHistory returns snapshots on or after the given date, oldest
// first.
func (r *SQLiteRepository) ListNetWorthHistory(ctx context.Context, since string) ([]core.NetWorthSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+netWorthColumns+`
		FROM net_worth_history
		WHERE date >= ?
		ORDER BY date ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("list net worth history: %w", err)
	}
	defer rows.Close()

	var snapshots []core.NetWorthSnapshot
	for rows.Next() {
		s, err := scanNetWorth(rows)
		if err != nil {
			return nil, fmt.Errorf("scan net worth snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}
