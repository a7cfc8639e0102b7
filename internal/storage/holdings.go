package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"networth/internal/core"

	"github.com/shopspring/decimal"
)

// HoldingUpsert is one investment position from the provider. Symbol is
// expected to be resolved already (ticker, name, or the cash sentinel).
type HoldingUpsert struct {
	SecurityID   string
	Symbol       string
	Name         string
	Quantity     decimal.Decimal
	CostBasis    decimal.NullDecimal
	CurrentPrice decimal.NullDecimal
	CurrentValue decimal.NullDecimal
	Currency     string
}

const holdingColumns = `id, account_id, security_id, symbol, name, quantity,
	cost_basis, current_price, current_value, iso_currency_code, as_of_date`

func scanHolding(row interface{ Scan(...any) error }) (core.Holding, error) {
	var (
		h       core.Holding
		asOfStr string
	)
	err := row.Scan(
		&h.ID, &h.AccountID, &h.SecurityID, &h.Symbol, &h.Name, &h.Quantity,
		&h.CostBasis, &h.CurrentPrice, &h.CurrentValue, &h.Currency, &asOfStr,
	)
	if err != nil {
		return core.Holding{}, err
	}
	h.AsOfDate, err = parseDate(asOfStr)
	if err != nil {
		return core.Holding{}, err
	}
	return h, nil
}

// ReplaceHoldings swaps an account's holdings for the latest provider set
// and appends one dated history row per holding, in a single transaction so
// readers never observe an empty window between delete and insert.
func (r *SQLiteRepository) ReplaceHoldings(ctx context.Context, accountID int64, holdings []HoldingUpsert, asOf time.Time) error {
	date := dateString(asOf)

	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM holdings WHERE account_id = ?`, accountID); err != nil {
			return fmt.Errorf("delete holdings: %w", err)
		}

		for _, h := range holdings {
			currency := h.Currency
			if currency == "" {
				currency = core.DefaultCurrency
			}

			_, err := tx.ExecContext(ctx, `
				INSERT INTO holdings (account_id, security_id, symbol, name, quantity,
					cost_basis, current_price, current_value, iso_currency_code, as_of_date)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				accountID, h.SecurityID, h.Symbol, h.Name, h.Quantity,
				h.CostBasis, h.CurrentPrice, h.CurrentValue, currency, date)
			if err != nil {
				return fmt.Errorf("insert holding %s: %w", h.Symbol, err)
			}

			_, err = tx.ExecContext(ctx, `
				INSERT INTO holding_history (account_id, symbol, quantity, current_price, current_value, date)
				VALUES (?, ?, ?, ?, ?, ?)`,
				accountID, h.Symbol, h.Quantity, h.CurrentPrice, h.CurrentValue, date)
			if err != nil {
				return fmt.Errorf("insert holding history %s: %w", h.Symbol, err)
			}
		}
		return nil
	})
}

// ListHoldings returns all current holdings across accounts.
func (r *SQLiteRepository) ListHoldings(ctx context.Context) ([]core.Holding, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+holdingColumns+` FROM holdings ORDER BY account_id, symbol`)
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}
	defer rows.Close()

	var holdings []core.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// ListHoldingsForAccount returns the current holdings of one account.
func (r *SQLiteRepository) ListHoldingsForAccount(ctx context.Context, accountID int64) ([]core.Holding, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+holdingColumns+` FROM holdings WHERE account_id = ? ORDER BY symbol`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list holdings for account: %w", err)
	}
	defer rows.Close()

	var holdings []core.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// CountHoldingHistory returns the number of history rows for an account.
func (r *SQLiteRepository) CountHoldingHistory(ctx context.Context, accountID int64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM holding_history WHERE account_id = ?`, accountID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count holding history: %w", err)
	}
	return n, nil
}
