package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"networth/internal/core"

	"github.com/shopspring/decimal"
)

var ErrAccountNotFound = errors.New("account not found")

// UpsertAccountParams carries the mutable provider fields of an account.
// The account type is applied only at creation; later syncs never change it.
type UpsertAccountParams struct {
	ExternalID      string
	ItemID          string
	InstitutionName string
	Name            string
	OfficialName    string
	Type            core.AccountType
	Mask            string
}

// BalanceInput is one day's balance for an account. Available and credit
// limit stay null when the provider omits them.
type BalanceInput struct {
	Current     decimal.Decimal
	Available   decimal.NullDecimal
	CreditLimit decimal.NullDecimal
}

// AccountWithBalance is the read view joining an account to its most recent
// balance snapshot, if any.
type AccountWithBalance struct {
	Account        core.Account
	CurrentBalance decimal.NullDecimal
}

const accountColumns = `id, external_id, item_id, institution_name, name, official_name,
	account_type, mask, is_active, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (core.Account, error) {
	var (
		a           core.Account
		accountType string
	)
	err := row.Scan(
		&a.ID, &a.ExternalID, &a.ItemID, &a.InstitutionName, &a.Name,
		&a.OfficialName, &accountType, &a.Mask, &a.IsActive, &a.CreatedAt, &a.UpdatedAt,
	)
	a.Type = core.AccountType(accountType)
	return a, err
}

func upsertAccountTx(ctx context.Context, tx *sql.Tx, p UpsertAccountParams) (int64, error) {
	if p.ExternalID == "" {
		return 0, core.ErrEmptyExternalID
	}

	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM accounts WHERE external_id = ?`, p.ExternalID,
	).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (external_id, item_id, institution_name, name, official_name, account_type, mask)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ExternalID, p.ItemID, p.InstitutionName, p.Name, p.OfficialName, string(p.Type), p.Mask)
		if err != nil {
			return 0, fmt.Errorf("insert account: %w", err)
		}
		return res.LastInsertId()
	case err != nil:
		return 0, fmt.Errorf("query account: %w", err)
	default:
		// Display fields track the provider; type and external id are fixed.
		_, err := tx.ExecContext(ctx, `
			UPDATE accounts
			SET name = ?, official_name = ?, institution_name = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			p.Name, p.OfficialName, p.InstitutionName, id)
		if err != nil {
			return 0, fmt.Errorf("update account: %w", err)
		}
		return id, nil
	}
}

func upsertBalanceTx(ctx context.Context, tx *sql.Tx, accountID int64, date string, b BalanceInput) error {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM balance_history WHERE account_id = ? AND date = ?`,
		accountID, date,
	).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO balance_history (account_id, date, current_balance, available_balance, credit_limit)
			VALUES (?, ?, ?, ?, ?)`,
			accountID, date, b.Current, b.Available, b.CreditLimit)
		if err != nil {
			return fmt.Errorf("insert balance: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("query balance: %w", err)
	default:
		_, err := tx.ExecContext(ctx, `
			UPDATE balance_history
			SET current_balance = ?, available_balance = ?, credit_limit = ?
			WHERE id = ?`,
			b.Current, b.Available, b.CreditLimit, id)
		if err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		return nil
	}
}

// UpsertAccountBalance upserts an account by its external identifier and
// records its balance for the given date, as one atomic step.
func (r *SQLiteRepository) UpsertAccountBalance(ctx context.Context, p UpsertAccountParams, b BalanceInput, date string) (core.Account, error) {
	var accountID int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		id, err := upsertAccountTx(ctx, tx, p)
		if err != nil {
			return err
		}
		accountID = id
		return upsertBalanceTx(ctx, tx, id, date, b)
	})
	if err != nil {
		return core.Account{}, err
	}
	return r.GetAccountByID(ctx, accountID)
}

// RecordBalance upserts one (account, date) balance row outside a sync run.
func (r *SQLiteRepository) RecordBalance(ctx context.Context, accountID int64, b BalanceInput, date string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		return upsertBalanceTx(ctx, tx, accountID, date, b)
	})
}

func (r *SQLiteRepository) GetAccountByID(ctx context.Context, id int64) (core.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return core.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *SQLiteRepository) GetAccountByExternalID(ctx context.Context, externalID string) (core.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE external_id = ?`, externalID)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return core.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account by external id: %w", err)
	}
	return a, nil
}

// ListActiveAccounts returns all active accounts ordered by id.
func (r *SQLiteRepository) ListActiveAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// ListAccountsWithLatestBalance returns active accounts joined with their
// most recent balance, for the accounts read view.
func (r *SQLiteRepository) ListAccountsWithLatestBalance(ctx context.Context) ([]AccountWithBalance, error) {
	accounts, err := r.ListActiveAccounts(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]AccountWithBalance, 0, len(accounts))
	for _, a := range accounts {
		var current decimal.NullDecimal
		err := r.db.QueryRowContext(ctx, `
			SELECT current_balance FROM balance_history
			WHERE account_id = ?
			ORDER BY date DESC LIMIT 1`, a.ID,
		).Scan(&current)
		if err != nil && err != sql.ErrNoRows {
			return nil, fmt.Errorf("latest balance for account %d: %w", a.ID, err)
		}
		result = append(result, AccountWithBalance{Account: a, CurrentBalance: current})
	}
	return result, nil
}

// LatestBalanceOnOrBefore returns the newest balance snapshot for an account
// dated at or before the given date. The boolean is false when the account
// has no balance history in that window.
func (r *SQLiteRepository) LatestBalanceOnOrBefore(ctx context.Context, accountID int64, date string) (core.BalanceSnapshot, bool, error) {
	var (
		b       core.BalanceSnapshot
		dateStr string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, date, current_balance, available_balance, credit_limit
		FROM balance_history
		WHERE account_id = ? AND date <= ?
		ORDER BY date DESC LIMIT 1`,
		accountID, date,
	).Scan(&b.ID, &b.AccountID, &dateStr, &b.Current, &b.Available, &b.CreditLimit)
	if err == sql.ErrNoRows {
		return core.BalanceSnapshot{}, false, nil
	}
	if err != nil {
		return core.BalanceSnapshot{}, false, fmt.Errorf("latest balance on or before: %w", err)
	}

	b.Date, err = parseDate(dateStr)
	if err != nil {
		return core.BalanceSnapshot{}, false, err
	}
	return b, true, nil
}
