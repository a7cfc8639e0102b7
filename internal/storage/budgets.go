package storage

import (
	"context"
	"database/sql"
	"fmt"

	"networth/internal/core"

	"github.com/shopspring/decimal"
)

func scanBudget(row interface{ Scan(...any) error }) (core.Budget, error) {
	var b core.Budget
	err := row.Scan(&b.ID, &b.Category, &b.MonthlyLimit, &b.IsMain, &b.IsActive)
	return b, err
}

const budgetColumns = `id, category, monthly_limit, is_main, is_active`

// SetMainBudget upserts the single overall monthly budget. At most one MAIN
// row ever exists; the upsert queries before writing under one transaction.
func (r *SQLiteRepository) SetMainBudget(ctx context.Context, monthlyLimit decimal.Decimal) (core.Budget, error) {
	return r.upsertBudget(ctx, core.MainBudgetCategory, monthlyLimit, true)
}

// SetCategoryBudget upserts the budget for one category.
func (r *SQLiteRepository) SetCategoryBudget(ctx context.Context, category string, monthlyLimit decimal.Decimal) (core.Budget, error) {
	b := core.Budget{Category: category}
	if err := b.Validate(); err != nil {
		return core.Budget{}, fmt.Errorf("validate budget: %w", err)
	}
	return r.upsertBudget(ctx, category, monthlyLimit, false)
}

func (r *SQLiteRepository) upsertBudget(ctx context.Context, category string, monthlyLimit decimal.Decimal, isMain bool) (core.Budget, error) {
	budget := core.Budget{
		Category:     category,
		MonthlyLimit: monthlyLimit,
		IsMain:       isMain,
		IsActive:     true,
	}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var id int64
		var err error
		if isMain {
			err = tx.QueryRowContext(ctx,
				`SELECT id FROM budgets WHERE is_main = 1`).Scan(&id)
		} else {
			err = tx.QueryRowContext(ctx,
				`SELECT id FROM budgets WHERE category = ? AND is_main = 0`, category).Scan(&id)
		}

		switch {
		case err == sql.ErrNoRows:
			res, err := tx.ExecContext(ctx, `
				INSERT INTO budgets (category, monthly_limit, is_main, is_active)
				VALUES (?, ?, ?, 1)`,
				category, monthlyLimit, isMain)
			if err != nil {
				return fmt.Errorf("insert budget: %w", err)
			}
			budget.ID, err = res.LastInsertId()
			if err != nil {
				return fmt.Errorf("budget insert id: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("query budget: %w", err)
		default:
			_, err := tx.ExecContext(ctx, `
				UPDATE budgets
				SET monthly_limit = ?, is_active = 1, updated_at = CURRENT_TIMESTAMP
				WHERE id = ?`,
				monthlyLimit, id)
			if err != nil {
				return fmt.Errorf("update budget: %w", err)
			}
			budget.ID = id
			return nil
		}
	})
	if err != nil {
		return core.Budget{}, err
	}
	return budget, nil
}

// GetActiveMainBudget returns the MAIN budget. The boolean is false when no
// active main budget is configured.
func (r *SQLiteRepository) GetActiveMainBudget(ctx context.Context) (core.Budget, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE is_main = 1 AND is_active = 1`)
	b, err := scanBudget(row)
	if err == sql.ErrNoRows {
		return core.Budget{}, false, nil
	}
	if err != nil {
		return core.Budget{}, false, fmt.Errorf("get main budget: %w", err)
	}
	return b, true, nil
}

// ListActiveCategoryBudgets returns all active non-main budgets.
func (r *SQLiteRepository) ListActiveCategoryBudgets(ctx context.Context) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE is_main = 0 AND is_active = 1 ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("list category budgets: %w", err)
	}
	defer rows.Close()

	var budgets []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

// ListActiveBudgets returns all active budgets, main first.
func (r *SQLiteRepository) ListActiveBudgets(ctx context.Context) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE is_active = 1 ORDER BY is_main DESC, category`)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var budgets []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

// DeactivateBudget soft-disables a budget; history stays intact.
func (r *SQLiteRepository) DeactivateBudget(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE budgets SET is_active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate budget: %w", err)
	}
	return nil
}
