package storage

import (
	"context"
	"database/sql"
	"fmt"

	"networth/internal/core"
)

// SeedCategoryConfigs inserts the default category policy rows. The seed is
// idempotent: if any row already exists the call is a no-op and returns
// false.
func (r *SQLiteRepository) SeedCategoryConfigs(ctx context.Context, configs []core.CategoryConfig) (bool, error) {
	var seeded bool
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var count int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM category_config`).Scan(&count); err != nil {
			return fmt.Errorf("count category config: %w", err)
		}
		if count > 0 {
			return nil
		}

		for _, c := range configs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO category_config (category, display_name, is_discretionary)
				VALUES (?, ?, ?)`,
				c.Category, c.DisplayName, c.IsDiscretionary)
			if err != nil {
				return fmt.Errorf("insert category config %s: %w", c.Category, err)
			}
		}
		seeded = true
		return nil
	})
	return seeded, err
}

// ListCategoryConfigs returns the full category policy, longest label first
// then lexicographic, so substring matching resolves deterministically.
func (r *SQLiteRepository) ListCategoryConfigs(ctx context.Context) ([]core.CategoryConfig, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, category, display_name, is_discretionary
		FROM category_config
		ORDER BY LENGTH(category) DESC, category ASC`)
	if err != nil {
		return nil, fmt.Errorf("list category configs: %w", err)
	}
	defer rows.Close()

	var configs []core.CategoryConfig
	for rows.Next() {
		var c core.CategoryConfig
		if err := rows.Scan(&c.ID, &c.Category, &c.DisplayName, &c.IsDiscretionary); err != nil {
			return nil, fmt.Errorf("scan category config: %w", err)
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// CountCategoryConfigs returns the number of policy rows.
func (r *SQLiteRepository) CountCategoryConfigs(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM category_config`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count category configs: %w", err)
	}
	return n, nil
}
