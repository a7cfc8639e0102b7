package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"networth/internal/core"
	"networth/internal/storage"
)

// CategoryPolicy decides whether a provider category counts as discretionary
// spending. Matching is a case-insensitive substring test: a config label
// matches when it contains the transaction's primary category. With several
// matches the longest label wins, ties broken lexicographically.
type CategoryPolicy struct {
	configs []core.CategoryConfig
}

func NewCategoryPolicy(configs []core.CategoryConfig) *CategoryPolicy {
	return &CategoryPolicy{configs: configs}
}

// LookupDiscretionary returns the verdict for a primary category. An empty
// category or no matching label means not discretionary.
func (p *CategoryPolicy) LookupDiscretionary(primary string) bool {
	if primary == "" {
		return false
	}
	needle := strings.ToLower(primary)

	// configs arrive ordered longest label first, so the first hit is the
	// winning match.
	for _, c := range p.configs {
		if strings.Contains(strings.ToLower(c.Category), needle) {
			return c.IsDiscretionary
		}
	}
	return false
}

// SeedDefaultCategories installs the default category policy on first run.
// Subsequent calls are no-ops.
func SeedDefaultCategories(ctx context.Context, repo *storage.SQLiteRepository) error {
	seeded, err := repo.SeedCategoryConfigs(ctx, core.DefaultCategoryConfigs())
	if err != nil {
		return fmt.Errorf("seed category configs: %w", err)
	}
	if seeded {
		slog.InfoContext(ctx, "Seeded default category policy",
			"categories", len(core.DefaultCategoryConfigs()))
	}
	return nil
}

// LoadCategoryPolicy reads the current policy from storage.
func LoadCategoryPolicy(ctx context.Context, repo *storage.SQLiteRepository) (*CategoryPolicy, error) {
	configs, err := repo.ListCategoryConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load category policy: %w", err)
	}
	return NewCategoryPolicy(configs), nil
}
