package services

import (
	"context"
	"fmt"
	"log/slog"

	"networth/internal/storage"

	"github.com/shopspring/decimal"
)

// Classifier recomputes the frivolous flag for a month of transactions.
type Classifier struct {
	storage *storage.SQLiteRepository
}

func NewClassifier(repo *storage.SQLiteRepository) *Classifier {
	return &Classifier{storage: repo}
}

// Classify walks the month's transactions in (date, id) order keeping
// running spend totals. A discretionary outflow is frivolous once the
// updated category or overall total has crossed its active budget limit.
// Earlier transactions are not re-marked when a later one crosses the
// limit. Totals start at zero every run, so reruns are idempotent.
func (c *Classifier) Classify(ctx context.Context, year, month int) error {
	txns, err := c.storage.ListTransactionsForMonth(ctx, year, month)
	if err != nil {
		return fmt.Errorf("load month transactions: %w", err)
	}

	mainBudget, hasMain, err := c.storage.GetActiveMainBudget(ctx)
	if err != nil {
		return fmt.Errorf("load main budget: %w", err)
	}
	categoryBudgets, err := c.storage.ListActiveCategoryBudgets(ctx)
	if err != nil {
		return fmt.Errorf("load category budgets: %w", err)
	}
	limits := make(map[string]decimal.Decimal, len(categoryBudgets))
	for _, b := range categoryBudgets {
		limits[b.Category] = b.MonthlyLimit
	}

	mainSpend := decimal.Zero
	categorySpend := make(map[string]decimal.Decimal)
	var updates []storage.FrivolousUpdate
	flagged := 0

	for _, txn := range txns {
		// Inflows and transfers are never classified; their flag keeps
		// whatever value it had.
		if !txn.Amount.IsPositive() {
			continue
		}

		category := txn.BudgetCategory()
		mainSpend = mainSpend.Add(txn.Amount)
		categoryTotal := categorySpend[category].Add(txn.Amount)
		categorySpend[category] = categoryTotal

		frivolous := false
		if txn.IsDiscretionary {
			if limit, ok := limits[category]; ok && categoryTotal.GreaterThan(limit) {
				frivolous = true
			}
			if !frivolous && hasMain && mainSpend.GreaterThan(mainBudget.MonthlyLimit) {
				frivolous = true
			}
		}
		if frivolous {
			flagged++
		}
		if frivolous != txn.IsFrivolous {
			updates = append(updates, storage.FrivolousUpdate{ID: txn.ID, IsFrivolous: frivolous})
		}
	}

	if err := c.storage.SetFrivolousFlags(ctx, updates); err != nil {
		return fmt.Errorf("persist frivolous flags: %w", err)
	}

	slog.InfoContext(ctx, "Classified month",
		"year", year, "month", month,
		"transactions", len(txns), "frivolous", flagged, "changed", len(updates))
	return nil
}
