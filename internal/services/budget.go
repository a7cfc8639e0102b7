package services

import (
	"context"
	"fmt"

	"networth/internal/storage"

	"github.com/shopspring/decimal"
)

// BudgetLine is the month-to-date standing of one budget.
type BudgetLine struct {
	Category   string          `json:"category"`
	Limit      decimal.Decimal `json:"limit"`
	Spent      decimal.Decimal `json:"spent"`
	Remaining  decimal.Decimal `json:"remaining"`
	Percentage decimal.Decimal `json:"percentage"`
}

// BudgetStatus is the month's spending joined against active budgets.
// Categories without a configured budget are absent from Categories but
// still counted in TotalSpending.
type BudgetStatus struct {
	Year          int             `json:"year"`
	Month         int             `json:"month"`
	Main          *BudgetLine     `json:"main,omitempty"`
	Categories    []BudgetLine    `json:"categories"`
	TotalSpending decimal.Decimal `json:"total_spending"`
}

// BudgetService reports budget standing for a month.
type BudgetService struct {
	storage *storage.SQLiteRepository
}

func NewBudgetService(repo *storage.SQLiteRepository) *BudgetService {
	return &BudgetService{storage: repo}
}

// Status sums positive-amount transactions for the month by category and
// overall, then joins the totals against active budgets.
func (s *BudgetService) Status(ctx context.Context, year, month int) (BudgetStatus, error) {
	txns, err := s.storage.ListTransactionsForMonth(ctx, year, month)
	if err != nil {
		return BudgetStatus{}, fmt.Errorf("load month transactions: %w", err)
	}

	totalSpend := decimal.Zero
	categorySpend := make(map[string]decimal.Decimal)
	for _, txn := range txns {
		if !txn.Amount.IsPositive() {
			continue
		}
		totalSpend = totalSpend.Add(txn.Amount)
		category := txn.BudgetCategory()
		categorySpend[category] = categorySpend[category].Add(txn.Amount)
	}

	status := BudgetStatus{
		Year:          year,
		Month:         month,
		Categories:    []BudgetLine{},
		TotalSpending: totalSpend,
	}

	mainBudget, hasMain, err := s.storage.GetActiveMainBudget(ctx)
	if err != nil {
		return BudgetStatus{}, fmt.Errorf("load main budget: %w", err)
	}
	if hasMain {
		line := budgetLine(mainBudget.Category, mainBudget.MonthlyLimit, totalSpend)
		status.Main = &line
	}

	categoryBudgets, err := s.storage.ListActiveCategoryBudgets(ctx)
	if err != nil {
		return BudgetStatus{}, fmt.Errorf("load category budgets: %w", err)
	}
	for _, b := range categoryBudgets {
		status.Categories = append(status.Categories,
			budgetLine(b.Category, b.MonthlyLimit, categorySpend[b.Category]))
	}
	return status, nil
}

// budgetLine derives the remaining and percentage figures. A limit of zero
// or less yields percentage zero rather than a division error.
func budgetLine(category string, limit, spent decimal.Decimal) BudgetLine {
	percentage := decimal.Zero
	if limit.IsPositive() {
		percentage = spent.Div(limit).Mul(decimal.NewFromInt(100)).Round(1)
	}
	return BudgetLine{
		Category:   category,
		Limit:      limit,
		Spent:      spent,
		Remaining:  limit.Sub(spent),
		Percentage: percentage,
	}
}
