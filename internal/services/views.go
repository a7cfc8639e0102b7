package services

import (
	"context"
	"fmt"
	"sort"

	"networth/internal/core"
	"networth/internal/storage"

	"github.com/shopspring/decimal"
)

// HoldingView is a holding with its derived gain figures.
type HoldingView struct {
	Holding         core.Holding
	GainLoss        decimal.NullDecimal
	GainLossPercent decimal.NullDecimal
}

// CategorySpending is one row of the month's spending breakdown.
type CategorySpending struct {
	Category  string          `json:"category"`
	Total     decimal.Decimal `json:"total"`
	Necessary decimal.Decimal `json:"necessary"`
	Frivolous decimal.Decimal `json:"frivolous"`
	Count     int             `json:"count"`
}

// TransactionFilter narrows a month's transaction listing.
type TransactionFilter struct {
	Category      string
	FrivolousOnly bool
}

// ViewService serves the read-only queries. These never fail because of
// sync problems; they reflect whatever was last persisted.
type ViewService struct {
	storage *storage.SQLiteRepository
}

func NewViewService(repo *storage.SQLiteRepository) *ViewService {
	return &ViewService{storage: repo}
}

func (s *ViewService) AccountsWithBalances(ctx context.Context) ([]storage.AccountWithBalance, error) {
	accounts, err := s.storage.ListAccountsWithLatestBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("accounts with balances: %w", err)
	}
	return accounts, nil
}

func (s *ViewService) Holdings(ctx context.Context) ([]HoldingView, error) {
	holdings, err := s.storage.ListHoldings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}
	views := make([]HoldingView, 0, len(holdings))
	for _, h := range holdings {
		views = append(views, HoldingView{
			Holding:         h,
			GainLoss:        h.GainLoss(),
			GainLossPercent: h.GainLossPercent(),
		})
	}
	return views, nil
}

func (s *ViewService) TransactionsForMonth(ctx context.Context, year, month int, filter TransactionFilter) ([]core.Transaction, error) {
	txns, err := s.storage.ListTransactionsForMonth(ctx, year, month)
	if err != nil {
		return nil, fmt.Errorf("transactions for month: %w", err)
	}

	filtered := make([]core.Transaction, 0, len(txns))
	for _, txn := range txns {
		if filter.Category != "" && txn.Category() != filter.Category {
			continue
		}
		if filter.FrivolousOnly && !txn.IsFrivolous {
			continue
		}
		filtered = append(filtered, txn)
	}
	return filtered, nil
}

// SpendingByCategory breaks the month's outflows down per category, largest
// total first.
func (s *ViewService) SpendingByCategory(ctx context.Context, year, month int) ([]CategorySpending, error) {
	txns, err := s.storage.ListTransactionsForMonth(ctx, year, month)
	if err != nil {
		return nil, fmt.Errorf("transactions for month: %w", err)
	}

	byCategory := make(map[string]*CategorySpending)
	for _, txn := range txns {
		if !txn.Amount.IsPositive() {
			continue
		}
		category := txn.Category()
		row, ok := byCategory[category]
		if !ok {
			row = &CategorySpending{Category: category}
			byCategory[category] = row
		}
		row.Total = row.Total.Add(txn.Amount)
		if txn.IsFrivolous {
			row.Frivolous = row.Frivolous.Add(txn.Amount)
		} else {
			row.Necessary = row.Necessary.Add(txn.Amount)
		}
		row.Count++
	}

	rows := make([]CategorySpending, 0, len(byCategory))
	for _, row := range byCategory {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Total.Equal(rows[j].Total) {
			return rows[i].Total.GreaterThan(rows[j].Total)
		}
		return rows[i].Category < rows[j].Category
	})
	return rows, nil
}
