package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"networth/internal/core"
	"networth/internal/storage"

	"github.com/shopspring/decimal"
)

// NetWorthService buckets account balances into a dated snapshot.
type NetWorthService struct {
	storage *storage.SQLiteRepository
}

func NewNetWorthService(repo *storage.SQLiteRepository) *NetWorthService {
	return &NetWorthService{storage: repo}
}

// ComputeNetWorth totals each active account's most recent balance at or
// before the given date. Accounts with no balance history contribute zero.
func (s *NetWorthService) ComputeNetWorth(ctx context.Context, date time.Time) (core.NetWorthSnapshot, error) {
	accounts, err := s.storage.ListActiveAccounts(ctx)
	if err != nil {
		return core.NetWorthSnapshot{}, fmt.Errorf("list accounts: %w", err)
	}

	day := core.DateOnly(date)
	dayStr := day.Format(dateLayout)
	cash := decimal.Zero
	investments := decimal.Zero
	debt := decimal.Zero

	for _, acct := range accounts {
		snap, ok, err := s.storage.LatestBalanceOnOrBefore(ctx, acct.ID, dayStr)
		if err != nil {
			return core.NetWorthSnapshot{}, fmt.Errorf("balance for account %d: %w", acct.ID, err)
		}
		if !ok {
			continue
		}

		switch {
		case acct.Type.IsCash():
			cash = cash.Add(snap.Current)
		case acct.Type.IsInvestment():
			investments = investments.Add(snap.Current)
		case acct.Type == core.AccountTypeCreditCard:
			debt = debt.Add(snap.Current)
		}
	}

	assets := cash.Add(investments)
	liabilities := debt
	return core.NetWorthSnapshot{
		Date:                day,
		TotalCash:           cash,
		TotalInvestments:    investments,
		TotalAssets:         assets,
		TotalCreditCardDebt: debt,
		TotalLiabilities:    liabilities,
		NetWorth:            assets.Sub(liabilities),
	}, nil
}

// RecordSnapshot computes and persists the snapshot for a date. Running it
// again the same day overwrites the earlier row.
func (s *NetWorthService) RecordSnapshot(ctx context.Context, date time.Time) (core.NetWorthSnapshot, error) {
	snapshot, err := s.ComputeNetWorth(ctx, date)
	if err != nil {
		return core.NetWorthSnapshot{}, err
	}
	if err := s.storage.UpsertNetWorthSnapshot(ctx, snapshot); err != nil {
		return core.NetWorthSnapshot{}, fmt.Errorf("persist snapshot: %w", err)
	}

	slog.InfoContext(ctx, "Recorded net worth snapshot",
		"date", snapshot.Date.Format(dateLayout),
		"net_worth", snapshot.NetWorth.String())
	return snapshot, nil
}

// History returns the persisted snapshots over a trailing window of days,
// oldest first.
func (s *NetWorthService) History(ctx context.Context, days int) ([]core.NetWorthSnapshot, error) {
	if days <= 0 {
		days = 30
	}
	since := core.DateOnly(time.Now()).AddDate(0, 0, -days).Format(dateLayout)
	history, err := s.storage.ListNetWorthHistory(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("net worth history: %w", err)
	}
	return history, nil
}
