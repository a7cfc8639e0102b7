package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"networth/internal/core"

	"github.com/shopspring/decimal"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "networth.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedItem(t *testing.T, repo *SQLiteRepository, itemID string) core.LinkedItem {
	t.Helper()
	item, err := repo.CreateItem(context.Background(), core.LinkedItem{
		ItemID:          itemID,
		AccessToken:     "access-" + itemID,
		InstitutionID:   "ins_1",
		InstitutionName: "First Bank",
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	return item
}

func seedAccount(t *testing.T, repo *SQLiteRepository, externalID string, typ core.AccountType) core.Account {
	t.Helper()
	acct, err := repo.UpsertAccountBalance(context.Background(), UpsertAccountParams{
		ExternalID:      externalID,
		ItemID:          "item-1",
		InstitutionName: "First Bank",
		Name:            "Account " + externalID,
		Type:            typ,
		Mask:            "1234",
	}, BalanceInput{
		Current: decimal.NewFromInt(100),
	}, "2026-08-01")
	if err != nil {
		t.Fatalf("UpsertAccountBalance: %v", err)
	}
	return acct
}

func TestCreateItem_Idempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := seedItem(t, repo, "item-1")
	if first.Status != core.ItemStatusActive {
		t.Fatalf("status = %q, want active", first.Status)
	}

	second, err := repo.CreateItem(ctx, core.LinkedItem{
		ItemID:          "item-1",
		AccessToken:     "rotated-token",
		InstitutionID:   "ins_1",
		InstitutionName: "First Bank",
	})
	if err != nil {
		t.Fatalf("CreateItem again: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("relink created new row: id %d != %d", second.ID, first.ID)
	}
	if second.AccessToken != "rotated-token" {
		t.Fatalf("access token not rotated: %q", second.AccessToken)
	}

	items, err := repo.ListActiveItems(ctx)
	if err != nil {
		t.Fatalf("ListActiveItems: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
}

func TestSetItemStatus(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedItem(t, repo, "item-1")

	if err := repo.SetItemStatus(ctx, "item-1", core.ItemStatusNeedsReauth); err != nil {
		t.Fatalf("SetItemStatus: %v", err)
	}
	item, err := repo.GetItem(ctx, "item-1")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if item.Status != core.ItemStatusNeedsReauth {
		t.Fatalf("status = %q, want needs_reauth", item.Status)
	}

	if err := repo.SetItemStatus(ctx, "no-such-item", core.ItemStatusError); err != ErrItemNotFound {
		t.Fatalf("SetItemStatus unknown item: err = %v, want ErrItemNotFound", err)
	}
}

func TestUpsertAccountBalance_TypeImmutable(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	acct := seedAccount(t, repo, "ext-1", core.AccountTypeChecking)

	// A later sync reporting a different type must not rewrite it.
	updated, err := repo.UpsertAccountBalance(ctx, UpsertAccountParams{
		ExternalID:      "ext-1",
		ItemID:          "item-1",
		InstitutionName: "Renamed Bank",
		Name:            "Renamed Account",
		Type:            core.AccountTypeBrokerage,
	}, BalanceInput{Current: decimal.NewFromInt(250)}, "2026-08-02")
	if err != nil {
		t.Fatalf("UpsertAccountBalance: %v", err)
	}
	if updated.ID != acct.ID {
		t.Fatalf("re-sync created new account row")
	}
	if updated.Type != core.AccountTypeChecking {
		t.Fatalf("type = %q, want checking", updated.Type)
	}
	if updated.Name != "Renamed Account" {
		t.Fatalf("name not updated: %q", updated.Name)
	}
}

func TestBalanceHistory_OneRowPerAccountPerDay(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	acct := seedAccount(t, repo, "ext-1", core.AccountTypeChecking)

	// Same day twice, then a later day.
	if err := repo.RecordBalance(ctx, acct.ID, BalanceInput{Current: decimal.NewFromInt(150)}, "2026-08-01"); err != nil {
		t.Fatalf("RecordBalance: %v", err)
	}
	if err := repo.RecordBalance(ctx, acct.ID, BalanceInput{Current: decimal.NewFromInt(175)}, "2026-08-05"); err != nil {
		t.Fatalf("RecordBalance: %v", err)
	}

	snap, ok, err := repo.LatestBalanceOnOrBefore(ctx, acct.ID, "2026-08-03")
	if err != nil || !ok {
		t.Fatalf("LatestBalanceOnOrBefore: ok=%v err=%v", ok, err)
	}
	if !snap.Current.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("balance on 08-03 = %s, want 150 (same-day rewrite)", snap.Current)
	}

	snap, ok, err = repo.LatestBalanceOnOrBefore(ctx, acct.ID, "2026-08-31")
	if err != nil || !ok {
		t.Fatalf("LatestBalanceOnOrBefore: ok=%v err=%v", ok, err)
	}
	if !snap.Current.Equal(decimal.NewFromInt(175)) {
		t.Fatalf("latest balance = %s, want 175", snap.Current)
	}

	_, ok, err = repo.LatestBalanceOnOrBefore(ctx, acct.ID, "2026-07-01")
	if err != nil {
		t.Fatalf("LatestBalanceOnOrBefore: %v", err)
	}
	if ok {
		t.Fatal("found balance before any was recorded")
	}
}

func TestApplyTransactionsSync(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	item := seedItem(t, repo, "item-1")
	acct := seedAccount(t, repo, "ext-1", core.AccountTypeChecking)

	day := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	err := repo.ApplyTransactionsSync(ctx, item.ID, "cursor-1", []TransactionUpsert{
		{
			AccountID:       acct.ID,
			ExternalID:      "txn-1",
			Date:            day,
			Amount:          decimal.NewFromInt(42),
			MerchantName:    "Coffee Shop",
			CategoryPrimary: "Food and Drink",
			IsDiscretionary: true,
		},
	})
	if err != nil {
		t.Fatalf("ApplyTransactionsSync: %v", err)
	}

	got, err := repo.GetItem(ctx, "item-1")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.SyncCursor != "cursor-1" {
		t.Fatalf("cursor = %q, want cursor-1", got.SyncCursor)
	}

	txns, err := repo.ListTransactionsForMonth(ctx, 2026, 8)
	if err != nil {
		t.Fatalf("ListTransactionsForMonth: %v", err)
	}
	if len(txns) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txns))
	}

	// User marks it, classifier flags it; a re-sync of the same external id
	// must keep both.
	if err := repo.SetCustomCategory(ctx, txns[0].ID, "Coffee"); err != nil {
		t.Fatalf("SetCustomCategory: %v", err)
	}
	if err := repo.SetFrivolousFlags(ctx, []FrivolousUpdate{{ID: txns[0].ID, IsFrivolous: true}}); err != nil {
		t.Fatalf("SetFrivolousFlags: %v", err)
	}

	err = repo.ApplyTransactionsSync(ctx, item.ID, "cursor-2", []TransactionUpsert{
		{
			AccountID:       acct.ID,
			ExternalID:      "txn-1",
			Date:            day,
			Amount:          decimal.NewFromInt(42),
			MerchantName:    "Coffee Shop Updated",
			CategoryPrimary: "Food and Drink",
			IsDiscretionary: true,
		},
	})
	if err != nil {
		t.Fatalf("ApplyTransactionsSync re-sync: %v", err)
	}

	txns, err = repo.ListTransactionsForMonth(ctx, 2026, 8)
	if err != nil {
		t.Fatalf("ListTransactionsForMonth: %v", err)
	}
	if len(txns) != 1 {
		t.Fatalf("re-sync duplicated transaction: %d rows", len(txns))
	}
	if txns[0].MerchantName != "Coffee Shop Updated" {
		t.Fatalf("merchant not updated: %q", txns[0].MerchantName)
	}
	if txns[0].CustomCategory != "Coffee" {
		t.Fatalf("custom category lost on re-sync: %q", txns[0].CustomCategory)
	}
	if !txns[0].IsFrivolous {
		t.Fatal("frivolous flag lost on re-sync")
	}
}

func TestListTransactionsForMonth_Ordering(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	item := seedItem(t, repo, "item-1")
	acct := seedAccount(t, repo, "ext-1", core.AccountTypeChecking)

	err := repo.ApplyTransactionsSync(ctx, item.ID, "c1", []TransactionUpsert{
		{AccountID: acct.ID, ExternalID: "b", Date: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), Amount: decimal.NewFromInt(1)},
		{AccountID: acct.ID, ExternalID: "a", Date: time.Date(2026, 8, 5, 0, 0, 0, 0, time.UTC), Amount: decimal.NewFromInt(1)},
		{AccountID: acct.ID, ExternalID: "c", Date: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), Amount: decimal.NewFromInt(1)},
	})
	if err != nil {
		t.Fatalf("ApplyTransactionsSync: %v", err)
	}

	txns, err := repo.ListTransactionsForMonth(ctx, 2026, 8)
	if err != nil {
		t.Fatalf("ListTransactionsForMonth: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("got %d transactions, want 2 (September row excluded)", len(txns))
	}
	if txns[0].ExternalID != "a" || txns[1].ExternalID != "b" {
		t.Fatalf("order = %s,%s, want a,b", txns[0].ExternalID, txns[1].ExternalID)
	}
}

func TestReplaceHoldings(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	acct := seedAccount(t, repo, "ext-inv", core.AccountTypeBrokerage)
	asOf := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	first := []HoldingUpsert{
		{SecurityID: "sec-1", Symbol: "VTI", Name: "Total Market", Quantity: decimal.NewFromInt(10),
			CurrentValue: decimal.NewNullDecimal(decimal.NewFromInt(3000))},
		{SecurityID: "sec-2", Symbol: "BND", Name: "Bond Fund", Quantity: decimal.NewFromInt(5),
			CurrentValue: decimal.NewNullDecimal(decimal.NewFromInt(400))},
	}
	if err := repo.ReplaceHoldings(ctx, acct.ID, first, asOf); err != nil {
		t.Fatalf("ReplaceHoldings: %v", err)
	}

	// Next day the bond position is gone.
	second := []HoldingUpsert{
		{SecurityID: "sec-1", Symbol: "VTI", Name: "Total Market", Quantity: decimal.NewFromInt(12),
			CurrentValue: decimal.NewNullDecimal(decimal.NewFromInt(3600))},
	}
	if err := repo.ReplaceHoldings(ctx, acct.ID, second, asOf.AddDate(0, 0, 1)); err != nil {
		t.Fatalf("ReplaceHoldings: %v", err)
	}

	holdings, err := repo.ListHoldingsForAccount(ctx, acct.ID)
	if err != nil {
		t.Fatalf("ListHoldingsForAccount: %v", err)
	}
	if len(holdings) != 1 {
		t.Fatalf("got %d holdings, want 1 (latest fetch only)", len(holdings))
	}
	if holdings[0].Symbol != "VTI" || !holdings[0].Quantity.Equal(decimal.NewFromInt(12)) {
		t.Fatalf("holding = %s qty %s, want VTI qty 12", holdings[0].Symbol, holdings[0].Quantity)
	}

	n, err := repo.CountHoldingHistory(ctx, acct.ID)
	if err != nil {
		t.Fatalf("CountHoldingHistory: %v", err)
	}
	if n != 3 {
		t.Fatalf("history rows = %d, want 3 (history only grows)", n)
	}
}

func TestBudgets(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, ok, err := repo.GetActiveMainBudget(ctx); err != nil || ok {
		t.Fatalf("GetActiveMainBudget on empty db: ok=%v err=%v", ok, err)
	}

	if _, err := repo.SetMainBudget(ctx, decimal.NewFromInt(500)); err != nil {
		t.Fatalf("SetMainBudget: %v", err)
	}
	main, err := repo.SetMainBudget(ctx, decimal.NewFromInt(600))
	if err != nil {
		t.Fatalf("SetMainBudget again: %v", err)
	}
	if !main.MonthlyLimit.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("main limit = %s, want 600", main.MonthlyLimit)
	}

	if _, err := repo.SetCategoryBudget(ctx, "Food and Drink", decimal.NewFromInt(200)); err != nil {
		t.Fatalf("SetCategoryBudget: %v", err)
	}
	if _, err := repo.SetCategoryBudget(ctx, "Food and Drink", decimal.NewFromInt(250)); err != nil {
		t.Fatalf("SetCategoryBudget again: %v", err)
	}
	if _, err := repo.SetCategoryBudget(ctx, "", decimal.NewFromInt(50)); err == nil {
		t.Fatal("SetCategoryBudget accepted empty category")
	}

	budgets, err := repo.ListActiveBudgets(ctx)
	if err != nil {
		t.Fatalf("ListActiveBudgets: %v", err)
	}
	if len(budgets) != 2 {
		t.Fatalf("got %d budgets, want 2 (re-set must not duplicate)", len(budgets))
	}
	if !budgets[0].IsMain {
		t.Fatal("main budget not listed first")
	}
	if !budgets[1].MonthlyLimit.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("category limit = %s, want 250", budgets[1].MonthlyLimit)
	}

	if err := repo.DeactivateBudget(ctx, budgets[1].ID); err != nil {
		t.Fatalf("DeactivateBudget: %v", err)
	}
	cats, err := repo.ListActiveCategoryBudgets(ctx)
	if err != nil {
		t.Fatalf("ListActiveCategoryBudgets: %v", err)
	}
	if len(cats) != 0 {
		t.Fatalf("got %d category budgets after deactivate, want 0", len(cats))
	}
}

func TestSeedCategoryConfigs_Idempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seeded, err := repo.SeedCategoryConfigs(ctx, core.DefaultCategoryConfigs())
	if err != nil {
		t.Fatalf("SeedCategoryConfigs: %v", err)
	}
	if !seeded {
		t.Fatal("first seed reported no-op")
	}

	seeded, err = repo.SeedCategoryConfigs(ctx, core.DefaultCategoryConfigs())
	if err != nil {
		t.Fatalf("SeedCategoryConfigs again: %v", err)
	}
	if seeded {
		t.Fatal("second seed was not a no-op")
	}

	n, err := repo.CountCategoryConfigs(ctx)
	if err != nil {
		t.Fatalf("CountCategoryConfigs: %v", err)
	}
	if int(n) != len(core.DefaultCategoryConfigs()) {
		t.Fatalf("config rows = %d, want %d", n, len(core.DefaultCategoryConfigs()))
	}

	configs, err := repo.ListCategoryConfigs(ctx)
	if err != nil {
		t.Fatalf("ListCategoryConfigs: %v", err)
	}
	for i := 1; i < len(configs); i++ {
		if len(configs[i].Category) > len(configs[i-1].Category) {
			t.Fatalf("configs not ordered longest first: %q after %q",
				configs[i].Category, configs[i-1].Category)
		}
	}
}

func TestNetWorthSnapshots(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	day := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	snap := core.NetWorthSnapshot{
		Date:                day,
		TotalCash:           decimal.NewFromInt(1000),
		TotalInvestments:    decimal.NewFromInt(5000),
		TotalAssets:         decimal.NewFromInt(6000),
		TotalCreditCardDebt: decimal.NewFromInt(300),
		TotalLiabilities:    decimal.NewFromInt(300),
		NetWorth:            decimal.NewFromInt(5700),
	}
	if err := repo.UpsertNetWorthSnapshot(ctx, snap); err != nil {
		t.Fatalf("UpsertNetWorthSnapshot: %v", err)
	}

	// Second run the same day replaces, not appends.
	snap.NetWorth = decimal.NewFromInt(5800)
	snap.TotalCash = decimal.NewFromInt(1100)
	if err := repo.UpsertNetWorthSnapshot(ctx, snap); err != nil {
		t.Fatalf("UpsertNetWorthSnapshot rewrite: %v", err)
	}

	got, ok, err := repo.GetNetWorthSnapshot(ctx, "2026-08-15")
	if err != nil || !ok {
		t.Fatalf("GetNetWorthSnapshot: ok=%v err=%v", ok, err)
	}
	if !got.NetWorth.Equal(decimal.NewFromInt(5800)) {
		t.Fatalf("net worth = %s, want 5800", got.NetWorth)
	}

	later := snap
	later.Date = day.AddDate(0, 0, 1)
	if err := repo.UpsertNetWorthSnapshot(ctx, later); err != nil {
		t.Fatalf("UpsertNetWorthSnapshot day 2: %v", err)
	}

	history, err := repo.ListNetWorthHistory(ctx, "2026-08-01")
	if err != nil {
		t.Fatalf("ListNetWorthHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history rows = %d, want 2", len(history))
	}
	if !history[0].Date.Before(history[1].Date) {
		t.Fatal("history not ordered oldest first")
	}

	latest, ok, err := repo.LatestNetWorthSnapshot(ctx)
	if err != nil || !ok {
		t.Fatalf("LatestNetWorthSnapshot: ok=%v err=%v", ok, err)
	}
	if !latest.Date.Equal(later.Date) {
		t.Fatalf("latest date = %s, want %s", latest.Date, later.Date)
	}
}
