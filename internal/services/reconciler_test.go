package services

import (
	"context"
	"testing"

	"networth/internal/core"
	"networth/internal/provider"

	"github.com/shopspring/decimal"
)

// fakeProvider serves canned responses and counts calls.
type fakeProvider struct {
	accounts     provider.AccountsResult
	pages        []provider.TransactionsPage
	holdings     []provider.Holding
	holdingsErr  error
	syncRequests []string
}

var _ provider.Client = (*fakeProvider)(nil)

func (f *fakeProvider) GetAccounts(ctx context.Context, accessToken string) (provider.AccountsResult, error) {
	return f.accounts, nil
}

func (f *fakeProvider) SyncTransactions(ctx context.Context, accessToken, cursor string) (provider.TransactionsPage, error) {
	f.syncRequests = append(f.syncRequests, cursor)
	if len(f.pages) == 0 {
		return provider.TransactionsPage{NextCursor: cursor}, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func (f *fakeProvider) GetHoldings(ctx context.Context, accessToken string) ([]provider.Holding, error) {
	if f.holdingsErr != nil {
		return nil, f.holdingsErr
	}
	return f.holdings, nil
}

func (f *fakeProvider) CreateLinkToken(ctx context.Context, userID string) (string, error) {
	return "link-token", nil
}

func (f *fakeProvider) ExchangePublicToken(ctx context.Context, publicToken string) (provider.TokenExchange, error) {
	return provider.TokenExchange{AccessToken: "access-1", ItemID: "item-1"}, nil
}

func nd(v int64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromInt(v))
}

func testAccounts() provider.AccountsResult {
	return provider.AccountsResult{
		Accounts: []provider.Account{
			{
				AccountID: "acc-chk",
				Name:      "Checking",
				Type:      "depository",
				Subtype:   "checking",
				Balances:  provider.Balances{Current: nd(1000), Available: nd(950)},
			},
			{
				AccountID: "acc-inv",
				Name:      "Brokerage",
				Type:      "investment",
				Balances:  provider.Balances{Current: nd(5000)},
			},
		},
		Item: provider.ItemInfo{ItemID: "item-1", InstitutionID: "ins_1"},
	}
}

func txnPages() []provider.TransactionsPage {
	return []provider.TransactionsPage{
		{
			Added: []provider.Transaction{{
				TransactionID:   "txn-1",
				AccountID:       "acc-chk",
				Date:            "2026-08-10",
				Amount:          decimal.NewFromInt(25),
				MerchantName:    "Cafe",
				FinanceCategory: &provider.FinanceCategory{Primary: "Food and Drink"},
			}},
			NextCursor: "cur-1",
			HasMore:    true,
		},
		{
			Added: []provider.Transaction{{
				TransactionID: "txn-2",
				AccountID:     "acc-chk",
				Date:          "2026-08-11",
				Amount:        decimal.NewFromInt(40),
			}},
			Removed:    []provider.RemovedTransaction{{TransactionID: "txn-old"}},
			NextCursor: "cur-2",
			HasMore:    false,
		},
	}
}

func TestReconcileItem(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := SeedDefaultCategories(ctx, repo); err != nil {
		t.Fatalf("SeedDefaultCategories: %v", err)
	}
	item, err := repo.CreateItem(ctx, core.LinkedItem{
		ItemID: "item-1", AccessToken: "tok", InstitutionName: "First Bank",
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	fake := &fakeProvider{
		accounts: testAccounts(),
		pages:    txnPages(),
		holdings: []provider.Holding{{
			AccountID:    "acc-inv",
			SecurityID:   "sec-1",
			Symbol:       "VTI",
			Name:         "Total Market",
			Quantity:     decimal.NewFromInt(10),
			CurrentValue: nd(3000),
		}},
	}

	outcome, err := NewSyncService(repo, fake).ReconcileItem(ctx, item)
	if err != nil {
		t.Fatalf("ReconcileItem: %v", err)
	}

	if outcome.AccountsSynced != 2 {
		t.Errorf("accounts synced = %d, want 2", outcome.AccountsSynced)
	}
	if outcome.TransactionsSynced != 2 {
		t.Errorf("transactions synced = %d, want 2", outcome.TransactionsSynced)
	}
	if len(outcome.RemovedUpstream) != 1 || outcome.RemovedUpstream[0] != "txn-old" {
		t.Errorf("removed = %v", outcome.RemovedUpstream)
	}
	if outcome.HoldingsAccounts != 1 || outcome.HoldingsSkipped {
		t.Errorf("holdings outcome = %+v", outcome)
	}

	// The second page was requested with the first page's cursor.
	if len(fake.syncRequests) != 2 || fake.syncRequests[1] != "cur-1" {
		t.Errorf("sync cursors = %v", fake.syncRequests)
	}

	got, err := repo.GetItem(ctx, "item-1")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.SyncCursor != "cur-2" {
		t.Errorf("cursor = %q, want cur-2", got.SyncCursor)
	}
	if got.LastSuccessfulSync == nil {
		t.Error("last successful sync not stamped")
	}

	chk, err := repo.GetAccountByExternalID(ctx, "acc-chk")
	if err != nil {
		t.Fatalf("GetAccountByExternalID: %v", err)
	}
	if chk.Type != core.AccountTypeChecking {
		t.Errorf("checking type = %q", chk.Type)
	}
	inv, err := repo.GetAccountByExternalID(ctx, "acc-inv")
	if err != nil {
		t.Fatalf("GetAccountByExternalID: %v", err)
	}
	if inv.Type != core.AccountTypeBrokerage {
		t.Errorf("investment type = %q", inv.Type)
	}

	txns := monthTxns(t, repo, 2026, 8)
	if len(txns) != 2 {
		t.Fatalf("got %d transactions", len(txns))
	}
	if !txns[0].IsDiscretionary {
		t.Error("Food and Drink not resolved as discretionary")
	}
	if txns[1].IsDiscretionary {
		t.Error("uncategorized transaction resolved as discretionary")
	}

	holdings, err := repo.ListHoldingsForAccount(ctx, inv.ID)
	if err != nil {
		t.Fatalf("ListHoldingsForAccount: %v", err)
	}
	if len(holdings) != 1 || holdings[0].Symbol != "VTI" {
		t.Errorf("holdings = %+v", holdings)
	}
}

func TestReconcileItem_SecondRunIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := SeedDefaultCategories(ctx, repo); err != nil {
		t.Fatalf("SeedDefaultCategories: %v", err)
	}
	item, err := repo.CreateItem(ctx, core.LinkedItem{ItemID: "item-1", AccessToken: "tok"})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	fake := &fakeProvider{accounts: testAccounts(), pages: txnPages()}
	svc := NewSyncService(repo, fake)
	if _, err := svc.ReconcileItem(ctx, item); err != nil {
		t.Fatalf("first ReconcileItem: %v", err)
	}

	// No new provider data on the second run.
	item, err = repo.GetItem(ctx, "item-1")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if _, err := svc.ReconcileItem(ctx, item); err != nil {
		t.Fatalf("second ReconcileItem: %v", err)
	}

	accounts, err := repo.ListActiveAccounts(ctx)
	if err != nil {
		t.Fatalf("ListActiveAccounts: %v", err)
	}
	if len(accounts) != 2 {
		t.Errorf("got %d accounts after re-run, want 2", len(accounts))
	}
	if len(monthTxns(t, repo, 2026, 8)) != 2 {
		t.Error("transactions duplicated on re-run")
	}
}

func TestReconcileItem_HoldingsUnsupported(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := SeedDefaultCategories(ctx, repo); err != nil {
		t.Fatalf("SeedDefaultCategories: %v", err)
	}
	item, err := repo.CreateItem(ctx, core.LinkedItem{ItemID: "item-1", AccessToken: "tok"})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	fake := &fakeProvider{
		accounts:    testAccounts(),
		pages:       txnPages(),
		holdingsErr: provider.ErrUnsupportedProduct,
	}
	outcome, err := NewSyncService(repo, fake).ReconcileItem(ctx, item)
	if err != nil {
		t.Fatalf("ReconcileItem: %v (holdings failures must not escalate)", err)
	}
	if !outcome.HoldingsSkipped {
		t.Error("holdings skip not reported")
	}

	got, err := repo.GetItem(ctx, "item-1")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.LastSuccessfulSync == nil {
		t.Error("sync not stamped despite unsupported holdings")
	}
}

func TestRefreshAll_ContinuesPastFailures(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := SeedDefaultCategories(ctx, repo); err != nil {
		t.Fatalf("SeedDefaultCategories: %v", err)
	}
	if _, err := repo.CreateItem(ctx, core.LinkedItem{ItemID: "item-bad", AccessToken: "tok"}); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if _, err := repo.CreateItem(ctx, core.LinkedItem{ItemID: "item-good", AccessToken: "tok"}); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	fake := &failFirstProvider{good: &fakeProvider{accounts: testAccounts(), pages: txnPages()}}
	syncSvc := NewSyncService(repo, fake)
	refresh := NewRefreshService(repo, syncSvc, NewNetWorthService(repo), NewClassifier(repo))

	report, err := refresh.RefreshAll(ctx)
	if err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}
	if report.ItemsProcessed != 2 || report.ItemsFailed != 1 {
		t.Errorf("report = %+v", report)
	}
	if len(report.Failures) != 1 || report.Failures[0].ItemID != "item-bad" {
		t.Errorf("failures = %+v", report.Failures)
	}
	if !report.SnapshotRecorded {
		t.Error("snapshot not recorded after per-item failure")
	}
}

// failFirstProvider fails its first GetAccounts call and delegates the rest.
type failFirstProvider struct {
	good   *fakeProvider
	called bool
}

var _ provider.Client = (*failFirstProvider)(nil)

func (f *failFirstProvider) GetAccounts(ctx context.Context, accessToken string) (provider.AccountsResult, error) {
	if !f.called {
		f.called = true
		return provider.AccountsResult{}, &provider.Error{StatusCode: 500, ErrorCode: "INTERNAL_SERVER_ERROR"}
	}
	return f.good.GetAccounts(ctx, accessToken)
}

func (f *failFirstProvider) SyncTransactions(ctx context.Context, accessToken, cursor string) (provider.TransactionsPage, error) {
	return f.good.SyncTransactions(ctx, accessToken, cursor)
}

func (f *failFirstProvider) GetHoldings(ctx context.Context, accessToken string) ([]provider.Holding, error) {
	return f.good.GetHoldings(ctx, accessToken)
}

func (f *failFirstProvider) CreateLinkToken(ctx context.Context, userID string) (string, error) {
	return f.good.CreateLinkToken(ctx, userID)
}

func (f *failFirstProvider) ExchangePublicToken(ctx context.Context, publicToken string) (provider.TokenExchange, error) {
	return f.good.ExchangePublicToken(ctx, publicToken)
}
