package plaid

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"networth/internal/provider"

	"github.com/shopspring/decimal"
)

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
	return body
}

func TestGetAccounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/get" {
			t.Errorf("path = %s", r.URL.Path)
		}
		body := decodeBody(t, r)
		if body["client_id"] != "cid" || body["secret"] != "sec" {
			t.Errorf("credentials missing from body: %v", body)
		}
		if body["access_token"] != "tok" {
			t.Errorf("access_token = %v", body["access_token"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"accounts": [{
				"account_id": "acc-1",
				"name": "Checking",
				"official_name": "Premier Checking",
				"type": "depository",
				"subtype": "checking",
				"mask": "0000",
				"balances": {"current": 110.5, "available": 100, "limit": null, "iso_currency_code": "USD"}
			}],
			"item": {"item_id": "item-1", "institution_id": "ins_1"}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "cid", "sec")
	result, err := c.GetAccounts(context.Background(), "tok")
	if err != nil {
		t.Fatalf("GetAccounts: %v", err)
	}
	if len(result.Accounts) != 1 {
		t.Fatalf("got %d accounts", len(result.Accounts))
	}
	acc := result.Accounts[0]
	if acc.AccountID != "acc-1" || acc.Type != "depository" || acc.Subtype != "checking" {
		t.Fatalf("account = %+v", acc)
	}
	if !acc.Balances.Current.Valid || !acc.Balances.Current.Decimal.Equal(decimal.NewFromFloat(110.5)) {
		t.Fatalf("current balance = %+v", acc.Balances.Current)
	}
	if acc.Balances.Limit.Valid {
		t.Fatal("null limit decoded as valid")
	}
	if result.Item.ItemID != "item-1" {
		t.Fatalf("item id = %s", result.Item.ItemID)
	}
}

func TestSyncTransactions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		if body["cursor"] != "cur-1" {
			t.Errorf("cursor = %v", body["cursor"])
		}
		w.Write([]byte(`{
			"added": [{
				"transaction_id": "txn-1",
				"account_id": "acc-1",
				"date": "2026-08-10",
				"amount": 12.75,
				"merchant_name": "Coffee Shop",
				"name": "COFFEE SHOP #42",
				"pending": false,
				"personal_finance_category": {"primary": "FOOD_AND_DRINK", "detailed": "FOOD_AND_DRINK_COFFEE"}
			}],
			"modified": [],
			"removed": [{"transaction_id": "txn-gone"}],
			"next_cursor": "cur-2",
			"has_more": true
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "cid", "sec")
	page, err := c.SyncTransactions(context.Background(), "tok", "cur-1")
	if err != nil {
		t.Fatalf("SyncTransactions: %v", err)
	}
	if !page.HasMore || page.NextCursor != "cur-2" {
		t.Fatalf("page = %+v", page)
	}
	if len(page.Added) != 1 || len(page.Removed) != 1 {
		t.Fatalf("added=%d removed=%d", len(page.Added), len(page.Removed))
	}
	txn := page.Added[0]
	if txn.FinanceCategory == nil || txn.FinanceCategory.Primary != "FOOD_AND_DRINK" {
		t.Fatalf("category = %+v", txn.FinanceCategory)
	}
	if !txn.Amount.Equal(decimal.NewFromFloat(12.75)) {
		t.Fatalf("amount = %s", txn.Amount)
	}
}

func TestGetHoldings_ResolvesSecurities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"holdings": [{
				"account_id": "acc-1",
				"security_id": "sec-1",
				"quantity": 10,
				"cost_basis": 2500,
				"institution_value": 3000,
				"iso_currency_code": "USD"
			}],
			"securities": [{
				"security_id": "sec-1",
				"ticker_symbol": "VTI",
				"name": "Total Market ETF",
				"close_price": 300
			}]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "cid", "sec")
	holdings, err := c.GetHoldings(context.Background(), "tok")
	if err != nil {
		t.Fatalf("GetHoldings: %v", err)
	}
	if len(holdings) != 1 {
		t.Fatalf("got %d holdings", len(holdings))
	}
	h := holdings[0]
	if h.Symbol != "VTI" || h.Name != "Total Market ETF" {
		t.Fatalf("security not resolved: %+v", h)
	}
	if !h.CurrentPrice.Valid || !h.CurrentPrice.Decimal.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("current price = %+v", h.CurrentPrice)
	}
}

func TestGetHoldings_UnsupportedProduct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{
			"error_type": "INVALID_REQUEST",
			"error_code": "PRODUCTS_NOT_SUPPORTED",
			"error_message": "institution does not support investments"
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "cid", "sec")
	_, err := c.GetHoldings(context.Background(), "tok")
	if !errors.Is(err, provider.ErrUnsupportedProduct) {
		t.Fatalf("err = %v, want ErrUnsupportedProduct", err)
	}
}

func TestProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{
			"error_type": "ITEM_ERROR",
			"error_code": "ITEM_LOGIN_REQUIRED",
			"error_message": "the login details have changed"
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "cid", "sec")
	_, err := c.GetAccounts(context.Background(), "tok")
	var perr *provider.Error
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *provider.Error", err)
	}
	if perr.StatusCode != http.StatusBadRequest || perr.ErrorCode != "ITEM_LOGIN_REQUIRED" {
		t.Fatalf("perr = %+v", perr)
	}
}

func TestExchangePublicToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/item/public_token/exchange" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"access_token": "access-1", "item_id": "item-1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "cid", "sec")
	got, err := c.ExchangePublicToken(context.Background(), "public-1")
	if err != nil {
		t.Fatalf("ExchangePublicToken: %v", err)
	}
	if got.AccessToken != "access-1" || got.ItemID != "item-1" {
		t.Fatalf("exchange = %+v", got)
	}
}
