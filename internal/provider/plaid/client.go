// Package plaid is the HTTP adapter for the Plaid account aggregation API.
package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"networth/internal/provider"

	"github.com/shopspring/decimal"
)

const (
	clientName     = "NetWorth Calculator"
	requestTimeout = 30 * time.Second
)

// Error codes the API uses when an item's institution cannot serve the
// investments product.
var unsupportedProductCodes = map[string]bool{
	"PRODUCTS_NOT_SUPPORTED":      true,
	"PRODUCT_NOT_READY":           true,
	"NO_INVESTMENT_ACCOUNTS":      true,
	"NO_INVESTMENT_AUTH_ACCOUNTS": true,
}

// Client talks to the Plaid API over HTTP. Credentials are injected into
// every request body, as the API requires.
type Client struct {
	host       string
	clientID   string
	secret     string
	httpClient *http.Client
}

var _ provider.Client = (*Client)(nil)

func NewClient(host, clientID, secret string) *Client {
	return &Client{
		host:     host,
		clientID: clientID,
		secret:   secret,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

type apiError struct {
	ErrorType    string `json:"error_type"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// post sends a JSON request with credentials merged in and decodes the
// response into out. Non-2xx responses become *provider.Error.
func (c *Client) post(ctx context.Context, path string, body map[string]any, out any) error {
	payload := map[string]any{
		"client_id": c.clientID,
		"secret":    c.secret,
	}
	for k, v := range body {
		payload[k] = v
	}

	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if err := json.Unmarshal(data, &apiErr); err != nil || apiErr.ErrorCode == "" {
			return &provider.Error{
				StatusCode: resp.StatusCode,
				Message:    string(data),
			}
		}
		return &provider.Error{
			StatusCode: resp.StatusCode,
			ErrorType:  apiErr.ErrorType,
			ErrorCode:  apiErr.ErrorCode,
			Message:    apiErr.ErrorMessage,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) GetAccounts(ctx context.Context, accessToken string) (provider.AccountsResult, error) {
	var result provider.AccountsResult
	err := c.post(ctx, "/accounts/get", map[string]any{
		"access_token": accessToken,
	}, &result)
	if err != nil {
		return provider.AccountsResult{}, fmt.Errorf("get accounts: %w", err)
	}
	return result, nil
}

func (c *Client) SyncTransactions(ctx context.Context, accessToken, cursor string) (provider.TransactionsPage, error) {
	var page provider.TransactionsPage
	err := c.post(ctx, "/transactions/sync", map[string]any{
		"access_token": accessToken,
		"cursor":       cursor,
	}, &page)
	if err != nil {
		return provider.TransactionsPage{}, fmt.Errorf("sync transactions: %w", err)
	}
	return page, nil
}

type holdingsResponse struct {
	Holdings []struct {
		AccountID        string              `json:"account_id"`
		SecurityID       string              `json:"security_id"`
		Quantity         decimal.Decimal     `json:"quantity"`
		CostBasis        decimal.NullDecimal `json:"cost_basis"`
		InstitutionValue decimal.NullDecimal `json:"institution_value"`
		Currency         string              `json:"iso_currency_code"`
	} `json:"holdings"`
	Securities []struct {
		SecurityID   string              `json:"security_id"`
		TickerSymbol string              `json:"ticker_symbol"`
		Name         string              `json:"name"`
		ClosePrice   decimal.NullDecimal `json:"close_price"`
	} `json:"securities"`
}

func (c *Client) GetHoldings(ctx context.Context, accessToken string) ([]provider.Holding, error) {
	var resp holdingsResponse
	err := c.post(ctx, "/investments/holdings/get", map[string]any{
		"access_token": accessToken,
	}, &resp)
	if err != nil {
		var perr *provider.Error
		if errors.As(err, &perr) && unsupportedProductCodes[perr.ErrorCode] {
			return nil, fmt.Errorf("get holdings: %w", provider.ErrUnsupportedProduct)
		}
		return nil, fmt.Errorf("get holdings: %w", err)
	}

	type security struct {
		symbol string
		name   string
		price  decimal.NullDecimal
	}
	securities := make(map[string]security, len(resp.Securities))
	for _, s := range resp.Securities {
		securities[s.SecurityID] = security{symbol: s.TickerSymbol, name: s.Name, price: s.ClosePrice}
	}

	holdings := make([]provider.Holding, 0, len(resp.Holdings))
	for _, h := range resp.Holdings {
		sec := securities[h.SecurityID]
		holdings = append(holdings, provider.Holding{
			AccountID:    h.AccountID,
			SecurityID:   h.SecurityID,
			Symbol:       sec.symbol,
			Name:         sec.name,
			Quantity:     h.Quantity,
			CostBasis:    h.CostBasis,
			CurrentPrice: sec.price,
			CurrentValue: h.InstitutionValue,
			Currency:     h.Currency,
		})
	}
	return holdings, nil
}

func (c *Client) CreateLinkToken(ctx context.Context, userID string) (string, error) {
	var resp struct {
		LinkToken string `json:"link_token"`
	}
	err := c.post(ctx, "/link/token/create", map[string]any{
		"user":          map[string]any{"client_user_id": userID},
		"client_name":   clientName,
		"products":      []string{"transactions", "investments"},
		"country_codes": []string{"US"},
		"language":      "en",
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("create link token: %w", err)
	}
	return resp.LinkToken, nil
}

func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (provider.TokenExchange, error) {
	var result provider.TokenExchange
	err := c.post(ctx, "/item/public_token/exchange", map[string]any{
		"public_token": publicToken,
	}, &result)
	if err != nil {
		return provider.TokenExchange{}, fmt.Errorf("exchange public token: %w", err)
	}
	return result, nil
}
