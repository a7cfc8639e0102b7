package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrUnsupportedProduct is returned when the linked institution does not
// support a product, most commonly investment holdings on a plain bank.
var ErrUnsupportedProduct = errors.New("product not supported for item")

// Error is a structured failure from the aggregation provider's API.
type Error struct {
	StatusCode int
	ErrorType  string
	ErrorCode  string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error %s (%s): %s", e.ErrorCode, e.ErrorType, e.Message)
}

// Balances carries point-in-time balance figures. Available and Limit are
// null for account types where the provider does not report them.
type Balances struct {
	Current   decimal.NullDecimal `json:"current"`
	Available decimal.NullDecimal `json:"available"`
	Limit     decimal.NullDecimal `json:"limit"`
	Currency  string              `json:"iso_currency_code"`
}

// Account is one account as the provider reports it.
type Account struct {
	AccountID    string   `json:"account_id"`
	Name         string   `json:"name"`
	OfficialName string   `json:"official_name"`
	Type         string   `json:"type"`
	Subtype      string   `json:"subtype"`
	Mask         string   `json:"mask"`
	Balances     Balances `json:"balances"`
}

// ItemInfo identifies the item an accounts response belongs to.
type ItemInfo struct {
	ItemID        string `json:"item_id"`
	InstitutionID string `json:"institution_id"`
}

// AccountsResult is the response of a full accounts fetch.
type AccountsResult struct {
	Accounts []Account `json:"accounts"`
	Item     ItemInfo  `json:"item"`
}

// FinanceCategory is the provider's two-level category for a transaction.
type FinanceCategory struct {
	Primary  string `json:"primary"`
	Detailed string `json:"detailed"`
}

// Transaction is one transaction record from the sync feed. Date is the
// provider's YYYY-MM-DD string. Positive amounts are outflows.
type Transaction struct {
	TransactionID   string           `json:"transaction_id"`
	AccountID       string           `json:"account_id"`
	Date            string           `json:"date"`
	Amount          decimal.Decimal  `json:"amount"`
	MerchantName    string           `json:"merchant_name"`
	Name            string           `json:"name"`
	Pending         bool             `json:"pending"`
	FinanceCategory *FinanceCategory `json:"personal_finance_category"`
}

// RemovedTransaction identifies a transaction deleted upstream.
type RemovedTransaction struct {
	TransactionID string `json:"transaction_id"`
}

// TransactionsPage is one page of the cursor-driven sync feed. The caller
// keeps requesting pages with NextCursor until HasMore is false.
type TransactionsPage struct {
	Added      []Transaction        `json:"added"`
	Modified   []Transaction        `json:"modified"`
	Removed    []RemovedTransaction `json:"removed"`
	NextCursor string               `json:"next_cursor"`
	HasMore    bool                 `json:"has_more"`
}

// Holding is one investment position with its security already resolved.
type Holding struct {
	AccountID    string
	SecurityID   string
	Symbol       string
	Name         string
	Quantity     decimal.Decimal
	CostBasis    decimal.NullDecimal
	CurrentPrice decimal.NullDecimal
	CurrentValue decimal.NullDecimal
	Currency     string
}

// TokenExchange is the result of trading a public token for an access token.
type TokenExchange struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
}

type AccountsClient interface {
	GetAccounts(ctx context.Context, accessToken string) (AccountsResult, error)
}

type TransactionsClient interface {
	SyncTransactions(ctx context.Context, accessToken, cursor string) (TransactionsPage, error)
}

type HoldingsClient interface {
	// GetHoldings returns ErrUnsupportedProduct when the item's institution
	// does not support investments.
	GetHoldings(ctx context.Context, accessToken string) ([]Holding, error)
}

type LinkClient interface {
	CreateLinkToken(ctx context.Context, userID string) (string, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (TokenExchange, error)
}

// Client is the full outbound surface of the aggregation provider.
type Client interface {
	AccountsClient
	TransactionsClient
	HoldingsClient
	LinkClient
}
