package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	AccountTypeChecking   AccountType = "checking"
	AccountTypeSavings    AccountType = "savings"
	AccountTypeCreditCard AccountType = "credit_card"
	AccountTypeBrokerage  AccountType = "brokerage"
	AccountTypeRetirement AccountType = "retirement"

	ItemStatusActive      ItemStatus = "active"
	ItemStatusNeedsReauth ItemStatus = "needs_reauth"
	ItemStatusError       ItemStatus = "error"

	// MainBudgetCategory is the sentinel category of the single overall budget.
	MainBudgetCategory = "MAIN"

	// UncategorizedCategory groups transactions the provider left unlabeled.
	UncategorizedCategory = "Uncategorized"

	// CashHoldingSymbol is used when a holding has neither symbol nor name.
	CashHoldingSymbol = "CASH"

	DefaultCurrency = "USD"
)

type (
	AccountType string
	ItemStatus  string

	// LinkedItem is one institution-level credential link. Items are never
	// hard-deleted; a broken link moves through status transitions instead.
	LinkedItem struct {
		ID                 int64
		ItemID             string
		AccessToken        string
		InstitutionID      string
		InstitutionName    string
		Status             ItemStatus
		SyncCursor         string
		LastSuccessfulSync *time.Time
		CreatedAt          time.Time
		UpdatedAt          time.Time
	}

	// Account is one financial account, keyed by the provider's stable
	// account identifier.
	Account struct {
		ID              int64
		ExternalID      string
		ItemID          string
		InstitutionName string
		Name            string
		OfficialName    string
		Type            AccountType
		Mask            string
		IsActive        bool
		CreatedAt       time.Time
		UpdatedAt       time.Time
	}

	// BalanceSnapshot holds at most one balance record per account per
	// calendar date.
	BalanceSnapshot struct {
		ID          int64
		AccountID   int64
		Date        time.Time
		Current     decimal.Decimal
		Available   decimal.NullDecimal
		CreditLimit decimal.NullDecimal
	}

	// Transaction follows the provider's sign convention: positive amounts
	// are outflows, negative amounts are inflows.
	Transaction struct {
		ID               int64
		AccountID        int64
		ExternalID       string
		Date             time.Time
		Amount           decimal.Decimal
		MerchantName     string
		Description      string
		CategoryPrimary  string
		CategoryDetailed string
		CustomCategory   string
		IsDiscretionary  bool
		IsFrivolous      bool
		Pending          bool
	}

	// Holding is an investment position scoped to one account. The current
	// set is replaced wholesale on every sync; HoldingHistory rows are the
	// immutable trail.
	Holding struct {
		ID           int64
		AccountID    int64
		SecurityID   string
		Symbol       string
		Name         string
		Quantity     decimal.Decimal
		CostBasis    decimal.NullDecimal
		CurrentPrice decimal.NullDecimal
		CurrentValue decimal.NullDecimal
		Currency     string
		AsOfDate     time.Time
	}

	HoldingHistory struct {
		ID           int64
		AccountID    int64
		Symbol       string
		Quantity     decimal.Decimal
		CurrentPrice decimal.NullDecimal
		CurrentValue decimal.NullDecimal
		Date         time.Time
	}

	// Budget is either the single MAIN budget or one budget per category.
	Budget struct {
		ID           int64
		Category     string
		MonthlyLimit decimal.Decimal
		IsMain       bool
		IsActive     bool
	}

	// CategoryConfig flags a provider category label as discretionary or
	// essential. Seeded once, then only changed by explicit user action.
	CategoryConfig struct {
		ID              int64
		Category        string
		DisplayName     string
		IsDiscretionary bool
	}

	// NetWorthSnapshot is one per calendar date.
	NetWorthSnapshot struct {
		ID                  int64
		Date                time.Time
		TotalCash           decimal.Decimal
		TotalInvestments    decimal.Decimal
		TotalAssets         decimal.Decimal
		TotalCreditCardDebt decimal.Decimal
		TotalLiabilities    decimal.Decimal
		NetWorth            decimal.Decimal
	}
)

var (
	ErrEmptyExternalID = errors.New("empty external identifier")
	ErrEmptyCategory   = errors.New("empty category")
	ErrEmptyItemID     = errors.New("empty item identifier")
	ErrEmptyToken      = errors.New("empty access token")
)

// accountTypeMapping translates provider type/subtype strings into local
// account types. Unmapped strings fall back to checking.
var accountTypeMapping = map[string]AccountType{
	"depository": AccountTypeChecking,
	"checking":   AccountTypeChecking,
	"savings":    AccountTypeSavings,
	"credit":     AccountTypeCreditCard,
	"investment": AccountTypeBrokerage,
	"brokerage":  AccountTypeBrokerage,
	"retirement": AccountTypeRetirement,
}

// MapAccountType resolves a provider account type string. The type is fixed
// at account creation and never changed by later syncs.
func MapAccountType(provider string) AccountType {
	if t, ok := accountTypeMapping[strings.ToLower(strings.TrimSpace(provider))]; ok {
		return t
	}
	return AccountTypeChecking
}

// IsCash reports whether the type belongs to the cash bucket.
func (t AccountType) IsCash() bool {
	return t == AccountTypeChecking || t == AccountTypeSavings
}

// IsInvestment reports whether the type belongs to the investments bucket.
func (t AccountType) IsInvestment() bool {
	return t == AccountTypeBrokerage || t == AccountTypeRetirement
}

// HoldingSymbol resolves the stored symbol for a holding: ticker symbol,
// then security name, then the cash sentinel.
func HoldingSymbol(symbol, name string) string {
	if s := strings.TrimSpace(symbol); s != "" {
		return s
	}
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return CashHoldingSymbol
}

// Category returns the effective category of a transaction: the user
// override when set, else the provider's primary category, else the
// uncategorized sentinel.
func (t Transaction) Category() string {
	if c := strings.TrimSpace(t.CustomCategory); c != "" {
		return c
	}
	if c := strings.TrimSpace(t.CategoryPrimary); c != "" {
		return c
	}
	return UncategorizedCategory
}

// BudgetCategory returns the category used for budget accounting: the
// provider's primary category, else the uncategorized sentinel. The user
// override relabels a transaction for display; it never moves spend
// between budgets, which stay aligned with the discretionary flag derived
// from the primary at ingest.
func (t Transaction) BudgetCategory() string {
	if c := strings.TrimSpace(t.CategoryPrimary); c != "" {
		return c
	}
	return UncategorizedCategory
}

// IsOutflow reports whether the transaction moves money out.
func (t Transaction) IsOutflow() bool {
	return t.Amount.IsPositive()
}

// GainLoss returns current value minus cost basis. Unknown when either
// side is missing.
func (h Holding) GainLoss() decimal.NullDecimal {
	if !h.CostBasis.Valid || !h.CurrentValue.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(h.CurrentValue.Decimal.Sub(h.CostBasis.Decimal))
}

// GainLossPercent returns the gain/loss as a percentage of cost basis, zero
// when the cost basis is not positive.
func (h Holding) GainLossPercent() decimal.NullDecimal {
	gl := h.GainLoss()
	if !gl.Valid {
		return decimal.NullDecimal{}
	}
	if !h.CostBasis.Decimal.IsPositive() {
		return decimal.NewNullDecimal(decimal.Zero)
	}
	pct := gl.Decimal.Div(h.CostBasis.Decimal).Mul(decimal.NewFromInt(100))
	return decimal.NewNullDecimal(pct)
}

// MonthRange returns the half-open [first, next-first) window of a
// calendar month in UTC.
func MonthRange(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// DateOnly truncates a timestamp to its UTC calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (i LinkedItem) Validate() error {
	if strings.TrimSpace(i.ItemID) == "" {
		return ErrEmptyItemID
	}
	if strings.TrimSpace(i.AccessToken) == "" {
		return ErrEmptyToken
	}
	return nil
}

func (b Budget) Validate() error {
	if b.IsMain {
		return nil
	}
	if strings.TrimSpace(b.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}
