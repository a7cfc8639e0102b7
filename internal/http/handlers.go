package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"networth/internal/core"
	"networth/internal/services"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type accountResponse struct {
	ID              int64               `json:"id"`
	InstitutionName string              `json:"institution_name"`
	Name            string              `json:"name"`
	OfficialName    string              `json:"official_name,omitempty"`
	AccountType     string              `json:"account_type"`
	Mask            string              `json:"mask"`
	CurrentBalance  decimal.NullDecimal `json:"current_balance"`
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	accounts, err := s.views.AccountsWithBalances(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to list accounts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}

	resp := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, accountResponse{
			ID:              a.Account.ID,
			InstitutionName: a.Account.InstitutionName,
			Name:            a.Account.Name,
			OfficialName:    a.Account.OfficialName,
			AccountType:     string(a.Account.Type),
			Mask:            a.Account.Mask,
			CurrentBalance:  a.CurrentBalance,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type netWorthResponse struct {
	Date                string          `json:"date"`
	TotalCash           decimal.Decimal `json:"total_cash"`
	TotalInvestments    decimal.Decimal `json:"total_investments"`
	TotalAssets         decimal.Decimal `json:"total_assets"`
	TotalCreditCardDebt decimal.Decimal `json:"total_credit_card_debt"`
	TotalLiabilities    decimal.Decimal `json:"total_liabilities"`
	NetWorth            decimal.Decimal `json:"net_worth"`
}

func netWorthJSON(s core.NetWorthSnapshot) netWorthResponse {
	return netWorthResponse{
		Date:                s.Date.Format(dateLayout),
		TotalCash:           s.TotalCash,
		TotalInvestments:    s.TotalInvestments,
		TotalAssets:         s.TotalAssets,
		TotalCreditCardDebt: s.TotalCreditCardDebt,
		TotalLiabilities:    s.TotalLiabilities,
		NetWorth:            s.NetWorth,
	}
}

// handleNetWorthCurrent computes net worth from the latest balances without
// persisting a snapshot.
func (s *Server) handleNetWorthCurrent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snapshot, err := s.netWorth.ComputeNetWorth(r.Context(), time.Now())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to compute net worth", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute net worth")
		return
	}
	writeJSON(w, http.StatusOK, netWorthJSON(snapshot))
}

func (s *Server) handleNetWorthHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			days = d
		}
	}

	history, err := s.netWorth.History(r.Context(), days)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to load net worth history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	resp := make([]netWorthResponse, 0, len(history))
	for _, snap := range history {
		resp = append(resp, netWorthJSON(snap))
	}
	writeJSON(w, http.StatusOK, resp)
}

type holdingResponse struct {
	ID              int64               `json:"id"`
	AccountID       int64               `json:"account_id"`
	Symbol          string              `json:"symbol"`
	Name            string              `json:"name"`
	Quantity        decimal.Decimal     `json:"quantity"`
	CostBasis       decimal.NullDecimal `json:"cost_basis"`
	CurrentPrice    decimal.NullDecimal `json:"current_price"`
	CurrentValue    decimal.NullDecimal `json:"current_value"`
	GainLoss        decimal.NullDecimal `json:"gain_loss"`
	GainLossPercent decimal.NullDecimal `json:"gain_loss_percent"`
	Currency        string              `json:"iso_currency_code"`
	AsOfDate        string              `json:"as_of_date"`
}

func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	holdings, err := s.views.Holdings(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to list holdings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list holdings")
		return
	}

	resp := make([]holdingResponse, 0, len(holdings))
	for _, h := range holdings {
		resp = append(resp, holdingResponse{
			ID:              h.Holding.ID,
			AccountID:       h.Holding.AccountID,
			Symbol:          h.Holding.Symbol,
			Name:            h.Holding.Name,
			Quantity:        h.Holding.Quantity,
			CostBasis:       h.Holding.CostBasis,
			CurrentPrice:    h.Holding.CurrentPrice,
			CurrentValue:    h.Holding.CurrentValue,
			GainLoss:        h.GainLoss,
			GainLossPercent: h.GainLossPercent,
			Currency:        h.Holding.Currency,
			AsOfDate:        h.Holding.AsOfDate.Format(dateLayout),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type transactionResponse struct {
	ID               int64           `json:"id"`
	Date             string          `json:"date"`
	Amount           decimal.Decimal `json:"amount"`
	MerchantName     string          `json:"merchant_name"`
	Description      string          `json:"description"`
	Category         string          `json:"category"`
	CategoryDetailed string          `json:"category_detailed"`
	CustomCategory   string          `json:"custom_category,omitempty"`
	IsDiscretionary  bool            `json:"is_discretionary"`
	IsFrivolous      bool            `json:"is_frivolous"`
	Pending          bool            `json:"pending"`
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	year, month := parseYearMonth(r)
	filter := services.TransactionFilter{
		Category:      strings.TrimSpace(r.URL.Query().Get("category")),
		FrivolousOnly: r.URL.Query().Get("frivolous_only") == "true",
	}

	txns, err := s.views.TransactionsForMonth(r.Context(), year, month, filter)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to list transactions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	resp := make([]transactionResponse, 0, len(txns))
	for _, t := range txns {
		resp = append(resp, transactionResponse{
			ID:               t.ID,
			Date:             t.Date.Format(dateLayout),
			Amount:           t.Amount,
			MerchantName:     t.MerchantName,
			Description:      t.Description,
			Category:         t.Category(),
			CategoryDetailed: t.CategoryDetailed,
			CustomCategory:   t.CustomCategory,
			IsDiscretionary:  t.IsDiscretionary,
			IsFrivolous:      t.IsFrivolous,
			Pending:          t.Pending,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetCategory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		ID       int64  `json:"id"`
		Category string `json:"category"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID <= 0 {
		writeError(w, http.StatusBadRequest, "transaction id required")
		return
	}

	if err := s.storage.SetCustomCategory(r.Context(), req.ID, strings.TrimSpace(req.Category)); err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to set custom category",
			"transaction_id", req.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to set category")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleSpendingByCategory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	year, month := parseYearMonth(r)
	rows, err := s.views.SpendingByCategory(r.Context(), year, month)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to compute spending breakdown", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute spending")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

type budgetResponse struct {
	ID           int64           `json:"id"`
	Category     string          `json:"category"`
	MonthlyLimit decimal.Decimal `json:"monthly_limit"`
	IsMain       bool            `json:"is_main"`
}

func (s *Server) handleBudgets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listBudgets(w, r)
	case http.MethodPost:
		s.setBudget(w, r)
	case http.MethodDelete:
		s.deactivateBudget(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) listBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.storage.ListActiveBudgets(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to list budgets", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list budgets")
		return
	}

	resp := make([]budgetResponse, 0, len(budgets))
	for _, b := range budgets {
		resp = append(resp, budgetResponse{
			ID:           b.ID,
			Category:     b.Category,
			MonthlyLimit: b.MonthlyLimit,
			IsMain:       b.IsMain,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) setBudget(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category     string          `json:"category"`
		MonthlyLimit decimal.Decimal `json:"monthly_limit"`
		IsMain       bool            `json:"is_main"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		budget core.Budget
		err    error
	)
	if req.IsMain {
		budget, err = s.storage.SetMainBudget(r.Context(), req.MonthlyLimit)
	} else {
		if strings.TrimSpace(req.Category) == "" {
			writeError(w, http.StatusBadRequest, "category required for category budgets")
			return
		}
		budget, err = s.storage.SetCategoryBudget(r.Context(), req.Category, req.MonthlyLimit)
	}
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to set budget", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to set budget")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "budget_id": budget.ID})
}

func (s *Server) deactivateBudget(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "budget id required")
		return
	}
	if err := s.storage.DeactivateBudget(r.Context(), id); err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to deactivate budget", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to deactivate budget")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleBudgetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	year, month := parseYearMonth(r)
	status, err := s.budgets.Status(r.Context(), year, month)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to compute budget status", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute budget status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleManualSync triggers a refresh. With a broker configured the request
// is queued for the worker; otherwise the cycle runs inline.
func (s *Server) handleManualSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if s.broker != nil {
		msg, err := s.broker.PublishRefreshRequest(r.Context(), "api")
		if err != nil {
			s.logger.ErrorContext(r.Context(), "Failed to queue refresh", "error", err)
			writeError(w, http.StatusServiceUnavailable, "failed to queue refresh")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"queued": true, "run_id": msg.RunID})
		return
	}

	report, err := s.refresh.RefreshAll(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Refresh failed", "error", err)
		writeError(w, http.StatusInternalServerError, "refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCreateLinkToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	token, err := s.link.CreateLinkToken(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to create link token", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create link token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"link_token": token})
}

func (s *Server) handleExchangeToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		PublicToken     string `json:"public_token"`
		InstitutionID   string `json:"institution_id"`
		InstitutionName string `json:"institution_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.PublicToken) == "" {
		writeError(w, http.StatusBadRequest, "public_token required")
		return
	}

	item, _, err := s.link.LinkItem(r.Context(), req.PublicToken, req.InstitutionID, req.InstitutionName)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to link item", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to link item")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "item_id": item.ItemID})
}
