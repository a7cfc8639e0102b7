package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"networth/internal/core"
	"networth/internal/provider"
	"networth/internal/storage"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// SyncOutcome summarizes one item's reconciliation run.
type SyncOutcome struct {
	ItemID             string
	AccountsSynced     int
	TransactionsSynced int
	RemovedUpstream    []string
	HoldingsAccounts   int
	HoldingsSkipped    bool
}

// SyncService reconciles linked items against the aggregation provider.
type SyncService struct {
	storage *storage.SQLiteRepository
	client  provider.Client
}

func NewSyncService(repo *storage.SQLiteRepository, client provider.Client) *SyncService {
	return &SyncService{storage: repo, client: client}
}

// ReconcileItem pulls accounts, transactions, and holdings for one item.
// Account and transaction failures abort the item; holdings failures are
// logged and skipped. Each persistence step commits independently, so a
// failure mid-run leaves earlier steps intact.
func (s *SyncService) ReconcileItem(ctx context.Context, item core.LinkedItem) (SyncOutcome, error) {
	outcome := SyncOutcome{ItemID: item.ItemID}
	today := core.DateOnly(time.Now()).Format(dateLayout)

	accountIDs, err := s.syncAccounts(ctx, item, today)
	if err != nil {
		s.noteItemFailure(ctx, item, err)
		return outcome, fmt.Errorf("sync accounts for item %s: %w", item.ItemID, err)
	}
	outcome.AccountsSynced = len(accountIDs)

	synced, removed, err := s.syncTransactions(ctx, item, accountIDs)
	if err != nil {
		s.noteItemFailure(ctx, item, err)
		return outcome, fmt.Errorf("sync transactions for item %s: %w", item.ItemID, err)
	}
	outcome.TransactionsSynced = synced
	outcome.RemovedUpstream = removed

	holdingsAccounts, err := s.syncHoldings(ctx, item, accountIDs)
	if err != nil {
		// Holdings are best-effort: banks without an investments product
		// land here on every run.
		if errors.Is(err, provider.ErrUnsupportedProduct) {
			slog.InfoContext(ctx, "Holdings not supported for item", "item_id", item.ItemID)
		} else {
			slog.WarnContext(ctx, "Holdings sync failed",
				"item_id", item.ItemID, "error", err)
		}
		outcome.HoldingsSkipped = true
	}
	outcome.HoldingsAccounts = holdingsAccounts

	if err := s.storage.MarkItemSynced(ctx, item.ID, time.Now().UTC()); err != nil {
		return outcome, fmt.Errorf("mark item synced: %w", err)
	}

	slog.InfoContext(ctx, "Item reconciled",
		"item_id", item.ItemID,
		"accounts", outcome.AccountsSynced,
		"transactions", outcome.TransactionsSynced,
		"holdings_accounts", outcome.HoldingsAccounts)
	return outcome, nil
}

// syncAccounts upserts every provider account with today's balance and
// returns the provider-id to local-row-id mapping for the later steps.
func (s *SyncService) syncAccounts(ctx context.Context, item core.LinkedItem, today string) (map[string]int64, error) {
	result, err := s.client.GetAccounts(ctx, item.AccessToken)
	if err != nil {
		return nil, err
	}

	accountIDs := make(map[string]int64, len(result.Accounts))
	for _, a := range result.Accounts {
		current := decimal.Zero
		if a.Balances.Current.Valid {
			current = a.Balances.Current.Decimal
		}

		acct, err := s.storage.UpsertAccountBalance(ctx, storage.UpsertAccountParams{
			ExternalID:      a.AccountID,
			ItemID:          item.ItemID,
			InstitutionName: item.InstitutionName,
			Name:            a.Name,
			OfficialName:    a.OfficialName,
			Type:            core.MapAccountType(resolveAccountType(a)),
			Mask:            a.Mask,
		}, storage.BalanceInput{
			Current:     current,
			Available:   a.Balances.Available,
			CreditLimit: a.Balances.Limit,
		}, today)
		if err != nil {
			return nil, err
		}
		accountIDs[a.AccountID] = acct.ID
	}
	return accountIDs, nil
}

// resolveAccountType prefers the subtype when the provider reports one; a
// depository account's subtype distinguishes checking from savings.
func resolveAccountType(a provider.Account) string {
	if a.Subtype != "" {
		return a.Subtype
	}
	return a.Type
}

func (s *SyncService) syncTransactions(ctx context.Context, item core.LinkedItem, accountIDs map[string]int64) (int, []string, error) {
	policy, err := LoadCategoryPolicy(ctx, s.storage)
	if err != nil {
		return 0, nil, err
	}

	var (
		upserts []storage.TransactionUpsert
		removed []string
	)
	cursor := item.SyncCursor

	for {
		page, err := s.client.SyncTransactions(ctx, item.AccessToken, cursor)
		if err != nil {
			return 0, nil, err
		}

		for _, txn := range append(page.Added, page.Modified...) {
			accountID, ok := accountIDs[txn.AccountID]
			if !ok {
				acct, err := s.storage.GetAccountByExternalID(ctx, txn.AccountID)
				if err != nil {
					slog.WarnContext(ctx, "Transaction for unknown account skipped",
						"transaction_id", txn.TransactionID, "account_id", txn.AccountID)
					continue
				}
				accountID = acct.ID
				accountIDs[txn.AccountID] = accountID
			}

			date, err := time.Parse(dateLayout, txn.Date)
			if err != nil {
				return 0, nil, fmt.Errorf("parse transaction date %q: %w", txn.Date, err)
			}

			var primary, detailed string
			if txn.FinanceCategory != nil {
				primary = txn.FinanceCategory.Primary
				detailed = txn.FinanceCategory.Detailed
			}

			upserts = append(upserts, storage.TransactionUpsert{
				AccountID:        accountID,
				ExternalID:       txn.TransactionID,
				Date:             date,
				Amount:           txn.Amount,
				MerchantName:     txn.MerchantName,
				Description:      txn.Name,
				CategoryPrimary:  primary,
				CategoryDetailed: detailed,
				Pending:          txn.Pending,
				IsDiscretionary:  policy.LookupDiscretionary(primary),
			})
		}
		for _, r := range page.Removed {
			removed = append(removed, r.TransactionID)
		}

		cursor = page.NextCursor
		if !page.HasMore {
			break
		}
	}

	// The cursor advances in the same transaction as the final upserts, so
	// an interrupted run resumes from the last committed cursor.
	if err := s.storage.ApplyTransactionsSync(ctx, item.ID, cursor, upserts); err != nil {
		return 0, nil, err
	}
	return len(upserts), removed, nil
}

func (s *SyncService) syncHoldings(ctx context.Context, item core.LinkedItem, accountIDs map[string]int64) (int, error) {
	holdings, err := s.client.GetHoldings(ctx, item.AccessToken)
	if err != nil {
		return 0, err
	}

	byAccount := make(map[int64][]storage.HoldingUpsert)
	for _, h := range holdings {
		accountID, ok := accountIDs[h.AccountID]
		if !ok {
			slog.WarnContext(ctx, "Holding for unknown account skipped",
				"security_id", h.SecurityID, "account_id", h.AccountID)
			continue
		}
		currency := h.Currency
		if currency == "" {
			currency = core.DefaultCurrency
		}
		byAccount[accountID] = append(byAccount[accountID], storage.HoldingUpsert{
			SecurityID:   h.SecurityID,
			Symbol:       core.HoldingSymbol(h.Symbol, h.Name),
			Name:         h.Name,
			Quantity:     h.Quantity,
			CostBasis:    h.CostBasis,
			CurrentPrice: h.CurrentPrice,
			CurrentValue: h.CurrentValue,
			Currency:     currency,
		})
	}

	asOf := core.DateOnly(time.Now())
	for accountID, rows := range byAccount {
		if err := s.storage.ReplaceHoldings(ctx, accountID, rows, asOf); err != nil {
			return 0, err
		}
	}
	return len(byAccount), nil
}

// noteItemFailure marks an item as needing reauthentication when the
// provider says the login expired. Other failures leave the status alone.
func (s *SyncService) noteItemFailure(ctx context.Context, item core.LinkedItem, err error) {
	var perr *provider.Error
	if !errors.As(err, &perr) || perr.ErrorCode != "ITEM_LOGIN_REQUIRED" {
		return
	}
	if serr := s.storage.SetItemStatus(ctx, item.ItemID, core.ItemStatusNeedsReauth); serr != nil {
		slog.ErrorContext(ctx, "Failed to flag item for reauth",
			"item_id", item.ItemID, "error", serr)
		return
	}
	slog.WarnContext(ctx, "Item needs reauthentication", "item_id", item.ItemID)
}
