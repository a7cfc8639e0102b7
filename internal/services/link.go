package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"networth/internal/core"
	"networth/internal/provider"
	"networth/internal/storage"
)

// LinkService handles the one-time flow that connects a new institution.
type LinkService struct {
	storage  *storage.SQLiteRepository
	client   provider.LinkClient
	sync     *SyncService
	netWorth *NetWorthService
}

func NewLinkService(repo *storage.SQLiteRepository, client provider.LinkClient, syncSvc *SyncService, netWorth *NetWorthService) *LinkService {
	return &LinkService{
		storage:  repo,
		client:   client,
		sync:     syncSvc,
		netWorth: netWorth,
	}
}

// CreateLinkToken starts the provider's link flow for the frontend.
func (s *LinkService) CreateLinkToken(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		userID = "user-1"
	}
	token, err := s.client.CreateLinkToken(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("create link token: %w", err)
	}
	return token, nil
}

// LinkItem exchanges a public token for a durable credential, persists the
// item, and runs an initial reconcile and snapshot so the new accounts show
// up immediately. A failed initial sync does not undo the link; the next
// scheduled refresh retries it.
func (s *LinkService) LinkItem(ctx context.Context, publicToken, institutionID, institutionName string) (core.LinkedItem, SyncOutcome, error) {
	exchange, err := s.client.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return core.LinkedItem{}, SyncOutcome{}, fmt.Errorf("exchange public token: %w", err)
	}

	item, err := s.storage.CreateItem(ctx, core.LinkedItem{
		ItemID:          exchange.ItemID,
		AccessToken:     exchange.AccessToken,
		InstitutionID:   institutionID,
		InstitutionName: institutionName,
	})
	if err != nil {
		return core.LinkedItem{}, SyncOutcome{}, fmt.Errorf("persist linked item: %w", err)
	}
	slog.InfoContext(ctx, "Linked new item",
		"item_id", item.ItemID, "institution", institutionName)

	outcome, err := s.sync.ReconcileItem(ctx, item)
	if err != nil {
		slog.WarnContext(ctx, "Initial sync failed after link",
			"item_id", item.ItemID, "error", err)
		return item, outcome, nil
	}

	if _, err := s.netWorth.RecordSnapshot(ctx, time.Now()); err != nil {
		slog.WarnContext(ctx, "Snapshot after link failed",
			"item_id", item.ItemID, "error", err)
	}
	return item, outcome, nil
}
