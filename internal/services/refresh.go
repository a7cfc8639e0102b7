package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"networth/internal/storage"
)

// ItemFailure is one item that could not be reconciled during a refresh.
type ItemFailure struct {
	ItemID string `json:"item_id"`
	Error  string `json:"error"`
}

// RefreshReport summarizes a full refresh cycle.
type RefreshReport struct {
	RunAt              time.Time     `json:"run_at"`
	ItemsProcessed     int           `json:"items_processed"`
	ItemsFailed        int           `json:"items_failed"`
	Failures           []ItemFailure `json:"failures,omitempty"`
	TransactionsSynced int           `json:"transactions_synced"`
	SnapshotRecorded   bool          `json:"snapshot_recorded"`
}

// RefreshService runs the full sync-snapshot-classify cycle. A mutex
// serializes cycles; the holdings replace and snapshot upsert are not safe
// under concurrent runs on the same keys.
type RefreshService struct {
	storage    *storage.SQLiteRepository
	sync       *SyncService
	netWorth   *NetWorthService
	classifier *Classifier

	mu sync.Mutex
}

func NewRefreshService(repo *storage.SQLiteRepository, syncSvc *SyncService, netWorth *NetWorthService, classifier *Classifier) *RefreshService {
	return &RefreshService{
		storage:    repo,
		sync:       syncSvc,
		netWorth:   netWorth,
		classifier: classifier,
	}
}

// RefreshAll reconciles every active item sequentially, continuing past
// per-item failures, then records today's snapshot and reclassifies the
// current month.
func (s *RefreshService) RefreshAll(ctx context.Context) (RefreshReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	report := RefreshReport{RunAt: now}

	items, err := s.storage.ListActiveItems(ctx)
	if err != nil {
		return report, fmt.Errorf("list active items: %w", err)
	}

	for _, item := range items {
		outcome, err := s.sync.ReconcileItem(ctx, item)
		report.ItemsProcessed++
		if err != nil {
			report.ItemsFailed++
			report.Failures = append(report.Failures, ItemFailure{
				ItemID: item.ItemID,
				Error:  err.Error(),
			})
			slog.ErrorContext(ctx, "Item reconciliation failed",
				"item_id", item.ItemID, "error", err)
			continue
		}
		report.TransactionsSynced += outcome.TransactionsSynced
	}

	if _, err := s.netWorth.RecordSnapshot(ctx, now); err != nil {
		return report, fmt.Errorf("record snapshot: %w", err)
	}
	report.SnapshotRecorded = true

	if err := s.classifier.Classify(ctx, now.Year(), int(now.Month())); err != nil {
		return report, fmt.Errorf("classify current month: %w", err)
	}

	slog.InfoContext(ctx, "Refresh complete",
		"items", report.ItemsProcessed,
		"failed", report.ItemsFailed,
		"transactions", report.TransactionsSynced)
	return report, nil
}
