package batch

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/batch/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

type Repository interface {
	// Batches
	CreateBatch(ctx context.Context, b *model.Batch, txn *model.StockTransaction, evt *model.OutboxEvent) error
	GetBatch(ctx context.Context, id string) (*model.Batch, error)
	FindBatches(ctx context.Context, f *dto.BatchFilters) ([]model.Batch, int, error)
	ListAllocatable(ctx context.Context, productID, outletID int64) ([]model.Batch, error)

	// ApplyAdjustment changes one batch's quantity and status and appends the
	// transaction row atomically. The update is conditional on the quantity
	// invariants still holding; zero rows affected is a conflict.
	ApplyAdjustment(ctx context.Context, batchID string, delta float64, newStatus model.BatchStatus, txn *model.StockTransaction, evt *model.OutboxEvent) error
	SetStatus(ctx context.Context, batchID string, status model.BatchStatus, evt *model.OutboxEvent) error

	// Transactions (append-only audit log)
	ListTransactions(ctx context.Context, f *dto.TransactionFilters) ([]model.StockTransaction, int, error)

	// Projections
	Summarize(ctx context.Context, productID, outletID int64, warningDays, criticalDays int) (*model.StockSummary, error)
	ListExpiring(ctx context.Context, outletID int64, withinDays int) ([]model.Batch, error)
	ListExpired(ctx context.Context, outletID int64) ([]model.Batch, error)
	ListExpiryCandidates(ctx context.Context, asOf time.Time) ([]model.Batch, error)
	OutletSummaries(ctx context.Context, outletID int64, warningDays, criticalDays int) ([]model.StockSummary, error)

	// Thresholds
	GetThreshold(ctx context.Context, productID, outletID int64) (*model.StockThreshold, error)
	UpsertThreshold(ctx context.Context, t *model.StockThreshold) error
}
