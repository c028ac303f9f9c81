package batch

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/batch/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

type UseCase interface {
	ReceiveStock(ctx context.Context, input *dto.ReceiveStockInput) (*model.Batch, error)
	AdjustStock(ctx context.Context, input *dto.AdjustStockInput) (*model.Batch, error)
	MarkExpired(ctx context.Context, batchID string, actingUserID int64) (*model.Batch, error)

	GetBatch(ctx context.Context, id string) (*model.Batch, error)
	ListBatches(ctx context.Context, f *dto.BatchFilters) ([]model.Batch, int, error)
	ListTransactions(ctx context.Context, f *dto.TransactionFilters) ([]model.StockTransaction, int, error)

	Summarize(ctx context.Context, productID, outletID int64) (*model.StockSummary, error)
	ListExpiring(ctx context.Context, outletID int64, withinDays int) ([]model.Batch, error)
	ListExpired(ctx context.Context, outletID int64) ([]model.Batch, error)
	ListLowStock(ctx context.Context, outletID int64) ([]model.StockSummary, error)
	SetThreshold(ctx context.Context, t *model.StockThreshold) error

	// SweepExpired marks newly expired batches and writes EXPIRE adjustments
	// consuming their available portion. Safe to re-run.
	SweepExpired(ctx context.Context) (int, error)
}

// AlertEvaluator re-checks alert rules for a (product, outlet) pair after a
// mutation commits. Evaluation is advisory and runs asynchronously.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, productID, outletID int64) error
}

// Locker serializes plan-then-apply critical sections across processes.
// *cache.RedisClient satisfies it.
type Locker interface {
	AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, value string) error
}

// SummaryCache is the optional read cache for stock summaries.
type SummaryCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}
