package transfer

import (
	"context"

	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

// Move drains quantity out of one source batch. SourceEmptied marks the
// source as fully consumed so the repository retires it. DestBatchID is set
// when the quantity lands in an existing destination batch; moves feeding a
// brand-new lot leave it empty and the lot travels in newBatches instead.
type Move struct {
	SourceBatchID string
	Quantity      float64
	SourceEmptied bool
	DestBatchID   string
}

type Repository interface {
	ListAllocatable(ctx context.Context, productID, outletID int64) ([]model.Batch, error)
	GetBatches(ctx context.Context, ids []string) ([]model.Batch, error)

	// FindDestinationBatch looks for a live batch at the destination carrying
	// the same batch number. At most one can exist per (product, outlet,
	// number); transferred stock merges into it. Returns nil when no such
	// batch exists.
	FindDestinationBatch(ctx context.Context, productID, outletID int64, batchNumber string) (*model.Batch, error)

	// ApplyTransfer commits the whole transfer in one database transaction:
	// source decrements, destination increments or inserts, audit rows and
	// the outbox event. Any guard failure rolls everything back with
	// ErrConcurrentModification.
	ApplyTransfer(ctx context.Context, moves []Move, newBatches []model.Batch, txns []model.StockTransaction, evt *model.OutboxEvent) error
}
