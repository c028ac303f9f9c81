package reservation

import (
	"context"

	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

// ReleaseEntry returns previously reserved quantity to one batch.
type ReleaseEntry struct {
	ReservationID string
	BatchID       string
	Quantity      float64
}

// SaleEntry deducts sold quantity from one batch. FromReserved is the
// portion that was held under the sale's reference and comes out of the
// batch's reservation counter as well.
type SaleEntry struct {
	BatchID       string
	Quantity      float64
	FromReserved  float64
	ReservationID string // empty when nothing was reserved on this batch
}

type Repository interface {
	ListAllocatable(ctx context.Context, productID, outletID int64) ([]model.Batch, error)
	GetBatches(ctx context.Context, ids []string) ([]model.Batch, error)
	FindActiveByReference(ctx context.Context, referenceID string, productID, outletID int64) ([]model.Reservation, error)

	// ApplyReservation increments each touched batch's reserved counter,
	// records the distribution rows and appends the audit transactions in one
	// database transaction. Guards fail the whole call with
	// ErrConcurrentModification when another writer got there first.
	ApplyReservation(ctx context.Context, reservations []model.Reservation, txns []model.StockTransaction, evt *model.OutboxEvent) error
	ApplyRelease(ctx context.Context, entries []ReleaseEntry, txns []model.StockTransaction, evt *model.OutboxEvent) error
	ApplySale(ctx context.Context, entries []SaleEntry, txns []model.StockTransaction, evt *model.OutboxEvent) error
}
