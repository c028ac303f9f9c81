package reservation

import (
	"context"

	"github.com/fekuna/omnipos-inventory-service/internal/batch"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/reservation/dto"
)

type UseCase interface {
	// Reserve earmarks quantity for a pending order, spread over batches in
	// FIFO order. Nothing is mutated when allocation fails.
	Reserve(ctx context.Context, input *dto.ReserveInput) ([]batch.Allocation, error)

	// Release returns previously reserved quantity in the same batch
	// distribution recorded at reservation time.
	Release(ctx context.Context, input *dto.ReleaseInput) error

	// DeductForSale plans and commits a quantity deduction in one call,
	// consuming any reservation held under the reference first.
	DeductForSale(ctx context.Context, input *dto.SaleInput) ([]batch.Allocation, error)

	ListByReference(ctx context.Context, referenceID string, productID, outletID int64) ([]model.Reservation, error)
}
