package transfer

import (
	"context"

	"github.com/fekuna/omnipos-inventory-service/internal/transfer/dto"
)

type UseCase interface {
	// Transfer moves quantity between two outlets atomically, draining
	// source batches in FIFO order. Either both sides commit or neither does.
	Transfer(ctx context.Context, input *dto.TransferInput) (*dto.TransferResult, error)
}
