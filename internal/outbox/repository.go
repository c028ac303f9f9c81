package outbox

import (
	"context"

	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

type Repository interface {
	// FetchPending returns the oldest pending events, capped at limit.
	FetchPending(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkPublished(ctx context.Context, ids []string) error

	// RecordFailure bumps the attempt counter and flips the event to FAILED
	// once it exceeds maxAttempts.
	RecordFailure(ctx context.Context, id string, maxAttempts int) error
}
