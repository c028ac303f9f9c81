package alert

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/alert/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

type Repository interface {
	// CreateIfAbsent inserts the alert unless an ACTIVE one already exists
	// for the same (product, outlet, type). Returns false when the existing
	// alert won.
	CreateIfAbsent(ctx context.Context, a *model.StockAlert, evt *model.OutboxEvent) (bool, error)

	GetAlert(ctx context.Context, id string) (*model.StockAlert, error)
	UpdateAlert(ctx context.Context, a *model.StockAlert) error
	FindAlerts(ctx context.Context, f *dto.AlertFilters) ([]model.StockAlert, int, error)

	// DeleteResolvedBefore removes RESOLVED alerts resolved before the cutoff
	// and returns how many rows went away.
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
