package alert

import (
	"context"

	"github.com/fekuna/omnipos-inventory-service/internal/alert/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

type UseCase interface {
	// Evaluate recomputes the alert rules for one (product, outlet) pair and
	// raises whatever is missing. Existing alerts are never auto-resolved;
	// clearing them is an operator action.
	Evaluate(ctx context.Context, productID, outletID int64) error

	Acknowledge(ctx context.Context, alertID string, userID int64) (*model.StockAlert, error)
	Resolve(ctx context.Context, alertID string, userID int64, notes string) (*model.StockAlert, error)
	ListAlerts(ctx context.Context, filters *dto.AlertFilters) ([]model.StockAlert, int, error)

	// SweepResolved prunes RESOLVED alerts older than the retention window.
	SweepResolved(ctx context.Context) (int64, error)
}

// StockReader is the slice of the batch store the evaluator needs.
type StockReader interface {
	Summarize(ctx context.Context, productID, outletID int64, warningDays, criticalDays int) (*model.StockSummary, error)
	GetThreshold(ctx context.Context, productID, outletID int64) (*model.StockThreshold, error)
}
