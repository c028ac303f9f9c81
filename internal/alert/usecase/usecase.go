package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-inventory-service/config"
	"github.com/fekuna/omnipos-inventory-service/internal/alert"
	"github.com/fekuna/omnipos-inventory-service/internal/alert/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/events"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"github.com/fekuna/omnipos-inventory-service/pkg/metrics"
	"github.com/fekuna/omnipos-inventory-service/pkg/search"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const alertIndex = "stock-alerts"

type alertUseCase struct {
	repo   alert.Repository
	stock  alert.StockReader
	search *search.Client
	cfg    *config.InventoryConfig
	logger logger.ZapLogger
}

// NewAlertUseCase builds the evaluator. search may be nil; indexing is then
// skipped.
func NewAlertUseCase(repo alert.Repository, stock alert.StockReader, es *search.Client, cfg *config.InventoryConfig, log logger.ZapLogger) alert.UseCase {
	return &alertUseCase{
		repo:   repo,
		stock:  stock,
		search: es,
		cfg:    cfg,
		logger: log,
	}
}

func (uc *alertUseCase) Evaluate(ctx context.Context, productID, outletID int64) error {
	summary, err := uc.stock.Summarize(ctx, productID, outletID, uc.cfg.ExpiryWarningDays, uc.cfg.ExpiryCriticalDays)
	if err != nil {
		return err
	}

	threshold, err := uc.stock.GetThreshold(ctx, productID, outletID)
	if err != nil {
		return err
	}
	minLevel := uc.cfg.DefaultMinStockLevel
	reorderPoint := 0.0
	maxLevel := 0.0
	if threshold != nil {
		minLevel = threshold.MinStockLevel
		reorderPoint = threshold.ReorderPoint
		maxLevel = threshold.MaxStockLevel
	}

	available := summary.AvailableQuantity

	for _, c := range []struct {
		match    bool
		alert    model.AlertType
		priority model.AlertPriority
		message  string
	}{
		{
			match:    summary.BatchCount > 0 && available <= 0,
			alert:    model.AlertOutOfStock,
			priority: model.AlertPriorityCritical,
			message:  fmt.Sprintf("product %d is out of stock at outlet %d", productID, outletID),
		},
		{
			match:    available > 0 && available <= minLevel,
			alert:    model.AlertLowStock,
			priority: model.AlertPriorityMedium,
			message:  fmt.Sprintf("stock %.2f is at or below minimum %.2f", available, minLevel),
		},
		{
			match:    reorderPoint > 0 && available <= reorderPoint,
			alert:    model.AlertReorderRequired,
			priority: model.AlertPriorityHigh,
			message:  fmt.Sprintf("stock %.2f is at or below reorder point %.2f", available, reorderPoint),
		},
		{
			match:    summary.ExpiredBatches > 0,
			alert:    model.AlertExpiryCritical,
			priority: model.AlertPriorityCritical,
			message:  fmt.Sprintf("%d batch(es) are past expiry", summary.ExpiredBatches),
		},
		{
			match:    summary.ExpiredBatches == 0 && summary.CriticalBatches > 0,
			alert:    model.AlertExpiryCritical,
			priority: model.AlertPriorityHigh,
			message:  fmt.Sprintf("%d batch(es) expire within %d days", summary.CriticalBatches, uc.cfg.ExpiryCriticalDays),
		},
		{
			match:    summary.WarningBatches > 0,
			alert:    model.AlertExpiryWarning,
			priority: model.AlertPriorityLow,
			message:  fmt.Sprintf("%d batch(es) expire within %d days", summary.WarningBatches, uc.cfg.ExpiryWarningDays),
		},
		{
			match:    uc.overstocked(available, minLevel, maxLevel),
			alert:    model.AlertOverstock,
			priority: model.AlertPriorityLow,
			message:  fmt.Sprintf("stock %.2f exceeds the configured maximum", available),
		},
		{
			match:    summary.DamagedQuantity > 0,
			alert:    model.AlertDamagedStock,
			priority: model.AlertPriorityMedium,
			message:  fmt.Sprintf("%.2f units are held as damaged or quarantined", summary.DamagedQuantity),
		},
	} {
		if !c.match {
			continue
		}
		if err := uc.raise(ctx, productID, outletID, c.alert, c.priority, c.message, available, minLevel); err != nil {
			return err
		}
	}

	return nil
}

func (uc *alertUseCase) overstocked(available, minLevel, maxLevel float64) bool {
	if maxLevel > 0 {
		return available >= maxLevel
	}
	return minLevel > 0 && available >= minLevel*uc.cfg.OverstockMultiplier
}

func (uc *alertUseCase) raise(ctx context.Context, productID, outletID int64, alertType model.AlertType, priority model.AlertPriority, message string, stock, minLevel float64) error {
	a := &model.StockAlert{
		ID:            uuid.New().String(),
		ProductID:     productID,
		OutletID:      outletID,
		AlertType:     alertType,
		Priority:      priority,
		Status:        model.AlertStatusActive,
		Message:       message,
		CurrentStock:  stock,
		MinStockLevel: minLevel,
		CreatedAt:     time.Now(),
	}

	evt, err := events.NewOutboxEvent(events.TypeAlertRaised, "alert", a.ID, events.AlertPayload{
		AlertID:   a.ID,
		ProductID: productID,
		OutletID:  outletID,
		AlertType: string(alertType),
		Priority:  string(priority),
		Stock:     stock,
	})
	if err != nil {
		return err
	}

	created, err := uc.repo.CreateIfAbsent(ctx, a, evt)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	metrics.AlertsRaisedTotal.WithLabelValues(string(alertType)).Inc()
	uc.logger.Info("stock alert raised",
		zap.String("alert_id", a.ID),
		zap.Int64("product_id", productID),
		zap.Int64("outlet_id", outletID),
		zap.String("type", string(alertType)),
		zap.String("priority", string(priority)),
	)
	uc.syncToElastic(a)
	return nil
}

// syncToElastic mirrors the alert into the search index. Failures are logged
// and swallowed; the database row is the source of truth.
func (uc *alertUseCase) syncToElastic(a *model.StockAlert) {
	if uc.search == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := uc.search.Index(ctx, alertIndex, a.ID, a); err != nil {
			uc.logger.Warn("failed to index alert", zap.String("alert_id", a.ID), zap.Error(err))
		}
	}()
}

func (uc *alertUseCase) Acknowledge(ctx context.Context, alertID string, userID int64) (*model.StockAlert, error) {
	a, err := uc.repo.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AlertStatusActive {
		return nil, apperr.InvalidStateTransitionf("alert %s is %s, only ACTIVE alerts can be acknowledged", alertID, a.Status)
	}

	now := time.Now()
	a.Status = model.AlertStatusAcknowledged
	a.AcknowledgedBy = &userID
	a.AcknowledgedAt = &now

	if err := uc.repo.UpdateAlert(ctx, a); err != nil {
		return nil, err
	}
	uc.syncToElastic(a)
	return a, nil
}

func (uc *alertUseCase) Resolve(ctx context.Context, alertID string, userID int64, notes string) (*model.StockAlert, error) {
	a, err := uc.repo.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if a.Status == model.AlertStatusResolved {
		return nil, apperr.InvalidStateTransitionf("alert %s is already resolved", alertID)
	}

	now := time.Now()
	a.Status = model.AlertStatusResolved
	a.ResolvedBy = &userID
	a.ResolvedAt = &now
	if notes != "" {
		a.ResolutionNotes = &notes
	}

	if err := uc.repo.UpdateAlert(ctx, a); err != nil {
		return nil, err
	}
	uc.syncToElastic(a)
	return a, nil
}

func (uc *alertUseCase) ListAlerts(ctx context.Context, filters *dto.AlertFilters) ([]model.StockAlert, int, error) {
	return uc.repo.FindAlerts(ctx, filters)
}

func (uc *alertUseCase) SweepResolved(ctx context.Context) (int64, error) {
	days := uc.cfg.AlertRetentionDays
	if days <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	deleted, err := uc.repo.DeleteResolvedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		uc.logger.Info("pruned resolved alerts", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	}
	return deleted, nil
}
