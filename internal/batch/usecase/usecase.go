package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-inventory-service/config"
	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/batch"
	"github.com/fekuna/omnipos-inventory-service/internal/batch/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/events"
	"github.com/fekuna/omnipos-inventory-service/internal/expiry"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ledgerUseCase struct {
	repo   batch.Repository
	cache  batch.SummaryCache
	locker batch.Locker
	alerts batch.AlertEvaluator
	cfg    *config.InventoryConfig
	logger logger.ZapLogger
}

// NewLedgerUseCase builds the inventory ledger. cache, locker and alerts may
// be nil; the ledger then runs without summary caching, cross-process
// serialization or alert evaluation.
func NewLedgerUseCase(repo batch.Repository, cache batch.SummaryCache, locker batch.Locker, alerts batch.AlertEvaluator, cfg *config.InventoryConfig, log logger.ZapLogger) batch.UseCase {
	return &ledgerUseCase{
		repo:   repo,
		cache:  cache,
		locker: locker,
		alerts: alerts,
		cfg:    cfg,
		logger: log,
	}
}

func (uc *ledgerUseCase) ReceiveStock(ctx context.Context, input *dto.ReceiveStockInput) (*model.Batch, error) {
	if input.Quantity <= 0 {
		return nil, apperr.InvalidQuantityf("receive quantity must be positive, got %.2f", input.Quantity)
	}
	if input.BatchNumber == "" {
		return nil, apperr.InvalidArgumentf("batch number is required")
	}

	now := time.Now()
	receivedDate := input.ReceivedDate
	if receivedDate.IsZero() {
		receivedDate = now
	}

	var locationCode *string
	if input.LocationCode != "" {
		locationCode = &input.LocationCode
	}

	b := &model.Batch{
		BaseModel:        model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		ProductID:        input.ProductID,
		OutletID:         input.OutletID,
		BatchNumber:      input.BatchNumber,
		Quantity:         input.Quantity,
		ReservedQuantity: 0,
		UnitCost:         input.UnitCost,
		ExpiryDate:       input.ExpiryDate,
		ManufacturedDate: input.ManufacturedDate,
		ReceivedDate:     receivedDate,
		LocationCode:     locationCode,
		Status:           model.BatchStatusAvailable,
	}

	txn := uc.newTransaction(b, model.TransactionReceive, input.Quantity, 0, "stock received", "", "", input.ActingUserID)

	evt, err := events.NewOutboxEvent(events.TypeBatchReceived, "batch", b.ID, events.BatchPayload{
		BatchID:     b.ID,
		ProductID:   b.ProductID,
		OutletID:    b.OutletID,
		BatchNumber: b.BatchNumber,
		Quantity:    b.Quantity,
	})
	if err != nil {
		return nil, err
	}

	if err := uc.repo.CreateBatch(ctx, b, txn, evt); err != nil {
		return nil, err
	}

	uc.invalidateSummary(ctx, b.ProductID, b.OutletID)
	uc.evaluateAlerts(b.ProductID, b.OutletID)

	return b, nil
}

func (uc *ledgerUseCase) AdjustStock(ctx context.Context, input *dto.AdjustStockInput) (*model.Batch, error) {
	if input.QuantityChange == 0 {
		return nil, apperr.InvalidQuantityf("quantity change must be non-zero")
	}
	if err := validateAdjustmentSign(input.AdjustmentType, input.QuantityChange); err != nil {
		return nil, err
	}

	b, err := uc.repo.GetBatch(ctx, input.BatchID)
	if err != nil {
		return nil, err
	}

	unlock, err := uc.lock(ctx, b.ProductID, b.OutletID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var lastErr error
	for attempt := 0; attempt < uc.retries(); attempt++ {
		if attempt > 0 {
			if b, err = uc.repo.GetBatch(ctx, input.BatchID); err != nil {
				return nil, err
			}
		}

		if b.Status.Retired() {
			return nil, apperr.InvalidStateTransitionf("batch %s is %s", b.ID, b.Status)
		}

		newQuantity := b.Quantity + input.QuantityChange
		if newQuantity < 0 {
			return nil, apperr.InvalidQuantityf("adjustment would drive batch %s to %.2f", b.ID, newQuantity)
		}
		// Reserved units are protected from ad-hoc decrease.
		if input.QuantityChange < 0 && -input.QuantityChange > b.Available() {
			return nil, &apperr.InsufficientStockError{
				Requested: -input.QuantityChange,
				Available: b.Available(),
			}
		}

		newStatus := retireStatusFor(b.Status, input.AdjustmentType, newQuantity)

		txn := uc.newTransaction(b, input.AdjustmentType, input.QuantityChange, b.Quantity,
			input.Reason, input.ReferenceID, input.ReferenceType, input.ActingUserID)

		evt, err := events.NewOutboxEvent(events.TypeStockAdjusted, "batch", b.ID, events.BatchPayload{
			BatchID:     b.ID,
			ProductID:   b.ProductID,
			OutletID:    b.OutletID,
			BatchNumber: b.BatchNumber,
			Quantity:    newQuantity,
			Delta:       input.QuantityChange,
			Reason:      input.Reason,
			ReferenceID: input.ReferenceID,
		})
		if err != nil {
			return nil, err
		}

		err = uc.repo.ApplyAdjustment(ctx, b.ID, input.QuantityChange, newStatus, txn, evt)
		if err == nil {
			uc.invalidateSummary(ctx, b.ProductID, b.OutletID)
			uc.evaluateAlerts(b.ProductID, b.OutletID)
			return uc.repo.GetBatch(ctx, b.ID)
		}
		if !errors.Is(err, apperr.ErrConcurrentModification) {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

func (uc *ledgerUseCase) MarkExpired(ctx context.Context, batchID string, actingUserID int64) (*model.Batch, error) {
	b, err := uc.repo.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	// Idempotent: already expired is a no-op.
	if b.Status == model.BatchStatusExpired {
		return b, nil
	}
	if b.Status == model.BatchStatusSold || b.Status == model.BatchStatusTransferred {
		return nil, apperr.InvalidStateTransitionf("batch %s is %s", b.ID, b.Status)
	}

	risk := expiry.Classify(b.ExpiryDate, time.Now(), uc.cfg.ExpiryWarningDays, uc.cfg.ExpiryCriticalDays)
	if risk != expiry.RiskExpired {
		return nil, apperr.InvalidStateTransitionf("batch %s is not expired (risk %s)", b.ID, risk)
	}

	evt, err := events.NewOutboxEvent(events.TypeBatchExpired, "batch", b.ID, events.BatchPayload{
		BatchID:     b.ID,
		ProductID:   b.ProductID,
		OutletID:    b.OutletID,
		BatchNumber: b.BatchNumber,
		Quantity:    b.Quantity,
	})
	if err != nil {
		return nil, err
	}

	// Status change only; the expiry sweep writes the EXPIRE adjustment that
	// consumes the available portion.
	if err := uc.repo.SetStatus(ctx, b.ID, model.BatchStatusExpired, evt); err != nil {
		return nil, err
	}

	uc.invalidateSummary(ctx, b.ProductID, b.OutletID)
	uc.evaluateAlerts(b.ProductID, b.OutletID)

	return uc.repo.GetBatch(ctx, b.ID)
}

func (uc *ledgerUseCase) GetBatch(ctx context.Context, id string) (*model.Batch, error) {
	return uc.repo.GetBatch(ctx, id)
}

func (uc *ledgerUseCase) ListBatches(ctx context.Context, f *dto.BatchFilters) ([]model.Batch, int, error) {
	return uc.repo.FindBatches(ctx, f)
}

func (uc *ledgerUseCase) ListTransactions(ctx context.Context, f *dto.TransactionFilters) ([]model.StockTransaction, int, error) {
	return uc.repo.ListTransactions(ctx, f)
}

func (uc *ledgerUseCase) Summarize(ctx context.Context, productID, outletID int64) (*model.StockSummary, error) {
	cacheKey := fmt.Sprintf("inventory:summary:%d:%d", productID, outletID)

	if uc.cache != nil && uc.cfg.SummaryCacheTTL > 0 {
		if val, ok, err := uc.cache.Get(ctx, cacheKey); err == nil && ok {
			var s model.StockSummary
			if err := json.Unmarshal([]byte(val), &s); err == nil {
				return &s, nil
			}
		}
	}

	s, err := uc.repo.Summarize(ctx, productID, outletID, uc.cfg.ExpiryWarningDays, uc.cfg.ExpiryCriticalDays)
	if err != nil {
		return nil, err
	}

	if err := uc.applyThreshold(ctx, s); err != nil {
		return nil, err
	}

	if uc.cache != nil && uc.cfg.SummaryCacheTTL > 0 {
		if raw, err := json.Marshal(s); err == nil {
			ttl := time.Duration(uc.cfg.SummaryCacheTTL) * time.Second
			if err := uc.cache.Set(ctx, cacheKey, raw, ttl); err != nil {
				uc.logger.Warn("failed to cache stock summary", zap.Error(err))
			}
		}
	}

	return s, nil
}

func (uc *ledgerUseCase) ListExpiring(ctx context.Context, outletID int64, withinDays int) ([]model.Batch, error) {
	if withinDays <= 0 {
		withinDays = uc.cfg.ExpiryWarningDays
	}
	return uc.repo.ListExpiring(ctx, outletID, withinDays)
}

func (uc *ledgerUseCase) ListExpired(ctx context.Context, outletID int64) ([]model.Batch, error) {
	return uc.repo.ListExpired(ctx, outletID)
}

func (uc *ledgerUseCase) ListLowStock(ctx context.Context, outletID int64) ([]model.StockSummary, error) {
	summaries, err := uc.repo.OutletSummaries(ctx, outletID, uc.cfg.ExpiryWarningDays, uc.cfg.ExpiryCriticalDays)
	if err != nil {
		return nil, err
	}

	var low []model.StockSummary
	for i := range summaries {
		s := &summaries[i]
		if s.MinStockLevel <= 0 {
			s.MinStockLevel = uc.cfg.DefaultMinStockLevel
		}
		s.IsOutOfStock = s.AvailableQuantity <= 0
		s.IsLowStock = s.AvailableQuantity <= s.MinStockLevel
		if s.IsLowStock || s.IsOutOfStock {
			low = append(low, *s)
		}
	}
	return low, nil
}

func (uc *ledgerUseCase) SetThreshold(ctx context.Context, t *model.StockThreshold) error {
	if t.MinStockLevel < 0 || t.ReorderPoint < 0 || t.MaxStockLevel < 0 {
		return apperr.InvalidArgumentf("threshold levels must be non-negative")
	}
	if err := uc.repo.UpsertThreshold(ctx, t); err != nil {
		return err
	}
	uc.invalidateSummary(ctx, t.ProductID, t.OutletID)
	return nil
}

func (uc *ledgerUseCase) SweepExpired(ctx context.Context) (int, error) {
	candidates, err := uc.repo.ListExpiryCandidates(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	processed := 0
	for i := range candidates {
		b := &candidates[i]
		swept, err := uc.sweepOne(ctx, b)
		if err != nil {
			uc.logger.Error("expiry sweep failed for batch",
				zap.String("batch_id", b.ID),
				zap.Int64("product_id", b.ProductID),
				zap.Int64("outlet_id", b.OutletID),
				zap.Error(err),
			)
			continue
		}
		if swept {
			processed++
		}
	}
	return processed, nil
}

func (uc *ledgerUseCase) sweepOne(ctx context.Context, b *model.Batch) (bool, error) {
	unlock, err := uc.lock(ctx, b.ProductID, b.OutletID)
	if err != nil {
		return false, err
	}
	defer unlock()

	// Re-read under the lock: the batch may have been consumed or already
	// swept since the candidate list was built.
	b, err = uc.repo.GetBatch(ctx, b.ID)
	if err != nil {
		return false, err
	}
	if b.Status == model.BatchStatusExpired || b.Status.Retired() {
		return false, nil
	}

	// Same gate as MarkExpired: a batch expiring today is CRITICAL, not
	// expired, and must survive until tomorrow's run.
	risk := expiry.Classify(b.ExpiryDate, time.Now(), uc.cfg.ExpiryWarningDays, uc.cfg.ExpiryCriticalDays)
	if risk != expiry.RiskExpired {
		return false, nil
	}

	evt, err := events.NewOutboxEvent(events.TypeBatchExpired, "batch", b.ID, events.BatchPayload{
		BatchID:     b.ID,
		ProductID:   b.ProductID,
		OutletID:    b.OutletID,
		BatchNumber: b.BatchNumber,
		Quantity:    b.Quantity,
	})
	if err != nil {
		return false, err
	}

	available := b.Available()
	if available <= 0 {
		if err := uc.repo.SetStatus(ctx, b.ID, model.BatchStatusExpired, evt); err != nil {
			return false, err
		}
	} else {
		txn := uc.newTransaction(b, model.TransactionExpire, -available, b.Quantity, "expired stock written off", "", "", 0)
		if err := uc.repo.ApplyAdjustment(ctx, b.ID, -available, model.BatchStatusExpired, txn, evt); err != nil {
			return false, err
		}
	}

	uc.invalidateSummary(ctx, b.ProductID, b.OutletID)
	uc.evaluateAlerts(b.ProductID, b.OutletID)
	return true, nil
}

func (uc *ledgerUseCase) newTransaction(b *model.Batch, t model.TransactionType, delta, previous float64, reason, referenceID, referenceType string, actingUserID int64) *model.StockTransaction {
	var refID, refType *string
	if referenceID != "" {
		refID = &referenceID
	}
	if referenceType != "" {
		refType = &referenceType
	}
	var userID *int64
	if actingUserID != 0 {
		userID = &actingUserID
	}

	return &model.StockTransaction{
		ID:               uuid.New().String(),
		BatchID:          b.ID,
		ProductID:        b.ProductID,
		OutletID:         b.OutletID,
		Type:             t,
		QuantityDelta:    delta,
		PreviousQuantity: previous,
		NewQuantity:      previous + delta,
		Reason:           reason,
		ReferenceType:    refType,
		ReferenceID:      refID,
		ActingUserID:     userID,
		CreatedAt:        time.Now(),
	}
}

func (uc *ledgerUseCase) lock(ctx context.Context, productID, outletID int64) (func(), error) {
	if uc.locker == nil {
		return func() {}, nil
	}

	lockKey := fmt.Sprintf("lock:inventory:%d:%d", productID, outletID)
	lockValue := uuid.New().String()
	ttl := time.Duration(uc.cfg.LockTTLSeconds) * time.Second

	for i := 0; i < uc.retries(); i++ {
		ok, err := uc.locker.AcquireLock(ctx, lockKey, lockValue, ttl)
		if err != nil {
			uc.logger.Error("failed to acquire inventory lock", zap.Error(err))
		}
		if ok {
			return func() {
				if err := uc.locker.ReleaseLock(ctx, lockKey, lockValue); err != nil {
					uc.logger.Warn("failed to release inventory lock", zap.String("key", lockKey), zap.Error(err))
				}
			}, nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return nil, fmt.Errorf("%w: could not lock %s", apperr.ErrConcurrentModification, lockKey)
}

func (uc *ledgerUseCase) retries() int {
	if uc.cfg.LockRetries > 0 {
		return uc.cfg.LockRetries
	}
	return 3
}

func (uc *ledgerUseCase) invalidateSummary(ctx context.Context, productID, outletID int64) {
	if uc.cache == nil {
		return
	}
	key := fmt.Sprintf("inventory:summary:%d:%d", productID, outletID)
	if err := uc.cache.Del(ctx, key); err != nil {
		uc.logger.Warn("failed to invalidate summary cache", zap.String("key", key), zap.Error(err))
	}
}

func (uc *ledgerUseCase) evaluateAlerts(productID, outletID int64) {
	if uc.alerts == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := uc.alerts.Evaluate(ctx, productID, outletID); err != nil {
			uc.logger.Error("alert evaluation failed",
				zap.Int64("product_id", productID),
				zap.Int64("outlet_id", outletID),
				zap.Error(err),
			)
		}
	}()
}

func (uc *ledgerUseCase) applyThreshold(ctx context.Context, s *model.StockSummary) error {
	t, err := uc.repo.GetThreshold(ctx, s.ProductID, s.OutletID)
	if err != nil {
		return err
	}
	if t != nil {
		s.MinStockLevel = t.MinStockLevel
		s.ReorderPoint = t.ReorderPoint
		s.MaxStockLevel = t.MaxStockLevel
	}
	if s.MinStockLevel <= 0 {
		s.MinStockLevel = uc.cfg.DefaultMinStockLevel
	}
	s.IsOutOfStock = s.AvailableQuantity <= 0
	s.IsLowStock = s.AvailableQuantity <= s.MinStockLevel
	return nil
}

func validateAdjustmentSign(t model.TransactionType, change float64) error {
	switch t {
	case model.TransactionDamage, model.TransactionWaste, model.TransactionExpire, model.TransactionIssue, model.TransactionSale:
		if change >= 0 {
			return apperr.InvalidQuantityf("%s adjustments must decrease quantity", t)
		}
	case model.TransactionReturn:
		if change <= 0 {
			return apperr.InvalidQuantityf("RETURN adjustments must increase quantity")
		}
	case model.TransactionAdjustment:
		// signed either way
	default:
		return apperr.InvalidArgumentf("unsupported adjustment type %s", t)
	}
	return nil
}

// retireStatusFor decides the batch status after an adjustment. A batch
// emptied by damage or expiry keeps that fact in its status; other
// adjustments leave the status alone so the batch-number uniqueness
// constraint stays in force until the lot is explicitly retired.
func retireStatusFor(current model.BatchStatus, t model.TransactionType, newQuantity float64) model.BatchStatus {
	if newQuantity > 0 {
		return current
	}
	switch t {
	case model.TransactionDamage:
		return model.BatchStatusDamaged
	case model.TransactionExpire:
		return model.BatchStatusExpired
	case model.TransactionSale, model.TransactionIssue:
		return model.BatchStatusSold
	default:
		return current
	}
}
