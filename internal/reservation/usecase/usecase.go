package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-inventory-service/config"
	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/batch"
	"github.com/fekuna/omnipos-inventory-service/internal/events"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/reservation"
	"github.com/fekuna/omnipos-inventory-service/internal/reservation/dto"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"github.com/fekuna/omnipos-inventory-service/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	refTypeReservation = "reservation"
	refTypeSale        = "sale"
)

type reservationUseCase struct {
	repo   reservation.Repository
	locker batch.Locker
	cache  batch.SummaryCache
	alerts batch.AlertEvaluator
	cfg    *config.InventoryConfig
	logger logger.ZapLogger
}

func NewReservationUseCase(repo reservation.Repository, locker batch.Locker, cache batch.SummaryCache, alerts batch.AlertEvaluator, cfg *config.InventoryConfig, log logger.ZapLogger) reservation.UseCase {
	return &reservationUseCase{
		repo:   repo,
		locker: locker,
		cache:  cache,
		alerts: alerts,
		cfg:    cfg,
		logger: log,
	}
}

func (uc *reservationUseCase) Reserve(ctx context.Context, input *dto.ReserveInput) ([]batch.Allocation, error) {
	if input.Quantity <= 0 {
		return nil, apperr.InvalidQuantityf("reserve quantity must be positive, got %.2f", input.Quantity)
	}
	if input.ReferenceID == "" {
		return nil, apperr.InvalidArgumentf("reference id is required")
	}

	unlock, err := uc.lock(ctx, input.ProductID, input.OutletID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var lastErr error
	for attempt := 0; attempt < uc.retries(); attempt++ {
		candidates, err := uc.repo.ListAllocatable(ctx, input.ProductID, input.OutletID)
		if err != nil {
			return nil, err
		}

		plan, err := batch.PlanAllocation(candidates, input.Quantity)
		if err != nil {
			if errors.Is(err, apperr.ErrInsufficientStock) {
				metrics.AllocationFailuresTotal.Inc()
			}
			return nil, err
		}

		byID := batchesByID(candidates)
		now := time.Now()

		reservations := make([]model.Reservation, 0, len(plan))
		txns := make([]model.StockTransaction, 0, len(plan))
		for _, a := range plan {
			b := byID[a.BatchID]
			reservations = append(reservations, model.Reservation{
				ID:          uuid.New().String(),
				ReferenceID: input.ReferenceID,
				BatchID:     a.BatchID,
				ProductID:   input.ProductID,
				OutletID:    input.OutletID,
				Quantity:    a.Quantity,
				Status:      model.ReservationStatusActive,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
			txns = append(txns, newTransaction(b, model.TransactionAdjustment, 0,
				fmt.Sprintf("reserved %.2f units", a.Quantity),
				input.ReferenceID, refTypeReservation, input.ActingUserID))
		}

		evt, err := events.NewOutboxEvent(events.TypeStockReserved, "reservation", input.ReferenceID, events.ReservationPayload{
			ReferenceID: input.ReferenceID,
			ProductID:   input.ProductID,
			OutletID:    input.OutletID,
			Quantity:    input.Quantity,
			BatchCount:  len(plan),
		})
		if err != nil {
			return nil, err
		}

		err = uc.repo.ApplyReservation(ctx, reservations, txns, evt)
		if err == nil {
			metrics.ReservationsTotal.Inc()
			uc.invalidateSummary(ctx, input.ProductID, input.OutletID)
			uc.evaluateAlerts(input.ProductID, input.OutletID)
			return plan, nil
		}
		if !errors.Is(err, apperr.ErrConcurrentModification) {
			return nil, err
		}
		metrics.ConflictRetriesTotal.Inc()
		lastErr = err
	}

	return nil, lastErr
}

func (uc *reservationUseCase) Release(ctx context.Context, input *dto.ReleaseInput) error {
	if input.Quantity <= 0 {
		return apperr.InvalidQuantityf("release quantity must be positive, got %.2f", input.Quantity)
	}

	unlock, err := uc.lock(ctx, input.ProductID, input.OutletID)
	if err != nil {
		return err
	}
	defer unlock()

	var lastErr error
	for attempt := 0; attempt < uc.retries(); attempt++ {
		held, err := uc.repo.FindActiveByReference(ctx, input.ReferenceID, input.ProductID, input.OutletID)
		if err != nil {
			return err
		}

		total := 0.0
		for _, r := range held {
			total += r.Quantity
		}
		if input.Quantity > total {
			return apperr.InvalidStateTransitionf(
				"release of %.2f exceeds %.2f reserved for reference %s",
				input.Quantity, total, input.ReferenceID)
		}

		// Walk the recorded distribution in reservation order so quantity
		// goes back into the batches it came out of.
		entries := make([]reservation.ReleaseEntry, 0, len(held))
		remaining := input.Quantity
		for _, r := range held {
			if remaining <= 0 {
				break
			}
			take := r.Quantity
			if take > remaining {
				take = remaining
			}
			entries = append(entries, reservation.ReleaseEntry{
				ReservationID: r.ID,
				BatchID:       r.BatchID,
				Quantity:      take,
			})
			remaining -= take
		}

		txns, err := uc.auditEntries(ctx, entries, input, "released %.2f units")
		if err != nil {
			return err
		}

		evt, err := events.NewOutboxEvent(events.TypeStockReleased, "reservation", input.ReferenceID, events.ReservationPayload{
			ReferenceID: input.ReferenceID,
			ProductID:   input.ProductID,
			OutletID:    input.OutletID,
			Quantity:    input.Quantity,
			BatchCount:  len(entries),
		})
		if err != nil {
			return err
		}

		err = uc.repo.ApplyRelease(ctx, entries, txns, evt)
		if err == nil {
			metrics.ReleasesTotal.Inc()
			uc.invalidateSummary(ctx, input.ProductID, input.OutletID)
			uc.evaluateAlerts(input.ProductID, input.OutletID)
			return nil
		}
		if !errors.Is(err, apperr.ErrConcurrentModification) {
			return err
		}
		metrics.ConflictRetriesTotal.Inc()
		lastErr = err
	}

	return lastErr
}

func (uc *reservationUseCase) DeductForSale(ctx context.Context, input *dto.SaleInput) ([]batch.Allocation, error) {
	if input.Quantity <= 0 {
		return nil, apperr.InvalidQuantityf("sale quantity must be positive, got %.2f", input.Quantity)
	}
	if input.ReferenceID == "" {
		return nil, apperr.InvalidArgumentf("reference id is required")
	}

	unlock, err := uc.lock(ctx, input.ProductID, input.OutletID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var lastErr error
	for attempt := 0; attempt < uc.retries(); attempt++ {
		plan, entries, err := uc.planSale(ctx, input)
		if err != nil {
			return nil, err
		}

		batches, err := uc.repo.GetBatches(ctx, entryBatchIDs(entries))
		if err != nil {
			return nil, err
		}
		byID := batchesByID(batches)

		txns := make([]model.StockTransaction, 0, len(entries))
		for _, e := range entries {
			b := byID[e.BatchID]
			txns = append(txns, newTransaction(b, model.TransactionSale, -e.Quantity,
				"sold", input.ReferenceID, refTypeSale, input.ActingUserID))
		}

		evt, err := events.NewOutboxEvent(events.TypeStockDeducted, "sale", input.ReferenceID, events.ReservationPayload{
			ReferenceID: input.ReferenceID,
			ProductID:   input.ProductID,
			OutletID:    input.OutletID,
			Quantity:    input.Quantity,
			BatchCount:  len(entries),
		})
		if err != nil {
			return nil, err
		}

		err = uc.repo.ApplySale(ctx, entries, txns, evt)
		if err == nil {
			metrics.SalesTotal.Inc()
			uc.invalidateSummary(ctx, input.ProductID, input.OutletID)
			uc.evaluateAlerts(input.ProductID, input.OutletID)
			return plan, nil
		}
		if !errors.Is(err, apperr.ErrConcurrentModification) {
			return nil, err
		}
		metrics.ConflictRetriesTotal.Inc()
		lastErr = err
	}

	return nil, lastErr
}

func (uc *reservationUseCase) ListByReference(ctx context.Context, referenceID string, productID, outletID int64) ([]model.Reservation, error) {
	return uc.repo.FindActiveByReference(ctx, referenceID, productID, outletID)
}

// planSale consumes the reference's recorded reservation first, then plans
// the shortfall out of freely available stock.
func (uc *reservationUseCase) planSale(ctx context.Context, input *dto.SaleInput) ([]batch.Allocation, []reservation.SaleEntry, error) {
	held, err := uc.repo.FindActiveByReference(ctx, input.ReferenceID, input.ProductID, input.OutletID)
	if err != nil {
		return nil, nil, err
	}

	entries := make([]reservation.SaleEntry, 0, len(held))
	index := map[string]int{}
	remaining := input.Quantity
	covered := 0.0

	for _, r := range held {
		if remaining <= 0 {
			break
		}
		take := r.Quantity
		if take > remaining {
			take = remaining
		}
		index[r.BatchID] = len(entries)
		entries = append(entries, reservation.SaleEntry{
			BatchID:       r.BatchID,
			Quantity:      take,
			FromReserved:  take,
			ReservationID: r.ID,
		})
		remaining -= take
		covered += take
	}

	if remaining > 0 {
		candidates, err := uc.repo.ListAllocatable(ctx, input.ProductID, input.OutletID)
		if err != nil {
			return nil, nil, err
		}

		plan, err := batch.PlanAllocation(candidates, remaining)
		if err != nil {
			var insufficient *apperr.InsufficientStockError
			if errors.As(err, &insufficient) {
				metrics.AllocationFailuresTotal.Inc()
				// Report what the caller could actually get, reserved
				// portion included.
				return nil, nil, &apperr.InsufficientStockError{
					Requested: input.Quantity,
					Available: insufficient.Available + covered,
				}
			}
			return nil, nil, err
		}

		for _, a := range plan {
			if i, ok := index[a.BatchID]; ok {
				entries[i].Quantity += a.Quantity
			} else {
				index[a.BatchID] = len(entries)
				entries = append(entries, reservation.SaleEntry{
					BatchID:  a.BatchID,
					Quantity: a.Quantity,
				})
			}
		}
	}

	allocations := make([]batch.Allocation, 0, len(entries))
	for _, e := range entries {
		allocations = append(allocations, batch.Allocation{BatchID: e.BatchID, Quantity: e.Quantity})
	}
	return allocations, entries, nil
}

func (uc *reservationUseCase) auditEntries(ctx context.Context, entries []reservation.ReleaseEntry, input *dto.ReleaseInput, reasonFormat string) ([]model.StockTransaction, error) {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.BatchID)
	}

	batches, err := uc.repo.GetBatches(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := batchesByID(batches)

	txns := make([]model.StockTransaction, 0, len(entries))
	for _, e := range entries {
		b := byID[e.BatchID]
		txns = append(txns, newTransaction(b, model.TransactionAdjustment, 0,
			fmt.Sprintf(reasonFormat, e.Quantity),
			input.ReferenceID, refTypeReservation, input.ActingUserID))
	}
	return txns, nil
}

func (uc *reservationUseCase) lock(ctx context.Context, productID, outletID int64) (func(), error) {
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

func (uc *reservationUseCase) retries() int {
	if uc.cfg.LockRetries > 0 {
		return uc.cfg.LockRetries
	}
	return 3
}

func (uc *reservationUseCase) invalidateSummary(ctx context.Context, productID, outletID int64) {
	if uc.cache == nil {
		return
	}
	key := fmt.Sprintf("inventory:summary:%d:%d", productID, outletID)
	if err := uc.cache.Del(ctx, key); err != nil {
		uc.logger.Warn("failed to invalidate summary cache", zap.String("key", key), zap.Error(err))
	}
}

func (uc *reservationUseCase) evaluateAlerts(productID, outletID int64) {
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

func newTransaction(b *model.Batch, t model.TransactionType, delta float64, reason, referenceID, referenceType string, actingUserID int64) model.StockTransaction {
	var prev float64
	var batchID string
	var productID, outletID int64
	if b != nil {
		prev = b.Quantity
		batchID = b.ID
		productID = b.ProductID
		outletID = b.OutletID
	}

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

	return model.StockTransaction{
		ID:               uuid.New().String(),
		BatchID:          batchID,
		ProductID:        productID,
		OutletID:         outletID,
		Type:             t,
		QuantityDelta:    delta,
		PreviousQuantity: prev,
		NewQuantity:      prev + delta,
		Reason:           reason,
		ReferenceType:    refType,
		ReferenceID:      refID,
		ActingUserID:     userID,
		CreatedAt:        time.Now(),
	}
}

func batchesByID(batches []model.Batch) map[string]*model.Batch {
	m := make(map[string]*model.Batch, len(batches))
	for i := range batches {
		m[batches[i].ID] = &batches[i]
	}
	return m
}

func entryBatchIDs(entries []reservation.SaleEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.BatchID)
	}
	return ids
}
