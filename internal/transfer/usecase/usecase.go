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
	"github.com/fekuna/omnipos-inventory-service/internal/transfer"
	"github.com/fekuna/omnipos-inventory-service/internal/transfer/dto"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"github.com/fekuna/omnipos-inventory-service/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const refTypeTransfer = "transfer"

type transferUseCase struct {
	repo   transfer.Repository
	locker batch.Locker
	cache  batch.SummaryCache
	alerts batch.AlertEvaluator
	cfg    *config.InventoryConfig
	logger logger.ZapLogger
}

func NewTransferUseCase(repo transfer.Repository, locker batch.Locker, cache batch.SummaryCache, alerts batch.AlertEvaluator, cfg *config.InventoryConfig, log logger.ZapLogger) transfer.UseCase {
	return &transferUseCase{
		repo:   repo,
		locker: locker,
		cache:  cache,
		alerts: alerts,
		cfg:    cfg,
		logger: log,
	}
}

func (uc *transferUseCase) Transfer(ctx context.Context, input *dto.TransferInput) (*dto.TransferResult, error) {
	if input.SourceOutletID == input.DestOutletID {
		return nil, apperr.InvalidArgumentf("source and destination outlet are the same (%d)", input.SourceOutletID)
	}
	if input.Quantity <= 0 {
		return nil, apperr.InvalidQuantityf("transfer quantity must be positive, got %.2f", input.Quantity)
	}

	// Both sides lock in ascending outlet order so two opposing transfers
	// cannot deadlock each other.
	first, second := input.SourceOutletID, input.DestOutletID
	if second < first {
		first, second = second, first
	}
	unlockFirst, err := uc.lock(ctx, input.ProductID, first)
	if err != nil {
		return nil, err
	}
	defer unlockFirst()
	unlockSecond, err := uc.lock(ctx, input.ProductID, second)
	if err != nil {
		return nil, err
	}
	defer unlockSecond()

	var lastErr error
	for attempt := 0; attempt < uc.retries(); attempt++ {
		result, err := uc.transferOnce(ctx, input)
		if err == nil {
			metrics.TransfersTotal.Inc()
			uc.invalidateSummary(ctx, input.ProductID, input.SourceOutletID)
			uc.invalidateSummary(ctx, input.ProductID, input.DestOutletID)
			uc.evaluateAlerts(input.ProductID, input.SourceOutletID)
			uc.evaluateAlerts(input.ProductID, input.DestOutletID)
			return result, nil
		}
		if !errors.Is(err, apperr.ErrConcurrentModification) {
			return nil, err
		}
		metrics.ConflictRetriesTotal.Inc()
		lastErr = err
	}

	return nil, lastErr
}

func (uc *transferUseCase) transferOnce(ctx context.Context, input *dto.TransferInput) (*dto.TransferResult, error) {
	candidates, err := uc.repo.ListAllocatable(ctx, input.ProductID, input.SourceOutletID)
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

	byID := map[string]*model.Batch{}
	for i := range candidates {
		byID[candidates[i].ID] = &candidates[i]
	}

	transferID := uuid.New().String()
	now := time.Now()
	reason := input.Reason
	if reason == "" {
		reason = fmt.Sprintf("transfer to outlet %d", input.DestOutletID)
	}

	moves := make([]transfer.Move, 0, len(plan))
	newBatches := []model.Batch{}
	txns := make([]model.StockTransaction, 0, 2*len(plan))
	resultMoves := make([]dto.TransferMove, 0, len(plan))

	for _, a := range plan {
		src := byID[a.BatchID]

		// At most one live lot per (product, outlet, batch number) exists,
		// so stock merges into it when present and otherwise lands in a
		// fresh lot carrying the source's provenance. A lot sitting in
		// DAMAGED or QUARANTINE can neither absorb good stock nor coexist
		// with a second live lot of the same number.
		dest, err := uc.repo.FindDestinationBatch(ctx, input.ProductID, input.DestOutletID, src.BatchNumber)
		if err != nil {
			return nil, err
		}
		if dest != nil && dest.Status != model.BatchStatusAvailable && dest.Status != model.BatchStatusReserved {
			return nil, apperr.InvalidStateTransitionf("destination lot %s at outlet %d is %s",
				src.BatchNumber, input.DestOutletID, dest.Status)
		}

		move := transfer.Move{
			SourceBatchID: a.BatchID,
			Quantity:      a.Quantity,
			SourceEmptied: a.Quantity == src.Quantity,
		}

		var destID string
		var destPrev float64
		if dest != nil {
			move.DestBatchID = dest.ID
			destID = dest.ID
			destPrev = dest.Quantity
		} else {
			nb := model.Batch{
				BaseModel: model.BaseModel{
					ID:        uuid.New().String(),
					CreatedAt: now,
					UpdatedAt: now,
				},
				ProductID:        input.ProductID,
				OutletID:         input.DestOutletID,
				BatchNumber:      src.BatchNumber,
				Quantity:         a.Quantity,
				UnitCost:         src.UnitCost,
				ExpiryDate:       src.ExpiryDate,
				ManufacturedDate: src.ManufacturedDate,
				ReceivedDate:     now,
				Status:           model.BatchStatusAvailable,
			}
			newBatches = append(newBatches, nb)
			destID = nb.ID
		}
		moves = append(moves, move)
		resultMoves = append(resultMoves, dto.TransferMove{
			SourceBatchID: a.BatchID,
			DestBatchID:   destID,
			Quantity:      a.Quantity,
			Merged:        dest != nil,
		})

		txns = append(txns,
			uc.newTransaction(a.BatchID, input.ProductID, input.SourceOutletID,
				model.TransactionTransferOut, -a.Quantity, src.Quantity, reason, transferID, input.ActingUserID, now),
			uc.newTransaction(destID, input.ProductID, input.DestOutletID,
				model.TransactionTransferIn, a.Quantity, destPrev, reason, transferID, input.ActingUserID, now),
		)
	}

	evt, err := events.NewOutboxEvent(events.TypeStockTransferred, "transfer", transferID, events.TransferPayload{
		TransferID:     transferID,
		ProductID:      input.ProductID,
		SourceOutletID: input.SourceOutletID,
		DestOutletID:   input.DestOutletID,
		Quantity:       input.Quantity,
		Reason:         reason,
	})
	if err != nil {
		return nil, err
	}

	if err := uc.repo.ApplyTransfer(ctx, moves, newBatches, txns, evt); err != nil {
		return nil, err
	}

	return &dto.TransferResult{TransferID: transferID, Moves: resultMoves}, nil
}

func (uc *transferUseCase) newTransaction(batchID string, productID, outletID int64, t model.TransactionType, delta, prev float64, reason, transferID string, actingUserID int64, now time.Time) model.StockTransaction {
	refType := refTypeTransfer
	refID := transferID
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
		ReferenceType:    &refType,
		ReferenceID:      &refID,
		ActingUserID:     userID,
		CreatedAt:        now,
	}
}

func (uc *transferUseCase) lock(ctx context.Context, productID, outletID int64) (func(), error) {
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

func (uc *transferUseCase) retries() int {
	if uc.cfg.LockRetries > 0 {
		return uc.cfg.LockRetries
	}
	return 3
}

func (uc *transferUseCase) invalidateSummary(ctx context.Context, productID, outletID int64) {
	if uc.cache == nil {
		return
	}
	key := fmt.Sprintf("inventory:summary:%d:%d", productID, outletID)
	if err := uc.cache.Del(ctx, key); err != nil {
		uc.logger.Warn("failed to invalidate summary cache", zap.String("key", key), zap.Error(err))
	}
}

func (uc *transferUseCase) evaluateAlerts(productID, outletID int64) {
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
