package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/transfer"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

const insertBatchQuery = `
	INSERT INTO batches (
		id, product_id, outlet_id, batch_number, quantity, reserved_quantity,
		unit_cost, expiry_date, manufactured_date, received_date, location_code,
		status, created_at, updated_at
	)
	VALUES (
		:id, :product_id, :outlet_id, :batch_number, :quantity, :reserved_quantity,
		:unit_cost, :expiry_date, :manufactured_date, :received_date, :location_code,
		:status, :created_at, :updated_at
	)
`

const insertTransactionQuery = `
	INSERT INTO stock_transactions (
		id, batch_id, product_id, outlet_id, type, quantity_delta,
		previous_quantity, new_quantity, reason, reference_type, reference_id,
		acting_user_id, created_at
	)
	VALUES (
		:id, :batch_id, :product_id, :outlet_id, :type, :quantity_delta,
		:previous_quantity, :new_quantity, :reason, :reference_type, :reference_id,
		:acting_user_id, :created_at
	)
`

const insertOutboxQuery = `
	INSERT INTO outbox_events (
		id, event_type, aggregate_type, aggregate_id, payload, status, attempts, created_at
	)
	VALUES (
		:id, :event_type, :aggregate_type, :aggregate_id, :payload, :status, :attempts, :created_at
	)
`

func (r *PGRepository) ListAllocatable(ctx context.Context, productID, outletID int64) ([]model.Batch, error) {
	batches := []model.Batch{}
	err := r.DB.SelectContext(ctx, &batches, `
		SELECT * FROM batches
		WHERE product_id = $1 AND outlet_id = $2
		  AND status IN ('AVAILABLE', 'RESERVED')
		  AND quantity > reserved_quantity
		ORDER BY expiry_date ASC NULLS LAST, received_date ASC, id ASC`,
		productID, outletID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list allocatable batches: %w", err)
	}
	return batches, nil
}

func (r *PGRepository) GetBatches(ctx context.Context, ids []string) ([]model.Batch, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM batches WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}

	batches := []model.Batch{}
	if err := r.DB.SelectContext(ctx, &batches, r.DB.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load batches: %w", err)
	}
	return batches, nil
}

func (r *PGRepository) FindDestinationBatch(ctx context.Context, productID, outletID int64, batchNumber string) (*model.Batch, error) {
	var b model.Batch
	err := r.DB.GetContext(ctx, &b, `
		SELECT * FROM batches
		WHERE product_id = $1 AND outlet_id = $2 AND batch_number = $3
		  AND status NOT IN ('EXPIRED', 'TRANSFERRED', 'SOLD')`,
		productID, outletID, batchNumber,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func (r *PGRepository) ApplyTransfer(ctx context.Context, moves []transfer.Move, newBatches []model.Batch, txns []model.StockTransaction, evt *model.OutboxEvent) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, m := range moves {
		res, err := tx.ExecContext(ctx, `
			UPDATE batches
			SET quantity = quantity - $2,
			    status = CASE WHEN $3 THEN 'TRANSFERRED' ELSE status END,
			    updated_at = NOW()
			WHERE id = $1
			  AND status IN ('AVAILABLE', 'RESERVED')
			  AND quantity - $2 >= reserved_quantity`,
			m.SourceBatchID, m.Quantity, m.SourceEmptied,
		)
		if err != nil {
			return fmt.Errorf("failed to drain source batch %s: %w", m.SourceBatchID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: batch %s changed under transfer",
				apperr.ErrConcurrentModification, m.SourceBatchID)
		}

		if m.DestBatchID == "" {
			continue
		}
		res, err = tx.ExecContext(ctx, `
			UPDATE batches
			SET quantity = quantity + $2, updated_at = NOW()
			WHERE id = $1
			  AND status IN ('AVAILABLE', 'RESERVED')`,
			m.DestBatchID, m.Quantity,
		)
		if err != nil {
			return fmt.Errorf("failed to top up destination batch %s: %w", m.DestBatchID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: batch %s changed under transfer",
				apperr.ErrConcurrentModification, m.DestBatchID)
		}
	}

	for i := range newBatches {
		if _, err := tx.NamedExecContext(ctx, insertBatchQuery, &newBatches[i]); err != nil {
			// A live lot with this number appeared after the merge lookup;
			// replanning will find and merge into it.
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
				return fmt.Errorf("%w: destination lot %s created under transfer",
					apperr.ErrConcurrentModification, newBatches[i].BatchNumber)
			}
			return fmt.Errorf("failed to insert destination batch: %w", err)
		}
	}

	for i := range txns {
		if _, err := tx.NamedExecContext(ctx, insertTransactionQuery, &txns[i]); err != nil {
			return fmt.Errorf("failed to insert transfer transaction: %w", err)
		}
	}

	if evt != nil {
		if _, err := tx.NamedExecContext(ctx, insertOutboxQuery, evt); err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}
	}

	return tx.Commit()
}
