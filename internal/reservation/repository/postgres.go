package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/reservation"
	"github.com/jmoiron/sqlx"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

const insertReservationQuery = `
	INSERT INTO stock_reservations (
		id, reference_id, batch_id, product_id, outlet_id, quantity, status, created_at, updated_at
	)
	VALUES (
		:id, :reference_id, :batch_id, :product_id, :outlet_id, :quantity, :status, :created_at, :updated_at
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
	var items []model.Batch
	err := r.DB.SelectContext(ctx, &items, `
		SELECT * FROM batches
		WHERE product_id = $1 AND outlet_id = $2
		  AND status IN ('AVAILABLE', 'RESERVED')
		  AND quantity - reserved_quantity > 0
		ORDER BY expiry_date ASC NULLS LAST, received_date ASC, id ASC
	`, productID, outletID)
	return items, err
}

func (r *PGRepository) GetBatches(ctx context.Context, ids []string) ([]model.Batch, error) {
	if len(ids) == 0 {
		return []model.Batch{}, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM batches WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	query = r.DB.Rebind(query)

	var items []model.Batch
	err = r.DB.SelectContext(ctx, &items, query, args...)
	return items, err
}

func (r *PGRepository) FindActiveByReference(ctx context.Context, referenceID string, productID, outletID int64) ([]model.Reservation, error) {
	var items []model.Reservation
	err := r.DB.SelectContext(ctx, &items, `
		SELECT * FROM stock_reservations
		WHERE reference_id = $1 AND product_id = $2 AND outlet_id = $3
		  AND status = 'ACTIVE' AND quantity > 0
		ORDER BY created_at ASC, id ASC
	`, referenceID, productID, outletID)
	return items, err
}

func (r *PGRepository) ApplyReservation(ctx context.Context, reservations []model.Reservation, txns []model.StockTransaction, evt *model.OutboxEvent) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range reservations {
		resv := &reservations[i]
		// The availability guard re-checks the plan under the row lock; a
		// zero-row update means the batch moved since planning.
		res, err := tx.ExecContext(ctx, `
			UPDATE batches
			SET reserved_quantity = reserved_quantity + $2,
			    status = CASE WHEN reserved_quantity + $2 >= quantity THEN 'RESERVED' ELSE 'AVAILABLE' END,
			    updated_at = $3
			WHERE id = $1
			  AND status IN ('AVAILABLE', 'RESERVED')
			  AND quantity - reserved_quantity >= $2
		`, resv.BatchID, resv.Quantity, time.Now())
		if err != nil {
			return fmt.Errorf("failed to reserve batch %s: %w", resv.BatchID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: batch %s", apperr.ErrConcurrentModification, resv.BatchID)
		}

		if _, err := tx.NamedExecContext(ctx, insertReservationQuery, resv); err != nil {
			return fmt.Errorf("failed to record reservation: %w", err)
		}
	}

	for i := range txns {
		if _, err := tx.NamedExecContext(ctx, insertTransactionQuery, &txns[i]); err != nil {
			return fmt.Errorf("failed to insert transaction: %w", err)
		}
	}

	if evt != nil {
		if _, err := tx.NamedExecContext(ctx, insertOutboxQuery, evt); err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}
	}

	return tx.Commit()
}

func (r *PGRepository) ApplyRelease(ctx context.Context, entries []reservation.ReleaseEntry, txns []model.StockTransaction, evt *model.OutboxEvent) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range entries {
		res, err := tx.ExecContext(ctx, `
			UPDATE batches
			SET reserved_quantity = reserved_quantity - $2,
			    status = CASE WHEN reserved_quantity - $2 < quantity AND status = 'RESERVED' THEN 'AVAILABLE' ELSE status END,
			    updated_at = $3
			WHERE id = $1 AND reserved_quantity >= $2
		`, e.BatchID, e.Quantity, time.Now())
		if err != nil {
			return fmt.Errorf("failed to release batch %s: %w", e.BatchID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: batch %s", apperr.ErrConcurrentModification, e.BatchID)
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE stock_reservations
			SET quantity = quantity - $2,
			    status = CASE WHEN quantity - $2 <= 0 THEN 'RELEASED' ELSE status END,
			    updated_at = $3
			WHERE id = $1 AND status = 'ACTIVE' AND quantity >= $2
		`, e.ReservationID, e.Quantity, time.Now())
		if err != nil {
			return fmt.Errorf("failed to update reservation %s: %w", e.ReservationID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: reservation %s", apperr.ErrConcurrentModification, e.ReservationID)
		}
	}

	for i := range txns {
		if _, err := tx.NamedExecContext(ctx, insertTransactionQuery, &txns[i]); err != nil {
			return fmt.Errorf("failed to insert transaction: %w", err)
		}
	}

	if evt != nil {
		if _, err := tx.NamedExecContext(ctx, insertOutboxQuery, evt); err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}
	}

	return tx.Commit()
}

func (r *PGRepository) ApplySale(ctx context.Context, entries []reservation.SaleEntry, txns []model.StockTransaction, evt *model.OutboxEvent) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range entries {
		res, err := tx.ExecContext(ctx, `
			UPDATE batches
			SET quantity = quantity - $2,
			    reserved_quantity = reserved_quantity - $3,
			    status = CASE WHEN quantity - $2 <= 0 THEN 'SOLD'
			                  WHEN reserved_quantity - $3 >= quantity - $2 THEN 'RESERVED'
			                  ELSE 'AVAILABLE' END,
			    updated_at = $4
			WHERE id = $1
			  AND status IN ('AVAILABLE', 'RESERVED')
			  AND quantity >= $2
			  AND reserved_quantity >= $3
			  AND (quantity - $2) - (reserved_quantity - $3) >= 0
		`, e.BatchID, e.Quantity, e.FromReserved, time.Now())
		if err != nil {
			return fmt.Errorf("failed to deduct batch %s: %w", e.BatchID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: batch %s", apperr.ErrConcurrentModification, e.BatchID)
		}

		if e.ReservationID != "" && e.FromReserved > 0 {
			res, err = tx.ExecContext(ctx, `
				UPDATE stock_reservations
				SET quantity = quantity - $2,
				    status = CASE WHEN quantity - $2 <= 0 THEN 'CONSUMED' ELSE status END,
				    updated_at = $3
				WHERE id = $1 AND status = 'ACTIVE' AND quantity >= $2
			`, e.ReservationID, e.FromReserved, time.Now())
			if err != nil {
				return fmt.Errorf("failed to consume reservation %s: %w", e.ReservationID, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("%w: reservation %s", apperr.ErrConcurrentModification, e.ReservationID)
			}
		}
	}

	for i := range txns {
		if _, err := tx.NamedExecContext(ctx, insertTransactionQuery, &txns[i]); err != nil {
			return fmt.Errorf("failed to insert transaction: %w", err)
		}
	}

	if evt != nil {
		if _, err := tx.NamedExecContext(ctx, insertOutboxQuery, evt); err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}
	}

	return tx.Commit()
}
