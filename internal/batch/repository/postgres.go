package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/batch/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
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

func (r *PGRepository) CreateBatch(ctx context.Context, b *model.Batch, txn *model.StockTransaction, evt *model.OutboxEvent) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, insertBatchQuery, b); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return fmt.Errorf("%w: %s for product %d at outlet %d",
				apperr.ErrDuplicateBatch, b.BatchNumber, b.ProductID, b.OutletID)
		}
		return fmt.Errorf("failed to insert batch: %w", err)
	}

	if _, err := tx.NamedExecContext(ctx, insertTransactionQuery, txn); err != nil {
		return fmt.Errorf("failed to insert receive transaction: %w", err)
	}

	if evt != nil {
		if _, err := tx.NamedExecContext(ctx, insertOutboxQuery, evt); err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}
	}

	return tx.Commit()
}

func (r *PGRepository) GetBatch(ctx context.Context, id string) (*model.Batch, error) {
	var b model.Batch
	err := r.DB.GetContext(ctx, &b, `SELECT * FROM batches WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundf("batch %s", id)
		}
		return nil, err
	}
	return &b, nil
}

func (r *PGRepository) FindBatches(ctx context.Context, f *dto.BatchFilters) ([]model.Batch, int, error) {
	conditions := []string{}
	args := map[string]interface{}{}

	if f.ProductID != 0 {
		conditions = append(conditions, "product_id = :product_id")
		args["product_id"] = f.ProductID
	}
	if f.OutletID != 0 {
		conditions = append(conditions, "outlet_id = :outlet_id")
		args["outlet_id"] = f.OutletID
	}
	if f.Status != "" {
		conditions = append(conditions, "status = :status")
		args["status"] = f.Status
	}
	if !f.IncludeRetired {
		conditions = append(conditions, "status NOT IN ('EXPIRED', 'TRANSFERRED', 'SOLD')")
	}
	if f.ExpiringWithinDays > 0 {
		conditions = append(conditions, "expiry_date IS NOT NULL AND expiry_date >= CURRENT_DATE AND expiry_date <= CURRENT_DATE + :expiring_days * INTERVAL '1 day'")
		args["expiring_days"] = f.ExpiringWithinDays
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var count int
	countQuery := "SELECT count(*) FROM batches" + whereClause
	rows, err := r.DB.NamedQueryContext(ctx, countQuery, args)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return nil, 0, err
		}
	}

	query := "SELECT * FROM batches" + whereClause + " ORDER BY received_date DESC, id"
	if f.PageSize > 0 {
		offset := (f.Page - 1) * f.PageSize
		if offset < 0 {
			offset = 0
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, offset)
	}

	nstmt, err := r.DB.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	defer nstmt.Close()

	var items []model.Batch
	err = nstmt.SelectContext(ctx, &items, args)
	return items, count, err
}

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

func (r *PGRepository) ApplyAdjustment(ctx context.Context, batchID string, delta float64, newStatus model.BatchStatus, txn *model.StockTransaction, evt *model.OutboxEvent) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Conditional update: refuse the write if it would break
	// 0 <= reserved_quantity <= quantity. Zero rows means the batch moved
	// under us and the caller should replan.
	res, err := tx.ExecContext(ctx, `
		UPDATE batches
		SET quantity = quantity + $2, status = $3, updated_at = $4
		WHERE id = $1
		  AND quantity + $2 >= 0
		  AND quantity + $2 >= reserved_quantity
	`, batchID, delta, newStatus, time.Now())
	if err != nil {
		return fmt.Errorf("failed to adjust batch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: batch %s", apperr.ErrConcurrentModification, batchID)
	}

	if _, err := tx.NamedExecContext(ctx, insertTransactionQuery, txn); err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	if evt != nil {
		if _, err := tx.NamedExecContext(ctx, insertOutboxQuery, evt); err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}
	}

	return tx.Commit()
}

func (r *PGRepository) SetStatus(ctx context.Context, batchID string, status model.BatchStatus, evt *model.OutboxEvent) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE batches SET status = $2, updated_at = $3 WHERE id = $1`,
		batchID, status, time.Now())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("batch %s", batchID)
	}

	if evt != nil {
		if _, err := tx.NamedExecContext(ctx, insertOutboxQuery, evt); err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}
	}

	return tx.Commit()
}

func (r *PGRepository) ListTransactions(ctx context.Context, f *dto.TransactionFilters) ([]model.StockTransaction, int, error) {
	conditions := []string{}
	args := map[string]interface{}{}

	if f.BatchID != "" {
		conditions = append(conditions, "batch_id = :batch_id")
		args["batch_id"] = f.BatchID
	}
	if f.ProductID != 0 {
		conditions = append(conditions, "product_id = :product_id")
		args["product_id"] = f.ProductID
	}
	if f.OutletID != 0 {
		conditions = append(conditions, "outlet_id = :outlet_id")
		args["outlet_id"] = f.OutletID
	}
	if f.Type != "" {
		conditions = append(conditions, "type = :type")
		args["type"] = f.Type
	}
	if f.ReferenceType != "" {
		conditions = append(conditions, "reference_type = :reference_type")
		args["reference_type"] = f.ReferenceType
	}
	if f.ReferenceID != "" {
		conditions = append(conditions, "reference_id = :reference_id")
		args["reference_id"] = f.ReferenceID
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var count int
	countQuery := "SELECT count(*) FROM stock_transactions" + whereClause
	rows, err := r.DB.NamedQueryContext(ctx, countQuery, args)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return nil, 0, err
		}
	}

	query := "SELECT * FROM stock_transactions" + whereClause + " ORDER BY created_at DESC, id"
	if f.PageSize > 0 {
		offset := (f.Page - 1) * f.PageSize
		if offset < 0 {
			offset = 0
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, offset)
	}

	nstmt, err := r.DB.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	defer nstmt.Close()

	var items []model.StockTransaction
	err = nstmt.SelectContext(ctx, &items, args)
	return items, count, err
}

func (r *PGRepository) Summarize(ctx context.Context, productID, outletID int64, warningDays, criticalDays int) (*model.StockSummary, error) {
	var s model.StockSummary
	// Available counts only allocatable batches: damaged/quarantined stock is
	// not free to allocate even though it still sits in the totals.
	err := r.DB.GetContext(ctx, &s, `
		SELECT
			$1::bigint AS product_id,
			$2::bigint AS outlet_id,
			COALESCE(SUM(quantity), 0) AS total_quantity,
			COALESCE(SUM(reserved_quantity), 0) AS reserved_quantity,
			COALESCE(SUM(CASE WHEN status IN ('AVAILABLE', 'RESERVED')
				THEN quantity - reserved_quantity ELSE 0 END), 0) AS available_quantity,
			COALESCE(SUM(CASE WHEN status = 'DAMAGED' THEN quantity ELSE 0 END), 0) AS damaged_quantity,
			COUNT(*) AS batch_count,
			COUNT(*) FILTER (WHERE expiry_date IS NOT NULL
				AND expiry_date < CURRENT_DATE) AS expired_batches,
			COUNT(*) FILTER (WHERE expiry_date IS NOT NULL
				AND expiry_date >= CURRENT_DATE
				AND expiry_date <= CURRENT_DATE + $3 * INTERVAL '1 day') AS critical_batches,
			COUNT(*) FILTER (WHERE expiry_date IS NOT NULL
				AND expiry_date > CURRENT_DATE + $3 * INTERVAL '1 day'
				AND expiry_date <= CURRENT_DATE + $4 * INTERVAL '1 day') AS warning_batches,
			0::float8 AS min_stock_level,
			0::float8 AS reorder_point,
			0::float8 AS max_stock_level,
			false AS is_low_stock,
			false AS is_out_of_stock
		FROM batches
		WHERE product_id = $1 AND outlet_id = $2
		  AND status NOT IN ('EXPIRED', 'TRANSFERRED', 'SOLD')
	`, productID, outletID, criticalDays, warningDays)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PGRepository) ListExpiring(ctx context.Context, outletID int64, withinDays int) ([]model.Batch, error) {
	var items []model.Batch
	err := r.DB.SelectContext(ctx, &items, `
		SELECT * FROM batches
		WHERE outlet_id = $1
		  AND status NOT IN ('EXPIRED', 'TRANSFERRED', 'SOLD')
		  AND expiry_date IS NOT NULL
		  AND expiry_date >= CURRENT_DATE
		  AND expiry_date <= CURRENT_DATE + $2 * INTERVAL '1 day'
		ORDER BY expiry_date ASC, id
	`, outletID, withinDays)
	return items, err
}

func (r *PGRepository) ListExpired(ctx context.Context, outletID int64) ([]model.Batch, error) {
	var items []model.Batch
	err := r.DB.SelectContext(ctx, &items, `
		SELECT * FROM batches
		WHERE outlet_id = $1
		  AND expiry_date IS NOT NULL
		  AND expiry_date < CURRENT_DATE
		  AND status NOT IN ('TRANSFERRED', 'SOLD')
		ORDER BY expiry_date ASC, id
	`, outletID)
	return items, err
}

func (r *PGRepository) ListExpiryCandidates(ctx context.Context, asOf time.Time) ([]model.Batch, error) {
	var items []model.Batch
	err := r.DB.SelectContext(ctx, &items, `
		SELECT * FROM batches
		WHERE expiry_date IS NOT NULL
		  AND expiry_date < CAST($1 AS date)
		  AND status NOT IN ('EXPIRED', 'TRANSFERRED', 'SOLD')
		ORDER BY outlet_id, product_id, expiry_date
	`, asOf)
	return items, err
}

func (r *PGRepository) OutletSummaries(ctx context.Context, outletID int64, warningDays, criticalDays int) ([]model.StockSummary, error) {
	var items []model.StockSummary
	err := r.DB.SelectContext(ctx, &items, `
		SELECT
			b.product_id,
			b.outlet_id,
			COALESCE(SUM(b.quantity), 0) AS total_quantity,
			COALESCE(SUM(b.reserved_quantity), 0) AS reserved_quantity,
			COALESCE(SUM(CASE WHEN b.status IN ('AVAILABLE', 'RESERVED')
				THEN b.quantity - b.reserved_quantity ELSE 0 END), 0) AS available_quantity,
			COALESCE(SUM(CASE WHEN b.status = 'DAMAGED' THEN b.quantity ELSE 0 END), 0) AS damaged_quantity,
			COUNT(*) AS batch_count,
			COUNT(*) FILTER (WHERE b.expiry_date IS NOT NULL
				AND b.expiry_date < CURRENT_DATE) AS expired_batches,
			COUNT(*) FILTER (WHERE b.expiry_date IS NOT NULL
				AND b.expiry_date >= CURRENT_DATE
				AND b.expiry_date <= CURRENT_DATE + $2 * INTERVAL '1 day') AS critical_batches,
			COUNT(*) FILTER (WHERE b.expiry_date IS NOT NULL
				AND b.expiry_date > CURRENT_DATE + $2 * INTERVAL '1 day'
				AND b.expiry_date <= CURRENT_DATE + $3 * INTERVAL '1 day') AS warning_batches,
			COALESCE(MAX(t.min_stock_level), 0) AS min_stock_level,
			COALESCE(MAX(t.reorder_point), 0) AS reorder_point,
			COALESCE(MAX(t.max_stock_level), 0) AS max_stock_level,
			false AS is_low_stock,
			false AS is_out_of_stock
		FROM batches b
		LEFT JOIN stock_thresholds t
			ON t.product_id = b.product_id AND t.outlet_id = b.outlet_id
		WHERE b.outlet_id = $1
		  AND b.status NOT IN ('EXPIRED', 'TRANSFERRED', 'SOLD')
		GROUP BY b.product_id, b.outlet_id
		ORDER BY b.product_id
	`, outletID, criticalDays, warningDays)
	return items, err
}

func (r *PGRepository) GetThreshold(ctx context.Context, productID, outletID int64) (*model.StockThreshold, error) {
	var t model.StockThreshold
	err := r.DB.GetContext(ctx, &t, `
		SELECT * FROM stock_thresholds WHERE product_id = $1 AND outlet_id = $2
	`, productID, outletID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // caller applies defaults
		}
		return nil, err
	}
	return &t, nil
}

func (r *PGRepository) UpsertThreshold(ctx context.Context, t *model.StockThreshold) error {
	_, err := r.DB.NamedExecContext(ctx, `
		INSERT INTO stock_thresholds (
			product_id, outlet_id, min_stock_level, reorder_point, reorder_quantity, max_stock_level
		)
		VALUES (
			:product_id, :outlet_id, :min_stock_level, :reorder_point, :reorder_quantity, :max_stock_level
		)
		ON CONFLICT (product_id, outlet_id)
		DO UPDATE SET
			min_stock_level = EXCLUDED.min_stock_level,
			reorder_point = EXCLUDED.reorder_point,
			reorder_quantity = EXCLUDED.reorder_quantity,
			max_stock_level = EXCLUDED.max_stock_level
	`, t)
	return err
}
