package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/alert/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/jmoiron/sqlx"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

const insertAlertQuery = `
	INSERT INTO stock_alerts (
		id, product_id, outlet_id, alert_type, priority, status, message,
		current_stock, min_stock_level, created_at
	)
	VALUES (
		:id, :product_id, :outlet_id, :alert_type, :priority, :status, :message,
		:current_stock, :min_stock_level, :created_at
	)
	ON CONFLICT (product_id, outlet_id, alert_type) WHERE status = 'ACTIVE'
	DO NOTHING
`

const insertOutboxQuery = `
	INSERT INTO outbox_events (
		id, event_type, aggregate_type, aggregate_id, payload, status, attempts, created_at
	)
	VALUES (
		:id, :event_type, :aggregate_type, :aggregate_id, :payload, :status, :attempts, :created_at
	)
`

func (r *PGRepository) CreateIfAbsent(ctx context.Context, a *model.StockAlert, evt *model.OutboxEvent) (bool, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.NamedExecContext(ctx, insertAlertQuery, a)
	if err != nil {
		return false, fmt.Errorf("failed to insert alert: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// A matching ACTIVE alert already exists; nothing to publish.
		return false, nil
	}

	if evt != nil {
		if _, err := tx.NamedExecContext(ctx, insertOutboxQuery, evt); err != nil {
			return false, fmt.Errorf("failed to insert outbox event: %w", err)
		}
	}

	return true, tx.Commit()
}

func (r *PGRepository) GetAlert(ctx context.Context, id string) (*model.StockAlert, error) {
	var a model.StockAlert
	err := r.DB.GetContext(ctx, &a, `SELECT * FROM stock_alerts WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundf("alert %s", id)
		}
		return nil, err
	}
	return &a, nil
}

func (r *PGRepository) UpdateAlert(ctx context.Context, a *model.StockAlert) error {
	res, err := r.DB.NamedExecContext(ctx, `
		UPDATE stock_alerts
		SET priority = :priority,
		    status = :status,
		    message = :message,
		    acknowledged_by = :acknowledged_by,
		    acknowledged_at = :acknowledged_at,
		    resolved_by = :resolved_by,
		    resolved_at = :resolved_at,
		    resolution_notes = :resolution_notes
		WHERE id = :id`, a,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("alert %s", a.ID)
	}
	return nil
}

func (r *PGRepository) FindAlerts(ctx context.Context, f *dto.AlertFilters) ([]model.StockAlert, int, error) {
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
	if f.AlertType != "" {
		conditions = append(conditions, "alert_type = :alert_type")
		args["alert_type"] = f.AlertType
	}
	if f.Status != "" {
		conditions = append(conditions, "status = :status")
		args["status"] = f.Status
	}
	if f.Priority != "" {
		conditions = append(conditions, "priority = :priority")
		args["priority"] = f.Priority
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	rows, err := r.DB.NamedQueryContext(ctx, `SELECT COUNT(*) FROM stock_alerts`+where, args)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	if rows.Next() {
		if err := rows.Scan(&total); err != nil {
			rows.Close()
			return nil, 0, err
		}
	}
	rows.Close()

	query := `SELECT * FROM stock_alerts` + where + ` ORDER BY created_at DESC`
	if f.PageSize > 0 {
		offset := (f.Page - 1) * f.PageSize
		if offset < 0 {
			offset = 0
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, offset)
	}

	stmt, err := r.DB.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	defer stmt.Close()

	alerts := []model.StockAlert{}
	if err := stmt.SelectContext(ctx, &alerts, args); err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, total, nil
}

func (r *PGRepository) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM stock_alerts WHERE status = 'RESOLVED' AND resolved_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune resolved alerts: %w", err)
	}
	return res.RowsAffected()
}
