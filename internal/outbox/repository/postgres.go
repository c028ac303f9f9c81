package repository

import (
	"context"
	"fmt"

	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/jmoiron/sqlx"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) FetchPending(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	events := []model.OutboxEvent{}
	err := r.DB.SelectContext(ctx, &events, `
		SELECT * FROM outbox_events
		WHERE status = 'PENDING'
		ORDER BY created_at ASC
		LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending events: %w", err)
	}
	return events, nil
}

func (r *PGRepository) MarkPublished(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`
		UPDATE outbox_events
		SET status = 'PUBLISHED', published_at = NOW()
		WHERE id IN (?)`, ids)
	if err != nil {
		return err
	}
	if _, err := r.DB.ExecContext(ctx, r.DB.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to mark events published: %w", err)
	}
	return nil
}

func (r *PGRepository) RecordFailure(ctx context.Context, id string, maxAttempts int) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE outbox_events
		SET attempts = attempts + 1,
		    status = CASE WHEN attempts + 1 >= $2 THEN 'FAILED' ELSE status END
		WHERE id = $1`, id, maxAttempts,
	)
	if err != nil {
		return fmt.Errorf("failed to record event failure: %w", err)
	}
	return nil
}
