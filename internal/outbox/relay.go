package outbox

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-inventory-service/config"
	"github.com/fekuna/omnipos-inventory-service/internal/events"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"github.com/fekuna/omnipos-inventory-service/pkg/metrics"
	"go.uber.org/zap"
)

// Relay drains the outbox table to the broker. Mutations commit their events
// in the same database transaction; the relay is the only writer to the
// broker, so consumers see each event at least once and never see events
// from rolled-back transactions.
type Relay struct {
	repo      Repository
	publisher events.Publisher
	cfg       *config.InventoryConfig
	logger    logger.ZapLogger
}

func NewRelay(repo Repository, publisher events.Publisher, cfg *config.InventoryConfig, log logger.ZapLogger) *Relay {
	return &Relay{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
		logger:    log,
	}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	interval := time.Duration(r.cfg.OutboxPollInterval) * time.Second
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Drain(ctx); err != nil {
				r.logger.Error("outbox drain failed", zap.Error(err))
			}
		}
	}
}

// Drain publishes one batch of pending events. Safe to call concurrently
// with mutations; a second relay instance would only duplicate deliveries,
// not lose them.
func (r *Relay) Drain(ctx context.Context) error {
	batchSize := r.cfg.OutboxBatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	pending, err := r.repo.FetchPending(ctx, batchSize)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	published := make([]string, 0, len(pending))
	for _, evt := range pending {
		// Keyed by aggregate so one aggregate's events stay ordered within
		// a partition.
		if err := r.publisher.Publish(ctx, []byte(evt.AggregateID), evt.Payload); err != nil {
			r.logger.Warn("failed to publish outbox event",
				zap.String("event_id", evt.ID),
				zap.String("event_type", evt.EventType),
				zap.Error(err),
			)
			if err := r.repo.RecordFailure(ctx, evt.ID, r.cfg.OutboxMaxAttempts); err != nil {
				r.logger.Error("failed to record publish failure", zap.String("event_id", evt.ID), zap.Error(err))
			}
			continue
		}
		published = append(published, evt.ID)
	}

	if err := r.repo.MarkPublished(ctx, published); err != nil {
		return err
	}
	metrics.OutboxPublishedTotal.Add(float64(len(published)))
	return nil
}
