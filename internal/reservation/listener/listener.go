package listener

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/reservation"
	"github.com/fekuna/omnipos-inventory-service/internal/reservation/dto"
	"github.com/fekuna/omnipos-inventory-service/pkg/broker"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"go.uber.org/zap"
)

const (
	eventOrderCreated   = "OrderCreated"
	eventOrderCompleted = "OrderCompleted"
	eventOrderCancelled = "OrderCancelled"
)

// OrderListener drives the reservation lifecycle off the order stream:
// created orders reserve stock, completed orders turn the reservation into a
// sale, cancelled orders put the stock back.
type OrderListener struct {
	consumer *broker.KafkaConsumer
	uc       reservation.UseCase
	logger   logger.ZapLogger
}

func NewOrderListener(consumer *broker.KafkaConsumer, uc reservation.UseCase, logger logger.ZapLogger) *OrderListener {
	return &OrderListener{
		consumer: consumer,
		uc:       uc,
		logger:   logger,
	}
}

func (l *OrderListener) Start(ctx context.Context) {
	l.logger.Info("Starting Order Kafka Listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping Order Kafka Listener")
			return
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
				// Don't log context canceled error as error
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}
			l.processMessage(ctx, msg.Value)
		}
	}
}

type OrderEvent struct {
	EventID   string       `json:"event_id"`
	EventType string       `json:"event_type"`
	Payload   OrderPayload `json:"payload"`
	Timestamp time.Time    `json:"timestamp"`
}

type OrderPayload struct {
	ID       string             `json:"id"`
	OutletID int64              `json:"outlet_id"`
	Items    []OrderItemPayload `json:"items"`
}

type OrderItemPayload struct {
	ProductID int64   `json:"product_id"`
	Quantity  float64 `json:"quantity"`
}

func (l *OrderListener) processMessage(ctx context.Context, value []byte) {
	var event OrderEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return
	}

	switch event.EventType {
	case eventOrderCreated, eventOrderCompleted, eventOrderCancelled:
	default:
		return
	}

	if event.Payload.ID == "" || len(event.Payload.Items) == 0 {
		l.logger.Warn("Skipping malformed order event", zap.String("event_id", event.EventID))
		return
	}

	l.logger.Info("Processing order event",
		zap.String("event_type", event.EventType),
		zap.String("order_id", event.Payload.ID),
	)

	for _, item := range event.Payload.Items {
		var err error
		switch event.EventType {
		case eventOrderCreated:
			_, err = l.uc.Reserve(ctx, &dto.ReserveInput{
				ProductID:   item.ProductID,
				OutletID:    event.Payload.OutletID,
				Quantity:    item.Quantity,
				ReferenceID: event.Payload.ID,
			})
		case eventOrderCompleted:
			_, err = l.uc.DeductForSale(ctx, &dto.SaleInput{
				ProductID:   item.ProductID,
				OutletID:    event.Payload.OutletID,
				Quantity:    item.Quantity,
				ReferenceID: event.Payload.ID,
			})
		case eventOrderCancelled:
			err = l.uc.Release(ctx, &dto.ReleaseInput{
				ProductID:   item.ProductID,
				OutletID:    event.Payload.OutletID,
				Quantity:    item.Quantity,
				ReferenceID: event.Payload.ID,
			})
		}
		if err != nil {
			l.logger.Error("Failed to process order item",
				zap.String("event_type", event.EventType),
				zap.String("order_id", event.Payload.ID),
				zap.Int64("product_id", item.ProductID),
				zap.Error(err),
			)
		}
	}
}
