package listener

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/transfer"
	"github.com/fekuna/omnipos-inventory-service/internal/transfer/dto"
	"github.com/fekuna/omnipos-inventory-service/pkg/broker"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"go.uber.org/zap"
)

const eventTransferRequested = "StockTransferRequested"

// TransferListener executes transfer requests arriving on the bus.
type TransferListener struct {
	consumer *broker.KafkaConsumer
	uc       transfer.UseCase
	logger   logger.ZapLogger
}

func NewTransferListener(consumer *broker.KafkaConsumer, uc transfer.UseCase, logger logger.ZapLogger) *TransferListener {
	return &TransferListener{
		consumer: consumer,
		uc:       uc,
		logger:   logger,
	}
}

func (l *TransferListener) Start(ctx context.Context) {
	l.logger.Info("Starting Transfer Kafka Listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping Transfer Kafka Listener")
			return
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
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

type TransferRequestEvent struct {
	EventID   string                 `json:"event_id"`
	EventType string                 `json:"event_type"`
	Payload   TransferRequestPayload `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

type TransferRequestPayload struct {
	ProductID      int64   `json:"product_id"`
	SourceOutletID int64   `json:"source_outlet_id"`
	DestOutletID   int64   `json:"dest_outlet_id"`
	Quantity       float64 `json:"quantity"`
	Reason         string  `json:"reason"`
	RequestedBy    int64   `json:"requested_by"`
}

func (l *TransferListener) processMessage(ctx context.Context, value []byte) {
	var event TransferRequestEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return
	}

	if event.EventType != eventTransferRequested {
		return
	}

	result, err := l.uc.Transfer(ctx, &dto.TransferInput{
		ProductID:      event.Payload.ProductID,
		SourceOutletID: event.Payload.SourceOutletID,
		DestOutletID:   event.Payload.DestOutletID,
		Quantity:       event.Payload.Quantity,
		Reason:         event.Payload.Reason,
		ActingUserID:   event.Payload.RequestedBy,
	})
	if err != nil {
		l.logger.Error("Failed to execute transfer request",
			zap.String("event_id", event.EventID),
			zap.Int64("product_id", event.Payload.ProductID),
			zap.Int64("source_outlet_id", event.Payload.SourceOutletID),
			zap.Int64("dest_outlet_id", event.Payload.DestOutletID),
			zap.Error(err),
		)
		return
	}

	l.logger.Info("Transfer executed",
		zap.String("transfer_id", result.TransferID),
		zap.Int("moves", len(result.Moves)),
	)
}
