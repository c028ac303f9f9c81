// Package events defines the lifecycle events the engine emits and the
// outbound port they travel through. Events are written to the outbox table
// in the same transaction as the mutation; the relay publishes them.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/google/uuid"
)

const (
	TypeBatchReceived    = "inventory.batch_received"
	TypeStockAdjusted    = "inventory.stock_adjusted"
	TypeBatchExpired     = "inventory.batch_expired"
	TypeStockReserved    = "inventory.stock_reserved"
	TypeStockReleased    = "inventory.stock_released"
	TypeStockDeducted    = "inventory.stock_deducted"
	TypeStockTransferred = "inventory.stock_transferred"
	TypeAlertRaised      = "inventory.alert_raised"
)

// Publisher is the outbound port to the message broker.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

type Envelope struct {
	EventID   string      `json:"event_id"`
	EventType string      `json:"event_type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

type BatchPayload struct {
	BatchID     string  `json:"batch_id"`
	ProductID   int64   `json:"product_id"`
	OutletID    int64   `json:"outlet_id"`
	BatchNumber string  `json:"batch_number"`
	Quantity    float64 `json:"quantity"`
	Delta       float64 `json:"delta,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	ReferenceID string  `json:"reference_id,omitempty"`
}

type TransferPayload struct {
	TransferID     string  `json:"transfer_id"`
	ProductID      int64   `json:"product_id"`
	SourceOutletID int64   `json:"source_outlet_id"`
	DestOutletID   int64   `json:"dest_outlet_id"`
	Quantity       float64 `json:"quantity"`
	Reason         string  `json:"reason,omitempty"`
}

type ReservationPayload struct {
	ReferenceID string  `json:"reference_id"`
	ProductID   int64   `json:"product_id"`
	OutletID    int64   `json:"outlet_id"`
	Quantity    float64 `json:"quantity"`
	BatchCount  int     `json:"batch_count"`
}

type AlertPayload struct {
	AlertID   string  `json:"alert_id"`
	ProductID int64   `json:"product_id"`
	OutletID  int64   `json:"outlet_id"`
	AlertType string  `json:"alert_type"`
	Priority  string  `json:"priority"`
	Stock     float64 `json:"stock"`
}

// NewOutboxEvent wraps a payload in an envelope and returns the outbox row
// to insert alongside the mutation.
func NewOutboxEvent(eventType, aggregateType, aggregateID string, payload interface{}) (*model.OutboxEvent, error) {
	env := Envelope{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}

	return &model.OutboxEvent{
		ID:            env.EventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       raw,
		Status:        model.OutboxStatusPending,
		CreatedAt:     env.Timestamp,
	}, nil
}
