package model

import (
	"encoding/json"
	"time"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusPublished OutboxStatus = "PUBLISHED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

// OutboxEvent is a lifecycle event written in the same transaction as the
// ledger mutation it describes, relayed to the broker afterwards.
type OutboxEvent struct {
	ID            string          `db:"id" json:"id"`
	EventType     string          `db:"event_type" json:"event_type"`
	AggregateType string          `db:"aggregate_type" json:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id" json:"aggregate_id"`
	Payload       json.RawMessage `db:"payload" json:"payload"`
	Status        OutboxStatus    `db:"status" json:"status"`
	Attempts      int             `db:"attempts" json:"attempts"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	PublishedAt   *time.Time      `db:"published_at" json:"published_at"`
}
