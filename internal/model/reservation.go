package model

import "time"

type ReservationStatus string

const (
	ReservationStatusActive   ReservationStatus = "ACTIVE"
	ReservationStatusReleased ReservationStatus = "RELEASED"
	ReservationStatusConsumed ReservationStatus = "CONSUMED"
)

// Reservation records how much of one batch is held for one external
// reference (typically an order). Release and sale-time consumption walk
// these rows so quantity always comes back out of the batches it went into.
type Reservation struct {
	ID          string            `db:"id" json:"id"`
	ReferenceID string            `db:"reference_id" json:"reference_id"`
	BatchID     string            `db:"batch_id" json:"batch_id"`
	ProductID   int64             `db:"product_id" json:"product_id"`
	OutletID    int64             `db:"outlet_id" json:"outlet_id"`
	Quantity    float64           `db:"quantity" json:"quantity"`
	Status      ReservationStatus `db:"status" json:"status"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}
