package model

import "time"

type BatchStatus string

const (
	BatchStatusAvailable   BatchStatus = "AVAILABLE"
	BatchStatusReserved    BatchStatus = "RESERVED"
	BatchStatusDamaged     BatchStatus = "DAMAGED"
	BatchStatusExpired     BatchStatus = "EXPIRED"
	BatchStatusQuarantine  BatchStatus = "QUARANTINE"
	BatchStatusTransferred BatchStatus = "TRANSFERRED"
	BatchStatusSold        BatchStatus = "SOLD"
)

// RetiredBatchStatuses are terminal states. Retired batches keep their rows
// (never deleted) but no longer count toward stock or the batch-number
// uniqueness constraint.
var RetiredBatchStatuses = []BatchStatus{
	BatchStatusExpired,
	BatchStatusTransferred,
	BatchStatusSold,
}

// AllocatableBatchStatuses are the states the allocator may draw from.
var AllocatableBatchStatuses = []BatchStatus{
	BatchStatusAvailable,
	BatchStatusReserved,
}

func (s BatchStatus) Retired() bool {
	for _, r := range RetiredBatchStatuses {
		if s == r {
			return true
		}
	}
	return false
}

// Batch is a discrete receipt (lot) of one product at one outlet.
type Batch struct {
	BaseModel
	ProductID        int64   `db:"product_id" json:"product_id"`
	OutletID         int64   `db:"outlet_id" json:"outlet_id"`
	BatchNumber      string  `db:"batch_number" json:"batch_number"`
	Quantity         float64 `db:"quantity" json:"quantity"`
	ReservedQuantity float64 `db:"reserved_quantity" json:"reserved_quantity"`
	// Generated column: quantity - reserved_quantity
	AvailableQuantity float64     `db:"available_quantity" json:"available_quantity"`
	UnitCost          float64     `db:"unit_cost" json:"unit_cost"`
	ExpiryDate        *time.Time  `db:"expiry_date" json:"expiry_date"`
	ManufacturedDate  *time.Time  `db:"manufactured_date" json:"manufactured_date"`
	ReceivedDate      time.Time   `db:"received_date" json:"received_date"`
	LocationCode      *string     `db:"location_code" json:"location_code"`
	Status            BatchStatus `db:"status" json:"status"`
}

// Available recomputes the free portion from the quantity fields. The
// generated column is only refreshed on reads, so in-memory mutations go
// through this instead.
func (b *Batch) Available() float64 {
	return b.Quantity - b.ReservedQuantity
}

// IsExpired is date-granular: a batch expiring today is still saleable.
func (b *Batch) IsExpired(now time.Time) bool {
	if b.ExpiryDate == nil {
		return false
	}
	ey, em, ed := b.ExpiryDate.UTC().Date()
	ny, nm, nd := now.UTC().Date()
	exp := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	day := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return exp.Before(day)
}
