package dto

type BatchFilters struct {
	ProductID          int64 // 0 = any
	OutletID           int64 // 0 = any
	Status             string
	ExpiringWithinDays int // >0 filters to dated batches expiring within N days
	IncludeRetired     bool
	Page               int
	PageSize           int
}

type TransactionFilters struct {
	BatchID       string
	ProductID     int64
	OutletID      int64
	Type          string
	ReferenceType string
	ReferenceID   string
	Page          int
	PageSize      int
}
