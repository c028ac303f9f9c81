package model

// StockSummary is a derived, recomputed projection over the non-retired
// batches of one (product, outlet) pair. It is never the system of record.
type StockSummary struct {
	ProductID         int64   `db:"product_id" json:"product_id"`
	OutletID          int64   `db:"outlet_id" json:"outlet_id"`
	TotalQuantity     float64 `db:"total_quantity" json:"total_quantity"`
	ReservedQuantity  float64 `db:"reserved_quantity" json:"reserved_quantity"`
	AvailableQuantity float64 `db:"available_quantity" json:"available_quantity"`
	DamagedQuantity   float64 `db:"damaged_quantity" json:"damaged_quantity"`
	BatchCount        int     `db:"batch_count" json:"batch_count"`
	WarningBatches    int     `db:"warning_batches" json:"warning_batches"`
	CriticalBatches   int     `db:"critical_batches" json:"critical_batches"`
	ExpiredBatches    int     `db:"expired_batches" json:"expired_batches"`
	MinStockLevel     float64 `db:"min_stock_level" json:"min_stock_level"`
	ReorderPoint      float64 `db:"reorder_point" json:"reorder_point"`
	MaxStockLevel     float64 `db:"max_stock_level" json:"max_stock_level"`
	IsLowStock        bool    `db:"is_low_stock" json:"is_low_stock"`
	IsOutOfStock      bool    `db:"is_out_of_stock" json:"is_out_of_stock"`
}

// StockThreshold is the per-(product, outlet) alerting configuration. Pairs
// without a row fall back to the service-wide defaults.
type StockThreshold struct {
	ProductID       int64   `db:"product_id" json:"product_id"`
	OutletID        int64   `db:"outlet_id" json:"outlet_id"`
	MinStockLevel   float64 `db:"min_stock_level" json:"min_stock_level"`
	ReorderPoint    float64 `db:"reorder_point" json:"reorder_point"`
	ReorderQuantity float64 `db:"reorder_quantity" json:"reorder_quantity"`
	MaxStockLevel   float64 `db:"max_stock_level" json:"max_stock_level"`
}
