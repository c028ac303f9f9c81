package model

import "time"

type AlertType string

const (
	AlertLowStock        AlertType = "LOW_STOCK"
	AlertOutOfStock      AlertType = "OUT_OF_STOCK"
	AlertExpiryWarning   AlertType = "EXPIRY_WARNING"
	AlertExpiryCritical  AlertType = "EXPIRY_CRITICAL"
	AlertReorderRequired AlertType = "REORDER_REQUIRED"
	AlertOverstock       AlertType = "OVERSTOCK"
	AlertDamagedStock    AlertType = "DAMAGED_STOCK"
)

type AlertPriority string

const (
	AlertPriorityLow      AlertPriority = "LOW"
	AlertPriorityMedium   AlertPriority = "MEDIUM"
	AlertPriorityHigh     AlertPriority = "HIGH"
	AlertPriorityCritical AlertPriority = "CRITICAL"
)

type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "ACTIVE"
	AlertStatusAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertStatusResolved     AlertStatus = "RESOLVED"
)

// StockAlert is an advisory signal derived from aggregate batch state.
// At most one ACTIVE row exists per (product, outlet, type); the partial
// unique index in the schema is the authority.
type StockAlert struct {
	ID              string        `db:"id" json:"id"`
	ProductID       int64         `db:"product_id" json:"product_id"`
	OutletID        int64         `db:"outlet_id" json:"outlet_id"`
	AlertType       AlertType     `db:"alert_type" json:"alert_type"`
	Priority        AlertPriority `db:"priority" json:"priority"`
	Status          AlertStatus   `db:"status" json:"status"`
	Message         string        `db:"message" json:"message"`
	CurrentStock    float64       `db:"current_stock" json:"current_stock"`
	MinStockLevel   float64       `db:"min_stock_level" json:"min_stock_level"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	AcknowledgedBy  *int64        `db:"acknowledged_by" json:"acknowledged_by"`
	AcknowledgedAt  *time.Time    `db:"acknowledged_at" json:"acknowledged_at"`
	ResolvedBy      *int64        `db:"resolved_by" json:"resolved_by"`
	ResolvedAt      *time.Time    `db:"resolved_at" json:"resolved_at"`
	ResolutionNotes *string       `db:"resolution_notes" json:"resolution_notes"`
}
