package dto

import (
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

type ReceiveStockInput struct {
	ProductID        int64
	OutletID         int64
	BatchNumber      string
	Quantity         float64
	UnitCost         float64
	ExpiryDate       *time.Time
	ManufacturedDate *time.Time
	ReceivedDate     time.Time // zero value means now
	LocationCode     string
	ActingUserID     int64
}

// AdjustStockInput mutates one batch's quantity. QuantityChange is signed;
// the adjustment type constrains the allowed sign (DAMAGE/WASTE/EXPIRE/ISSUE
// decrease, RETURN increases, ADJUSTMENT goes either way).
type AdjustStockInput struct {
	BatchID        string
	AdjustmentType model.TransactionType
	QuantityChange float64
	Reason         string
	ReferenceID    string
	ReferenceType  string
	ActingUserID   int64
}
