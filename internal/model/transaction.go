package model

import "time"

type TransactionType string

const (
	TransactionReceive     TransactionType = "RECEIVE"
	TransactionSale        TransactionType = "SALE"
	TransactionReturn      TransactionType = "RETURN"
	TransactionAdjustment  TransactionType = "ADJUSTMENT"
	TransactionTransferIn  TransactionType = "TRANSFER_IN"
	TransactionTransferOut TransactionType = "TRANSFER_OUT"
	TransactionIssue       TransactionType = "ISSUE"
	TransactionDamage      TransactionType = "DAMAGE"
	TransactionExpire      TransactionType = "EXPIRE"
	TransactionWaste       TransactionType = "WASTE"
)

// StockTransaction is one immutable ledger entry for one batch. Rows are
// append-only: never updated, never deleted.
type StockTransaction struct {
	ID               string          `db:"id" json:"id"`
	BatchID          string          `db:"batch_id" json:"batch_id"`
	ProductID        int64           `db:"product_id" json:"product_id"`
	OutletID         int64           `db:"outlet_id" json:"outlet_id"`
	Type             TransactionType `db:"type" json:"type"`
	QuantityDelta    float64         `db:"quantity_delta" json:"quantity_delta"`
	PreviousQuantity float64         `db:"previous_quantity" json:"previous_quantity"`
	NewQuantity      float64         `db:"new_quantity" json:"new_quantity"`
	Reason           string          `db:"reason" json:"reason"`
	ReferenceType    *string         `db:"reference_type" json:"reference_type"`
	ReferenceID      *string         `db:"reference_id" json:"reference_id"`
	ActingUserID     *int64          `db:"acting_user_id" json:"acting_user_id"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}
