package dto

type TransferInput struct {
	ProductID      int64
	SourceOutletID int64
	DestOutletID   int64
	Quantity       float64
	Reason         string
	ActingUserID   int64
}

// TransferResult reports the committed transfer and how it was satisfied.
type TransferResult struct {
	TransferID string         `json:"transfer_id"`
	Moves      []TransferMove `json:"moves"`
}

type TransferMove struct {
	SourceBatchID string  `json:"source_batch_id"`
	DestBatchID   string  `json:"dest_batch_id"`
	Quantity      float64 `json:"quantity"`
	Merged        bool    `json:"merged"`
}
