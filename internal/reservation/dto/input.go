package dto

type ReserveInput struct {
	ProductID    int64
	OutletID     int64
	Quantity     float64
	ReferenceID  string
	ActingUserID int64
}

type ReleaseInput struct {
	ProductID    int64
	OutletID     int64
	Quantity     float64
	ReferenceID  string
	ActingUserID int64
}

type SaleInput struct {
	ProductID    int64
	OutletID     int64
	Quantity     float64
	ReferenceID  string
	ActingUserID int64
}
