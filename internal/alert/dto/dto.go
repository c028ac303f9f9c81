package dto

import "github.com/fekuna/omnipos-inventory-service/internal/model"

type AlertFilters struct {
	ProductID int64 // 0 = any
	OutletID  int64 // 0 = any
	AlertType model.AlertType
	Status    model.AlertStatus
	Priority  model.AlertPriority
	Page      int
	PageSize  int
}
