package batch

import (
	"sort"

	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

// Allocation is one slice of a plan: take Quantity units out of BatchID.
type Allocation struct {
	BatchID  string
	Quantity float64
}

// PlanAllocation builds a FIFO plan covering requested quantity out of the
// candidate batches. It never mutates state.
//
// Ordering: ascending expiry date with nil expiry after all dated batches
// (non-perishable stock is drawn last), then ascending received date, then
// ascending id so plans are reproducible.
//
// The plan is all-or-nothing: if the candidates cannot cover the request the
// error reports the total available and no partial plan is returned.
func PlanAllocation(candidates []model.Batch, requested float64) ([]Allocation, error) {
	if requested <= 0 {
		return nil, apperr.InvalidQuantityf("requested quantity must be positive, got %.2f", requested)
	}

	eligible := make([]model.Batch, 0, len(candidates))
	totalAvailable := 0.0
	for _, b := range candidates {
		if !allocatable(b.Status) {
			continue
		}
		if b.Available() <= 0 {
			continue
		}
		eligible = append(eligible, b)
		totalAvailable += b.Available()
	}

	if totalAvailable < requested {
		return nil, &apperr.InsufficientStockError{Requested: requested, Available: totalAvailable}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return batchBefore(&eligible[i], &eligible[j])
	})

	var plan []Allocation
	remaining := requested
	for _, b := range eligible {
		if remaining <= 0 {
			break
		}
		take := b.Available()
		if take > remaining {
			take = remaining
		}
		plan = append(plan, Allocation{BatchID: b.ID, Quantity: take})
		remaining -= take
	}

	return plan, nil
}

func allocatable(s model.BatchStatus) bool {
	for _, a := range model.AllocatableBatchStatuses {
		if s == a {
			return true
		}
	}
	return false
}

func batchBefore(a, b *model.Batch) bool {
	switch {
	case a.ExpiryDate == nil && b.ExpiryDate == nil:
		// fall through to received date
	case a.ExpiryDate == nil:
		return false
	case b.ExpiryDate == nil:
		return true
	case !a.ExpiryDate.Equal(*b.ExpiryDate):
		return a.ExpiryDate.Before(*b.ExpiryDate)
	}

	if !a.ReceivedDate.Equal(b.ReceivedDate) {
		return a.ReceivedDate.Before(b.ReceivedDate)
	}
	return a.ID < b.ID
}
