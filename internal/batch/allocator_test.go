package batch

import (
	"errors"
	"testing"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeBatch(id string, qty, reserved float64, expiry *time.Time, received time.Time, status model.BatchStatus) model.Batch {
	b := model.Batch{
		ProductID:        1,
		OutletID:         1,
		BatchNumber:      "BN-" + id,
		Quantity:         qty,
		ReservedQuantity: reserved,
		ExpiryDate:       expiry,
		ReceivedDate:     received,
		Status:           status,
	}
	b.ID = id
	return b
}

func TestPlanAllocationExpiryOrder(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	early := base.AddDate(0, 0, 5)
	late := base.AddDate(0, 0, 20)

	candidates := []model.Batch{
		makeBatch("b1", 10, 0, &late, base, model.BatchStatusAvailable),
		makeBatch("b2", 3, 0, &early, base.AddDate(0, 0, 1), model.BatchStatusAvailable),
		makeBatch("b3", 10, 0, nil, base.AddDate(0, 0, -30), model.BatchStatusAvailable),
	}

	plan, err := PlanAllocation(candidates, 6)
	require.NoError(t, err)

	// The soonest-expiring batch drains first; the undated batch is not
	// touched even though it was received first.
	require.Len(t, plan, 2)
	assert.Equal(t, Allocation{BatchID: "b2", Quantity: 3}, plan[0])
	assert.Equal(t, Allocation{BatchID: "b1", Quantity: 3}, plan[1])
}

func TestPlanAllocationNilExpiryLast(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	dated := base.AddDate(0, 0, 10)

	candidates := []model.Batch{
		makeBatch("undated", 5, 0, nil, base, model.BatchStatusAvailable),
		makeBatch("dated", 5, 0, &dated, base.AddDate(0, 0, 5), model.BatchStatusAvailable),
	}

	plan, err := PlanAllocation(candidates, 7)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, "dated", plan[0].BatchID)
	assert.Equal(t, float64(5), plan[0].Quantity)
	assert.Equal(t, "undated", plan[1].BatchID)
	assert.Equal(t, float64(2), plan[1].Quantity)
}

func TestPlanAllocationTieBreaks(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	expiry := base.AddDate(0, 0, 10)

	// Same expiry: received date decides. Same expiry and received: id.
	candidates := []model.Batch{
		makeBatch("z", 5, 0, &expiry, base, model.BatchStatusAvailable),
		makeBatch("a", 5, 0, &expiry, base, model.BatchStatusAvailable),
		makeBatch("m", 5, 0, &expiry, base.AddDate(0, 0, -1), model.BatchStatusAvailable),
	}

	plan, err := PlanAllocation(candidates, 15)
	require.NoError(t, err)
	require.Len(t, plan, 3)
	assert.Equal(t, "m", plan[0].BatchID)
	assert.Equal(t, "a", plan[1].BatchID)
	assert.Equal(t, "z", plan[2].BatchID)
}

func TestPlanAllocationAllOrNothing(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	candidates := []model.Batch{
		makeBatch("b1", 4, 1, nil, base, model.BatchStatusAvailable),
		makeBatch("b2", 2, 0, nil, base, model.BatchStatusAvailable),
	}

	plan, err := PlanAllocation(candidates, 10)
	assert.Nil(t, plan)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInsufficientStock))

	var insufficient *apperr.InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, float64(10), insufficient.Requested)
	assert.Equal(t, float64(5), insufficient.Available)
}

func TestPlanAllocationSkipsNonAllocatable(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	candidates := []model.Batch{
		makeBatch("damaged", 50, 0, nil, base, model.BatchStatusDamaged),
		makeBatch("expired", 50, 0, nil, base, model.BatchStatusExpired),
		makeBatch("quarantine", 50, 0, nil, base, model.BatchStatusQuarantine),
		makeBatch("fully-reserved", 5, 5, nil, base, model.BatchStatusReserved),
		makeBatch("live", 5, 2, nil, base, model.BatchStatusAvailable),
	}

	plan, err := PlanAllocation(candidates, 3)
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, "live", plan[0].BatchID)

	_, err = PlanAllocation(candidates, 4)
	assert.True(t, errors.Is(err, apperr.ErrInsufficientStock))
}

func TestPlanAllocationRejectsNonPositive(t *testing.T) {
	_, err := PlanAllocation(nil, 0)
	assert.True(t, errors.Is(err, apperr.ErrInvalidQuantity))

	_, err = PlanAllocation(nil, -2)
	assert.True(t, errors.Is(err, apperr.ErrInvalidQuantity))
}

func TestPlanAllocationDeterministic(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	expiry := base.AddDate(0, 0, 10)

	candidates := []model.Batch{
		makeBatch("b3", 4, 0, &expiry, base, model.BatchStatusAvailable),
		makeBatch("b1", 4, 0, &expiry, base, model.BatchStatusAvailable),
		makeBatch("b2", 4, 0, &expiry, base, model.BatchStatusAvailable),
	}

	first, err := PlanAllocation(candidates, 9)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := PlanAllocation(candidates, 9)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
