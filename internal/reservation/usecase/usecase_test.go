package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-inventory-service/config"
	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/reservation"
	"github.com/fekuna/omnipos-inventory-service/internal/reservation/dto"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo mirrors the postgres repository's conditional-update behavior in
// memory: any guard failure rolls the whole call back and reports
// ErrConcurrentModification.
type fakeRepo struct {
	mu           sync.Mutex
	batches      map[string]*model.Batch
	reservations []model.Reservation
	txns         []model.StockTransaction
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{batches: map[string]*model.Batch{}}
}

func (r *fakeRepo) addBatch(id string, qty float64, expiry *time.Time, received time.Time) {
	b := &model.Batch{
		ProductID:    1,
		OutletID:     1,
		BatchNumber:  "BN-" + id,
		Quantity:     qty,
		ExpiryDate:   expiry,
		ReceivedDate: received,
		Status:       model.BatchStatusAvailable,
	}
	b.ID = id
	r.batches[id] = b
}

func (r *fakeRepo) ListAllocatable(ctx context.Context, productID, outletID int64) ([]model.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.Batch
	for _, b := range r.batches {
		if b.ProductID != productID || b.OutletID != outletID {
			continue
		}
		if b.Status != model.BatchStatusAvailable && b.Status != model.BatchStatusReserved {
			continue
		}
		if b.Available() <= 0 {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

func (r *fakeRepo) GetBatches(ctx context.Context, ids []string) ([]model.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.Batch
	for _, id := range ids {
		if b, ok := r.batches[id]; ok {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *fakeRepo) FindActiveByReference(ctx context.Context, referenceID string, productID, outletID int64) ([]model.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.Reservation
	for _, res := range r.reservations {
		if res.ReferenceID == referenceID && res.ProductID == productID &&
			res.OutletID == outletID && res.Status == model.ReservationStatusActive {
			out = append(out, res)
		}
	}
	return out, nil
}

func (r *fakeRepo) ApplyReservation(ctx context.Context, reservations []model.Reservation, txns []model.StockTransaction, evt *model.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, res := range reservations {
		b, ok := r.batches[res.BatchID]
		if !ok || b.Available() < res.Quantity {
			return apperr.ErrConcurrentModification
		}
	}
	for _, res := range reservations {
		b := r.batches[res.BatchID]
		b.ReservedQuantity += res.Quantity
		if b.ReservedQuantity >= b.Quantity {
			b.Status = model.BatchStatusReserved
		}
	}
	r.reservations = append(r.reservations, reservations...)
	r.txns = append(r.txns, txns...)
	return nil
}

func (r *fakeRepo) ApplyRelease(ctx context.Context, entries []reservation.ReleaseEntry, txns []model.StockTransaction, evt *model.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range entries {
		b, ok := r.batches[e.BatchID]
		if !ok || b.ReservedQuantity < e.Quantity {
			return apperr.ErrConcurrentModification
		}
	}
	for _, e := range entries {
		b := r.batches[e.BatchID]
		b.ReservedQuantity -= e.Quantity
		if b.ReservedQuantity < b.Quantity {
			b.Status = model.BatchStatusAvailable
		}
		for i := range r.reservations {
			res := &r.reservations[i]
			if res.ID == e.ReservationID {
				res.Quantity -= e.Quantity
				if res.Quantity <= 0 {
					res.Status = model.ReservationStatusReleased
				}
			}
		}
	}
	r.txns = append(r.txns, txns...)
	return nil
}

func (r *fakeRepo) ApplySale(ctx context.Context, entries []reservation.SaleEntry, txns []model.StockTransaction, evt *model.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range entries {
		b, ok := r.batches[e.BatchID]
		if !ok || b.Quantity < e.Quantity || b.ReservedQuantity < e.FromReserved ||
			b.Available() < e.Quantity-e.FromReserved {
			return apperr.ErrConcurrentModification
		}
	}
	for _, e := range entries {
		b := r.batches[e.BatchID]
		b.Quantity -= e.Quantity
		b.ReservedQuantity -= e.FromReserved
		if b.Quantity <= 0 {
			b.Status = model.BatchStatusSold
		}
		if e.ReservationID == "" {
			continue
		}
		for i := range r.reservations {
			res := &r.reservations[i]
			if res.ID == e.ReservationID {
				res.Quantity -= e.FromReserved
				if res.Quantity <= 0 {
					res.Status = model.ReservationStatusConsumed
				}
			}
		}
	}
	r.txns = append(r.txns, txns...)
	return nil
}

func testConfig() *config.InventoryConfig {
	return &config.InventoryConfig{
		LockTTLSeconds: 5,
		LockRetries:    3,
	}
}

func testLogger() logger.ZapLogger {
	return logger.NewZapLogger(&logger.ZapLoggerConfig{
		IsDevelopment:     true,
		Encoding:          "console",
		Level:             "error",
		DisableCaller:     true,
		DisableStacktrace: true,
	})
}

func newTestUseCase(repo *fakeRepo) reservation.UseCase {
	return NewReservationUseCase(repo, nil, nil, nil, testConfig(), testLogger())
}

func snapshot(repo *fakeRepo) map[string][2]float64 {
	out := map[string][2]float64{}
	for id, b := range repo.batches {
		out[id] = [2]float64{b.Quantity, b.ReservedQuantity}
	}
	return out
}

func TestReserveSpreadsFIFO(t *testing.T) {
	repo := newFakeRepo()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	early := base.AddDate(0, 0, 3)
	late := base.AddDate(0, 0, 30)
	repo.addBatch("b-late", 10, &late, base)
	repo.addBatch("b-early", 4, &early, base)

	uc := newTestUseCase(repo)
	plan, err := uc.Reserve(context.Background(), &dto.ReserveInput{
		ProductID: 1, OutletID: 1, Quantity: 6, ReferenceID: "order-1",
	})
	require.NoError(t, err)

	require.Len(t, plan, 2)
	assert.Equal(t, "b-early", plan[0].BatchID)
	assert.Equal(t, float64(4), plan[0].Quantity)
	assert.Equal(t, "b-late", plan[1].BatchID)
	assert.Equal(t, float64(2), plan[1].Quantity)

	// Quantities stay put; only the reserved counters move.
	assert.Equal(t, float64(4), repo.batches["b-early"].Quantity)
	assert.Equal(t, float64(4), repo.batches["b-early"].ReservedQuantity)
	assert.Equal(t, model.BatchStatusReserved, repo.batches["b-early"].Status)
	assert.Equal(t, float64(2), repo.batches["b-late"].ReservedQuantity)
	assert.Equal(t, model.BatchStatusAvailable, repo.batches["b-late"].Status)
}

func TestReserveReleaseRoundTrip(t *testing.T) {
	repo := newFakeRepo()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	expiry := base.AddDate(0, 0, 10)
	repo.addBatch("b1", 5, &expiry, base)
	repo.addBatch("b2", 7, nil, base.AddDate(0, 0, 1))

	before := snapshot(repo)
	uc := newTestUseCase(repo)
	ctx := context.Background()

	_, err := uc.Reserve(ctx, &dto.ReserveInput{
		ProductID: 1, OutletID: 1, Quantity: 9, ReferenceID: "order-1",
	})
	require.NoError(t, err)

	err = uc.Release(ctx, &dto.ReleaseInput{
		ProductID: 1, OutletID: 1, Quantity: 9, ReferenceID: "order-1",
	})
	require.NoError(t, err)

	assert.Equal(t, before, snapshot(repo))

	held, err := uc.ListByReference(ctx, "order-1", 1, 1)
	require.NoError(t, err)
	assert.Empty(t, held)
}

func TestReleaseMoreThanReserved(t *testing.T) {
	repo := newFakeRepo()
	repo.addBatch("b1", 10, nil, time.Now())
	uc := newTestUseCase(repo)
	ctx := context.Background()

	_, err := uc.Reserve(ctx, &dto.ReserveInput{
		ProductID: 1, OutletID: 1, Quantity: 4, ReferenceID: "order-1",
	})
	require.NoError(t, err)

	err = uc.Release(ctx, &dto.ReleaseInput{
		ProductID: 1, OutletID: 1, Quantity: 5, ReferenceID: "order-1",
	})
	assert.True(t, errors.Is(err, apperr.ErrInvalidStateTransition))

	// The held reservation is untouched.
	assert.Equal(t, float64(4), repo.batches["b1"].ReservedQuantity)
}

func TestReserveInsufficientLeavesNothingBehind(t *testing.T) {
	repo := newFakeRepo()
	repo.addBatch("b1", 3, nil, time.Now())
	repo.addBatch("b2", 2, nil, time.Now())

	before := snapshot(repo)
	uc := newTestUseCase(repo)

	_, err := uc.Reserve(context.Background(), &dto.ReserveInput{
		ProductID: 1, OutletID: 1, Quantity: 10, ReferenceID: "order-1",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInsufficientStock))

	var insufficient *apperr.InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, float64(10), insufficient.Requested)
	assert.Equal(t, float64(5), insufficient.Available)

	assert.Equal(t, before, snapshot(repo))
	assert.Empty(t, repo.reservations)
	assert.Empty(t, repo.txns)
}

func TestConcurrentReserveNeverDoubleBooks(t *testing.T) {
	repo := newFakeRepo()
	repo.addBatch("b1", 8, nil, time.Now())
	uc := newTestUseCase(repo)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = uc.Reserve(context.Background(), &dto.ReserveInput{
				ProductID: 1, OutletID: 1, Quantity: 5,
				ReferenceID: []string{"order-a", "order-b"}[i],
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.True(t,
				errors.Is(err, apperr.ErrInsufficientStock) || errors.Is(err, apperr.ErrConcurrentModification))
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, float64(5), repo.batches["b1"].ReservedQuantity)
}

func TestDeductForSaleConsumesReservationFirst(t *testing.T) {
	repo := newFakeRepo()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	expiry := base.AddDate(0, 0, 5)
	repo.addBatch("b1", 6, &expiry, base)
	repo.addBatch("b2", 6, nil, base)

	uc := newTestUseCase(repo)
	ctx := context.Background()

	_, err := uc.Reserve(ctx, &dto.ReserveInput{
		ProductID: 1, OutletID: 1, Quantity: 4, ReferenceID: "order-1",
	})
	require.NoError(t, err)
	require.Equal(t, float64(4), repo.batches["b1"].ReservedQuantity)

	// Sell more than was reserved: reserved units go first, the remainder
	// comes out of free stock.
	plan, err := uc.DeductForSale(ctx, &dto.SaleInput{
		ProductID: 1, OutletID: 1, Quantity: 7, ReferenceID: "order-1",
	})
	require.NoError(t, err)

	total := 0.0
	for _, a := range plan {
		total += a.Quantity
	}
	assert.Equal(t, float64(7), total)

	assert.Equal(t, float64(0), repo.batches["b1"].ReservedQuantity)
	assert.Equal(t, float64(12-7), repo.batches["b1"].Quantity+repo.batches["b2"].Quantity)

	held, err := uc.ListByReference(ctx, "order-1", 1, 1)
	require.NoError(t, err)
	assert.Empty(t, held)
}

func TestDeductForSaleInsufficientReportsReservedShare(t *testing.T) {
	repo := newFakeRepo()
	repo.addBatch("b1", 5, nil, time.Now())
	uc := newTestUseCase(repo)
	ctx := context.Background()

	_, err := uc.Reserve(ctx, &dto.ReserveInput{
		ProductID: 1, OutletID: 1, Quantity: 3, ReferenceID: "order-1",
	})
	require.NoError(t, err)

	before := snapshot(repo)
	_, err = uc.DeductForSale(ctx, &dto.SaleInput{
		ProductID: 1, OutletID: 1, Quantity: 9, ReferenceID: "order-1",
	})
	require.Error(t, err)

	var insufficient *apperr.InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, float64(9), insufficient.Requested)
	// The caller could get the whole batch: its own 3 reserved plus 2 free.
	assert.Equal(t, float64(5), insufficient.Available)

	assert.Equal(t, before, snapshot(repo))
}
