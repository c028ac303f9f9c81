package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-inventory-service/config"
	"github.com/fekuna/omnipos-inventory-service/internal/alert"
	"github.com/fekuna/omnipos-inventory-service/internal/alert/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu     sync.Mutex
	alerts map[string]*model.StockAlert
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{alerts: map[string]*model.StockAlert{}}
}

func (r *fakeRepo) CreateIfAbsent(ctx context.Context, a *model.StockAlert, evt *model.OutboxEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.alerts {
		if existing.ProductID == a.ProductID && existing.OutletID == a.OutletID &&
			existing.AlertType == a.AlertType && existing.Status == model.AlertStatusActive {
			return false, nil
		}
	}
	copied := *a
	r.alerts[a.ID] = &copied
	return true, nil
}

func (r *fakeRepo) GetAlert(ctx context.Context, id string) (*model.StockAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[id]
	if !ok {
		return nil, apperr.NotFoundf("alert %s", id)
	}
	copied := *a
	return &copied, nil
}

func (r *fakeRepo) UpdateAlert(ctx context.Context, a *model.StockAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.alerts[a.ID]; !ok {
		return apperr.NotFoundf("alert %s", a.ID)
	}
	copied := *a
	r.alerts[a.ID] = &copied
	return nil
}

func (r *fakeRepo) FindAlerts(ctx context.Context, f *dto.AlertFilters) ([]model.StockAlert, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.StockAlert
	for _, a := range r.alerts {
		if f.ProductID != 0 && a.ProductID != f.ProductID {
			continue
		}
		if f.OutletID != 0 && a.OutletID != f.OutletID {
			continue
		}
		if f.AlertType != "" && a.AlertType != f.AlertType {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, *a)
	}
	return out, len(out), nil
}

func (r *fakeRepo) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, a := range r.alerts {
		if a.Status == model.AlertStatusResolved && a.ResolvedAt != nil && a.ResolvedAt.Before(cutoff) {
			delete(r.alerts, id)
			deleted++
		}
	}
	return deleted, nil
}

type fakeStockReader struct {
	summary   model.StockSummary
	threshold *model.StockThreshold
}

func (s *fakeStockReader) Summarize(ctx context.Context, productID, outletID int64, warningDays, criticalDays int) (*model.StockSummary, error) {
	copied := s.summary
	copied.ProductID = productID
	copied.OutletID = outletID
	return &copied, nil
}

func (s *fakeStockReader) GetThreshold(ctx context.Context, productID, outletID int64) (*model.StockThreshold, error) {
	return s.threshold, nil
}

func testConfig() *config.InventoryConfig {
	return &config.InventoryConfig{
		ExpiryWarningDays:    7,
		ExpiryCriticalDays:   3,
		DefaultMinStockLevel: 10,
		OverstockMultiplier:  10,
		AlertRetentionDays:   90,
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

func newTestUseCase(repo alert.Repository, stock alert.StockReader) alert.UseCase {
	return NewAlertUseCase(repo, stock, nil, testConfig(), testLogger())
}

func activeAlerts(t *testing.T, uc alert.UseCase, alertType model.AlertType) []model.StockAlert {
	t.Helper()
	out, _, err := uc.ListAlerts(context.Background(), &dto.AlertFilters{
		AlertType: alertType,
		Status:    model.AlertStatusActive,
	})
	require.NoError(t, err)
	return out
}

func TestEvaluateDeduplicatesActiveAlerts(t *testing.T) {
	repo := newFakeRepo()
	stock := &fakeStockReader{summary: model.StockSummary{
		BatchCount:        2,
		AvailableQuantity: 4,
	}}
	uc := newTestUseCase(repo, stock)
	ctx := context.Background()

	require.NoError(t, uc.Evaluate(ctx, 1, 1))
	require.NoError(t, uc.Evaluate(ctx, 1, 1))

	// Two evaluations of the same condition leave exactly one ACTIVE alert.
	low := activeAlerts(t, uc, model.AlertLowStock)
	require.Len(t, low, 1)
	assert.Equal(t, model.AlertPriorityMedium, low[0].Priority)
	assert.Equal(t, float64(4), low[0].CurrentStock)
	assert.Equal(t, float64(10), low[0].MinStockLevel)
}

func TestEvaluateOutOfStock(t *testing.T) {
	repo := newFakeRepo()
	stock := &fakeStockReader{summary: model.StockSummary{
		BatchCount:        1,
		AvailableQuantity: 0,
	}}
	uc := newTestUseCase(repo, stock)

	require.NoError(t, uc.Evaluate(context.Background(), 1, 1))

	out := activeAlerts(t, uc, model.AlertOutOfStock)
	require.Len(t, out, 1)
	assert.Equal(t, model.AlertPriorityCritical, out[0].Priority)

	// Zero available is out-of-stock, not low-stock.
	assert.Empty(t, activeAlerts(t, uc, model.AlertLowStock))
}

func TestEvaluateExpiryAlerts(t *testing.T) {
	repo := newFakeRepo()
	stock := &fakeStockReader{summary: model.StockSummary{
		BatchCount:        3,
		AvailableQuantity: 50,
		WarningBatches:    1,
		CriticalBatches:   1,
	}}
	uc := newTestUseCase(repo, stock)

	require.NoError(t, uc.Evaluate(context.Background(), 1, 1))

	critical := activeAlerts(t, uc, model.AlertExpiryCritical)
	require.Len(t, critical, 1)
	assert.Equal(t, model.AlertPriorityHigh, critical[0].Priority)

	warning := activeAlerts(t, uc, model.AlertExpiryWarning)
	require.Len(t, warning, 1)
	assert.Equal(t, model.AlertPriorityLow, warning[0].Priority)

	// Expired stock escalates the critical alert's priority.
	repo2 := newFakeRepo()
	stock.summary.ExpiredBatches = 1
	uc2 := newTestUseCase(repo2, stock)
	require.NoError(t, uc2.Evaluate(context.Background(), 1, 1))
	critical = activeAlerts(t, uc2, model.AlertExpiryCritical)
	require.Len(t, critical, 1)
	assert.Equal(t, model.AlertPriorityCritical, critical[0].Priority)
}

func TestEvaluateReorderAndOverstock(t *testing.T) {
	repo := newFakeRepo()
	stock := &fakeStockReader{
		summary: model.StockSummary{BatchCount: 1, AvailableQuantity: 15},
		threshold: &model.StockThreshold{
			ProductID: 1, OutletID: 1,
			MinStockLevel: 5, ReorderPoint: 20, MaxStockLevel: 100,
		},
	}
	uc := newTestUseCase(repo, stock)

	require.NoError(t, uc.Evaluate(context.Background(), 1, 1))
	require.Len(t, activeAlerts(t, uc, model.AlertReorderRequired), 1)
	assert.Empty(t, activeAlerts(t, uc, model.AlertOverstock))
	assert.Empty(t, activeAlerts(t, uc, model.AlertLowStock))

	repo2 := newFakeRepo()
	stock2 := &fakeStockReader{
		summary: model.StockSummary{BatchCount: 4, AvailableQuantity: 120},
		threshold: &model.StockThreshold{
			ProductID: 1, OutletID: 1,
			MinStockLevel: 5, MaxStockLevel: 100,
		},
	}
	uc2 := newTestUseCase(repo2, stock2)
	require.NoError(t, uc2.Evaluate(context.Background(), 1, 1))
	overstock := activeAlerts(t, uc2, model.AlertOverstock)
	require.Len(t, overstock, 1)
	assert.Equal(t, model.AlertPriorityLow, overstock[0].Priority)
}

func TestAcknowledgeAndResolveTransitions(t *testing.T) {
	repo := newFakeRepo()
	stock := &fakeStockReader{summary: model.StockSummary{
		BatchCount:        1,
		AvailableQuantity: 2,
	}}
	uc := newTestUseCase(repo, stock)
	ctx := context.Background()

	require.NoError(t, uc.Evaluate(ctx, 1, 1))
	alerts := activeAlerts(t, uc, model.AlertLowStock)
	require.Len(t, alerts, 1)
	id := alerts[0].ID

	acked, err := uc.Acknowledge(ctx, id, 42)
	require.NoError(t, err)
	assert.Equal(t, model.AlertStatusAcknowledged, acked.Status)
	require.NotNil(t, acked.AcknowledgedBy)
	assert.Equal(t, int64(42), *acked.AcknowledgedBy)
	assert.NotNil(t, acked.AcknowledgedAt)

	// Acknowledging twice is a transition error.
	_, err = uc.Acknowledge(ctx, id, 42)
	assert.True(t, errors.Is(err, apperr.ErrInvalidStateTransition))

	resolved, err := uc.Resolve(ctx, id, 43, "restocked")
	require.NoError(t, err)
	assert.Equal(t, model.AlertStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolutionNotes)
	assert.Equal(t, "restocked", *resolved.ResolutionNotes)

	// Resolution is terminal.
	_, err = uc.Resolve(ctx, id, 43, "")
	assert.True(t, errors.Is(err, apperr.ErrInvalidStateTransition))
	_, err = uc.Acknowledge(ctx, id, 42)
	assert.True(t, errors.Is(err, apperr.ErrInvalidStateTransition))
}

func TestResolveSkipsAcknowledge(t *testing.T) {
	repo := newFakeRepo()
	stock := &fakeStockReader{summary: model.StockSummary{
		BatchCount:        1,
		AvailableQuantity: 2,
	}}
	uc := newTestUseCase(repo, stock)
	ctx := context.Background()

	require.NoError(t, uc.Evaluate(ctx, 1, 1))
	alerts := activeAlerts(t, uc, model.AlertLowStock)
	require.Len(t, alerts, 1)

	// ACTIVE -> RESOLVED directly is allowed.
	resolved, err := uc.Resolve(ctx, alerts[0].ID, 7, "")
	require.NoError(t, err)
	assert.Equal(t, model.AlertStatusResolved, resolved.Status)
}

func TestEvaluateNeverAutoResolves(t *testing.T) {
	repo := newFakeRepo()
	stock := &fakeStockReader{summary: model.StockSummary{
		BatchCount:        1,
		AvailableQuantity: 2,
	}}
	uc := newTestUseCase(repo, stock)
	ctx := context.Background()

	require.NoError(t, uc.Evaluate(ctx, 1, 1))
	require.Len(t, activeAlerts(t, uc, model.AlertLowStock), 1)

	// Stock recovers; the alert stays until an operator clears it.
	stock.summary.AvailableQuantity = 500
	require.NoError(t, uc.Evaluate(ctx, 1, 1))
	assert.Len(t, activeAlerts(t, uc, model.AlertLowStock), 1)
}

func TestSweepResolvedHonorsRetention(t *testing.T) {
	repo := newFakeRepo()
	uc := newTestUseCase(repo, &fakeStockReader{})

	old := time.Now().AddDate(0, 0, -120)
	recent := time.Now().AddDate(0, 0, -5)
	repo.alerts["a1"] = &model.StockAlert{ID: "a1", Status: model.AlertStatusResolved, ResolvedAt: &old}
	repo.alerts["a2"] = &model.StockAlert{ID: "a2", Status: model.AlertStatusResolved, ResolvedAt: &recent}
	repo.alerts["a3"] = &model.StockAlert{ID: "a3", Status: model.AlertStatusActive}

	deleted, err := uc.SweepResolved(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, ok := repo.alerts["a1"]
	assert.False(t, ok)
	assert.Contains(t, repo.alerts, "a2")
	assert.Contains(t, repo.alerts, "a3")
}
