package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fekuna/omnipos-inventory-service/config"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	pending  []model.OutboxEvent
	failures map[string]int
}

func newFakeRepo(events ...model.OutboxEvent) *fakeRepo {
	return &fakeRepo{pending: events, failures: map[string]int{}}
}

func (r *fakeRepo) FetchPending(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	if len(r.pending) > limit {
		return r.pending[:limit], nil
	}
	return r.pending, nil
}

func (r *fakeRepo) MarkPublished(ctx context.Context, ids []string) error {
	published := map[string]bool{}
	for _, id := range ids {
		published[id] = true
	}
	var remaining []model.OutboxEvent
	for _, evt := range r.pending {
		if !published[evt.ID] {
			remaining = append(remaining, evt)
		}
	}
	r.pending = remaining
	return nil
}

func (r *fakeRepo) RecordFailure(ctx context.Context, id string, maxAttempts int) error {
	r.failures[id]++
	if r.failures[id] >= maxAttempts {
		var remaining []model.OutboxEvent
		for _, evt := range r.pending {
			if evt.ID != id {
				remaining = append(remaining, evt)
			}
		}
		r.pending = remaining
	}
	return nil
}

type fakePublisher struct {
	published [][]byte
	failKeys  map[string]bool
}

func (p *fakePublisher) Publish(ctx context.Context, key, value []byte) error {
	if p.failKeys[string(key)] {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, value)
	return nil
}

func testRelay(repo Repository, pub *fakePublisher) *Relay {
	cfg := &config.InventoryConfig{
		OutboxPollInterval: 1,
		OutboxBatchSize:    10,
		OutboxMaxAttempts:  3,
	}
	log := logger.NewZapLogger(&logger.ZapLoggerConfig{
		IsDevelopment:     true,
		Encoding:          "console",
		Level:             "error",
		DisableCaller:     true,
		DisableStacktrace: true,
	})
	return NewRelay(repo, pub, cfg, log)
}

func makeEvent(id, aggregateID string) model.OutboxEvent {
	return model.OutboxEvent{
		ID:          id,
		EventType:   "inventory.batch_received",
		AggregateID: aggregateID,
		Payload:     []byte(`{"event_id":"` + id + `"}`),
		Status:      model.OutboxStatusPending,
		CreatedAt:   time.Now(),
	}
}

func TestDrainPublishesAndMarks(t *testing.T) {
	repo := newFakeRepo(makeEvent("e1", "agg-1"), makeEvent("e2", "agg-2"))
	pub := &fakePublisher{}
	relay := testRelay(repo, pub)

	require.NoError(t, relay.Drain(context.Background()))
	assert.Len(t, pub.published, 2)
	assert.Empty(t, repo.pending)

	// A second drain finds nothing and publishes nothing.
	require.NoError(t, relay.Drain(context.Background()))
	assert.Len(t, pub.published, 2)
}

func TestDrainKeepsFailedEventsPending(t *testing.T) {
	repo := newFakeRepo(makeEvent("e1", "agg-bad"), makeEvent("e2", "agg-ok"))
	pub := &fakePublisher{failKeys: map[string]bool{"agg-bad": true}}
	relay := testRelay(repo, pub)

	require.NoError(t, relay.Drain(context.Background()))

	// The good event went out; the bad one stays behind for retry.
	assert.Len(t, pub.published, 1)
	require.Len(t, repo.pending, 1)
	assert.Equal(t, "e1", repo.pending[0].ID)
	assert.Equal(t, 1, repo.failures["e1"])
}

func TestDrainGivesUpAfterMaxAttempts(t *testing.T) {
	repo := newFakeRepo(makeEvent("e1", "agg-bad"))
	pub := &fakePublisher{failKeys: map[string]bool{"agg-bad": true}}
	relay := testRelay(repo, pub)

	for i := 0; i < 3; i++ {
		require.NoError(t, relay.Drain(context.Background()))
	}

	// Exhausted events drop out of the pending set.
	assert.Empty(t, repo.pending)
	assert.Equal(t, 3, repo.failures["e1"])
}
