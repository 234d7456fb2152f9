package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/reviewleopard-backend/internal/logger"
	"github.com/unclebandit/reviewleopard-backend/internal/model"
	"github.com/unclebandit/reviewleopard-backend/internal/queue"
	"github.com/unclebandit/reviewleopard-backend/internal/service"
)

type MockTelemetryRepo struct {
	mu     sync.Mutex
	events []*model.TelemetryEvent
	err    error
}

func (m *MockTelemetryRepo) Append(_ context.Context, ev *model.TelemetryEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

type MockQueue struct {
	mu        sync.Mutex
	published map[string][]any
}

func (q *MockQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.published == nil {
		q.published = map[string][]any{}
	}
	q.published[topic] = append(q.published[topic], payload)
	return nil
}

func (q *MockQueue) Subscribe(string, queue.Handler) error { return nil }
func (q *MockQueue) Close() error                          { return nil }

func TestTelemetry_RecordPersistsAndMirrors(t *testing.T) {
	repo := &MockTelemetryRepo{}
	q := &MockQueue{}
	tel := service.NewTelemetry(repo, q, nil, logger.NewNop())
	tel.Now = func() time.Time { return t0 }

	tel.Record(context.Background(), businessID, model.EventRequestSent, map[string]any{"message_id": "SM1"})

	require.Len(t, repo.events, 1)
	ev := repo.events[0]
	assert.Equal(t, businessID, ev.BusinessID)
	assert.Equal(t, model.EventRequestSent, ev.EventType)
	assert.Equal(t, t0, ev.CreatedAt)

	var data map[string]any
	require.NoError(t, json.Unmarshal(ev.EventData, &data))
	assert.Equal(t, "SM1", data["message_id"])
	assert.Len(t, q.published[queue.TopicTelemetry], 1)
}

func TestTelemetry_WriteFailureIsSwallowed(t *testing.T) {
	repo := &MockTelemetryRepo{err: errors.New("db down")}
	tel := service.NewTelemetry(repo, nil, nil, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NotPanics(t, func() {
		tel.Record(ctx, businessID, model.EventRequestOpened, nil)
	})
}
