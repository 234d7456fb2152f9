package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/unclebandit/reviewleopard-backend/internal/logger"
	"github.com/unclebandit/reviewleopard-backend/internal/metrics"
	"github.com/unclebandit/reviewleopard-backend/internal/model"
	"github.com/unclebandit/reviewleopard-backend/internal/queue"
	"github.com/unclebandit/reviewleopard-backend/internal/repository"
)

// TelemetryRecorder appends observability events. Recording never fails the caller.
type TelemetryRecorder interface {
	Record(ctx context.Context, businessID int64, eventType string, data map[string]any)
}

// Telemetry persists events and mirrors them to the broker when one is configured.
type Telemetry struct {
	Repo    repository.TelemetryRepositoryInterface
	Queue   queue.Queue
	Metrics *metrics.Metrics
	Log     logger.Logger
	Now     func() time.Time
}

func NewTelemetry(repo repository.TelemetryRepositoryInterface, q queue.Queue, m *metrics.Metrics, log logger.Logger) *Telemetry {
	return &Telemetry{Repo: repo, Queue: q, Metrics: m, Log: log, Now: time.Now}
}

func (t *Telemetry) Record(ctx context.Context, businessID int64, eventType string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		t.Log.Warn("telemetry payload not encodable",
			logger.String("event_type", eventType), logger.Error(err))
		raw = []byte(`{}`)
	}
	ev := &model.TelemetryEvent{
		BusinessID: businessID,
		EventType:  eventType,
		EventData:  raw,
		CreatedAt:  t.Now().UTC(),
	}

	// The event write is detached from a cancelled request context so that
	// tracking hits from clients that hang up are still recorded.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := t.Repo.Append(writeCtx, ev); err != nil {
		t.Metrics.RecordTelemetryDropped()
		t.Log.Warn("telemetry write failed",
			logger.String("event_type", eventType),
			logger.Int64("business_id", businessID),
			logger.Error(err))
	}

	if t.Queue != nil {
		if err := t.Queue.Publish(queue.TopicTelemetry, ev); err != nil {
			t.Log.Debug("telemetry mirror failed", logger.String("event_type", eventType), logger.Error(err))
		}
	}
}

var _ TelemetryRecorder = (*Telemetry)(nil)
