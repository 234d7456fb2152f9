package service

import (
	"context"
	"time"

	"github.com/unclebandit/reviewleopard-backend/internal/logger"
	"github.com/unclebandit/reviewleopard-backend/internal/metrics"
	"github.com/unclebandit/reviewleopard-backend/internal/model"
	"github.com/unclebandit/reviewleopard-backend/internal/repository"
)

type SweepConfig struct {
	// WindowStart and WindowEnd bound how long ago the click happened.
	WindowStart time.Duration
	WindowEnd   time.Duration
	BatchSize   int
	SendTimeout time.Duration
}

// RecoverySweep reminds customers who clicked but never completed a review.
// Reminders do not change request status.
type RecoverySweep struct {
	Reviews    repository.ReviewRepositoryInterface
	Customers  repository.CustomerRepositoryInterface
	Businesses repository.BusinessRepositoryInterface
	Adapters   AdapterSource
	Renderer   *Renderer
	Telemetry  TelemetryRecorder
	Metrics    *metrics.Metrics
	Log        logger.Logger
	Config     SweepConfig
	Now        func() time.Time
}

type SweepResult struct {
	Selected int `json:"selected"`
	Reminded int `json:"reminded"`
	Failed   int `json:"failed"`
}

// maxSweepBatches caps one run so a backlog cannot make it unbounded.
const maxSweepBatches = 20

// Run claims every qualifying request in the window and sends one reminder each.
// The claim stamps reminder_sent_at first, so a failed send is never retried.
func (s *RecoverySweep) Run(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.Now().UTC()
	after := now.Add(-s.Config.WindowEnd)
	before := now.Add(-s.Config.WindowStart)
	limit := max(1, s.Config.BatchSize)

	for i := 0; i < maxSweepBatches; i++ {
		batch, err := s.Reviews.ClaimReminders(ctx, after, before, now, limit)
		if err != nil {
			return res, err
		}
		res.Selected += len(batch)
		for _, req := range batch {
			if err := s.remind(ctx, req); err != nil {
				res.Failed++
				s.Metrics.RecordReminder("failed")
				s.Log.Warn("reminder failed",
					logger.String("review_request_id", req.ID), logger.Error(err))
				s.Telemetry.Record(ctx, req.BusinessID, model.EventReminderFailed, map[string]any{
					"review_request_id": req.ID,
					"channel":           req.Channel,
					"reason":            err.Error(),
				})
				continue
			}
			res.Reminded++
			s.Metrics.RecordReminder("sent")
			s.Telemetry.Record(ctx, req.BusinessID, model.EventReminderSent, map[string]any{
				"review_request_id": req.ID,
				"channel":           req.Channel,
			})
		}
		if len(batch) < limit {
			break
		}
	}

	s.Log.Info("recovery sweep finished",
		logger.Int("selected", res.Selected),
		logger.Int("reminded", res.Reminded),
		logger.Int("failed", res.Failed))
	return res, nil
}

func (s *RecoverySweep) remind(ctx context.Context, req *model.ReviewRequest) error {
	customer, err := s.Customers.GetByID(ctx, req.CustomerID)
	if err != nil {
		return err
	}
	business, err := s.Businesses.GetByID(ctx, req.BusinessID)
	if err != nil {
		return err
	}
	adapter, err := s.Adapters.For(req.Channel)
	if err != nil {
		return err
	}

	timeout := s.Config.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err = adapter.Send(sendCtx, s.Renderer.ComposeReminder(req, customer, business))
	return err
}
