package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/reviewleopard-backend/internal/channel"
	appErrors "github.com/unclebandit/reviewleopard-backend/internal/errors"
	"github.com/unclebandit/reviewleopard-backend/internal/logger"
	"github.com/unclebandit/reviewleopard-backend/internal/metrics"
	"github.com/unclebandit/reviewleopard-backend/internal/model"
	"github.com/unclebandit/reviewleopard-backend/internal/repository"
)

// AdapterSource resolves the adapter for a channel.
type AdapterSource interface {
	For(ch model.Channel) (channel.Adapter, error)
}

type DispatcherConfig struct {
	BatchSize   int
	PoolSize    int
	StaleAfter  time.Duration
	RetryBudget int
	SendTimeout time.Duration
}

// Dispatcher executes due scheduled jobs. Any number of dispatchers may tick
// concurrently; exclusivity comes from the conditional claim in the job store.
type Dispatcher struct {
	Jobs       repository.JobRepositoryInterface
	Reviews    repository.ReviewRepositoryInterface
	Customers  repository.CustomerRepositoryInterface
	Businesses repository.BusinessRepositoryInterface
	Adapters   AdapterSource
	Renderer   *Renderer
	Telemetry  TelemetryRecorder
	Metrics    *metrics.Metrics
	Log        logger.Logger
	Config     DispatcherConfig
	Now        func() time.Time
}

// TickResult counts what one tick did. Processed is successful sends.
type TickResult struct {
	Claimed   int `json:"claimed"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Requeued  int `json:"requeued"`
	Abandoned int `json:"abandoned"`
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeSkipped
)

// Tick recovers stale claims, then claims and executes one batch of due jobs.
// Item failures are recorded on the job and never abort the batch; the returned
// error covers only store failures that prevented the tick from running.
func (d *Dispatcher) Tick(ctx context.Context) (TickResult, error) {
	start := time.Now()
	defer func() { d.Metrics.ObserveTick(time.Since(start).Seconds()) }()

	var res TickResult
	requeued, abandoned, err := d.recoverStale(ctx)
	if err != nil {
		return res, err
	}
	res.Requeued, res.Abandoned = requeued, abandoned

	jobs, err := d.Jobs.ClaimDue(ctx, d.now(), d.Config.BatchSize)
	if err != nil {
		return res, err
	}
	res.Claimed = len(jobs)
	if len(jobs) == 0 {
		return res, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, d.Config.PoolSize))
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			o := d.process(gctx, job)
			mu.Lock()
			defer mu.Unlock()
			switch o {
			case outcomeSent:
				res.Processed++
			case outcomeFailed:
				res.Failed++
			case outcomeSkipped:
				res.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	d.Log.Info("dispatch tick finished",
		logger.Int("claimed", res.Claimed),
		logger.Int("processed", res.Processed),
		logger.Int("failed", res.Failed),
		logger.Int("skipped", res.Skipped),
		logger.Duration("elapsed", time.Since(start)))
	return res, nil
}

// recoverStale requeues crashed claims that still have retry budget and fails the rest.
func (d *Dispatcher) recoverStale(ctx context.Context) (int, int, error) {
	now := d.now()
	staleBefore := now.Add(-d.Config.StaleAfter)

	abandoned, err := d.Jobs.AbandonStale(ctx, staleBefore, d.Config.RetryBudget, now)
	if err != nil {
		return 0, 0, err
	}
	for _, job := range abandoned {
		d.failAbandoned(ctx, job, now)
	}

	n, err := d.Jobs.RequeueStale(ctx, staleBefore, d.Config.RetryBudget)
	if err != nil {
		return 0, len(abandoned), err
	}
	d.Metrics.RecordStale("requeued", int(n))
	d.Metrics.RecordStale("abandoned", len(abandoned))
	if n > 0 || len(abandoned) > 0 {
		d.Log.Warn("recovered stale job claims",
			logger.Int64("requeued", n),
			logger.Int("abandoned", len(abandoned)))
	}
	return int(n), len(abandoned), nil
}

func (d *Dispatcher) failAbandoned(ctx context.Context, job *model.ScheduledJob, now time.Time) {
	data := map[string]any{"job_id": job.ID, "attempts": job.Attempts}
	payload, err := model.DecodePayload(job)
	if err == nil {
		if p, ok := payload.(model.ReviewRequestPayload); ok {
			data["review_request_id"] = p.ReviewRequestID
			if _, err := d.Reviews.Advance(ctx, p.ReviewRequestID, model.ReviewFailed, now); err != nil {
				d.Log.Error("failed to mark abandoned request failed",
					logger.String("job_id", job.ID), logger.Error(err))
			}
		}
	}
	d.Telemetry.Record(ctx, job.BusinessID, model.EventJobAbandoned, data)
}

func (d *Dispatcher) process(ctx context.Context, job *model.ScheduledJob) outcome {
	log := d.Log.With(logger.String("job_id", job.ID), logger.String("job_type", string(job.JobType)))

	payload, err := model.DecodePayload(job)
	if err != nil {
		log.Error("undecodable job payload", logger.Error(err))
		return d.failJob(ctx, log, job, err.Error())
	}

	switch p := payload.(type) {
	case model.ReviewRequestPayload:
		return d.deliver(ctx, log, job, p)
	default:
		return d.failJob(ctx, log, job, fmt.Sprintf("no executor for %s", job.JobType))
	}
}

func (d *Dispatcher) deliver(ctx context.Context, log logger.Logger, job *model.ScheduledJob, p model.ReviewRequestPayload) outcome {
	log = log.With(logger.String("review_request_id", p.ReviewRequestID))

	req, err := d.Reviews.GetByID(ctx, p.ReviewRequestID)
	if appErrors.IsNotFound(err) {
		dangling := &appErrors.DanglingReferenceError{JobID: job.ID, ReviewRequestID: p.ReviewRequestID}
		log.Error("dangling job reference", logger.Error(dangling))
		return d.failJob(ctx, log, job, dangling.Error())
	}
	if err != nil {
		log.Error("load review request", logger.Error(err))
		return d.failJob(ctx, log, job, err.Error())
	}
	if req.Status != model.ReviewScheduled {
		// Never send twice: a request that already left scheduled closes its job.
		return d.failJob(ctx, log, job, fmt.Sprintf("review request already %s", req.Status))
	}

	msg, err := d.compose(ctx, req, p.Trigger.FreeText)
	if err != nil {
		return d.markFailed(ctx, log, job, req, err)
	}
	adapter, err := d.Adapters.For(req.Channel)
	if err != nil {
		return d.markFailed(ctx, log, job, req, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout())
	result, err := adapter.Send(sendCtx, msg)
	cancel()
	if err != nil {
		return d.markFailed(ctx, log, job, req, err)
	}
	return d.markSent(ctx, log, job, req, result)
}

func (d *Dispatcher) compose(ctx context.Context, req *model.ReviewRequest, service string) (channel.Message, error) {
	customer, err := d.Customers.GetByID(ctx, req.CustomerID)
	if err != nil {
		return channel.Message{}, fmt.Errorf("load customer: %w", err)
	}
	business, err := d.Businesses.GetByID(ctx, req.BusinessID)
	if err != nil {
		return channel.Message{}, fmt.Errorf("load business: %w", err)
	}
	return d.Renderer.Compose(req, customer, business, service), nil
}

func (d *Dispatcher) markSent(ctx context.Context, log logger.Logger, job *model.ScheduledJob, req *model.ReviewRequest, result channel.Result) outcome {
	err := d.Jobs.CompleteDelivery(ctx, job.ID, job.Attempts, req.ID, d.now())
	if errors.Is(err, appErrors.ErrClaimConflict) {
		log.Warn("claim lost after send", logger.String("message_id", result.MessageID))
		return outcomeSkipped
	}
	if err != nil {
		log.Error("record delivery", logger.Error(err), logger.String("message_id", result.MessageID))
		return outcomeFailed
	}
	d.Metrics.RecordDelivery(string(req.Channel), "sent")
	d.Telemetry.Record(ctx, req.BusinessID, model.EventRequestSent, map[string]any{
		"review_request_id": req.ID,
		"job_id":            job.ID,
		"channel":           req.Channel,
		"message_id":        result.MessageID,
	})
	return outcomeSent
}

func (d *Dispatcher) markFailed(ctx context.Context, log logger.Logger, job *model.ScheduledJob, req *model.ReviewRequest, cause error) outcome {
	reason := cause.Error()
	err := d.Jobs.FailDelivery(ctx, job.ID, job.Attempts, req.ID, reason, d.now())
	if errors.Is(err, appErrors.ErrClaimConflict) {
		return outcomeSkipped
	}
	if err != nil {
		log.Error("record delivery failure", logger.Error(err))
	}
	log.Warn("delivery failed", logger.String("channel", string(req.Channel)), logger.Error(cause))
	d.Metrics.RecordDelivery(string(req.Channel), "failed")
	d.Telemetry.Record(ctx, req.BusinessID, model.EventRequestFailed, map[string]any{
		"review_request_id": req.ID,
		"job_id":            job.ID,
		"channel":           req.Channel,
		"reason":            reason,
	})
	return outcomeFailed
}

func (d *Dispatcher) failJob(ctx context.Context, log logger.Logger, job *model.ScheduledJob, reason string) outcome {
	err := d.Jobs.FailJob(ctx, job.ID, job.Attempts, reason, d.now())
	if errors.Is(err, appErrors.ErrClaimConflict) {
		return outcomeSkipped
	}
	if err != nil {
		log.Error("record job failure", logger.Error(err))
	}
	return outcomeFailed
}

func (d *Dispatcher) sendTimeout() time.Duration {
	if d.Config.SendTimeout <= 0 {
		return 10 * time.Second
	}
	return d.Config.SendTimeout
}

func (d *Dispatcher) now() time.Time {
	if d.Now == nil {
		return time.Now().UTC()
	}
	return d.Now().UTC()
}
