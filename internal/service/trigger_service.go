package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/reviewleopard-backend/internal/errors"
	"github.com/unclebandit/reviewleopard-backend/internal/logger"
	"github.com/unclebandit/reviewleopard-backend/internal/metrics"
	"github.com/unclebandit/reviewleopard-backend/internal/model"
	"github.com/unclebandit/reviewleopard-backend/internal/repository"
)

// Trigger outcomes.
const (
	OutcomeScheduled      = "scheduled"
	OutcomeDuplicate      = "duplicate"
	OutcomeNoTemplate     = "no_matching_template"
	OutcomeNoReachableChn = "no_reachable_channel"
)

// TriggerService runs intake synchronously up to the durable schedule write.
// Delivery happens later in the dispatcher.
type TriggerService struct {
	Customers  repository.CustomerRepositoryInterface
	Businesses repository.BusinessRepositoryInterface
	Templates  repository.TemplateRepositoryInterface
	Normalizer *Normalizer
	Matcher    *Matcher
	Scheduler  *Scheduler
	Telemetry  TelemetryRecorder
	Metrics    *metrics.Metrics
	Log        logger.Logger
	NewID      func() string
}

type TriggerResult struct {
	ExecutionID     string     `json:"execution_id"`
	Outcome         string     `json:"outcome"`
	JobID           string     `json:"job_id,omitempty"`
	ReviewRequestID string     `json:"review_request_id,omitempty"`
	TemplateID      string     `json:"template_id,omitempty"`
	Channel         string     `json:"channel,omitempty"`
	RunAt           *time.Time `json:"run_at,omitempty"`
}

// Handle accepts raw on behalf of the authenticated business.
func (s *TriggerService) Handle(ctx context.Context, businessID int64, raw RawEvent) (*TriggerResult, error) {
	ev, err := s.Normalizer.Normalize(businessID, raw)
	if err != nil {
		s.Metrics.RecordTrigger(raw.Source(), "invalid")
		return nil, err
	}

	customer, err := s.Customers.GetByID(ctx, ev.CustomerID)
	if err != nil {
		return nil, err
	}
	if customer.BusinessID != businessID {
		s.Log.Warn("cross-tenant trigger rejected",
			logger.Int64("business_id", businessID),
			logger.Int64("customer_id", ev.CustomerID))
		s.Metrics.RecordTrigger(raw.Source(), "forbidden")
		return nil, appErrors.ErrForbidden
	}

	execID := s.NewID()
	res := &TriggerResult{ExecutionID: execID}
	base := map[string]any{
		"execution_id": execID,
		"source":       raw.Source(),
		"customer_id":  ev.CustomerID,
		"trigger_type": ev.TriggerType,
	}
	s.Telemetry.Record(ctx, businessID, model.EventTriggerReceived, with(base, "free_text", ev.FreeText))

	templates, err := s.Templates.ListByBusiness(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	tmpl := s.Matcher.Match(templates, ev)
	if tmpl == nil {
		res.Outcome = OutcomeNoTemplate
		s.Telemetry.Record(ctx, businessID, model.EventNoMatchingTemplate, base)
		s.Metrics.RecordTrigger(raw.Source(), res.Outcome)
		return res, nil
	}
	res.TemplateID = tmpl.ID

	ch, ok := SelectChannel(tmpl, customer)
	if !ok {
		res.Outcome = OutcomeNoReachableChn
		s.Telemetry.Record(ctx, businessID, model.EventNoReachableChannel, with(base, "template_id", tmpl.ID))
		s.Metrics.RecordTrigger(raw.Source(), res.Outcome)
		return res, nil
	}

	business, err := s.Businesses.GetByID(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("load business: %w", err)
	}

	scheduled, err := s.Scheduler.Schedule(ctx, business, tmpl, ev, ch)
	if err != nil {
		return nil, err
	}
	res.JobID = scheduled.Job.ID
	runAt := scheduled.Job.RunAt
	res.RunAt = &runAt

	if scheduled.Duplicate {
		res.Outcome = OutcomeDuplicate
		s.Telemetry.Record(ctx, businessID, model.EventDuplicateTrigger, with(base, "job_id", scheduled.Job.ID))
		s.Metrics.RecordTrigger(raw.Source(), res.Outcome)
		return res, nil
	}

	res.Outcome = OutcomeScheduled
	res.ReviewRequestID = scheduled.Request.ID
	res.Channel = string(ch)
	data := with(base, "job_id", scheduled.Job.ID)
	data["review_request_id"] = scheduled.Request.ID
	data["template_id"] = tmpl.ID
	data["channel"] = ch
	data["run_at"] = runAt
	s.Telemetry.Record(ctx, businessID, model.EventRequestScheduled, data)
	s.Metrics.RecordTrigger(raw.Source(), res.Outcome)
	s.Metrics.RecordScheduled(string(ch))

	s.Log.Info("review request scheduled",
		logger.String("execution_id", execID),
		logger.String("review_request_id", scheduled.Request.ID),
		logger.String("template_id", tmpl.ID),
		logger.String("channel", string(ch)),
		logger.Time("run_at", runAt))
	return res, nil
}

// SelectChannel picks the first template channel, in model.ChannelOrder, the
// customer can receive on.
func SelectChannel(t *model.AutomationTemplate, c *model.Customer) (model.Channel, bool) {
	for _, ch := range model.ChannelOrder {
		if t.HasChannel(ch) && c.Reachable(ch) {
			return ch, true
		}
	}
	return "", false
}

func with(base map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	out[key] = value
	return out
}

// NewTriggerService wires the intake pipeline with a random execution id source.
func NewTriggerService(
	customers repository.CustomerRepositoryInterface,
	businesses repository.BusinessRepositoryInterface,
	templates repository.TemplateRepositoryInterface,
	matcher *Matcher,
	scheduler *Scheduler,
	telemetry TelemetryRecorder,
	m *metrics.Metrics,
	log logger.Logger,
) *TriggerService {
	return &TriggerService{
		Customers:  customers,
		Businesses: businesses,
		Templates:  templates,
		Normalizer: NewNormalizer(),
		Matcher:    matcher,
		Scheduler:  scheduler,
		Telemetry:  telemetry,
		Metrics:    m,
		Log:        log,
		NewID:      uuid.NewString,
	}
}
