package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/reviewleopard-backend/internal/errors"
	"github.com/unclebandit/reviewleopard-backend/internal/model"
	"github.com/unclebandit/reviewleopard-backend/internal/repository"
)

// Scheduler turns a matched template into a scheduled review request and its job.
type Scheduler struct {
	Reviews     repository.ReviewRepositoryInterface
	Renderer    *Renderer
	DedupWindow time.Duration
	Now         func() time.Time
	NewID       func() string
}

func NewScheduler(reviews repository.ReviewRepositoryInterface, renderer *Renderer, dedupWindow time.Duration) *Scheduler {
	return &Scheduler{
		Reviews:     reviews,
		Renderer:    renderer,
		DedupWindow: dedupWindow,
		Now:         time.Now,
		NewID:       uuid.NewString,
	}
}

// ScheduleResult describes the job backing a trigger. Duplicate is set when an
// earlier identical trigger already produced it.
type ScheduleResult struct {
	Job       *model.ScheduledJob
	Request   *model.ReviewRequest
	Duplicate bool
}

// DedupKey identifies a trigger for de-duplication purposes.
func DedupKey(ev model.TriggerEvent, templateID string) string {
	return fmt.Sprintf("%d:%d:%s:%s", ev.BusinessID, ev.CustomerID, templateID,
		ev.OccurredAt.UTC().Format(time.RFC3339Nano))
}

// SendAt is the earliest time the request may go out.
func SendAt(ev model.TriggerEvent, t *model.AutomationTemplate) time.Time {
	return ev.OccurredAt.Add(t.Delay())
}

// Schedule writes the review request and its job together. A repeated trigger
// inside the de-duplication window returns the existing job with Duplicate set.
func (s *Scheduler) Schedule(ctx context.Context, b *model.Business, tmpl *model.AutomationTemplate, ev model.TriggerEvent, ch model.Channel) (*ScheduleResult, error) {
	now := s.Now().UTC()
	sendAt := SendAt(ev, tmpl).UTC()
	token := s.NewID()

	req := &model.ReviewRequest{
		ID:          s.NewID(),
		BusinessID:  ev.BusinessID,
		CustomerID:  ev.CustomerID,
		TemplateID:  tmpl.ID,
		Channel:     ch,
		Subject:     tmpl.Config.Subject,
		MessageBody: tmpl.Config.MessageBody,
		Token:       token,
		ReviewLink:  s.Renderer.TrackingLink(token, b.ReviewURL),
		Status:      model.ReviewScheduled,
		BestSendAt:  sendAt,
		CreatedAt:   now,
	}

	payload, err := model.EncodePayload(model.ReviewRequestPayload{ReviewRequestID: req.ID, Trigger: ev})
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}
	job := &model.ScheduledJob{
		ID:         s.NewID(),
		BusinessID: ev.BusinessID,
		JobType:    model.JobSendReviewRequest,
		Payload:    payload,
		DedupKey:   DedupKey(ev, tmpl.ID),
		RunAt:      sendAt,
		Status:     model.JobQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	stored, err := s.Reviews.CreateScheduled(ctx, req, job, s.DedupWindow)
	if errors.Is(err, appErrors.ErrSchedulingConflict) {
		return &ScheduleResult{Job: stored, Duplicate: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("schedule review request: %w", err)
	}
	return &ScheduleResult{Job: stored, Request: req}, nil
}
