package service

import (
	"context"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/reviewleopard-backend/internal/errors"
	"github.com/unclebandit/reviewleopard-backend/internal/logger"
	"github.com/unclebandit/reviewleopard-backend/internal/metrics"
	"github.com/unclebandit/reviewleopard-backend/internal/model"
	"github.com/unclebandit/reviewleopard-backend/internal/repository"
)

// Hit is one tracking callback.
type Hit struct {
	Token       string
	IP          string
	UserAgent   string
	Destination string
}

// Tracker moves review requests forward from engagement signals. Repeated signals
// are no-ops on state; each still produces telemetry.
type Tracker struct {
	Reviews   repository.ReviewRepositoryInterface
	Telemetry TelemetryRecorder
	Metrics   *metrics.Metrics
	Log       logger.Logger
	Now       func() time.Time
}

func NewTracker(reviews repository.ReviewRepositoryInterface, telemetry TelemetryRecorder, m *metrics.Metrics, log logger.Logger) *Tracker {
	return &Tracker{Reviews: reviews, Telemetry: telemetry, Metrics: m, Log: log, Now: time.Now}
}

// Open records a tracking pixel load. Only email requests carry a pixel.
func (t *Tracker) Open(ctx context.Context, hit Hit) (bool, error) {
	req, err := t.resolve(ctx, "open", hit)
	if err != nil || req == nil {
		return false, err
	}
	if req.Channel != model.ChannelEmail {
		return false, nil
	}
	return t.advance(ctx, "open", req, model.ReviewOpened, model.EventRequestOpened, hit)
}

// Click records a click on the tracked review link.
func (t *Tracker) Click(ctx context.Context, hit Hit) (bool, error) {
	req, err := t.resolve(ctx, "click", hit)
	if err != nil || req == nil {
		return false, err
	}
	return t.advance(ctx, "click", req, model.ReviewClicked, model.EventRequestClicked, hit)
}

// Complete marks a request completed. A businessID of zero skips the ownership
// check and is reserved for trusted internal signals.
func (t *Tracker) Complete(ctx context.Context, businessID int64, requestID string) (bool, error) {
	req, err := t.Reviews.GetByID(ctx, requestID)
	if err != nil {
		return false, err
	}
	if businessID != 0 && req.BusinessID != businessID {
		return false, appErrors.ErrForbidden
	}
	if req.Status != model.ReviewClicked && req.Status != model.ReviewCompleted {
		return false, &appErrors.InvalidTransitionError{From: string(req.Status), To: string(model.ReviewCompleted)}
	}
	return t.advance(ctx, "complete", req, model.ReviewCompleted, model.EventRequestCompleted, Hit{})
}

// resolve returns nil without error for tokens that match no request.
func (t *Tracker) resolve(ctx context.Context, kind string, hit Hit) (*model.ReviewRequest, error) {
	if hit.Token == "" {
		t.invalid(ctx, kind, hit)
		return nil, nil
	}
	req, err := t.Reviews.GetByToken(ctx, hit.Token)
	if appErrors.IsNotFound(err) {
		t.invalid(ctx, kind, hit)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve tracking token: %w", err)
	}
	return req, nil
}

func (t *Tracker) invalid(ctx context.Context, kind string, hit Hit) {
	t.Metrics.RecordTracking(kind+"_invalid", false)
	t.Telemetry.Record(ctx, 0, model.EventTrackingInvalid, map[string]any{
		"kind":       kind,
		"ip":         hit.IP,
		"user_agent": hit.UserAgent,
	})
}

func (t *Tracker) advance(ctx context.Context, kind string, req *model.ReviewRequest, to model.ReviewStatus, event string, hit Hit) (bool, error) {
	changed, err := t.Reviews.Advance(ctx, req.ID, to, t.Now().UTC())
	if err != nil {
		return false, err
	}
	t.Metrics.RecordTracking(kind, changed)

	data := map[string]any{
		"review_request_id": req.ID,
		"channel":           req.Channel,
		"advanced":          changed,
	}
	if hit.IP != "" {
		data["ip"] = hit.IP
	}
	if hit.UserAgent != "" {
		data["user_agent"] = hit.UserAgent
	}
	if hit.Destination != "" {
		data["destination"] = hit.Destination
	}
	t.Telemetry.Record(ctx, req.BusinessID, event, data)

	if changed {
		t.Log.Debug("review request advanced",
			logger.String("review_request_id", req.ID),
			logger.String("status", string(to)))
	}
	return changed, nil
}
