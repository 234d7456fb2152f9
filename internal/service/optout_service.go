package service

import (
	"context"

	"github.com/unclebandit/reviewleopard-backend/internal/channel"
	"github.com/unclebandit/reviewleopard-backend/internal/logger"
	"github.com/unclebandit/reviewleopard-backend/internal/model"
	"github.com/unclebandit/reviewleopard-backend/internal/repository"
)

// OptOutService applies STOP/START keywords from inbound SMS.
type OptOutService struct {
	Customers repository.CustomerRepositoryInterface
	Telemetry TelemetryRecorder
	Log       logger.Logger
}

// HandleInbound returns the action taken for a message from `from`.
// Messages that are not opt keywords are ignored.
func (s *OptOutService) HandleInbound(ctx context.Context, from, body string) (channel.OptAction, error) {
	action := channel.ParseKeyword(body)
	if action == channel.OptNone {
		return action, nil
	}
	phone, err := channel.NormalizeE164(from)
	if err != nil {
		s.Log.Warn("inbound sms from unparseable number", logger.String("from", from), logger.Error(err))
		return channel.OptNone, nil
	}

	optedOut := action == channel.OptOut
	businessIDs, err := s.Customers.SetSMSOptOut(ctx, phone, optedOut)
	if err != nil {
		return channel.OptNone, err
	}

	event := model.EventSMSOptIn
	if optedOut {
		event = model.EventSMSOptOut
	}
	for _, id := range businessIDs {
		s.Telemetry.Record(ctx, id, event, map[string]any{"phone": phone})
	}
	s.Log.Info("sms opt preference updated",
		logger.String("phone", phone),
		logger.Bool("opted_out", optedOut),
		logger.Int("customers", len(businessIDs)))
	return action, nil
}
